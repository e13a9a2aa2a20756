package retry

import (
	"context"
	"errors"
	"time"
)

// Policy 重试策略：指数退避，仅对瞬时错误生效。
// 零值不可用，请通过 DefaultPolicy 或配置构造。
type Policy struct {
	MaxAttempts int           // 最大尝试次数（含首次），<=0 视为 1
	BaseBackoff time.Duration // 首次失败后的等待
	MaxBackoff  time.Duration // 退避上限，0 表示不封顶
}

// DefaultPolicy 默认策略：3 次尝试，200ms 起步退避，5s 封顶。
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// transient 可重试错误的判定接口。
// 领域错误（校验失败、非法流转、支付拒绝等）不实现该接口，天然不会被重试。
type transient interface {
	Transient() bool
}

// IsTransient 判断 err 是否值得重试。
// 超时（context.DeadlineExceeded）按瞬时错误处理。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}

// Do 执行 op，失败且错误为瞬时时按退避重试，耗尽后返回最后一次错误。
// ctx 取消会立即中断等待并返回 ctx.Err()。
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}

		if err := sleep(ctx, p.backoff(i)); err != nil {
			return err
		}
	}
	return lastErr
}

// Do1 带返回值的重试封装。
func Do1[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

// backoff 第 i 次失败后的等待时长：base * 2^i，封顶 MaxBackoff。
func (p Policy) backoff(i int) time.Duration {
	d := p.BaseBackoff
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for ; i > 0; i-- {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
