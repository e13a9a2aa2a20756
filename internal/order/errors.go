package order

import (
	"errors"
	"fmt"
)

// ValidationKind 校验失败的种类
type ValidationKind string

const (
	ValidationEmptyItems     ValidationKind = "empty_items"
	ValidationInvalidItem    ValidationKind = "invalid_item"
	ValidationInvalidAddress ValidationKind = "invalid_address"
	ValidationTotalMismatch  ValidationKind = "total_mismatch"
)

// ValidationError 订单结构/金额校验失败。属于调用方错误，不重试。
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("order validation failed: %s", e.Kind)
	}
	return fmt.Sprintf("order validation failed: %s (%s)", e.Kind, e.Detail)
}

// IllegalTransitionError 状态机不允许的流转。不重试、不部分生效。
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal order status transition: %s -> %s", e.From, e.To)
}

// NotFoundError 订单不在活跃集合（已终态或从未创建）。
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found in active set", e.OrderID)
}

// RefundFailedError 取消流程里退款这一步失败。
// 与取消本身的失败区分开：此时订单未取消，钱也没退。
type RefundFailedError struct {
	OrderID string
	Err     error
}

func (e *RefundFailedError) Error() string {
	return fmt.Sprintf("refund for order %s failed, cancellation aborted: %v", e.OrderID, e.Err)
}

func (e *RefundFailedError) Unwrap() error { return e.Err }

// RemoteError 远程协作方（持久化/网关/骑手目录）调用失败。
// 实现 Transient 接口，重试策略据此判定可重试。
type RemoteError struct {
	Service string
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote service %s: %v", e.Service, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Transient() bool { return true }

// 派单相关错误。可通过换人/稍后重试恢复，对订单本身不致命。
var (
	ErrDriverNotAvailable = errors.New("driver not available")
	ErrNoDriverAvailable  = errors.New("no available driver in range")
	ErrLocationNotFound   = errors.New("delivery address could not be geocoded")
)
