// Package payment 把支付网关的扣款/退款封装成幂等步骤：
// 回执按订单号保留，重复扣款收敛到同一张回执，退款以回执为准。
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FleetEats/FleetEats/internal/common/logger"
	"github.com/FleetEats/FleetEats/internal/common/retry"
	"github.com/FleetEats/FleetEats/internal/order"
)

// Kind 支付失败的种类
type Kind string

const (
	KindInvalidAmount     Kind = "invalid_amount"
	KindCardDeclined      Kind = "card_declined"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindFailed            Kind = "payment_failed"
)

// Error 支付错误。对本次请求是终结性的，不实现 Transient，不会被重试。
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("payment error: %s", e.Kind)
	}
	return fmt.Sprintf("payment error: %s (%s)", e.Kind, e.Detail)
}

// ErrNoReceipt 退款时找不到对应订单的回执。
var ErrNoReceipt = errors.New("no payment receipt for order")

// ReceiptStatus 回执状态
type ReceiptStatus string

const (
	ReceiptCompleted ReceiptStatus = "completed"
	ReceiptFailed    ReceiptStatus = "failed"
	ReceiptRefunded  ReceiptStatus = "refunded"
)

// Receipt 一次成功扣款的不可变记录。
// 唯一允许的后续变更是追加退款信息并把状态置为 refunded。
type Receipt struct {
	OrderID           string
	TransactionID     string
	AmountCents       int64
	Status            ReceiptStatus
	Timestamp         time.Time
	RefundAmountCents int64
	RefundedAt        *time.Time
}

// Result 网关授权结果
type Result struct {
	TransactionID string
	AmountCents   int64
	Timestamp     time.Time
}

// Gateway 支付网关端口。Authorize 可能要等待外部授权（长时间挂起），
// 基础设施错误用 order.RemoteError 包装以便重试。
type Gateway interface {
	Authorize(ctx context.Context, o *order.Order) (Result, error)
	Refund(ctx context.Context, transactionID string, amountCents int64) error
}

// Coordinator 支付协调器，实现 order.PaymentService。
type Coordinator struct {
	gateway          Gateway
	retry            retry.Policy
	authorizeTimeout time.Duration
	refundTimeout    time.Duration
	log              logger.Logger

	mu       sync.Mutex
	receipts map[string]*Receipt // orderID -> 回执
	now      func() time.Time
}

// NewCoordinator 创建支付协调器
func NewCoordinator(gateway Gateway, policy retry.Policy, authorizeTimeout, refundTimeout time.Duration, log logger.Logger) *Coordinator {
	if authorizeTimeout <= 0 {
		authorizeTimeout = 15 * time.Second
	}
	if refundTimeout <= 0 {
		refundTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		gateway:          gateway,
		retry:            policy,
		authorizeTimeout: authorizeTimeout,
		refundTimeout:    refundTimeout,
		log:              log,
		receipts:         make(map[string]*Receipt),
		now:              time.Now,
	}
}

// Charge 对订单扣款。
// 前置校验独立于 OrderValidator：总额为正、各分项之和与总额一致、
// 配送地址存在。已有成功回执时直接返回（幂等重入）。
func (c *Coordinator) Charge(ctx context.Context, o *order.Order) error {
	if err := c.preflight(o); err != nil {
		return err
	}

	c.mu.Lock()
	if r, ok := c.receipts[o.ID]; ok && r.Status == ReceiptCompleted {
		c.mu.Unlock()
		c.log.Infof("charge already completed order=%s tx=%s", o.ID, r.TransactionID)
		return nil
	}
	c.mu.Unlock()

	// 超时按单次授权计，整个挂起的尝试超时后还能换一次机会
	result, err := retry.Do1(ctx, c.retry, func(ctx context.Context) (Result, error) {
		ctx, cancel := context.WithTimeout(ctx, c.authorizeTimeout)
		defer cancel()
		return c.gateway.Authorize(ctx, o)
	})
	if err != nil {
		return err
	}

	if result.TransactionID == "" {
		result.TransactionID = uuid.NewString()
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = c.now()
	}

	c.mu.Lock()
	c.receipts[o.ID] = &Receipt{
		OrderID:       o.ID,
		TransactionID: result.TransactionID,
		AmountCents:   result.AmountCents,
		Status:        ReceiptCompleted,
		Timestamp:     result.Timestamp,
	}
	c.mu.Unlock()

	c.log.Infof("charge completed order=%s tx=%s amount=%d", o.ID, result.TransactionID, result.AmountCents)
	return nil
}

// Refund 按订单号退款。
// 需要存在先前的回执，且 0 < amount <= 回执金额；已退款的回执幂等返回。
func (c *Coordinator) Refund(ctx context.Context, orderID string, amountCents int64) error {
	c.mu.Lock()
	r, ok := c.receipts[orderID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("refund order %s: %w", orderID, ErrNoReceipt)
	}
	if r.Status == ReceiptRefunded {
		c.mu.Unlock()
		c.log.Infof("refund already processed order=%s tx=%s", orderID, r.TransactionID)
		return nil
	}
	txID := r.TransactionID
	receiptAmount := r.AmountCents
	c.mu.Unlock()

	if amountCents <= 0 || amountCents > receiptAmount {
		return &Error{
			Kind:   KindInvalidAmount,
			Detail: fmt.Sprintf("refund amount %d out of range (0, %d]", amountCents, receiptAmount),
		}
	}

	if err := c.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.refundTimeout)
		defer cancel()
		return c.gateway.Refund(ctx, txID, amountCents)
	}); err != nil {
		return err
	}

	now := c.now()
	c.mu.Lock()
	r.RefundAmountCents = amountCents
	r.RefundedAt = &now
	r.Status = ReceiptRefunded
	c.mu.Unlock()

	c.log.Infof("refund completed order=%s tx=%s amount=%d", orderID, txID, amountCents)
	return nil
}

// Receipt 查询订单回执（拷贝），支持重入查询。
func (c *Coordinator) Receipt(orderID string) (Receipt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[orderID]
	if !ok {
		return Receipt{}, false
	}
	return *r, true
}

// preflight 扣款前的金额/地址校验。
func (c *Coordinator) preflight(o *order.Order) error {
	if o == nil {
		return &Error{Kind: KindFailed, Detail: "order is nil"}
	}
	if o.TotalCents <= 0 {
		return &Error{Kind: KindInvalidAmount, Detail: fmt.Sprintf("total %d must be positive", o.TotalCents)}
	}
	if computed := o.ComputedTotalCents(); computed != o.TotalCents {
		return &Error{
			Kind:   KindInvalidAmount,
			Detail: fmt.Sprintf("stated total %d != computed total %d", o.TotalCents, computed),
		}
	}
	addr := o.DeliveryAddress
	if strings.TrimSpace(addr.Street) == "" || strings.TrimSpace(addr.City) == "" {
		return &Error{Kind: KindFailed, Detail: "delivery address missing"}
	}
	return nil
}
