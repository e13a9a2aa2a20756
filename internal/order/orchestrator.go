// Package order 实现订单生命周期的编排核心：
// 状态机约束下的建单、流转、派单与取消，以及支付/持久化失败时的补偿。
package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FleetEats/FleetEats/internal/common/logger"
	"github.com/FleetEats/FleetEats/internal/common/retry"
	"github.com/FleetEats/FleetEats/internal/common/tracing"
	"github.com/FleetEats/FleetEats/internal/degrade"
	"github.com/FleetEats/FleetEats/internal/notify"
)

// Deps Orchestrator 的协作方，全部显式注入，不依赖任何进程级单例。
type Deps struct {
	Repo     Repository
	Payments PaymentService
	Drivers  DriverAssigner
	Notifier notify.Dispatcher
	Tracker  notify.Tracker // 实时追踪订阅，可为 nil（不支持订阅）
	Fallback *degrade.Cache // 读路径降级缓存，可为 nil（不降级）
	Retry    retry.Policy
	Log      logger.Logger
}

// Orchestrator 订单编排引擎。
//
// 活跃（非终态）订单保存在内存工作集里，单个订单的全部变更经
// keyedMutex 串行化；不同订单之间完全并行。对外的每个操作要么
// 返回完整更新后的订单，要么返回类型化错误，绝不半更新。
type Orchestrator struct {
	repo     Repository
	payments PaymentService
	drivers  DriverAssigner
	notifier notify.Dispatcher
	tracker  notify.Tracker
	fallback *degrade.Cache
	retry    retry.Policy
	log      logger.Logger

	mu     sync.RWMutex
	active map[string]*Order
	locks  *keyedMutex

	now   func() time.Time
	spawn func(func()) // 异步派单入口，测试中替换为同步执行
}

// NewOrchestrator 创建编排引擎
func NewOrchestrator(deps Deps) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		repo:     deps.Repo,
		payments: deps.Payments,
		drivers:  deps.Drivers,
		notifier: deps.Notifier,
		tracker:  deps.Tracker,
		fallback: deps.Fallback,
		retry:    deps.Retry,
		log:      log,
		active:   make(map[string]*Order),
		locks:    newKeyedMutex(),
		now:      time.Now,
		spawn:    func(f func()) { go f() },
	}
}

// CreateOrder 建单主流程：校验 → 扣款 → 持久化 → 进入活跃集合 → 通知商家，
// 随后异步尝试派单（尽力而为，找不到骑手不影响建单结果）。
//
// 扣款失败时订单不落库、不进入活跃集合；扣款成功但落库失败时
// 触发补偿退款，错误原样上抛。
func (e *Orchestrator) CreateOrder(ctx context.Context, o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("order is nil")
	}

	span, ctx := tracing.StartSpan(ctx, "orchestrator.create_order", o.ID)
	defer span.Finish()

	now := e.now()
	w := o.Clone()
	if w.ID == "" {
		// 预分配稳定订单号，使落库重试收敛而不是重复建单
		w.ID = uuid.NewString()
	}
	w.Status = StatusCreated
	w.PaymentStatus = PaymentPending
	w.CreatedAt = now
	w.UpdatedAt = now
	for i := range w.Items {
		w.Items[i].OrderID = w.ID
	}

	if err := Validate(w); err != nil {
		return nil, err
	}

	if err := ApplyTransition(w, StatusPaymentProcessing, e.now()); err != nil {
		return nil, err
	}
	w.PaymentStatus = PaymentProcessing

	if err := e.payments.Charge(ctx, w); err != nil {
		return nil, err
	}
	w.PaymentStatus = PaymentCompleted
	if err := ApplyTransition(w, StatusPaymentConfirmed, e.now()); err != nil {
		return nil, err
	}

	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.repo.CreateOrder(ctx, w)
	}); err != nil {
		// 钱已扣、单没落库：补偿退款，退款失败只能记日志留给对账
		if refundErr := e.payments.Refund(ctx, w.ID, w.TotalCents); refundErr != nil {
			e.log.Errorf("compensating refund failed order=%s: %v", w.ID, refundErr)
		}
		return nil, err
	}

	e.mu.Lock()
	e.active[w.ID] = w
	e.mu.Unlock()

	e.notifyBestEffort(ctx, notify.Notification{
		RecipientID: w.PartnerID,
		Title:       "New order",
		Body:        fmt.Sprintf("Order %s is paid and waiting for confirmation", w.ID),
		Data: notify.Map{
			"order_id":    notify.String(w.ID),
			"total_cents": notify.Int(w.TotalCents),
			"items":       notify.Int(int64(len(w.Items))),
		},
	})

	orderID := w.ID
	e.spawn(func() {
		e.tryDispatchDriver(context.Background(), orderID)
	})

	return w.Clone(), nil
}

// UpdateOrderStatus 对活跃订单应用一次状态流转。
// 终态订单已移出活跃集合，再更新会得到 NotFoundError。
func (e *Orchestrator) UpdateOrderStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	span, ctx := tracing.StartSpan(ctx, "orchestrator.update_order_status", orderID)
	defer span.Finish()

	unlock := e.locks.lock(orderID)
	defer unlock()

	cur, err := e.activeOrder(orderID)
	if err != nil {
		return nil, err
	}

	w := cur.Clone()
	if err := ApplyTransition(w, to, e.now()); err != nil {
		return nil, err
	}

	// 写路径没有缓存兜底，重试耗尽即失败，内存状态保持不变
	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.repo.UpdateOrderStatus(ctx, w)
	}); err != nil {
		return nil, err
	}

	e.commit(w)
	e.afterTransition(ctx, w)

	return w.Clone(), nil
}

// AssignDriver 把骑手分配给订单。
// 可用性在 Claim 时原子复查（check-and-set），两个订单并发抢同一
// 骑手时恰有一方成功，另一方收到 ErrDriverNotAvailable。
func (e *Orchestrator) AssignDriver(ctx context.Context, driverID, orderID string) (*Order, error) {
	span, ctx := tracing.StartSpan(ctx, "orchestrator.assign_driver", orderID)
	defer span.Finish()

	unlock := e.locks.lock(orderID)
	defer unlock()

	cur, err := e.activeOrder(orderID)
	if err != nil {
		return nil, err
	}

	// 先验流转合法性，避免无谓占用骑手
	if err := AssertTransition(cur.Status, StatusDriverAssigned); err != nil {
		return nil, err
	}

	if err := e.drivers.Claim(ctx, driverID); err != nil {
		return nil, err
	}

	w := cur.Clone()
	w.DriverID = driverID
	if err := ApplyTransition(w, StatusDriverAssigned, e.now()); err != nil {
		// Claim 之后不应再失败；防御性回补
		e.releaseDriver(ctx, driverID)
		return nil, err
	}

	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.repo.AssignDriver(ctx, driverID, w)
	}); err != nil {
		// 落库失败：骑手放回，订单保持原状
		e.releaseDriver(ctx, driverID)
		return nil, err
	}

	e.commit(w)

	e.notifyBestEffort(ctx, notify.Notification{
		RecipientID: w.CustomerID,
		Title:       "Driver assigned",
		Body:        fmt.Sprintf("A driver is on the way to pick up order %s", w.ID),
		Data:        notify.Map{"order_id": notify.String(w.ID), "driver_id": notify.String(driverID)},
	})
	e.notifyBestEffort(ctx, notify.Notification{
		RecipientID: driverID,
		Title:       "New delivery",
		Body:        fmt.Sprintf("You have been assigned order %s", w.ID),
		Data:        notify.Map{"order_id": notify.String(w.ID)},
	})

	return w.Clone(), nil
}

// CancelOrder 取消订单。
// 已完成支付的订单先退款再取消（补偿动作）；退款失败时取消不继续，
// 调用方收到 RefundFailedError 而不是装作钱已退回。
func (e *Orchestrator) CancelOrder(ctx context.Context, orderID, reason string) (*Order, error) {
	span, ctx := tracing.StartSpan(ctx, "orchestrator.cancel_order", orderID)
	defer span.Finish()

	unlock := e.locks.lock(orderID)
	defer unlock()

	cur, err := e.activeOrder(orderID)
	if err != nil {
		return nil, err
	}
	if err := AssertTransition(cur.Status, StatusCancelled); err != nil {
		return nil, err
	}

	refunded := false
	if cur.PaymentStatus == PaymentCompleted {
		if err := e.payments.Refund(ctx, cur.ID, cur.TotalCents); err != nil {
			return nil, &RefundFailedError{OrderID: cur.ID, Err: err}
		}
		refunded = true
	}

	w := cur.Clone()
	w.CancelReason = reason
	if refunded {
		w.PaymentStatus = PaymentRefunded
	}
	// 取消即解绑骑手：先记下再清空，释放用记下的值
	assignedDriver := w.DriverID
	w.DriverID = ""
	if err := ApplyTransition(w, StatusCancelled, e.now()); err != nil {
		return nil, err
	}

	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.repo.UpdateOrderStatus(ctx, w)
	}); err != nil {
		// 钱退了但取消没落库，必须显式失败交给上游处理
		e.log.Errorf("cancellation persist failed after refund order=%s: %v", w.ID, err)
		return nil, err
	}

	e.commit(w)
	if assignedDriver != "" {
		e.releaseDriver(ctx, assignedDriver)
	}
	e.notifyBestEffort(ctx, statusNotification(w))

	return w.Clone(), nil
}

// FindNearestAvailableDriver 透传给派单协调器，只读不占用骑手。
func (e *Orchestrator) FindNearestAvailableDriver(ctx context.Context, orderID string) (string, error) {
	e.mu.RLock()
	o, ok := e.active[orderID]
	e.mu.RUnlock()
	if !ok {
		return "", &NotFoundError{OrderID: orderID}
	}
	return e.drivers.FindCandidate(ctx, o.Clone())
}

// FetchOrders 按用户视角查询订单。
// 读路径：重试耗尽后有缓存值则降级回放，没有则报错。
func (e *Orchestrator) FetchOrders(ctx context.Context, userID string, role Role) ([]Order, error) {
	op := func(ctx context.Context) ([]Order, error) {
		return retry.Do1(ctx, e.retry, func(ctx context.Context) ([]Order, error) {
			return e.repo.FetchOrders(ctx, userID, role)
		})
	}
	if e.fallback == nil {
		return op(ctx)
	}
	cacheKey := fmt.Sprintf("orders:%s:%s", role, userID)
	return degrade.Execute(ctx, e.fallback, "repository", cacheKey, op)
}

// SubscribeTracking 订阅订单的实时追踪，透传给追踪服务。
// 只有活跃订单可订阅，终态订单没有可追踪的配送过程。
func (e *Orchestrator) SubscribeTracking(ctx context.Context, orderID, recipientID string) error {
	if e.tracker == nil {
		return fmt.Errorf("tracking is not configured")
	}
	e.mu.RLock()
	_, ok := e.active[orderID]
	e.mu.RUnlock()
	if !ok {
		return &NotFoundError{OrderID: orderID}
	}
	return e.tracker.Subscribe(ctx, orderID, recipientID)
}

// UnsubscribeTracking 退订透传。退订不存在的订阅不是错误。
func (e *Orchestrator) UnsubscribeTracking(ctx context.Context, orderID, recipientID string) error {
	if e.tracker == nil {
		return nil
	}
	return e.tracker.Unsubscribe(ctx, orderID, recipientID)
}

// ActiveOrder 返回活跃订单的拷贝。
func (e *Orchestrator) ActiveOrder(orderID string) (*Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.active[orderID]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// ActiveCount 活跃订单数量（观测用）。
func (e *Orchestrator) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.active)
}

// activeOrder 调用方必须已持有该订单的 keyedMutex。
func (e *Orchestrator) activeOrder(orderID string) (*Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.active[orderID]
	if !ok {
		return nil, &NotFoundError{OrderID: orderID}
	}
	return o, nil
}

// commit 把新版本写回活跃集合；终态订单直接移出。
func (e *Orchestrator) commit(w *Order) {
	e.mu.Lock()
	if w.Status.Terminal() {
		delete(e.active, w.ID)
	} else {
		e.active[w.ID] = w
	}
	e.mu.Unlock()
}

// afterTransition 终态的善后（释放骑手）与状态通知。
func (e *Orchestrator) afterTransition(ctx context.Context, w *Order) {
	if w.Status.Terminal() && w.DriverID != "" {
		e.releaseDriver(ctx, w.DriverID)
	}
	e.notifyBestEffort(ctx, statusNotification(w))
}

// releaseDriver 幂等释放：重复释放或释放未占用骑手都不是错误。
func (e *Orchestrator) releaseDriver(ctx context.Context, driverID string) {
	if err := e.drivers.Release(ctx, driverID); err != nil {
		e.log.Warnf("driver release failed driver=%s: %v", driverID, err)
	}
}

// tryDispatchDriver 建单后的尽力派单。任何失败只记日志。
func (e *Orchestrator) tryDispatchDriver(ctx context.Context, orderID string) {
	e.mu.RLock()
	o, ok := e.active[orderID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	driverID, err := e.drivers.FindCandidate(ctx, o.Clone())
	if err != nil {
		e.log.Infof("driver dispatch skipped order=%s: %v", orderID, err)
		return
	}
	if _, err := e.AssignDriver(ctx, driverID, orderID); err != nil {
		e.log.Infof("driver dispatch failed order=%s driver=%s: %v", orderID, driverID, err)
	}
}

// notifyBestEffort 通知失败绝不影响订单操作。
func (e *Orchestrator) notifyBestEffort(ctx context.Context, n notify.Notification) {
	if e.notifier == nil || n.RecipientID == "" {
		return
	}
	if err := e.notifier.Dispatch(ctx, n); err != nil {
		e.log.Warnf("notification dispatch failed recipient=%s: %v", n.RecipientID, err)
	}
}

// statusNotification 各状态对应的用户通知文案。
func statusNotification(o *Order) notify.Notification {
	var title, body string
	switch o.Status {
	case StatusAccepted:
		title, body = "Order accepted", "The restaurant has accepted your order"
	case StatusPreparing:
		title, body = "Preparing", "Your food is being prepared"
	case StatusReady, StatusReadyForPickup:
		title, body = "Order ready", "Your order is packed and waiting for a driver"
	case StatusPickedUp:
		title, body = "Picked up", "Your order has been picked up"
	case StatusEnRoute, StatusDelivering:
		title, body = "On the way", "Your order is on the way"
	case StatusDelivered:
		title, body = "Delivered", "Your order has been delivered, enjoy!"
	case StatusCancelled:
		title, body = "Order cancelled", "Your order has been cancelled"
	case StatusFailed:
		title, body = "Order failed", "Something went wrong with your order"
	default:
		title, body = "Order update", fmt.Sprintf("Order status: %s", o.Status)
	}
	return notify.Notification{
		RecipientID: o.CustomerID,
		Title:       title,
		Body:        body,
		Data: notify.Map{
			"order_id": notify.String(o.ID),
			"status":   notify.String(string(o.Status)),
		},
	}
}
