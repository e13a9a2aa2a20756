package order

import (
	"fmt"
	"time"
)

// AllowTransition 定义订单状态机的允许流转关系。
// 主链是一条严格线性的物理管线（支付 → 后厨 → 取餐 → 配送 → 送达），
// 取消在送达前的任意非终态都是合法出边；终态没有任何出边。
var AllowTransition = map[Status][]Status{
	StatusCreated:           {StatusPaymentProcessing, StatusCancelled},
	StatusPaymentProcessing: {StatusPaymentConfirmed, StatusFailed, StatusCancelled},
	StatusPaymentConfirmed:  {StatusAccepted, StatusCancelled},
	StatusAccepted:          {StatusPreparing, StatusCancelled},
	StatusPreparing:         {StatusReady, StatusCancelled},
	StatusReady:             {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup:    {StatusDriverAssigned, StatusCancelled},
	StatusDriverAssigned:    {StatusPickedUp, StatusCancelled},
	StatusPickedUp:          {StatusEnRoute, StatusCancelled},
	StatusEnRoute:           {StatusDelivering, StatusCancelled},
	StatusDelivering:        {StatusDelivered, StatusCancelled},
	// 终态
	StatusDelivered: {},
	StatusCancelled: {},
	StatusFailed:    {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
// 自环一律不允许：重复提交同一状态是调用方错误，不是幂等成功。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// AssertTransition 不允许时返回 IllegalTransitionError。
func AssertTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}

// ApplyTransition 对订单应用状态变更，并维护关键时间字段。
// 流转不合法时订单不做任何修改。
func ApplyTransition(o *Order, to Status, now time.Time) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	if err := AssertTransition(o.Status, to); err != nil {
		return err
	}

	o.Status = to
	o.UpdatedAt = now

	switch to {
	case StatusAccepted:
		if o.AcceptedAt == nil {
			t := now
			o.AcceptedAt = &t
		}
	case StatusReady:
		if o.ReadyAt == nil {
			t := now
			o.ReadyAt = &t
		}
	case StatusPickedUp:
		if o.PickedUpAt == nil {
			t := now
			o.PickedUpAt = &t
		}
	case StatusDelivered:
		if o.ActualDeliveryTime == nil {
			t := now
			o.ActualDeliveryTime = &t
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			t := now
			o.CancelledAt = &t
		}
	}
	return nil
}
