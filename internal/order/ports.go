package order

import "context"

// Repository 订单持久化端口。所有调用都是远程且可能失败，
// 实现方用 RemoteError 包装基础设施错误以便上游重试。
type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	FetchOrder(ctx context.Context, id string) (*Order, error)
	FetchOrders(ctx context.Context, userID string, role Role) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, o *Order) error
	AssignDriver(ctx context.Context, driverID string, o *Order) error
}

// PaymentService 支付协调端口（扣款/退款）。
// Charge 内部保证幂等：同一订单重复扣款收敛到同一张回执。
type PaymentService interface {
	Charge(ctx context.Context, o *Order) error
	Refund(ctx context.Context, orderID string, amountCents int64) error
}

// DriverAssigner 派单端口。
// Claim 必须是原子性的 check-and-set：并发抢同一骑手时恰有一方成功，
// 失败方收到 ErrDriverNotAvailable。
type DriverAssigner interface {
	FindCandidate(ctx context.Context, o *Order) (string, error)
	Claim(ctx context.Context, driverID string) error
	Release(ctx context.Context, driverID string) error
}
