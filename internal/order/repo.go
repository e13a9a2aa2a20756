package order

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GormRepository Repository 的 MySQL 实现。
// 基础设施错误一律包装为 RemoteError，供重试策略识别。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// CreateOrder 以订单号为主键做覆盖写。
// 订单号由编排器预先分配，重试到达的同一订单收敛为同一行，不会重复建单。
func (r *GormRepository) CreateOrder(ctx context.Context, o *Order) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if err := db.Session(&gorm.Session{FullSaveAssociations: true}).Save(o).Error; err != nil {
		return &RemoteError{Service: "mysql", Err: err}
	}
	return nil
}

func (r *GormRepository) FetchOrder(ctx context.Context, id string) (*Order, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var o Order
	err := db.Preload("Items").Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, &RemoteError{Service: "mysql", Err: err}
	}
	return &o, nil
}

// FetchOrders 按角色视角查询：顾客看自己的单，商家看本店的单，骑手看派给自己的单。
func (r *GormRepository) FetchOrders(ctx context.Context, userID string, role Role) ([]Order, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	q := db.Preload("Items").Order("created_at DESC")
	switch role {
	case RolePartner:
		q = q.Where("partner_id = ?", userID)
	case RoleDriver:
		q = q.Where("driver_id = ?", userID)
	default:
		q = q.Where("customer_id = ?", userID)
	}

	var orders []Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, &RemoteError{Service: "mysql", Err: err}
	}
	return orders, nil
}

// UpdateOrderStatus 持久化状态、骑手绑定及随流转更新的时间字段。
func (r *GormRepository) UpdateOrderStatus(ctx context.Context, o *Order) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	err := db.Model(&Order{}).Where("id = ?", o.ID).Updates(map[string]interface{}{
		"status":               o.Status,
		"payment_status":       o.PaymentStatus,
		"driver_id":            o.DriverID,
		"cancel_reason":        o.CancelReason,
		"updated_at":           o.UpdatedAt,
		"accepted_at":          o.AcceptedAt,
		"ready_at":             o.ReadyAt,
		"picked_up_at":         o.PickedUpAt,
		"actual_delivery_time": o.ActualDeliveryTime,
		"cancelled_at":         o.CancelledAt,
	}).Error
	if err != nil {
		return &RemoteError{Service: "mysql", Err: err}
	}
	return nil
}

// AssignDriver 一次写入同时落 driver_id 与新状态，避免两次远程写之间的半更新窗口。
func (r *GormRepository) AssignDriver(ctx context.Context, driverID string, o *Order) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	err := db.Model(&Order{}).Where("id = ?", o.ID).Updates(map[string]interface{}{
		"driver_id":  driverID,
		"status":     o.Status,
		"updated_at": o.UpdatedAt,
	}).Error
	if err != nil {
		return &RemoteError{Service: "mysql", Err: err}
	}
	return nil
}
