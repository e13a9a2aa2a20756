package order

import "time"

// Status 订单状态枚举（持久化为字符串）。
type Status string

const (
	StatusCreated           Status = "created"            // 已创建，待支付
	StatusPaymentProcessing Status = "payment_processing" // 支付处理中
	StatusPaymentConfirmed  Status = "payment_confirmed"  // 支付已确认，待商家接单
	StatusAccepted          Status = "accepted"           // 商家已接单
	StatusPreparing         Status = "preparing"          // 备餐中
	StatusReady             Status = "ready"              // 出餐完成
	StatusReadyForPickup    Status = "ready_for_pickup"   // 可取餐，待派单
	StatusDriverAssigned    Status = "driver_assigned"    // 已分配骑手
	StatusPickedUp          Status = "picked_up"          // 骑手已取餐
	StatusEnRoute           Status = "en_route"           // 配送途中
	StatusDelivering        Status = "delivering"         // 临近送达
	StatusDelivered         Status = "delivered"          // 已送达（终态）
	StatusCancelled         Status = "cancelled"          // 已取消（终态）
	StatusFailed            Status = "failed"             // 失败（终态）
)

// Terminal 是否终态（终态订单移出活跃集合，不再接受任何流转）。
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusFailed
}

// PaymentStatus 支付状态
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Role 查询订单时的视角
type Role string

const (
	RoleCustomer Role = "customer"
	RolePartner  Role = "partner"
	RoleDriver   Role = "driver"
)

// Address 配送地址（GORM 内嵌）。
type Address struct {
	Street     string `gorm:"size:255" json:"street"`
	City       string `gorm:"size:64" json:"city"`
	PostalCode string `gorm:"size:16" json:"postal_code"`
}

// OrderItem 订单行。商品名是下单时刻的快照，商品后续改名不影响已有订单。
type OrderItem struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID             string `gorm:"index;size:36;not null" json:"-"`
	ProductID           string `gorm:"size:36;not null" json:"product_id"`
	ProductName         string `gorm:"size:128;not null" json:"product_name"`
	Quantity            int    `gorm:"not null" json:"quantity"`
	UnitPriceCents      int64  `gorm:"not null" json:"unit_price_cents"`
	SpecialInstructions string `gorm:"size:255" json:"special_instructions,omitempty"`
}

// TotalPriceCents 行小计 = 数量 × 单价
func (i OrderItem) TotalPriceCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// Order 订单 GORM 模型，同时是引擎内存中的聚合根。
// 金额一律用“分”表示，恒等式：
// TotalCents == SubtotalCents + DeliveryFeeCents + PlatformFeeCents + TaxCents + TipCents
type Order struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// 业务关联
	CustomerID string `gorm:"index;size:36;not null" json:"customer_id"`
	PartnerID  string `gorm:"index;size:36;not null" json:"partner_id"`
	DriverID   string `gorm:"index;size:36" json:"driver_id"` // 空串表示未分配

	Items           []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	DeliveryAddress Address     `gorm:"embedded;embeddedPrefix:addr_" json:"delivery_address"`
	PaymentMethod   string      `gorm:"size:32" json:"payment_method"`

	Status        Status        `gorm:"type:varchar(32);index;not null" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(16);not null" json:"payment_status"`
	CancelReason  string        `gorm:"size:255" json:"cancel_reason,omitempty"`

	// 金额信息（单位：分）
	SubtotalCents    int64 `gorm:"not null;default:0" json:"subtotal_cents"`
	DeliveryFeeCents int64 `gorm:"not null;default:0" json:"delivery_fee_cents"`
	PlatformFeeCents int64 `gorm:"not null;default:0" json:"platform_fee_cents"`
	TaxCents         int64 `gorm:"not null;default:0" json:"tax_cents"`
	TipCents         int64 `gorm:"not null;default:0" json:"tip_cents"`
	TotalCents       int64 `gorm:"not null;default:0" json:"total_cents"`

	// 时间信息
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"` // 每次变更都会推进
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	ReadyAt            *time.Time `json:"ready_at,omitempty"`
	PickedUpAt         *time.Time `json:"picked_up_at,omitempty"`
	ActualDeliveryTime *time.Time `json:"actual_delivery_time,omitempty"` // 仅在流转到 delivered 时写入
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

// ItemsSubtotalCents 按行小计求和
func (o *Order) ItemsSubtotalCents() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.TotalPriceCents()
	}
	return sum
}

// ComputedTotalCents 按各分项计算的应付总额
func (o *Order) ComputedTotalCents() int64 {
	return o.SubtotalCents + o.DeliveryFeeCents + o.PlatformFeeCents + o.TaxCents + o.TipCents
}

// Clone 深拷贝。编排器对外只返回拷贝，调用方改不到内部状态。
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	c.AcceptedAt = cloneTime(o.AcceptedAt)
	c.ReadyAt = cloneTime(o.ReadyAt)
	c.PickedUpAt = cloneTime(o.PickedUpAt)
	c.ActualDeliveryTime = cloneTime(o.ActualDeliveryTime)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
