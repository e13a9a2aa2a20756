package order

import (
	"fmt"
	"strings"
)

// Validate 订单进入编排管线前的纯校验：
//   - 订单行非空，每行数量为正、单价非负
//   - 配送地址 street/city/postal_code 均非空
//   - SubtotalCents 与各行小计之和一致
//
// 无 I/O、无副作用，可在测试中独立调用。
func Validate(o *Order) error {
	if o == nil || len(o.Items) == 0 {
		return &ValidationError{Kind: ValidationEmptyItems}
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return &ValidationError{
				Kind:   ValidationInvalidItem,
				Detail: fmt.Sprintf("quantity %d for product %s", item.Quantity, item.ProductID),
			}
		}
		if item.UnitPriceCents < 0 {
			return &ValidationError{
				Kind:   ValidationInvalidItem,
				Detail: fmt.Sprintf("unit price %d for product %s", item.UnitPriceCents, item.ProductID),
			}
		}
	}

	addr := o.DeliveryAddress
	if strings.TrimSpace(addr.Street) == "" ||
		strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.PostalCode) == "" {
		return &ValidationError{Kind: ValidationInvalidAddress}
	}

	if got := o.ItemsSubtotalCents(); got != o.SubtotalCents {
		return &ValidationError{
			Kind:   ValidationTotalMismatch,
			Detail: fmt.Sprintf("subtotal %d != sum of items %d", o.SubtotalCents, got),
		}
	}

	return nil
}
