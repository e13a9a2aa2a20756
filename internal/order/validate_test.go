package order

import (
	"errors"
	"testing"
)

func validOrder() *Order {
	return &Order{
		ID:         "o1",
		CustomerID: "c1",
		PartnerID:  "p1",
		Items: []OrderItem{
			{ProductID: "m1", ProductName: "Ramen", Quantity: 2, UnitPriceCents: 1200},
		},
		DeliveryAddress:  Address{Street: "1 High Street", City: "London", PostalCode: "E1 6AN"},
		PaymentMethod:    "card",
		SubtotalCents:    2400,
		DeliveryFeeCents: 200,
		PlatformFeeCents: 100,
		TaxCents:         168,
		TipCents:         0,
		TotalCents:       2868,
	}
}

func wantValidationKind(t *testing.T, err error, kind ValidationKind) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Kind != kind {
		t.Fatalf("expected kind %s, got %s", kind, ve.Kind)
	}
}

func TestValidateAcceptsWellFormedOrder(t *testing.T) {
	if err := Validate(validOrder()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsEmptyItems(t *testing.T) {
	o := validOrder()
	o.Items = nil
	wantValidationKind(t, Validate(o), ValidationEmptyItems)

	wantValidationKind(t, Validate(nil), ValidationEmptyItems)
}

func TestValidateRejectsOutOfRangeItems(t *testing.T) {
	o := validOrder()
	o.Items[0].Quantity = 0
	wantValidationKind(t, Validate(o), ValidationInvalidItem)

	o = validOrder()
	o.Items[0].UnitPriceCents = -1
	wantValidationKind(t, Validate(o), ValidationInvalidItem)
}

func TestValidateRejectsIncompleteAddress(t *testing.T) {
	for _, mutate := range []func(*Order){
		func(o *Order) { o.DeliveryAddress.Street = "" },
		func(o *Order) { o.DeliveryAddress.City = "  " },
		func(o *Order) { o.DeliveryAddress.PostalCode = "" },
	} {
		o := validOrder()
		mutate(o)
		wantValidationKind(t, Validate(o), ValidationInvalidAddress)
	}
}

func TestValidateRejectsSubtotalMismatch(t *testing.T) {
	o := validOrder()
	o.SubtotalCents = 2000 // 实际行小计 2*1200=2400
	wantValidationKind(t, Validate(o), ValidationTotalMismatch)
}

func TestMoneyIdentityHolds(t *testing.T) {
	o := validOrder()
	if o.ComputedTotalCents() != o.TotalCents {
		t.Fatalf("total mismatch: computed %d, stated %d", o.ComputedTotalCents(), o.TotalCents)
	}
	if o.ItemsSubtotalCents() != o.SubtotalCents {
		t.Fatalf("subtotal mismatch")
	}
}
