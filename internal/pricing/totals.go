package pricing

import (
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy holds the store's fee schedule.
type Policy struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingGeocoded      decimal.Decimal
	ShippingAddress       decimal.Decimal
	ShippingNone          decimal.Decimal
	ServiceFee            decimal.Decimal
	MinimumPurchase       decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		TaxRate:               decimal.RequireFromString("0.19"),
		FreeShippingThreshold: decimal.NewFromInt(20000),
		ShippingGeocoded:      decimal.NewFromInt(1500),
		ShippingAddress:       decimal.NewFromInt(2000),
		ShippingNone:          decimal.NewFromInt(2500),
		ServiceFee:            decimal.NewFromInt(500),
		MinimumPurchase:       decimal.NewFromInt(5000),
	}
}

// Shipping applies the tiering. An unset delivery method is priced like shipping.
func (p Policy) Shipping(subtotal decimal.Decimal, delivery domain.DeliveryMethod, dest domain.Destination) decimal.Decimal {
	if !subtotal.IsPositive() || delivery == domain.DeliveryPickup {
		return decimal.Zero
	}
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	switch dest.Kind {
	case domain.DestinationGeocoded:
		return p.ShippingGeocoded
	case domain.DestinationAddress:
		return p.ShippingAddress
	default:
		return p.ShippingNone
	}
}

// Totals builds a snapshot from already priced lines.
func (p Policy) Totals(lines []domain.PricedLine, delivery domain.DeliveryMethod, dest domain.Destination) domain.PricingSnapshot {
	subtotal := decimal.Zero
	items := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
		items += l.Quantity
	}

	tax := subtotal.Mul(p.TaxRate)
	shipping := p.Shipping(subtotal, delivery, dest)
	service := decimal.Zero
	if subtotal.IsPositive() {
		service = p.ServiceFee
	}

	snap := domain.PricingSnapshot{
		Lines:        lines,
		ItemCount:    items,
		Subtotal:     subtotal,
		Tax:          tax,
		Shipping:     shipping,
		Service:      service,
		Total:        subtotal.Add(tax).Add(shipping).Add(service),
		MeetsMinimum: subtotal.GreaterThanOrEqual(p.MinimumPurchase),
		Delivery:     delivery,
		Destination:  dest.Kind,
		ComputedAt:   time.Now(),
	}
	if dest.Address != nil {
		id := dest.Address.ID
		snap.AddressID = &id
	}
	return snap
}
