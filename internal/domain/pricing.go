package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricedLine is a cart line merged with live catalog data.
type PricedLine struct {
	LineID     int64           `json:"line_id"`
	ProductID  int64           `json:"product_id"`
	OptionID   *int64          `json:"option_id,omitempty"`
	Title      string          `json:"title"`
	OptionName string          `json:"option_name,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Fallback   bool            `json:"fallback"` // catalog lookup failed, persisted unit price used
}

// PricingSnapshot is the immutable result of one recomputation.
type PricingSnapshot struct {
	Version      uint64          `json:"version"`
	UserID       int64           `json:"user_id"`
	Lines        []PricedLine    `json:"lines"`
	ItemCount    int             `json:"item_count"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	Shipping     decimal.Decimal `json:"shipping"`
	Service      decimal.Decimal `json:"service"`
	Total        decimal.Decimal `json:"total"`
	MeetsMinimum bool            `json:"meets_minimum"`
	Delivery     DeliveryMethod  `json:"delivery,omitempty"`
	Destination  DestinationKind `json:"destination"`
	AddressID    *int64          `json:"address_id,omitempty"`
	ComputedAt   time.Time       `json:"computed_at"`
}

func (s PricingSnapshot) Empty() bool {
	return len(s.Lines) == 0
}
