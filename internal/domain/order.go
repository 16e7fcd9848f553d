package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentDebit    PaymentMethod = "debit"
	PaymentCredit   PaymentMethod = "credit"
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentDebit, PaymentCredit, PaymentCash, PaymentTransfer:
		return true
	}
	return false
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return m, nil
}

// DeliveryMethod is either store pickup or shipping. The zero value means not chosen yet.
type DeliveryMethod string

const (
	DeliveryPickup DeliveryMethod = "pickup"
	DeliveryShip   DeliveryMethod = "ship"
)

func (m DeliveryMethod) Valid() bool {
	return m == DeliveryPickup || m == DeliveryShip
}

func ParseDeliveryMethod(s string) (DeliveryMethod, error) {
	m := DeliveryMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown delivery method %q", s)
	}
	return m, nil
}

// Order is written once at checkout and never updated.
type Order struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	AddressID      *int64          `json:"address_id,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Shipping       decimal.Decimal `json:"shipping"`
	Service        decimal.Decimal `json:"service"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	DeliveryMethod DeliveryMethod  `json:"delivery_method"`
	CreatedAt      time.Time       `json:"created_at"`
	Lines          []OrderLine     `json:"lines"`
}

type OrderLine struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	OptionID  *int64          `json:"option_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

const EventOrderPlaced = "order.placed"

// OutboxEvent is written in the same transaction as the order it describes.
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
