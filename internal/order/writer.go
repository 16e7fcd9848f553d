// Package order writes immutable orders together with their order-placed event.
package order

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

type Writer struct {
	store repository.OrderStore
	log   *slog.Logger
	now   func() time.Time
}

func NewWriter(store repository.OrderStore, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{store: store, log: log, now: time.Now}
}

// FromSnapshot builds an unsaved order from a priced cart. Pickup orders carry no address.
func FromSnapshot(snap domain.PricingSnapshot, payment domain.PaymentMethod, delivery domain.DeliveryMethod) domain.Order {
	o := domain.Order{
		UserID:         snap.UserID,
		Subtotal:       snap.Subtotal,
		Tax:            snap.Tax,
		Shipping:       snap.Shipping,
		Service:        snap.Service,
		Total:          snap.Total,
		PaymentMethod:  payment,
		DeliveryMethod: delivery,
		Lines:          make([]domain.OrderLine, 0, len(snap.Lines)),
	}
	if delivery == domain.DeliveryShip && snap.AddressID != nil {
		id := *snap.AddressID
		o.AddressID = &id
	}
	for _, l := range snap.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{
			ProductID: l.ProductID,
			OptionID:  l.OptionID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return o
}

type placedItem struct {
	ProductID int64           `json:"product_id"`
	OptionID  *int64          `json:"option_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type placedPayload struct {
	OrderID        int64                 `json:"order_id"`
	UserID         int64                 `json:"user_id"`
	AddressID      *int64                `json:"address_id,omitempty"`
	Total          decimal.Decimal       `json:"total"`
	PaymentMethod  domain.PaymentMethod  `json:"payment_method"`
	DeliveryMethod domain.DeliveryMethod `json:"delivery_method"`
	Items          []placedItem          `json:"items"`
	PlacedAt       time.Time             `json:"placed_at"`
}

// Create writes header, lines and the order-placed event in one transaction and
// returns the order as re-read from the store. Any failure wraps
// domain.ErrPersistenceFailure and leaves nothing visible.
func (w *Writer) Create(ctx context.Context, o domain.Order) (*domain.Order, error) {
	if len(o.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = w.now()
	}

	var created *domain.Order
	err := w.store.WithOrderTx(ctx, func(tx repository.OrderTx) error {
		id, err := tx.InsertHeader(ctx, o)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, id, o.Lines); err != nil {
			return err
		}

		payload, err := json.Marshal(placedEvent(id, o))
		if err != nil {
			return fmt.Errorf("marshal order event: %w", err)
		}
		if err := tx.AppendOutbox(ctx, domain.OutboxEvent{
			ID:          uuid.NewString(),
			AggregateID: strconv.FormatInt(id, 10),
			EventType:   domain.EventOrderPlaced,
			Payload:     payload,
			CreatedAt:   o.CreatedAt,
		}); err != nil {
			return err
		}

		created, err = tx.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %w", domain.ErrPersistenceFailure, err)
	}

	w.log.Info("order created", "order_id", created.ID, "user_id", created.UserID, "total", created.Total.String())
	return created, nil
}

func placedEvent(id int64, o domain.Order) placedPayload {
	p := placedPayload{
		OrderID:        id,
		UserID:         o.UserID,
		AddressID:      o.AddressID,
		Total:          o.Total,
		PaymentMethod:  o.PaymentMethod,
		DeliveryMethod: o.DeliveryMethod,
		Items:          make([]placedItem, 0, len(o.Lines)),
		PlacedAt:       o.CreatedAt,
	}
	for _, l := range o.Lines {
		p.Items = append(p.Items, placedItem{
			ProductID: l.ProductID,
			OptionID:  l.OptionID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return p
}

// Get returns domain.ErrOrderNotFound for unknown ids and for orders of another user.
func (w *Writer) Get(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	o, err := w.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (w *Writer) List(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := w.store.ListOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
