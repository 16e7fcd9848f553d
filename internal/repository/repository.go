package repository

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// CatalogReader is read-only access to products and their options.
type CatalogReader interface {
	// GetProduct returns domain.ErrProductNotFound for unknown ids.
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	ObserveFeatured(ctx context.Context) (<-chan []domain.Product, error)
}

// CartStore owns cart lines. Streams emit the full cart of a user after every write.
type CartStore interface {
	ObserveCart(ctx context.Context, userID int64) (<-chan []domain.CartLine, error)
	ListCart(ctx context.Context, userID int64) ([]domain.CartLine, error)
	GetLine(ctx context.Context, lineID int64) (*domain.CartLine, error)
	// UpsertLine inserts the line or, when the (user, product, option) tuple
	// already exists, adds line.Quantity to the stored quantity.
	UpsertLine(ctx context.Context, line domain.CartLine) (*domain.CartLine, error)
	// AdjustQuantity reads and writes the quantity in one step. A result below 1
	// removes the line and returns 0.
	AdjustQuantity(ctx context.Context, lineID int64, delta int) (int, error)
	// SetQuantity floors the quantity at 1.
	SetQuantity(ctx context.Context, lineID int64, quantity int) error
	RemoveLine(ctx context.Context, lineID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

// AddressTx is the set of address operations that must run as one unit per user.
type AddressTx interface {
	GetAddress(ctx context.Context, addressID int64) (*domain.Address, error)
	// SaveAddress inserts when a.ID is zero, updates otherwise, and returns the id.
	SaveAddress(ctx context.Context, a domain.Address) (int64, error)
	ClearDefaults(ctx context.Context, userID int64) error
	MarkDefault(ctx context.Context, addressID int64) error
	CountAddresses(ctx context.Context, userID int64) (int, error)
	CountDefaults(ctx context.Context, userID int64) (int, error)
	DeleteAddress(ctx context.Context, addressID int64) error
	// MostRecentAddress returns nil when the user has no addresses.
	MostRecentAddress(ctx context.Context, userID int64) (*domain.Address, error)
}

type AddressStore interface {
	// ObserveAddresses lists the default first, then newest first.
	ObserveAddresses(ctx context.Context, userID int64) (<-chan []domain.Address, error)
	// ObserveDefaultAddress emits nil while the user has no addresses.
	ObserveDefaultAddress(ctx context.Context, userID int64) (<-chan *domain.Address, error)
	ListAddresses(ctx context.Context, userID int64) ([]domain.Address, error)
	DefaultAddress(ctx context.Context, userID int64) (*domain.Address, error)
	WithAddressTx(ctx context.Context, userID int64, fn func(AddressTx) error) error
}

type OrderTx interface {
	InsertHeader(ctx context.Context, o domain.Order) (int64, error)
	InsertLines(ctx context.Context, orderID int64, lines []domain.OrderLine) error
	AppendOutbox(ctx context.Context, e domain.OutboxEvent) error
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
}

type OrderStore interface {
	// WithOrderTx commits only if fn returns nil; nothing fn wrote is visible otherwise.
	WithOrderTx(ctx context.Context, fn func(OrderTx) error) error
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]domain.Order, error)
}

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}
