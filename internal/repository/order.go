package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithOrderTx(ctx context.Context, fn func(OrderTx) error) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&orderTx{q: tx})
	})
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return getOrder(ctx, r.db.db, orderID)
}

func (r *OrderRepository) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT id FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (r *OrderRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			e         domain.OutboxEvent
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *OrderRepository) MarkEventAsProcessed(ctx context.Context, id string) error {
	_, err := r.db.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = ? WHERE id = ?`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

type orderTx struct {
	q queryer
}

func (t *orderTx) InsertHeader(ctx context.Context, o domain.Order) (int64, error) {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (user_id, address_id, subtotal, tax, shipping, service, total, payment_method, delivery_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, nullableID(o.AddressID), o.Subtotal, o.Tax, o.Shipping, o.Service, o.Total,
		string(o.PaymentMethod), string(o.DeliveryMethod), millis(o.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return res.LastInsertId()
}

func (t *orderTx) InsertLines(ctx context.Context, orderID int64, lines []domain.OrderLine) error {
	for _, l := range lines {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, option_id, quantity, unit_price, line_total)
			VALUES (?, ?, ?, ?, ?, ?)`,
			orderID, l.ProductID, nullableID(l.OptionID), l.Quantity, l.UnitPrice, l.LineTotal)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (t *orderTx) AppendOutbox(ctx context.Context, e domain.OutboxEvent) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.AggregateID, e.EventType, e.Payload, millis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (t *orderTx) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return getOrder(ctx, t.q, orderID)
}

func getOrder(ctx context.Context, q queryer, orderID int64) (*domain.Order, error) {
	var (
		o         domain.Order
		addressID sql.NullInt64
		payment   string
		delivery  string
		createdAt int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, address_id, subtotal, tax, shipping, service, total, payment_method, delivery_method, created_at
		FROM orders
		WHERE id = ?`, orderID).Scan(
		&o.ID, &o.UserID, &addressID, &o.Subtotal, &o.Tax, &o.Shipping, &o.Service, &o.Total,
		&payment, &delivery, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	o.AddressID = idPtr(addressID)
	o.PaymentMethod = domain.PaymentMethod(payment)
	o.DeliveryMethod = domain.DeliveryMethod(delivery)
	o.CreatedAt = fromMillis(createdAt)

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, option_id, quantity, unit_price, line_total
		FROM order_lines
		WHERE order_id = ?
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	o.Lines = []domain.OrderLine{}
	for rows.Next() {
		var (
			l        domain.OrderLine
			optionID sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &optionID, &l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		l.OptionID = idPtr(optionID)
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return &o, nil
}
