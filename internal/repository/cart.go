package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/watch"
)

type CartRepository struct {
	db  *DB
	hub *watch.Hub
}

func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db, hub: watch.NewHub()}
}

const cartColumns = `id, user_id, product_id, option_id, quantity, unit_price, added_at`

func scanLine(row interface{ Scan(...any) error }) (*domain.CartLine, error) {
	var (
		l        domain.CartLine
		optionID sql.NullInt64
		addedAt  int64
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &optionID, &l.Quantity, &l.UnitPrice, &addedAt); err != nil {
		return nil, err
	}
	l.OptionID = idPtr(optionID)
	l.AddedAt = fromMillis(addedAt)
	return &l, nil
}

func (r *CartRepository) ListCart(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	query := `SELECT ` + cartColumns + ` FROM cart_lines WHERE user_id = ? ORDER BY added_at DESC, id DESC`
	rows, err := r.db.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

func (r *CartRepository) ObserveCart(ctx context.Context, userID int64) (<-chan []domain.CartLine, error) {
	return watch.Observe(ctx, r.hub, userID, r.db.log, func(ctx context.Context) ([]domain.CartLine, error) {
		return r.ListCart(ctx, userID)
	})
}

func (r *CartRepository) GetLine(ctx context.Context, lineID int64) (*domain.CartLine, error) {
	return getLine(ctx, r.db.db, lineID)
}

func getLine(ctx context.Context, q queryer, lineID int64) (*domain.CartLine, error) {
	row := q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM cart_lines WHERE id = ?`, lineID)
	l, err := scanLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cart line: %w", err)
	}
	return l, nil
}

func (r *CartRepository) UpsertLine(ctx context.Context, line domain.CartLine) (*domain.CartLine, error) {
	if line.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	var saved *domain.CartLine
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM cart_lines
			WHERE user_id = ? AND product_id = ? AND IFNULL(option_id, 0) = IFNULL(?, 0)`,
			line.UserID, line.ProductID, nullableID(line.OptionID)).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx, `
				INSERT INTO cart_lines (user_id, product_id, option_id, quantity, unit_price, added_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				line.UserID, line.ProductID, nullableID(line.OptionID), line.Quantity, line.UnitPrice, millis(line.AddedAt))
			if err != nil {
				return fmt.Errorf("insert cart line: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("insert cart line: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find cart line: %w", err)
		default:
			if _, err := tx.ExecContext(ctx, `UPDATE cart_lines SET quantity = quantity + ? WHERE id = ?`,
				line.Quantity, id); err != nil {
				return fmt.Errorf("update cart line: %w", err)
			}
		}
		saved, err = getLine(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.hub.Notify(line.UserID)
	return saved, nil
}

func (r *CartRepository) AdjustQuantity(ctx context.Context, lineID int64, delta int) (int, error) {
	var (
		userID   int64
		quantity int
	)
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		l, err := getLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		userID = l.UserID
		quantity = l.Quantity + delta
		if quantity < 1 {
			quantity = 0
			_, err = tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ?`, lineID)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE cart_lines SET quantity = ? WHERE id = ?`, quantity, lineID)
		}
		if err != nil {
			return fmt.Errorf("adjust cart line: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.hub.Notify(userID)
	return quantity, nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, lineID int64, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	l, err := r.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	if _, err := r.db.db.ExecContext(ctx, `UPDATE cart_lines SET quantity = ? WHERE id = ?`, quantity, lineID); err != nil {
		return fmt.Errorf("set quantity: %w", err)
	}
	r.hub.Notify(l.UserID)
	return nil
}

func (r *CartRepository) RemoveLine(ctx context.Context, lineID int64) error {
	l, err := r.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	if _, err := r.db.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ?`, lineID); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	r.hub.Notify(l.UserID)
	return nil
}

func (r *CartRepository) ClearCart(ctx context.Context, userID int64) error {
	if _, err := r.db.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	r.hub.Notify(userID)
	return nil
}
