package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/watch"
)

type AddressRepository struct {
	db  *DB
	hub *watch.Hub
}

func NewAddressRepository(db *DB) *AddressRepository {
	return &AddressRepository{db: db, hub: watch.NewHub()}
}

const addressColumns = `id, user_id, label, line, reference, latitude, longitude, is_default, created_at`

func scanAddress(row interface{ Scan(...any) error }) (*domain.Address, error) {
	var (
		a         domain.Address
		label     sql.NullString
		reference sql.NullString
		lat, lng  sql.NullFloat64
		createdAt int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &label, &a.Line, &reference, &lat, &lng, &a.IsDefault, &createdAt); err != nil {
		return nil, err
	}
	a.Label = label.String
	a.Reference = reference.String
	if lat.Valid && lng.Valid {
		a.Location = &domain.GeoPoint{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	a.CreatedAt = fromMillis(createdAt)
	return &a, nil
}

func listAddresses(ctx context.Context, q queryer, userID int64) ([]domain.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = ? ORDER BY is_default DESC, id DESC`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	addrs := []domain.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addrs = append(addrs, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return addrs, nil
}

func (r *AddressRepository) ListAddresses(ctx context.Context, userID int64) ([]domain.Address, error) {
	return listAddresses(ctx, r.db.db, userID)
}

func (r *AddressRepository) DefaultAddress(ctx context.Context, userID int64) (*domain.Address, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = ? AND is_default = 1 LIMIT 1`, userID)
	a, err := scanAddress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query default address: %w", err)
	}
	return a, nil
}

func (r *AddressRepository) ObserveAddresses(ctx context.Context, userID int64) (<-chan []domain.Address, error) {
	return watch.Observe(ctx, r.hub, userID, r.db.log, func(ctx context.Context) ([]domain.Address, error) {
		return r.ListAddresses(ctx, userID)
	})
}

func (r *AddressRepository) ObserveDefaultAddress(ctx context.Context, userID int64) (<-chan *domain.Address, error) {
	return watch.Observe(ctx, r.hub, userID, r.db.log, func(ctx context.Context) (*domain.Address, error) {
		return r.DefaultAddress(ctx, userID)
	})
}

func (r *AddressRepository) WithAddressTx(ctx context.Context, userID int64, fn func(AddressTx) error) error {
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&addressTx{q: tx})
	})
	if err != nil {
		return err
	}
	r.hub.Notify(userID)
	return nil
}

type addressTx struct {
	q queryer
}

func (t *addressTx) GetAddress(ctx context.Context, addressID int64) (*domain.Address, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = ?`, addressID)
	a, err := scanAddress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query address: %w", err)
	}
	return a, nil
}

func (t *addressTx) SaveAddress(ctx context.Context, a domain.Address) (int64, error) {
	var lat, lng any
	if a.Location != nil {
		lat, lng = a.Location.Latitude, a.Location.Longitude
	}
	if a.ID == 0 {
		res, err := t.q.ExecContext(ctx, `
			INSERT INTO addresses (user_id, label, line, reference, latitude, longitude, is_default, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.UserID, nullableString(a.Label), a.Line, nullableString(a.Reference), lat, lng, a.IsDefault, millis(a.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("insert address: %w", err)
		}
		return res.LastInsertId()
	}

	res, err := t.q.ExecContext(ctx, `
		UPDATE addresses
		SET label = ?, line = ?, reference = ?, latitude = ?, longitude = ?, is_default = ?
		WHERE id = ? AND user_id = ?`,
		nullableString(a.Label), a.Line, nullableString(a.Reference), lat, lng, a.IsDefault, a.ID, a.UserID)
	if err != nil {
		return 0, fmt.Errorf("update address: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, domain.ErrAddressNotFound
	}
	return a.ID, nil
}

func (t *addressTx) ClearDefaults(ctx context.Context, userID int64) error {
	if _, err := t.q.ExecContext(ctx, `UPDATE addresses SET is_default = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear default addresses: %w", err)
	}
	return nil
}

func (t *addressTx) MarkDefault(ctx context.Context, addressID int64) error {
	res, err := t.q.ExecContext(ctx, `UPDATE addresses SET is_default = 1 WHERE id = ?`, addressID)
	if err != nil {
		return fmt.Errorf("mark default address: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func (t *addressTx) CountAddresses(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count addresses: %w", err)
	}
	return n, nil
}

func (t *addressTx) CountDefaults(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id = ? AND is_default = 1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count default addresses: %w", err)
	}
	return n, nil
}

func (t *addressTx) DeleteAddress(ctx context.Context, addressID int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM addresses WHERE id = ?`, addressID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func (t *addressTx) MostRecentAddress(ctx context.Context, userID int64) (*domain.Address, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID)
	a, err := scanAddress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query most recent address: %w", err)
	}
	return a, nil
}
