package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/watch"
)

const featuredKey = 0

type CatalogRepository struct {
	db  *DB
	hub *watch.Hub
}

func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db, hub: watch.NewHub()}
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	query := `
		SELECT id, category_id, name, description, price, image_url, featured
		FROM products
		WHERE id = ?
	`
	p := &domain.Product{}
	err := r.db.db.QueryRowContext(ctx, query, productID).Scan(
		&p.ID,
		&p.CategoryID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.ImageURL,
		&p.Featured,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	opts, err := r.options(ctx, productID)
	if err != nil {
		return nil, err
	}
	p.Options = opts
	return p, nil
}

func (r *CatalogRepository) options(ctx context.Context, productID int64) ([]domain.ProductOption, error) {
	query := `
		SELECT id, product_id, name, description, price_delta, stock, multiplier
		FROM product_options
		WHERE product_id = ?
		ORDER BY id
	`
	rows, err := r.db.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	var opts []domain.ProductOption
	for rows.Next() {
		var o domain.ProductOption
		var multiplier sql.NullInt64
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Name, &o.Description, &o.PriceDelta, &o.Stock, &multiplier); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		o.Multiplier = int(multiplier.Int64)
		opts = append(opts, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return opts, nil
}

func (r *CatalogRepository) featured(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT id FROM products WHERE featured = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query featured products: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

func (r *CatalogRepository) ObserveFeatured(ctx context.Context) (<-chan []domain.Product, error) {
	return watch.Observe(ctx, r.hub, featuredKey, r.db.log, r.featured)
}

// UpsertProduct replaces a product and its options. Used by catalog loading and tests.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p domain.Product) error {
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, category_id, name, description, price, image_url, featured)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				category_id = excluded.category_id,
				name = excluded.name,
				description = excluded.description,
				price = excluded.price,
				image_url = excluded.image_url,
				featured = excluded.featured`,
			p.ID, p.CategoryID, p.Name, p.Description, p.Price, p.ImageURL, p.Featured)
		if err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_options WHERE product_id = ?`, p.ID); err != nil {
			return fmt.Errorf("delete options: %w", err)
		}
		for _, o := range p.Options {
			var multiplier any
			if o.Multiplier > 0 {
				multiplier = o.Multiplier
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO product_options (id, product_id, name, description, price_delta, stock, multiplier)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				o.ID, p.ID, o.Name, o.Description, o.PriceDelta, o.Stock, multiplier)
			if err != nil {
				return fmt.Errorf("insert option %d: %w", o.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.hub.Notify(featuredKey)
	return nil
}

// SetStock sets the stock level of an option, as an inventory process would.
func (r *CatalogRepository) SetStock(ctx context.Context, optionID int64, stock int) error {
	res, err := r.db.db.ExecContext(ctx, `UPDATE product_options SET stock = ? WHERE id = ?`, stock, optionID)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProductNotFound
	}
	r.hub.Notify(featuredKey)
	return nil
}
