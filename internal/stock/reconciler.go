// Package stock corrects cart quantities against live option stock before a purchase.
package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

// Report lists the corrections applied to a cart.
type Report struct {
	Removed  []string `json:"removed,omitempty"`
	Adjusted []string `json:"adjusted,omitempty"`
}

func (r Report) Changed() bool {
	return len(r.Removed) > 0 || len(r.Adjusted) > 0
}

// Err returns a *domain.StockAdjustedError when anything changed, nil otherwise.
func (r Report) Err() error {
	if !r.Changed() {
		return nil
	}
	return &domain.StockAdjustedError{Removed: r.Removed, Adjusted: r.Adjusted}
}

type Reconciler struct {
	cart    repository.CartStore
	catalog repository.CatalogReader
	log     *slog.Logger
}

// NewReconciler takes the uncached catalog; stock must be read live.
func NewReconciler(cart repository.CartStore, catalog repository.CatalogReader, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{cart: cart, catalog: catalog, log: log}
}

// Reconcile removes lines whose option has no stock and clamps lines that ask
// for more than is in stock. Lines without an option carry no stock and are left alone.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) (Report, error) {
	var report Report

	lines, err := r.cart.ListCart(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("list cart: %w", err)
	}

	for _, l := range lines {
		if l.OptionID == nil {
			continue
		}

		name := fmt.Sprintf("Product #%d", l.ProductID)
		available := 0
		p, err := r.catalog.GetProduct(ctx, l.ProductID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
		case err != nil:
			return report, fmt.Errorf("get product %d: %w", l.ProductID, err)
		default:
			name = p.Name
			if o := p.Option(*l.OptionID); o != nil {
				available = o.Stock
			}
		}

		switch {
		case available <= 0:
			if err := r.cart.RemoveLine(ctx, l.ID); err != nil && !errors.Is(err, domain.ErrLineNotFound) {
				return report, fmt.Errorf("remove line %d: %w", l.ID, err)
			}
			report.Removed = append(report.Removed, name)
		case l.Quantity > available:
			if err := r.cart.SetQuantity(ctx, l.ID, available); err != nil {
				return report, fmt.Errorf("clamp line %d: %w", l.ID, err)
			}
			report.Adjusted = append(report.Adjusted, fmt.Sprintf("%s adjusted to %d", name, available))
		}
	}

	if report.Changed() {
		r.log.Info("cart adjusted to stock", "user_id", userID, "removed", len(report.Removed), "adjusted", len(report.Adjusted))
	}
	return report, nil
}
