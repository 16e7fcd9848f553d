package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/store"
)

const userID = int64(1)

func ptr(v int64) *int64 { return &v }

func setup(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	s.PutProduct(domain.Product{
		ID:    1,
		Name:  "Ultra Ball",
		Price: decimal.NewFromInt(1200),
		Options: []domain.ProductOption{
			{ID: 10, Name: "Single", Stock: 3},
			{ID: 11, Name: "Pack x10", Stock: 0},
			{ID: 12, Name: "Pack x5", Stock: 50},
		},
	})
	return s
}

func addLine(t *testing.T, s *store.MemoryStore, productID int64, optionID *int64, qty int) *domain.CartLine {
	t.Helper()
	l, err := s.UpsertLine(context.Background(), domain.CartLine{
		UserID: userID, ProductID: productID, OptionID: optionID, Quantity: qty, UnitPrice: decimal.NewFromInt(1200),
	})
	require.NoError(t, err)
	return l
}

func TestReconcile_ClampsToStock(t *testing.T) {
	s := setup(t)
	line := addLine(t, s, 1, ptr(10), 5)

	report, err := NewReconciler(s, s, nil).Reconcile(context.Background(), userID)
	require.NoError(t, err)

	got, err := s.GetLine(context.Background(), line.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, []string{"Ultra Ball adjusted to 3"}, report.Adjusted)
	assert.Empty(t, report.Removed)

	err = report.Err()
	require.ErrorIs(t, err, domain.ErrStockAdjusted)
	assert.Contains(t, err.Error(), "Ultra Ball")
	assert.Contains(t, err.Error(), "3")
}

func TestReconcile_RemovesOutOfStock(t *testing.T) {
	s := setup(t)
	line := addLine(t, s, 1, ptr(11), 1)

	report, err := NewReconciler(s, s, nil).Reconcile(context.Background(), userID)
	require.NoError(t, err)

	_, err = s.GetLine(context.Background(), line.ID)
	assert.ErrorIs(t, err, domain.ErrLineNotFound)
	assert.Equal(t, []string{"Ultra Ball"}, report.Removed)

	var adjusted *domain.StockAdjustedError
	require.True(t, errors.As(report.Err(), &adjusted))
	assert.Equal(t, []string{"Ultra Ball"}, adjusted.Removed)
}

func TestReconcile_MissingProductOrOptionRemoved(t *testing.T) {
	s := setup(t)
	addLine(t, s, 99, ptr(1), 1)
	addLine(t, s, 1, ptr(77), 1)

	report, err := NewReconciler(s, s, nil).Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Product #99", "Ultra Ball"}, report.Removed)

	lines, _ := s.ListCart(context.Background(), userID)
	assert.Empty(t, lines)
}

func TestReconcile_NoChanges(t *testing.T) {
	s := setup(t)
	addLine(t, s, 1, ptr(12), 5)
	addLine(t, s, 1, nil, 100)

	report, err := NewReconciler(s, s, nil).Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.NoError(t, report.Err())
}

func TestReconcile_NeverLeavesOversoldLines(t *testing.T) {
	s := setup(t)
	addLine(t, s, 1, ptr(10), 9)
	addLine(t, s, 1, ptr(11), 2)
	addLine(t, s, 1, ptr(12), 51)
	ctx := context.Background()

	_, err := NewReconciler(s, s, nil).Reconcile(ctx, userID)
	require.NoError(t, err)

	p, _ := s.GetProduct(ctx, 1)
	lines, _ := s.ListCart(ctx, userID)
	require.Len(t, lines, 2)
	for _, l := range lines {
		o := p.Option(*l.OptionID)
		require.NotNil(t, o)
		assert.Positive(t, o.Stock)
		assert.LessOrEqual(t, l.Quantity, o.Stock)
	}
}

type brokenCatalog struct {
	repository.CatalogReader
}

func (brokenCatalog) GetProduct(context.Context, int64) (*domain.Product, error) {
	return nil, errors.New("catalog unavailable")
}

func TestReconcile_CatalogErrorAborts(t *testing.T) {
	s := setup(t)
	line := addLine(t, s, 1, ptr(10), 5)

	_, err := NewReconciler(s, brokenCatalog{s}, nil).Reconcile(context.Background(), userID)
	require.ErrorContains(t, err, "catalog unavailable")

	got, _ := s.GetLine(context.Background(), line.ID)
	assert.Equal(t, 5, got.Quantity)
}
