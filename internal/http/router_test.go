package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/address"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/stock"
	"github.com/fjod/go_cart/storefront/internal/store"
)

type testServer struct {
	handler  http.Handler
	store    *store.MemoryStore
	sessions *session.Static
	checkout *CheckoutHandler
}

func ptr(v int64) *int64 { return &v }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testUser() *domain.User {
	return &domain.User{ID: 1, Name: "Brock", Surname: "Harrison", RUN: "33.333.333-3", BirthDate: "1988-07-15"}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := store.NewMemoryStore()
	s.PutProduct(domain.Product{
		ID:       1,
		Name:     "Potion",
		Price:    dec(1000),
		Featured: true,
		Options: []domain.ProductOption{
			{ID: 10, ProductID: 1, Name: "Pack x5", PriceDelta: dec(-50), Stock: 10},
			{ID: 11, ProductID: 1, Name: "Single", Stock: 1},
		},
	})
	s.PutProduct(domain.Product{ID: 2, Name: "Max Revive", Price: dec(25000)})

	sessions := session.NewStatic(testUser())
	ctx, cancel := context.WithCancel(context.Background())

	carts := cart.NewRegistry(ctx, func(userID int64) *cart.Engine {
		return cart.NewEngine(userID, s, s, s)
	})
	writer := order.NewWriter(s, nil)
	checkouts := NewCheckoutHandler(ctx, func() *checkout.Session {
		return checkout.NewSession(checkout.Config{
			Cart:       s,
			Addresses:  s,
			Catalog:    s,
			Reconciler: stock.NewReconciler(s, s, nil),
			Orders:     writer,
			Sessions:   sessions,
		})
	}, 5*time.Second)

	t.Cleanup(func() {
		checkouts.Close()
		carts.Close()
		cancel()
	})

	return &testServer{
		handler: NewRouter(Deps{
			Sessions:       sessions,
			Catalog:        s,
			Carts:          carts,
			Addresses:      address.NewManager(s, nil),
			Orders:         writer,
			Checkout:       checkouts,
			RequestTimeout: 5 * time.Second,
		}),
		store:    s,
		sessions: sessions,
		checkout: checkouts,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.SignOut()

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestSessionRequired(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.SignOut()

	rec := ts.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusFor(t *testing.T) {
	status, code := statusFor(&domain.StockAdjustedError{Adjusted: []string{"x adjusted to 1"}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "stock_adjusted", code)

	status, code = statusFor(&domain.IncompleteProfileError{Missing: []string{"run"}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "incomplete_profile", code)

	status, code = statusFor(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "timeout", code)

	status, code = statusFor(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/products/featured", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	featured := decode[ProductsResponse](t, rec)
	require.Len(t, featured.Products, 1)
	assert.Equal(t, "Potion", featured.Products[0].Name)

	rec = ts.do(t, http.MethodGet, "/api/v1/products/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Max Revive", decode[domain.Product](t, rec).Name)

	rec = ts.do(t, http.MethodGet, "/api/v1/products/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
