package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func TestAddItem_PricesCart(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, OptionID: ptr(10)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, OptionID: ptr(10)})
	require.Equal(t, http.StatusCreated, rec.Code)

	snap := decode[domain.PricingSnapshot](t, rec)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
	assert.True(t, snap.Subtotal.Equal(dec(9900)))
	assert.True(t, snap.Tax.Equal(dec(1881)))
	assert.True(t, snap.Shipping.Equal(dec(2500)))
	assert.True(t, snap.Total.Equal(dec(14781)))
	assert.True(t, snap.MeetsMinimum)
}

func TestAddItem_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		code int
		err  string
	}{
		{"bad json", "nope", http.StatusBadRequest, "invalid_request"},
		{"no product", AddItemRequestDTO{}, http.StatusBadRequest, "invalid_product_id"},
		{"bad option", AddItemRequestDTO{ProductID: 1, OptionID: ptr(-1)}, http.StatusBadRequest, "invalid_option_id"},
		{"unknown product", AddItemRequestDTO{ProductID: 99}, http.StatusNotFound, "product_not_found"},
		{"unknown option", AddItemRequestDTO{ProductID: 1, OptionID: ptr(99)}, http.StatusNotFound, "product_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.err, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestIncrementDecrementRemove(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	lineID := decode[domain.PricingSnapshot](t, rec).Lines[0].LineID
	base := fmt.Sprintf("/api/v1/cart/items/%d", lineID)

	rec = ts.do(t, http.MethodPost, base+"/increment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[domain.PricingSnapshot](t, rec).ItemCount)

	rec = ts.do(t, http.MethodPost, base+"/decrement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.PricingSnapshot](t, rec).ItemCount)

	rec = ts.do(t, http.MethodPost, base+"/decrement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.PricingSnapshot](t, rec).Empty())

	rec = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "line_not_found", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/cart/items/0/increment", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveAndClear(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2})
	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, OptionID: ptr(11)})
	lines := decode[domain.PricingSnapshot](t, rec).Lines
	require.Len(t, lines, 2)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/cart/items/%d", lines[0].LineID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[domain.PricingSnapshot](t, rec).Lines, 1)

	rec = ts.do(t, http.MethodDelete, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.PricingSnapshot](t, rec).Empty())

	rec = ts.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.PricingSnapshot](t, rec).Total.IsZero())
}

func TestCartEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/cart/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan domain.PricingSnapshot, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var snap domain.PricingSnapshot
			if json.Unmarshal([]byte(data), &snap) == nil {
				events <- snap
			}
		}
	}()

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2})
	require.Equal(t, http.StatusCreated, rec.Code)

	timeout := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-events:
			require.True(t, ok, "stream closed")
			if snap.ItemCount == 1 {
				assert.True(t, snap.Subtotal.Equal(dec(25000)))
				return
			}
		case <-timeout:
			t.Fatal("no snapshot with the added item")
		}
	}
}
