package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
)

type CartHandler struct {
	engines *cart.Registry
	timeout time.Duration
}

func NewCartHandler(engines *cart.Registry, timeout time.Duration) *CartHandler {
	return &CartHandler{
		engines: engines,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64  `json:"product_id"`
	OptionID  *int64 `json:"option_id,omitempty"`
}

func (h *CartHandler) engine(w http.ResponseWriter, r *http.Request) (*cart.Engine, bool) {
	e, err := h.engines.Engine(userFrom(r).ID)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return e, true
}

// respondCart answers with the cart as persisted right now.
func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, e *cart.Engine, status int) {
	snap, err := e.Compute(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, status, snap)
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	h.respondCart(ctx, w, r, e, http.StatusOK)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.OptionID != nil && *req.OptionID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_option_id", "option_id must be positive")
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if _, err := e.Add(ctx, req.ProductID, req.OptionID); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, e, http.StatusCreated)
}

// POST /api/v1/cart/items/{line_id}/increment
func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, (*cart.Engine).Increment)
}

// POST /api/v1/cart/items/{line_id}/decrement
func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, (*cart.Engine).Decrement)
}

func (h *CartHandler) adjust(w http.ResponseWriter, r *http.Request, op func(*cart.Engine, context.Context, int64) (int, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lineID, ok := idParam(w, r, "line_id")
	if !ok {
		return
	}
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if _, err := op(e, ctx, lineID); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, e, http.StatusOK)
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lineID, ok := idParam(w, r, "line_id")
	if !ok {
		return
	}
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := e.Remove(ctx, lineID); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, e, http.StatusOK)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := e.Clear(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, e, http.StatusOK)
}

// GET /api/v1/cart/events streams every published snapshot as server-sent events.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.DebugContext(r.Context(), "write deadline not supported", "err", err)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	snapshots, unsubscribe := e.Subscribe()
	defer unsubscribe()
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to encode snapshot", "err", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
