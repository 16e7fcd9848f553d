package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/address"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type AddressHandler struct {
	manager *address.Manager
	timeout time.Duration
}

func NewAddressHandler(manager *address.Manager, timeout time.Duration) *AddressHandler {
	return &AddressHandler{
		manager: manager,
		timeout: timeout,
	}
}

type SaveAddressRequestDTO struct {
	ID        int64    `json:"id,omitempty"`
	Label     string   `json:"label,omitempty"`
	Line      string   `json:"line"`
	Reference string   `json:"reference,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	IsDefault bool     `json:"is_default"`
}

// GET /api/v1/addresses
func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.manager.List(ctx, userFrom(r).ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Address{}
	}
	respondJSON(w, http.StatusOK, list)
}

// POST /api/v1/addresses inserts, or updates when id is set.
func (h *AddressHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SaveAddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		respondError(w, http.StatusBadRequest, "invalid_location", "latitude and longitude go together")
		return
	}

	a := domain.Address{
		ID:        req.ID,
		UserID:    userFrom(r).ID,
		Label:     req.Label,
		Line:      req.Line,
		Reference: req.Reference,
	}
	if req.Latitude != nil {
		a.Location = &domain.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	saved, err := h.manager.Save(ctx, a, req.IsDefault)
	if err != nil {
		handleError(w, r, err)
		return
	}
	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	respondJSON(w, status, saved)
}

// PUT /api/v1/addresses/{address_id}/default
func (h *AddressHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := idParam(w, r, "address_id")
	if !ok {
		return
	}
	if err := h.manager.SetDefault(ctx, id, userFrom(r).ID); err != nil {
		handleError(w, r, err)
		return
	}
	h.List(w, r)
}

// DELETE /api/v1/addresses/{address_id}
func (h *AddressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := idParam(w, r, "address_id")
	if !ok {
		return
	}
	if err := h.manager.Delete(ctx, id, userFrom(r).ID); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
