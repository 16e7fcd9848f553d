package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

// CheckoutHandler holds the single open checkout session of the process.
type CheckoutHandler struct {
	ctx        context.Context
	newSession func() *checkout.Session
	timeout    time.Duration

	mu      sync.Mutex
	current *checkout.Session
	userID  int64
}

// NewCheckoutHandler runs sessions under ctx so they outlive the request
// that opened them.
func NewCheckoutHandler(ctx context.Context, newSession func() *checkout.Session, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		ctx:        ctx,
		newSession: newSession,
		timeout:    timeout,
	}
}

type PaymentRequestDTO struct {
	PaymentMethod string `json:"payment_method"`
}

type DeliveryRequestDTO struct {
	DeliveryMethod string `json:"delivery_method"`
}

type AddressRequestDTO struct {
	AddressID int64 `json:"address_id"`
}

// POST /api/v1/checkout opens a new session and closes the previous one.
func (h *CheckoutHandler) Open(w http.ResponseWriter, r *http.Request) {
	s := h.newSession()
	if err := s.Start(h.ctx); err != nil {
		s.Close()
		handleError(w, r, err)
		return
	}

	h.mu.Lock()
	prev := h.current
	h.current, h.userID = s, userFrom(r).ID
	h.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	respondJSON(w, http.StatusCreated, s.View())
}

func (h *CheckoutHandler) session(w http.ResponseWriter, r *http.Request) (*checkout.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil || h.userID != userFrom(r).ID {
		respondError(w, http.StatusNotFound, "checkout_not_found", "no open checkout")
		return nil, false
	}
	return h.current, true
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.View())
}

// PUT /api/v1/checkout/payment
func (h *CheckoutHandler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", err.Error())
		return
	}
	h.update(w, r, func(s *checkout.Session) error { return s.SelectPayment(m) })
}

// PUT /api/v1/checkout/delivery
func (h *CheckoutHandler) SetDelivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := domain.ParseDeliveryMethod(req.DeliveryMethod)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_delivery_method", err.Error())
		return
	}
	h.update(w, r, func(s *checkout.Session) error { return s.SelectDelivery(m) })
}

// PUT /api/v1/checkout/address
func (h *CheckoutHandler) SetAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AddressID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_address_id", "address_id must be positive")
		return
	}
	h.update(w, r, func(s *checkout.Session) error { return s.SelectAddress(req.AddressID) })
}

func (h *CheckoutHandler) update(w http.ResponseWriter, r *http.Request, fn func(*checkout.Session) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.View())
}

// POST /api/v1/checkout/confirm
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.Confirm(ctx)
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "checkout confirm failed", "request_id", getRequestID(r.Context()), "err", err)
		}
		respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Checkout: &view})
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Refresh reprices the open session.
func (h *CheckoutHandler) Refresh() {
	h.mu.Lock()
	s := h.current
	h.mu.Unlock()
	if s != nil {
		s.Refresh()
	}
}

func (h *CheckoutHandler) Close() {
	h.mu.Lock()
	s := h.current
	h.current = nil
	h.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
