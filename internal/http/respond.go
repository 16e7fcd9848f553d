package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/storefront/internal/address"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type ErrorResponse struct {
	Error    string         `json:"error"`
	Code     string         `json:"code,omitempty"`
	Details  string         `json:"details,omitempty"`
	Checkout *checkout.View `json:"checkout,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNoSession, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{domain.ErrBelowMinimumPurchase, http.StatusUnprocessableEntity, "below_minimum"},
	{domain.ErrMissingPaymentMethod, http.StatusUnprocessableEntity, "missing_payment_method"},
	{domain.ErrMissingDeliveryMethod, http.StatusUnprocessableEntity, "missing_delivery_method"},
	{domain.ErrMissingAddress, http.StatusUnprocessableEntity, "missing_address"},
	{domain.ErrIncompleteProfile, http.StatusUnprocessableEntity, "incomplete_profile"},
	{domain.ErrStockAdjusted, http.StatusConflict, "stock_adjusted"},
	{domain.ErrConfirmInProgress, http.StatusConflict, "confirm_in_progress"},
	{domain.ErrCheckoutCompleted, http.StatusConflict, "checkout_completed"},
	{domain.ErrNotStarted, http.StatusConflict, "checkout_not_started"},
	{domain.ErrPersistenceFailure, http.StatusInternalServerError, "persistence_failure"},
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
	{domain.ErrAddressNotFound, http.StatusNotFound, "address_not_found"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{address.ErrEmptyLine, http.StatusBadRequest, "invalid_address"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", getRequestID(r.Context()), "err", err)
	}
	respondError(w, status, code, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
