package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoSession             = errors.New("no active session")
	ErrEmptyCart             = errors.New("cart is empty, nothing to checkout")
	ErrBelowMinimumPurchase  = errors.New("subtotal is below the minimum purchase")
	ErrMissingPaymentMethod  = errors.New("payment method not selected")
	ErrMissingDeliveryMethod = errors.New("delivery method not selected")
	ErrMissingAddress        = errors.New("shipping address not selected")
	ErrStockAdjusted         = errors.New("cart adjusted to available stock")
	ErrIncompleteProfile     = errors.New("profile is incomplete")
	ErrPersistenceFailure    = errors.New("persistence failure")

	ErrProductNotFound   = errors.New("product not found")
	ErrLineNotFound      = errors.New("cart line not found")
	ErrAddressNotFound   = errors.New("address not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal transition of checkout state")
	ErrConfirmInProgress = errors.New("confirmation already in progress")
	ErrCheckoutCompleted = errors.New("checkout already completed")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrNotStarted        = errors.New("engine not started")
)

// StockAdjustedError carries the corrections applied to the cart by stock reconciliation.
type StockAdjustedError struct {
	Removed  []string // product names removed for lack of stock
	Adjusted []string // "<name> adjusted to <stock>"
}

func (e *StockAdjustedError) Error() string {
	var parts []string
	if len(e.Removed) > 0 {
		parts = append(parts, fmt.Sprintf("removed for no stock: %s", strings.Join(e.Removed, ", ")))
	}
	if len(e.Adjusted) > 0 {
		parts = append(parts, strings.Join(e.Adjusted, ", "))
	}
	return fmt.Sprintf("%s: %s", ErrStockAdjusted, strings.Join(parts, "; "))
}

func (e *StockAdjustedError) Is(target error) bool {
	return target == ErrStockAdjusted
}

// IncompleteProfileError names the blank profile fields.
type IncompleteProfileError struct {
	Missing []string
}

func (e *IncompleteProfileError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrIncompleteProfile, strings.Join(e.Missing, ", "))
}

func (e *IncompleteProfileError) Is(target error) bool {
	return target == ErrIncompleteProfile
}
