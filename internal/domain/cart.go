package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one (user, product, option) row of a cart.
type CartLine struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	ProductID int64           `json:"product_id"`
	OptionID  *int64          `json:"option_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"` // price captured when the line was added
	AddedAt   time.Time       `json:"added_at"`
}

// SameOption reports whether the line holds the given option (nil meaning no option).
func (l CartLine) SameOption(optionID *int64) bool {
	if l.OptionID == nil || optionID == nil {
		return l.OptionID == nil && optionID == nil
	}
	return *l.OptionID == *optionID
}
