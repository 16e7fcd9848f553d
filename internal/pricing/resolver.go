// Package pricing holds the pure price and totals calculations used by the cart
// and checkout engines. Nothing in here performs I/O.
package pricing

import (
	"regexp"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var multiplierPattern = regexp.MustCompile(`(?i)x\s*(\d+)`)

// Multiplier extracts the bundle size from an option name such as "Pack x5".
// The first match wins; names without a usable number yield 1.
func Multiplier(name string) int {
	m := multiplierPattern.FindStringSubmatch(name)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

func optionMultiplier(o *domain.ProductOption) int {
	if o.Multiplier > 0 {
		return o.Multiplier
	}
	return Multiplier(o.Name)
}

// UnitPrice is base × multiplier + delta, or the base price when no option is selected.
func UnitPrice(p *domain.Product, o *domain.ProductOption) decimal.Decimal {
	if o == nil {
		return p.Price
	}
	return p.Price.Mul(decimal.NewFromInt(int64(optionMultiplier(o)))).Add(o.PriceDelta)
}

type Resolution struct {
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

func Resolve(p *domain.Product, o *domain.ProductOption, quantity int) Resolution {
	unit := UnitPrice(p, o)
	return Resolution{
		UnitPrice: unit,
		LineTotal: unit.Mul(decimal.NewFromInt(int64(quantity))),
	}
}
