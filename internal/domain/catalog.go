package domain

import "github.com/shopspring/decimal"

// Product is a catalog entry. It is read-only to the cart and checkout code.
type Product struct {
	ID          int64           `json:"id"`
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Featured    bool            `json:"featured"`
	Options     []ProductOption `json:"options"`
}

// ProductOption is a purchasable variant of a product with its own stock.
type ProductOption struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	PriceDelta  decimal.Decimal `json:"price_delta"`
	Stock       int             `json:"stock"`
	// Multiplier overrides the bundle size encoded in Name when > 0.
	Multiplier int `json:"multiplier,omitempty"`
}

// Option returns the option with the given id, or nil.
func (p *Product) Option(id int64) *ProductOption {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}
