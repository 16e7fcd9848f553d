package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

type ProductHandler struct {
	catalog repository.CatalogReader
	timeout time.Duration
}

func NewProductHandler(catalog repository.CatalogReader, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
	}
}

type ProductsResponse struct {
	Products []domain.Product `json:"products"`
}

// GET /api/v1/products/featured
func (h *ProductHandler) Featured(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	featured, err := h.catalog.ObserveFeatured(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	select {
	case products := <-featured:
		if products == nil {
			products = []domain.Product{}
		}
		respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
	case <-ctx.Done():
		handleError(w, r, ctx.Err())
	}
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := idParam(w, r, "product_id")
	if !ok {
		return
	}
	p, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
