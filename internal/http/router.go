package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/storefront/internal/address"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/session"
)

type Deps struct {
	Sessions           session.Provider
	Catalog            repository.CatalogReader
	Carts              *cart.Registry
	Addresses          *address.Manager
	Orders             *order.Writer
	Checkout           *CheckoutHandler
	Log                *slog.Logger
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

// NewRouter builds the instrumented JSON API.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.MaxRequestBodySize <= 0 {
		d.MaxRequestBodySize = 1 << 20
	}

	cartHandler := NewCartHandler(d.Carts, d.RequestTimeout)
	addressHandler := NewAddressHandler(d.Addresses, d.RequestTimeout)
	ordersHandler := NewOrdersHandler(d.Orders, d.RequestTimeout)
	productHandler := NewProductHandler(d.Catalog, d.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(d.Log.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RequestSize(d.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(d.Sessions))

		// streams are not bound by the request timeout
		r.Get("/cart/events", cartHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(d.RequestTimeout))

			r.Get("/products/featured", productHandler.Featured)
			r.Get("/products/{product_id}", productHandler.Get)

			r.Get("/cart", cartHandler.GetCart)
			r.Delete("/cart", cartHandler.ClearCart)
			r.Post("/cart/items", cartHandler.AddItem)
			r.Post("/cart/items/{line_id}/increment", cartHandler.Increment)
			r.Post("/cart/items/{line_id}/decrement", cartHandler.Decrement)
			r.Delete("/cart/items/{line_id}", cartHandler.RemoveItem)

			r.Get("/addresses", addressHandler.List)
			r.Post("/addresses", addressHandler.Save)
			r.Put("/addresses/{address_id}/default", addressHandler.SetDefault)
			r.Delete("/addresses/{address_id}", addressHandler.Delete)

			r.Post("/checkout", d.Checkout.Open)
			r.Get("/checkout", d.Checkout.Get)
			r.Put("/checkout/payment", d.Checkout.SetPayment)
			r.Put("/checkout/delivery", d.Checkout.SetDelivery)
			r.Put("/checkout/address", d.Checkout.SetAddress)
			r.Post("/checkout/confirm", d.Checkout.Confirm)

			r.Get("/orders", ordersHandler.ListOrders)
			r.Get("/orders/{order_id}", ordersHandler.GetOrder)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
