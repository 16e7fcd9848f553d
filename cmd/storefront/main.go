package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/storefront/internal/address"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/stock"
	"github.com/fjod/go_cart/storefront/internal/store"
)

type stores struct {
	cart      repository.CartStore
	addresses repository.AddressStore
	catalog   repository.CatalogReader
	products  poller.ProductSink
	orders    interface {
		repository.OrderStore
		repository.OutboxStore
	}
	close func() error
}

func openStores(cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.StoreBackend == config.BackendMemory {
		s := store.NewMemoryStore()
		log.Warn("using in-memory store, data is lost on exit")
		return &stores{cart: s, addresses: s, catalog: s, products: s, orders: s, close: func() error { return nil }}, nil
	}

	db, err := repository.NewDB(cfg.DBPath, log)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("database ready", "path", cfg.DBPath)

	products := repository.NewCatalogRepository(db)
	return &stores{
		cart:      repository.NewCartRepository(db),
		addresses: repository.NewAddressRepository(db),
		catalog:   products,
		products:  products,
		orders:    repository.NewOrderRepository(db),
		close:     db.Close,
	}, nil
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)

	st, err := openStores(cfg, log)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer st.close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Product reads go through Redis when configured. Stock checks always hit the store.
	var reader repository.CatalogReader = st.catalog
	var invalidator poller.Invalidator
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping failed, cache calls will fall through", "addr", cfg.RedisAddr, "err", err)
		} else {
			log.Info("redis ping succeeded", "addr", cfg.RedisAddr)
		}
		cached := catalog.NewCachedReader(st.catalog, cache.NewRedisCache(redisClient, cfg.CacheTTL), log)
		reader, invalidator = cached, cached
	}

	sessions := session.NewStatic(cfg.User)
	if cfg.User == nil {
		log.Warn("no USER_ID configured, API calls will answer 401")
	}
	addresses := address.NewManager(st.addresses, log)
	orders := order.NewWriter(st.orders, log)
	reconciler := stock.NewReconciler(st.cart, st.catalog, log)

	carts := cart.NewRegistry(ctx, func(userID int64) *cart.Engine {
		return cart.NewEngine(userID, st.cart, st.addresses, reader, cart.WithLogger(log))
	})
	defer carts.Close()

	checkouts := h.NewCheckoutHandler(ctx, func() *checkout.Session {
		return checkout.NewSession(checkout.Config{
			Cart:       st.cart,
			Addresses:  st.addresses,
			Catalog:    reader,
			Reconciler: reconciler,
			Orders:     orders,
			Sessions:   sessions,
			Log:        log,
		})
	}, cfg.RequestTimeout)
	defer checkouts.Close()

	if len(cfg.KafkaBrokers) > 0 {
		outbox := publisher.NewOutboxPoller(st.orders, publisher.NewKafkaWriter(cfg.OrdersTopic, cfg.KafkaBrokers...), cfg.OutboxInterval, log)
		defer outbox.Close()
		go outbox.Run(ctx)

		opts := []poller.Option{
			poller.WithSink(st.products),
			poller.WithLogger(log),
			poller.OnChange(func(int64) {
				carts.RefreshAll()
				checkouts.Refresh()
			}),
		}
		if invalidator != nil {
			opts = append(opts, poller.WithInvalidator(invalidator))
		}
		updates := poller.NewCatalogPoller(poller.NewKafkaReader(cfg.CatalogTopic, cfg.CatalogGroupID, cfg.KafkaBrokers...), opts...)
		defer updates.Close()
		go updates.Run(ctx)

		log.Info("kafka wired", "brokers", cfg.KafkaBrokers, "orders_topic", cfg.OrdersTopic, "catalog_topic", cfg.CatalogTopic)
	}

	router := h.NewRouter(h.Deps{
		Sessions:           sessions,
		Catalog:            reader,
		Carts:              carts,
		Addresses:          addresses,
		Orders:             orders,
		Checkout:           checkouts,
		Log:                log,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			stop()
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "err", err)
	}
	stop()

	log.Info("server exited")
}
