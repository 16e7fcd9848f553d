// Package catalog serves product lookups through a cache.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

// CachedReader is a repository.CatalogReader that reads through a ProductCache.
// Cache failures are logged and fall through to the source.
type CachedReader struct {
	source repository.CatalogReader
	cache  cache.ProductCache
	log    *slog.Logger
	sfg    singleflight.Group // one source lookup per product at a time
}

var _ repository.CatalogReader = (*CachedReader)(nil)

func NewCachedReader(source repository.CatalogReader, c cache.ProductCache, log *slog.Logger) *CachedReader {
	if log == nil {
		log = slog.Default()
	}
	return &CachedReader{source: source, cache: c, log: log}
}

func (r *CachedReader) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	v, err, _ := r.sfg.Do(strconv.FormatInt(productID, 10), func() (interface{}, error) {
		p, err := r.cache.Get(ctx, productID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.Warn("cache get error", "product_id", productID, "err", err)
		}

		p, err = r.source.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}

		go func(p domain.Product) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := r.cache.Set(ctx, &p); err != nil {
				r.log.Warn("cache set error", "product_id", p.ID, "err", err)
			}
		}(*p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	p := *v.(*domain.Product)
	p.Options = append([]domain.ProductOption(nil), p.Options...)
	return &p, nil
}

func (r *CachedReader) ObserveFeatured(ctx context.Context) (<-chan []domain.Product, error) {
	return r.source.ObserveFeatured(ctx)
}

// Invalidate drops the cached product so the next lookup reads the source.
func (r *CachedReader) Invalidate(ctx context.Context, productID int64) error {
	r.sfg.Forget(strconv.FormatInt(productID, 10))
	return r.cache.Delete(ctx, productID)
}
