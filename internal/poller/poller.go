// Package poller consumes the catalog change feed.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const retryDelay = time.Second

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// CatalogUpdate announces a changed product. Product, when present, is the
// new state and is written to the local catalog.
type CatalogUpdate struct {
	ProductID int64           `json:"product_id"`
	Product   *domain.Product `json:"product,omitempty"`
}

type ProductSink interface {
	UpsertProduct(ctx context.Context, p domain.Product) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, productID int64) error
}

type Option func(*CatalogPoller)

func WithSink(s ProductSink) Option {
	return func(p *CatalogPoller) { p.sink = s }
}

func WithInvalidator(i Invalidator) Option {
	return func(p *CatalogPoller) { p.cache = i }
}

// OnChange registers a callback run after each applied update.
func OnChange(fn func(productID int64)) Option {
	return func(p *CatalogPoller) { p.onChange = append(p.onChange, fn) }
}

func WithLogger(log *slog.Logger) Option {
	return func(p *CatalogPoller) {
		if log != nil {
			p.log = log
		}
	}
}

type CatalogPoller struct {
	reader   MessageReader
	sink     ProductSink
	cache    Invalidator
	onChange []func(productID int64)
	log      *slog.Logger
}

func NewCatalogPoller(reader MessageReader, opts ...Option) *CatalogPoller {
	p := &CatalogPoller{reader: reader, log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CatalogPoller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.next(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			p.log.Error("error reading message", "err", err)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *CatalogPoller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "err", err)
	}
}

// next handles one message. Only read errors are returned; a bad message is
// logged and skipped.
func (p *CatalogPoller) next(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	var update CatalogUpdate
	if err := json.Unmarshal(m.Value, &update); err != nil {
		p.log.Error("error parsing message", "offset", m.Offset, "err", err)
		return nil
	}
	if update.Product != nil && update.ProductID == 0 {
		update.ProductID = update.Product.ID
	}
	if update.ProductID <= 0 {
		p.log.Error("missing or invalid product_id", "offset", m.Offset)
		return nil
	}
	p.apply(ctx, update)
	return nil
}

func (p *CatalogPoller) apply(ctx context.Context, update CatalogUpdate) {
	if update.Product != nil && p.sink != nil {
		prod := *update.Product
		prod.ID = update.ProductID
		if err := p.sink.UpsertProduct(ctx, prod); err != nil {
			p.log.Error("failed to store product", "product_id", update.ProductID, "err", err)
			return
		}
	}
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, update.ProductID); err != nil {
			p.log.Error("failed to invalidate cache", "product_id", update.ProductID, "err", err)
		}
	}
	for _, fn := range p.onChange {
		fn(update.ProductID)
	}
	p.log.Info("catalog updated", "product_id", update.ProductID)
}
