package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
)

type fakeReader struct {
	messages chan kafka.Message
	mu       sync.RWMutex
	closed   bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{messages: make(chan kafka.Message, 10)}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.messages:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	r.messages <- kafka.Message{Value: data}
}

type fakeInvalidator struct {
	mu  sync.RWMutex
	ids []int64
	err error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, productID)
	return f.err
}

func (f *fakeInvalidator) IDs() []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]int64(nil), f.ids...)
}

func run(t *testing.T, p *CatalogPoller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNext_AppliesProductUpdate(t *testing.T) {
	s := store.NewMemoryStore()
	inv := &fakeInvalidator{}
	var changed []int64
	reader := newFakeReader()
	p := NewCatalogPoller(reader, WithSink(s), WithInvalidator(inv), OnChange(func(id int64) { changed = append(changed, id) }))

	reader.send(t, CatalogUpdate{Product: &domain.Product{ID: 5, Name: "Escape Rope", Price: decimal.NewFromInt(550)}})
	require.NoError(t, p.next(context.Background()))

	got, err := s.GetProduct(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Escape Rope", got.Name)
	assert.Equal(t, []int64{5}, inv.IDs())
	assert.Equal(t, []int64{5}, changed)
}

func TestNext_SkipsBadMessages(t *testing.T) {
	inv := &fakeInvalidator{}
	reader := newFakeReader()
	p := NewCatalogPoller(reader, WithInvalidator(inv))

	reader.messages <- kafka.Message{Value: []byte("not json")}
	require.NoError(t, p.next(context.Background()))
	reader.send(t, map[string]any{"product_id": 0})
	require.NoError(t, p.next(context.Background()))

	assert.Empty(t, inv.IDs())
}

func TestNext_InvalidationFailureStillNotifies(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	reader := newFakeReader()
	called := false
	p := NewCatalogPoller(reader, WithInvalidator(inv), OnChange(func(int64) { called = true }))

	reader.send(t, CatalogUpdate{ProductID: 3})
	require.NoError(t, p.next(context.Background()))
	assert.True(t, called)
}

func TestRun_PriceChangeReachesCartEngine(t *testing.T) {
	s := store.NewMemoryStore()
	s.PutProduct(domain.Product{ID: 1, Name: "Repel", Price: decimal.NewFromInt(700)})
	_, err := s.UpsertLine(context.Background(), domain.CartLine{UserID: 1, ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(700)})
	require.NoError(t, err)

	e := cart.NewEngine(1, s, s, s)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Close)

	reader := newFakeReader()
	p := NewCatalogPoller(reader, WithSink(s), OnChange(func(int64) { e.Refresh() }))
	run(t, p)

	require.Eventually(t, func() bool {
		snap, ok := e.Snapshot()
		return ok && snap.Subtotal.Equal(decimal.NewFromInt(1400))
	}, 2*time.Second, 5*time.Millisecond)

	reader.send(t, CatalogUpdate{ProductID: 1, Product: &domain.Product{Name: "Repel", Price: decimal.NewFromInt(900)}})

	require.Eventually(t, func() bool {
		snap, ok := e.Snapshot()
		return ok && snap.Subtotal.Equal(decimal.NewFromInt(1800))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	reader := newFakeReader()
	NewCatalogPoller(reader).Close()
	reader.mu.RLock()
	defer reader.mu.RUnlock()
	assert.True(t, reader.closed)
}
