// Package cart keeps a live, priced view of one user's cart.
//
// An Engine listens to the user's cart lines and default address, and to
// delivery/address selections made through its API. Every input starts a new
// recomputation generation; an older recomputation still in flight is
// cancelled and can never publish over a newer one.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

const lookupConcurrency = 8

type Option func(*Engine)

func WithPolicy(p pricing.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

type Engine struct {
	userID    int64
	cart      repository.CartStore
	addresses repository.AddressStore
	catalog   repository.CatalogReader
	policy    pricing.Policy
	log       *slog.Logger

	// inputs, guarded by mu
	mu          sync.RWMutex
	lines       []domain.CartLine
	defaultAddr *domain.Address
	selected    *domain.Address // nil: follow the default address
	delivery    domain.DeliveryMethod
	snapshot    domain.PricingSnapshot
	published   bool
	subs        map[chan domain.PricingSnapshot]struct{}

	writeMu sync.Mutex

	gen     atomic.Uint64
	kick    chan struct{}
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewEngine(userID int64, cart repository.CartStore, addresses repository.AddressStore, catalog repository.CatalogReader, opts ...Option) *Engine {
	e := &Engine{
		userID:    userID,
		cart:      cart,
		addresses: addresses,
		catalog:   catalog,
		policy:    pricing.DefaultPolicy(),
		log:       slog.Default(),
		subs:      make(map[chan domain.PricingSnapshot]struct{}),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("user_id", userID)
	return e
}

func (e *Engine) UserID() int64 { return e.userID }

// Start opens the cart and default-address streams and runs the event loop
// until ctx is done or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	lines, err := e.cart.ObserveCart(ctx, e.userID)
	if err != nil {
		cancel()
		close(e.done)
		return fmt.Errorf("observe cart: %w", err)
	}
	defaults, err := e.addresses.ObserveDefaultAddress(ctx, e.userID)
	if err != nil {
		cancel()
		close(e.done)
		return fmt.Errorf("observe default address: %w", err)
	}

	go e.run(ctx, lines, defaults)
	return nil
}

// Close stops the event loop and closes every subscription.
func (e *Engine) Close() {
	if !e.started.Load() {
		return
	}
	e.cancel()
	<-e.done

	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		close(ch)
		delete(e.subs, ch)
	}
}

func (e *Engine) run(ctx context.Context, lines <-chan []domain.CartLine, defaults <-chan *domain.Address) {
	defer close(e.done)

	var (
		inflight  context.CancelFunc
		haveLines bool
		haveAddr  bool
	)
	defer func() {
		if inflight != nil {
			inflight()
		}
	}()

	for {
		select {
		case l, ok := <-lines:
			if !ok {
				return
			}
			e.mu.Lock()
			e.lines = l
			e.mu.Unlock()
			haveLines = true
		case a, ok := <-defaults:
			if !ok {
				return
			}
			e.mu.Lock()
			e.defaultAddr = a
			e.mu.Unlock()
			haveAddr = true
		case <-e.kick:
		case <-ctx.Done():
			return
		}
		if !haveLines || !haveAddr {
			continue
		}

		if inflight != nil {
			inflight()
		}
		var rctx context.Context
		rctx, inflight = context.WithCancel(ctx)
		gen := e.gen.Add(1)
		cur, delivery, dest := e.inputs()
		go e.recompute(rctx, gen, cur, delivery, dest)
	}
}

func (e *Engine) inputs() ([]domain.CartLine, domain.DeliveryMethod, domain.Destination) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	addr := e.selected
	if addr == nil {
		addr = e.defaultAddr
	}
	return e.lines, e.delivery, domain.DestinationFor(addr)
}

func (e *Engine) recompute(ctx context.Context, gen uint64, lines []domain.CartLine, delivery domain.DeliveryMethod, dest domain.Destination) {
	snap, err := e.price(ctx, lines, delivery, dest)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Error("recompute failed", "generation", gen, "err", err)
		}
		return
	}
	snap.Version = gen
	e.publish(snap)
}

func (e *Engine) publish(snap domain.PricingSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if snap.Version != e.gen.Load() {
		return
	}
	e.snapshot = snap
	e.published = true
	for ch := range e.subs {
		offer(ch, snap)
	}
}

// offer replaces any unread snapshot in ch with snap.
func offer(ch chan domain.PricingSnapshot, snap domain.PricingSnapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (e *Engine) price(ctx context.Context, lines []domain.CartLine, delivery domain.DeliveryMethod, dest domain.Destination) (domain.PricingSnapshot, error) {
	priced := make([]domain.PricedLine, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, l := range lines {
		g.Go(func() error {
			p, err := e.catalog.GetProduct(gctx, l.ProductID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if !errors.Is(err, domain.ErrProductNotFound) {
					e.log.Warn("catalog lookup failed, using persisted price", "line_id", l.ID, "product_id", l.ProductID, "err", err)
				}
				p = nil
			}
			priced[i] = PriceLine(l, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.PricingSnapshot{}, err
	}

	snap := e.policy.Totals(priced, delivery, dest)
	snap.UserID = e.userID
	return snap, nil
}

// PriceLine merges a cart line with its catalog product. A nil product, or an
// option no longer in the catalog, falls back to the persisted unit price.
func PriceLine(l domain.CartLine, p *domain.Product) domain.PricedLine {
	out := domain.PricedLine{
		LineID:    l.ID,
		ProductID: l.ProductID,
		OptionID:  l.OptionID,
		Title:     fmt.Sprintf("Product #%d", l.ProductID),
		Quantity:  l.Quantity,
	}
	if l.OptionID != nil {
		out.OptionName = fmt.Sprintf("Option #%d", *l.OptionID)
	}

	var opt *domain.ProductOption
	if p != nil {
		out.Title = p.Name
		out.ImageURL = p.ImageURL
		if l.OptionID != nil {
			opt = p.Option(*l.OptionID)
			if opt != nil {
				out.OptionName = opt.Name
			}
		}
	}

	if p == nil || (l.OptionID != nil && opt == nil) {
		out.Fallback = true
		out.UnitPrice = l.UnitPrice
		out.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		return out
	}

	r := pricing.Resolve(p, opt, l.Quantity)
	out.UnitPrice = r.UnitPrice
	out.LineTotal = r.LineTotal
	return out
}

// Snapshot returns the latest published snapshot. ok is false until the first
// recomputation has completed.
func (e *Engine) Snapshot() (domain.PricingSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot, e.published
}

// Subscribe returns a channel that always holds the newest snapshot not yet read.
func (e *Engine) Subscribe() (<-chan domain.PricingSnapshot, func()) {
	ch := make(chan domain.PricingSnapshot, 1)
	e.mu.Lock()
	select {
	case <-e.done:
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	e.subs[ch] = struct{}{}
	if e.published {
		ch <- e.snapshot
	}
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subs[ch]; ok {
				delete(e.subs, ch)
				close(ch)
			}
		})
	}
}

// Compute prices the persisted cart right now, bypassing the event loop.
func (e *Engine) Compute(ctx context.Context) (domain.PricingSnapshot, error) {
	lines, err := e.cart.ListCart(ctx, e.userID)
	if err != nil {
		return domain.PricingSnapshot{}, fmt.Errorf("list cart: %w", err)
	}

	e.mu.RLock()
	delivery := e.delivery
	addr := e.selected
	e.mu.RUnlock()

	if addr == nil {
		addr, err = e.addresses.DefaultAddress(ctx, e.userID)
		if err != nil {
			return domain.PricingSnapshot{}, fmt.Errorf("default address: %w", err)
		}
	}

	snap, err := e.price(ctx, lines, delivery, domain.DestinationFor(addr))
	if err != nil {
		return domain.PricingSnapshot{}, err
	}
	snap.Version = e.gen.Load()
	return snap, nil
}

// SetDeliveryMethod changes the shipping input and triggers a recomputation.
func (e *Engine) SetDeliveryMethod(m domain.DeliveryMethod) {
	e.mu.Lock()
	e.delivery = m
	e.mu.Unlock()
	e.Refresh()
}

func (e *Engine) DeliveryMethod() domain.DeliveryMethod {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.delivery
}

// UseAddress prices shipping against a. A nil address follows the user's default.
func (e *Engine) UseAddress(a *domain.Address) {
	var cp *domain.Address
	if a != nil {
		v := *a
		cp = &v
	}
	e.mu.Lock()
	e.selected = cp
	e.mu.Unlock()
	e.Refresh()
}

// Refresh recomputes with unchanged inputs, e.g. after a catalog change.
func (e *Engine) Refresh() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Add puts one unit of the product/option into the cart at its current price.
func (e *Engine) Add(ctx context.Context, productID int64, optionID *int64) (*domain.CartLine, error) {
	p, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}
	var opt *domain.ProductOption
	if optionID != nil {
		if opt = p.Option(*optionID); opt == nil {
			return nil, fmt.Errorf("add to cart: option %d: %w", *optionID, domain.ErrProductNotFound)
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	line, err := e.cart.UpsertLine(ctx, domain.CartLine{
		UserID:    e.userID,
		ProductID: productID,
		OptionID:  optionID,
		Quantity:  1,
		UnitPrice: pricing.UnitPrice(p, opt),
	})
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}
	e.log.Debug("line added", "line_id", line.ID, "product_id", productID, "quantity", line.Quantity)
	return line, nil
}

// Increment adds one unit and returns the new quantity.
func (e *Engine) Increment(ctx context.Context, lineID int64) (int, error) {
	return e.adjust(ctx, lineID, 1)
}

// Decrement removes one unit; a line at quantity 1 is removed and 0 is returned.
func (e *Engine) Decrement(ctx context.Context, lineID int64) (int, error) {
	return e.adjust(ctx, lineID, -1)
}

func (e *Engine) adjust(ctx context.Context, lineID int64, delta int) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.owned(ctx, lineID); err != nil {
		return 0, err
	}
	q, err := e.cart.AdjustQuantity(ctx, lineID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust quantity: %w", err)
	}
	return q, nil
}

func (e *Engine) Remove(ctx context.Context, lineID int64) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.owned(ctx, lineID); err != nil {
		return err
	}
	if err := e.cart.RemoveLine(ctx, lineID); err != nil {
		return fmt.Errorf("remove line: %w", err)
	}
	return nil
}

func (e *Engine) Clear(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.cart.ClearCart(ctx, e.userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Settle takes the ordered units out of the cart. Units added after the
// snapshot was taken stay, and a line already gone is skipped.
func (e *Engine) Settle(ctx context.Context, ordered []domain.PricedLine) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	for _, l := range ordered {
		if err := e.owned(ctx, l.LineID); err != nil {
			if errors.Is(err, domain.ErrLineNotFound) {
				continue
			}
			return fmt.Errorf("settle cart: %w", err)
		}
		if _, err := e.cart.AdjustQuantity(ctx, l.LineID, -l.Quantity); err != nil && !errors.Is(err, domain.ErrLineNotFound) {
			return fmt.Errorf("settle cart: line %d: %w", l.LineID, err)
		}
	}
	return nil
}

func (e *Engine) owned(ctx context.Context, lineID int64) error {
	l, err := e.cart.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	if l.UserID != e.userID {
		return domain.ErrLineNotFound
	}
	return nil
}
