// Package checkout runs one checkout attempt for the signed-in user.
//
// A Session prices the cart through its own cart.Engine, holds the payment,
// delivery and address choices, and on Confirm reconciles stock, writes the
// order and clears the cart. Every failure ends as a state plus a message.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/stock"
)

type Config struct {
	Cart       repository.CartStore
	Addresses  repository.AddressStore
	Catalog    repository.CatalogReader
	Reconciler *stock.Reconciler
	Orders     *order.Writer
	Sessions   session.Provider
	Policy     *pricing.Policy // nil: pricing.DefaultPolicy()
	Log        *slog.Logger
}

// View is what the checkout screen renders.
type View struct {
	State       domain.CheckoutState    `json:"state"`
	Snapshot    *domain.PricingSnapshot `json:"snapshot,omitempty"`
	Payment     domain.PaymentMethod    `json:"payment_method,omitempty"`
	Delivery    domain.DeliveryMethod   `json:"delivery_method,omitempty"`
	AddressID   *int64                  `json:"address_id,omitempty"`
	Addresses   []domain.Address        `json:"addresses"`
	Message     string                  `json:"message,omitempty"`
	Corrections *stock.Report           `json:"corrections,omitempty"`
	OrderID     int64                   `json:"order_id,omitempty"`
	Destination string                  `json:"destination,omitempty"`
}

type Session struct {
	cfg    Config
	policy pricing.Policy
	log    *slog.Logger

	mu          sync.RWMutex
	state       domain.CheckoutState
	user        *domain.User
	engine      *cart.Engine
	payment     domain.PaymentMethod
	delivery    domain.DeliveryMethod
	address     *domain.Address
	addresses   []domain.Address
	message     string
	corrections *stock.Report
	orderID     int64
	destination string
	cancel      context.CancelFunc
	done        chan struct{}

	confirmMu sync.Mutex
}

func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:    cfg,
		policy: pricing.DefaultPolicy(),
		log:    cfg.Log,
		state:  domain.CheckoutLoading,
	}
	if cfg.Policy != nil {
		s.policy = *cfg.Policy
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Start resolves the user and opens the cart and address streams. Without a
// session the checkout is Rejected; Start may be called again after that.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return nil
	}
	if s.state != domain.CheckoutLoading && s.state != domain.CheckoutRejected {
		return fmt.Errorf("%w: start from %s", domain.ErrIllegalTransition, s.state)
	}

	user, err := s.cfg.Sessions.Current(ctx)
	if err != nil {
		s.message = domain.ErrNoSession.Error()
		if s.state != domain.CheckoutRejected {
			s.transition(domain.CheckoutRejected)
		}
		if errors.Is(err, domain.ErrNoSession) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrNoSession, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	engine := cart.NewEngine(user.ID, s.cfg.Cart, s.cfg.Addresses, s.cfg.Catalog,
		cart.WithPolicy(s.policy), cart.WithLogger(s.log))
	if err := engine.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start checkout: %w", err)
	}
	addrs, err := s.cfg.Addresses.ObserveAddresses(runCtx, user.ID)
	if err != nil {
		engine.Close()
		cancel()
		return fmt.Errorf("start checkout: observe addresses: %w", err)
	}

	s.user = user
	s.engine = engine
	s.cancel = cancel
	s.done = make(chan struct{})
	s.message = ""

	select {
	case list, ok := <-addrs:
		if ok {
			s.applyAddresses(list)
		}
	case <-ctx.Done():
	}
	go s.watchAddresses(addrs)

	s.transition(domain.CheckoutReady)
	s.log.Info("checkout started", "user_id", user.ID)
	return nil
}

func (s *Session) watchAddresses(addrs <-chan []domain.Address) {
	defer close(s.done)
	for list := range addrs {
		s.mu.Lock()
		s.applyAddresses(list)
		s.mu.Unlock()
	}
}

// applyAddresses keeps the selection when it still exists and otherwise
// selects the first address of the list. Caller holds mu.
func (s *Session) applyAddresses(list []domain.Address) {
	s.addresses = list

	var next *domain.Address
	if s.address != nil {
		for i := range list {
			if list[i].ID == s.address.ID {
				a := list[i]
				next = &a
				break
			}
		}
	}
	if next == nil && len(list) > 0 {
		a := list[0]
		next = &a
	}
	s.address = next
	s.engine.UseAddress(next)
}

// transition moves to the given state. Caller holds mu.
func (s *Session) transition(to domain.CheckoutState) bool {
	if !domain.CanTransitionTo(s.state, to) {
		s.log.Error("illegal checkout transition", "from", s.state, "to", to)
		return false
	}
	s.state = to
	return true
}

// Close stops the streams owned by the session.
func (s *Session) Close() {
	s.mu.Lock()
	engine, cancel, done := s.engine, s.cancel, s.done
	s.mu.Unlock()
	if engine == nil {
		return
	}
	engine.Close()
	cancel()
	<-done
}

func (s *Session) editable() error {
	switch {
	case s.state == domain.CheckoutCompleted:
		return domain.ErrCheckoutCompleted
	case s.engine == nil:
		return domain.ErrNotStarted
	}
	return nil
}

// SelectPayment records the payment method. It never changes totals.
func (s *Session) SelectPayment(m domain.PaymentMethod) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrMissingPaymentMethod, m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	s.payment = m
	return nil
}

// SelectDelivery records the delivery method and reprices shipping.
func (s *Session) SelectDelivery(m domain.DeliveryMethod) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrMissingDeliveryMethod, m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	s.delivery = m
	s.engine.SetDeliveryMethod(m)
	return nil
}

// SelectAddress picks one of the user's addresses and reprices shipping.
func (s *Session) SelectAddress(addressID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	for i := range s.addresses {
		if s.addresses[i].ID == addressID {
			a := s.addresses[i]
			s.address = &a
			s.engine.UseAddress(&a)
			return nil
		}
	}
	return domain.ErrAddressNotFound
}

// Refresh reprices with unchanged inputs.
func (s *Session) Refresh() {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if engine != nil {
		engine.Refresh()
	}
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view()
}

func (s *Session) view() View {
	v := View{
		State:       s.state,
		Payment:     s.payment,
		Delivery:    s.delivery,
		Addresses:   append([]domain.Address{}, s.addresses...),
		Message:     s.message,
		Corrections: s.corrections,
		OrderID:     s.orderID,
		Destination: s.destination,
	}
	if s.address != nil {
		id := s.address.ID
		v.AddressID = &id
	}
	if s.engine != nil {
		if snap, ok := s.engine.Snapshot(); ok {
			v.Snapshot = &snap
		}
	}
	return v
}

// Confirm places the order. On success the ordered units leave the cart and the session is
// Completed. A failed precondition or a stock correction leaves it Ready with
// a message; a failed write leaves it Rejected with the cart untouched.
func (s *Session) Confirm(ctx context.Context) (View, error) {
	if !s.confirmMu.TryLock() {
		return s.View(), domain.ErrConfirmInProgress
	}
	defer s.confirmMu.Unlock()

	s.mu.RLock()
	if err := s.editable(); err != nil {
		if errors.Is(err, domain.ErrNotStarted) && s.state == domain.CheckoutRejected {
			err = domain.ErrNoSession
		}
		v := s.view()
		s.mu.RUnlock()
		return v, err
	}
	engine := s.engine
	payment, delivery := s.payment, s.delivery
	var addr *domain.Address
	if s.address != nil {
		a := *s.address
		addr = &a
	}
	s.mu.RUnlock()

	snap, err := engine.Compute(ctx)
	if err != nil {
		return s.settle(domain.CheckoutReady, fmt.Errorf("%w: price cart: %w", domain.ErrPersistenceFailure, err))
	}
	user, err := s.precheck(ctx, snap, payment, delivery, addr)
	if err != nil {
		return s.settle(domain.CheckoutReady, err)
	}

	s.mu.Lock()
	if !s.transition(domain.CheckoutConfirming) {
		v := s.view()
		s.mu.Unlock()
		return v, domain.ErrIllegalTransition
	}
	s.message, s.corrections = "", nil
	s.mu.Unlock()

	report, err := s.cfg.Reconciler.Reconcile(ctx, user.ID)
	if err != nil {
		return s.settle(domain.CheckoutRejected, fmt.Errorf("%w: reconcile stock: %w", domain.ErrPersistenceFailure, err))
	}
	if report.Changed() {
		s.mu.Lock()
		s.corrections = &report
		s.mu.Unlock()
		engine.Refresh()
		return s.settle(domain.CheckoutReady, report.Err())
	}

	snap, err = engine.Compute(ctx)
	if err != nil {
		return s.settle(domain.CheckoutRejected, fmt.Errorf("%w: price cart: %w", domain.ErrPersistenceFailure, err))
	}
	if snap.Empty() {
		return s.settle(domain.CheckoutReady, domain.ErrEmptyCart)
	}

	o := order.FromSnapshot(snap, payment, delivery)
	o.UserID = user.ID
	if delivery == domain.DeliveryShip {
		id := addr.ID
		o.AddressID = &id
	}
	created, err := s.cfg.Orders.Create(ctx, o)
	if err != nil {
		return s.settle(domain.CheckoutRejected, err)
	}

	// the order is committed, so the cart must follow even if the caller gave up
	if err := engine.Settle(context.WithoutCancel(ctx), snap.Lines); err != nil {
		s.log.Error("clear cart after order", "order_id", created.ID, "user_id", user.ID, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition(domain.CheckoutCompleted)
	s.orderID = created.ID
	s.destination = ""
	if delivery == domain.DeliveryShip {
		s.destination = addr.Line
	}
	s.message = confirmationMessage(delivery, s.destination)
	s.log.Info("checkout completed", "order_id", created.ID, "user_id", user.ID, "total", created.Total.String())
	return s.view(), nil
}

// precheck runs the hard preconditions in a fixed order and returns the
// current user when all of them hold.
func (s *Session) precheck(ctx context.Context, snap domain.PricingSnapshot, payment domain.PaymentMethod, delivery domain.DeliveryMethod, addr *domain.Address) (*domain.User, error) {
	user, err := s.cfg.Sessions.Current(ctx)
	if err != nil {
		return nil, domain.ErrNoSession
	}
	switch {
	case snap.Empty():
		return nil, domain.ErrEmptyCart
	case !snap.MeetsMinimum:
		return nil, fmt.Errorf("%w: subtotal %s, minimum %s", domain.ErrBelowMinimumPurchase, snap.Subtotal, s.policy.MinimumPurchase)
	case !payment.Valid():
		return nil, domain.ErrMissingPaymentMethod
	case !delivery.Valid():
		return nil, domain.ErrMissingDeliveryMethod
	case delivery == domain.DeliveryShip && addr == nil:
		return nil, domain.ErrMissingAddress
	}
	if missing := user.MissingProfileFields(); len(missing) > 0 {
		return nil, &domain.IncompleteProfileError{Missing: missing}
	}
	return user, nil
}

// settle ends a confirmation attempt in the given state with err as the message.
func (s *Session) settle(to domain.CheckoutState, err error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition(to)
	s.message = err.Error()
	s.log.Warn("checkout not confirmed", "user_id", s.engine.UserID(), "state", s.state, "err", err)
	return s.view(), err
}

func confirmationMessage(delivery domain.DeliveryMethod, destination string) string {
	if delivery == domain.DeliveryShip {
		return fmt.Sprintf("Purchase completed. We will ship your order to %s.", destination)
	}
	return "Purchase completed. Your order is ready for pickup."
}
