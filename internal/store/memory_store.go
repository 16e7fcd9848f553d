package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/watch"
)

const featuredKey = 0

// MemoryStore implements every repository interface with in-memory maps.
// Used with STORE_BACKEND=memory and by the engine tests.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[int64]*domain.Product
	lines     map[int64]*domain.CartLine // lineID -> line
	addresses map[int64]*domain.Address  // addressID -> address
	orders    map[int64]*domain.Order
	outbox    []*outboxEntry

	nextLine    int64
	nextAddress int64
	nextOrder   int64
	nextOrdLine int64

	catalogHub *watch.Hub
	cartHub    *watch.Hub
	addressHub *watch.Hub
}

type outboxEntry struct {
	event     domain.OutboxEvent
	processed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[int64]*domain.Product),
		lines:      make(map[int64]*domain.CartLine),
		addresses:  make(map[int64]*domain.Address),
		orders:     make(map[int64]*domain.Order),
		catalogHub: watch.NewHub(),
		cartHub:    watch.NewHub(),
		addressHub: watch.NewHub(),
	}
}

var (
	_ repository.CatalogReader = (*MemoryStore)(nil)
	_ repository.CartStore     = (*MemoryStore)(nil)
	_ repository.AddressStore  = (*MemoryStore)(nil)
	_ repository.OrderStore    = (*MemoryStore)(nil)
	_ repository.OutboxStore   = (*MemoryStore)(nil)
)

func copyProduct(p *domain.Product) *domain.Product {
	cp := *p
	cp.Options = append([]domain.ProductOption(nil), p.Options...)
	return &cp
}

// PutProduct inserts or replaces a catalog product.
func (s *MemoryStore) PutProduct(p domain.Product) {
	s.mu.Lock()
	s.products[p.ID] = copyProduct(&p)
	s.mu.Unlock()
	s.catalogHub.Notify(featuredKey)
}

func (s *MemoryStore) UpsertProduct(_ context.Context, p domain.Product) error {
	s.PutProduct(p)
	return nil
}

// SetStock sets the stock level of an option.
func (s *MemoryStore) SetStock(optionID int64, stock int) error {
	s.mu.Lock()
	found := false
	for _, p := range s.products {
		if o := p.Option(optionID); o != nil {
			o.Stock = stock
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return domain.ErrProductNotFound
	}
	s.catalogHub.Notify(featuredKey)
	return nil
}

// RemoveProduct drops a product from the catalog.
func (s *MemoryStore) RemoveProduct(productID int64) {
	s.mu.Lock()
	delete(s.products, productID)
	s.mu.Unlock()
	s.catalogHub.Notify(featuredKey)
}

func (s *MemoryStore) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return copyProduct(p), nil
}

func (s *MemoryStore) featured(context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []domain.Product{}
	for _, p := range s.products {
		if p.Featured {
			result = append(result, *copyProduct(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) ObserveFeatured(ctx context.Context) (<-chan []domain.Product, error) {
	return watch.Observe(ctx, s.catalogHub, featuredKey, nil, s.featured)
}

// Cart

func (s *MemoryStore) ListCart(_ context.Context, userID int64) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []domain.CartLine{}
	for _, l := range s.lines {
		if l.UserID == userID {
			result = append(result, *l)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].AddedAt.Equal(result[j].AddedAt) {
			return result[i].AddedAt.After(result[j].AddedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) ObserveCart(ctx context.Context, userID int64) (<-chan []domain.CartLine, error) {
	return watch.Observe(ctx, s.cartHub, userID, nil, func(ctx context.Context) ([]domain.CartLine, error) {
		return s.ListCart(ctx, userID)
	})
}

func (s *MemoryStore) GetLine(_ context.Context, lineID int64) (*domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lines[lineID]
	if !ok {
		return nil, domain.ErrLineNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) UpsertLine(_ context.Context, line domain.CartLine) (*domain.CartLine, error) {
	if line.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	s.mu.Lock()
	var saved domain.CartLine
	existing := s.findLine(line.UserID, line.ProductID, line.OptionID)
	if existing != nil {
		existing.Quantity += line.Quantity
		saved = *existing
	} else {
		s.nextLine++
		line.ID = s.nextLine
		if line.AddedAt.IsZero() {
			line.AddedAt = time.Now()
		}
		stored := line
		s.lines[line.ID] = &stored
		saved = stored
	}
	s.mu.Unlock()

	s.cartHub.Notify(line.UserID)
	return &saved, nil
}

func (s *MemoryStore) findLine(userID, productID int64, optionID *int64) *domain.CartLine {
	for _, l := range s.lines {
		if l.UserID == userID && l.ProductID == productID && l.SameOption(optionID) {
			return l
		}
	}
	return nil
}

func (s *MemoryStore) AdjustQuantity(_ context.Context, lineID int64, delta int) (int, error) {
	s.mu.Lock()
	l, ok := s.lines[lineID]
	if !ok {
		s.mu.Unlock()
		return 0, domain.ErrLineNotFound
	}
	userID := l.UserID
	quantity := l.Quantity + delta
	if quantity < 1 {
		quantity = 0
		delete(s.lines, lineID)
	} else {
		l.Quantity = quantity
	}
	s.mu.Unlock()

	s.cartHub.Notify(userID)
	return quantity, nil
}

func (s *MemoryStore) SetQuantity(_ context.Context, lineID int64, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	s.mu.Lock()
	l, ok := s.lines[lineID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrLineNotFound
	}
	l.Quantity = quantity
	userID := l.UserID
	s.mu.Unlock()

	s.cartHub.Notify(userID)
	return nil
}

func (s *MemoryStore) RemoveLine(_ context.Context, lineID int64) error {
	s.mu.Lock()
	l, ok := s.lines[lineID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrLineNotFound
	}
	delete(s.lines, lineID)
	s.mu.Unlock()

	s.cartHub.Notify(l.UserID)
	return nil
}

func (s *MemoryStore) ClearCart(_ context.Context, userID int64) error {
	s.mu.Lock()
	for id, l := range s.lines {
		if l.UserID == userID {
			delete(s.lines, id)
		}
	}
	s.mu.Unlock()

	s.cartHub.Notify(userID)
	return nil
}

// Addresses

func (s *MemoryStore) ListAddresses(_ context.Context, userID int64) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAddresses(s.addresses, userID), nil
}

func sortedAddresses(all map[int64]*domain.Address, userID int64) []domain.Address {
	result := []domain.Address{}
	for _, a := range all {
		if a.UserID == userID {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IsDefault != result[j].IsDefault {
			return result[i].IsDefault
		}
		return result[i].ID > result[j].ID
	})
	return result
}

func (s *MemoryStore) DefaultAddress(_ context.Context, userID int64) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.addresses {
		if a.UserID == userID && a.IsDefault {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ObserveAddresses(ctx context.Context, userID int64) (<-chan []domain.Address, error) {
	return watch.Observe(ctx, s.addressHub, userID, nil, func(ctx context.Context) ([]domain.Address, error) {
		return s.ListAddresses(ctx, userID)
	})
}

func (s *MemoryStore) ObserveDefaultAddress(ctx context.Context, userID int64) (<-chan *domain.Address, error) {
	return watch.Observe(ctx, s.addressHub, userID, nil, func(ctx context.Context) (*domain.Address, error) {
		return s.DefaultAddress(ctx, userID)
	})
}

// WithAddressTx runs fn against a staged copy of the address table and
// publishes it only when fn succeeds.
func (s *MemoryStore) WithAddressTx(ctx context.Context, userID int64, fn func(repository.AddressTx) error) error {
	s.mu.Lock()
	tx := &memAddressTx{
		addresses: make(map[int64]*domain.Address, len(s.addresses)),
		nextID:    s.nextAddress,
	}
	for id, a := range s.addresses {
		cp := *a
		tx.addresses[id] = &cp
	}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := tx.checkDefaults(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.addresses = tx.addresses
	s.nextAddress = tx.nextID
	s.mu.Unlock()

	s.addressHub.Notify(userID)
	return nil
}

type memAddressTx struct {
	addresses map[int64]*domain.Address
	nextID    int64
}

func (t *memAddressTx) GetAddress(_ context.Context, addressID int64) (*domain.Address, error) {
	a, ok := t.addresses[addressID]
	if !ok {
		return nil, domain.ErrAddressNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memAddressTx) SaveAddress(_ context.Context, a domain.Address) (int64, error) {
	if a.ID == 0 {
		t.nextID++
		a.ID = t.nextID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		t.addresses[a.ID] = &a
		return a.ID, nil
	}
	existing, ok := t.addresses[a.ID]
	if !ok || existing.UserID != a.UserID {
		return 0, domain.ErrAddressNotFound
	}
	a.CreatedAt = existing.CreatedAt
	t.addresses[a.ID] = &a
	return a.ID, nil
}

func (t *memAddressTx) ClearDefaults(_ context.Context, userID int64) error {
	for _, a := range t.addresses {
		if a.UserID == userID {
			a.IsDefault = false
		}
	}
	return nil
}

func (t *memAddressTx) MarkDefault(_ context.Context, addressID int64) error {
	a, ok := t.addresses[addressID]
	if !ok {
		return domain.ErrAddressNotFound
	}
	a.IsDefault = true
	return nil
}

func (t *memAddressTx) CountAddresses(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, a := range t.addresses {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *memAddressTx) CountDefaults(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, a := range t.addresses {
		if a.UserID == userID && a.IsDefault {
			n++
		}
	}
	return n, nil
}

func (t *memAddressTx) DeleteAddress(_ context.Context, addressID int64) error {
	if _, ok := t.addresses[addressID]; !ok {
		return domain.ErrAddressNotFound
	}
	delete(t.addresses, addressID)
	return nil
}

func (t *memAddressTx) MostRecentAddress(_ context.Context, userID int64) (*domain.Address, error) {
	var recent *domain.Address
	for _, a := range t.addresses {
		if a.UserID != userID {
			continue
		}
		if recent == nil || a.CreatedAt.After(recent.CreatedAt) ||
			(a.CreatedAt.Equal(recent.CreatedAt) && a.ID > recent.ID) {
			recent = a
		}
	}
	if recent == nil {
		return nil, nil
	}
	cp := *recent
	return &cp, nil
}

// checkDefaults mirrors the partial unique index of the SQLite schema.
func (t *memAddressTx) checkDefaults() error {
	seen := make(map[int64]bool)
	for _, a := range t.addresses {
		if !a.IsDefault {
			continue
		}
		if seen[a.UserID] {
			return errMultipleDefaults
		}
		seen[a.UserID] = true
	}
	return nil
}

// Orders

func (s *MemoryStore) WithOrderTx(ctx context.Context, fn func(repository.OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memOrderTx{
		store:       s,
		staged:      make(map[int64]*domain.Order),
		nextOrder:   s.nextOrder,
		nextOrdLine: s.nextOrdLine,
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, o := range tx.staged {
		s.orders[id] = o
	}
	for _, e := range tx.events {
		s.outbox = append(s.outbox, &outboxEntry{event: e})
	}
	s.nextOrder = tx.nextOrder
	s.nextOrdLine = tx.nextOrdLine
	return nil
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Lines = append([]domain.OrderLine{}, o.Lines...)
	return &cp
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) ListOrders(_ context.Context, userID int64) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			result = append(result, *copyOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []*domain.OutboxEvent
	for _, e := range s.outbox {
		if e.processed {
			continue
		}
		ev := e.event
		events = append(events, &ev)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.event.ID == id {
			e.processed = true
			return nil
		}
	}
	return ErrEventNotFound
}

type memOrderTx struct {
	store       *MemoryStore
	staged      map[int64]*domain.Order
	events      []domain.OutboxEvent
	nextOrder   int64
	nextOrdLine int64
}

func (t *memOrderTx) InsertHeader(_ context.Context, o domain.Order) (int64, error) {
	t.nextOrder++
	o.ID = t.nextOrder
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.Lines = []domain.OrderLine{}
	t.staged[o.ID] = &o
	return o.ID, nil
}

func (t *memOrderTx) InsertLines(_ context.Context, orderID int64, lines []domain.OrderLine) error {
	o, ok := t.staged[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	for _, l := range lines {
		if l.Quantity < 1 {
			return domain.ErrInvalidQuantity
		}
		t.nextOrdLine++
		l.ID = t.nextOrdLine
		l.OrderID = orderID
		o.Lines = append(o.Lines, l)
	}
	return nil
}

func (t *memOrderTx) AppendOutbox(_ context.Context, e domain.OutboxEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	t.events = append(t.events, e)
	return nil
}

func (t *memOrderTx) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	if o, ok := t.staged[orderID]; ok {
		return copyOrder(o), nil
	}
	o, ok := t.store.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}
