package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/timedeal/timesale/internal/core/domain"
)

// MemoryAdapter backs all three repositories with process memory. It is
// the default backend for local runs, the stress tool, and unit tests.
type MemoryAdapter struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	users    map[string]*domain.User // keyed by login id
	orders   map[string]*domain.Order
	pairs    map[string]string // userID:productID -> orderID

	lockMu   sync.Mutex
	rowLocks map[string]*sync.Mutex
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products: make(map[string]*domain.Product),
		users:    make(map[string]*domain.User),
		orders:   make(map[string]*domain.Order),
		pairs:    make(map[string]string),
		rowLocks: make(map[string]*sync.Mutex),
	}
}

// SeedProduct and SeedUser install fixtures; they replace any existing
// entry with the same id.
func (m *MemoryAdapter) SeedProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = &p
}

func (m *MemoryAdapter) SeedUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.LoginID] = &u
}

func (m *MemoryAdapter) FindByLoginID(ctx context.Context, loginID string) (*domain.User, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[loginID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	clone := *p
	return &clone, nil
}

// Reserve is the plain check-then-decrement: the read and the write hold
// the store lock separately, so two unguarded callers can both pass the
// stock check before either writes. Only the single-writer gate makes
// this safe.
func (m *MemoryAdapter) Reserve(ctx context.Context, productID string, quantity int, now time.Time) (*domain.Product, error) {
	snapshot, err := m.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := checkReservable(snapshot, quantity, now); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	p.Quantity -= quantity
	p.Version++
	p.UpdatedAt = now
	clone := *p
	return &clone, nil
}

func (m *MemoryAdapter) ReserveExclusive(ctx context.Context, productID string, quantity int, now time.Time) (*domain.Product, error) {
	_ = ctx

	row := m.rowLock(productID)
	row.Lock()
	defer row.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if err := checkReservable(p, quantity, now); err != nil {
		return nil, err
	}
	p.Quantity -= quantity
	p.Version++
	p.UpdatedAt = now
	clone := *p
	return &clone, nil
}

func (m *MemoryAdapter) CompareAndReserve(ctx context.Context, productID string, quantity int, version int64, now time.Time) (*domain.Product, error) {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if p.Version != version {
		return nil, domain.ErrVersionConflict
	}
	if err := checkReservable(p, quantity, now); err != nil {
		return nil, err
	}
	p.Quantity -= quantity
	p.Version++
	p.UpdatedAt = now
	clone := *p
	return &clone, nil
}

func (m *MemoryAdapter) Credit(ctx context.Context, productID string, quantity int) error {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Quantity += quantity
	p.Version++
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryAdapter) Create(ctx context.Context, order domain.Order) error {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(order.UserID, order.ProductID)
	if _, exists := m.pairs[key]; exists {
		return domain.ErrDuplicatedOrder
	}
	m.orders[order.ID] = &order
	m.pairs[key] = order.ID
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	clone := *o
	return &clone, nil
}

func (m *MemoryAdapter) ListByUser(ctx context.Context, userID string, page domain.Page) ([]domain.Order, error) {
	return m.list(ctx, page, func(o *domain.Order) bool { return o.UserID == userID })
}

func (m *MemoryAdapter) ListByProduct(ctx context.Context, productID string, page domain.Page) ([]domain.Order, error) {
	return m.list(ctx, page, func(o *domain.Order) bool { return o.ProductID == productID })
}

func (m *MemoryAdapter) list(ctx context.Context, page domain.Page, match func(*domain.Order) bool) ([]domain.Order, error) {
	_ = ctx

	m.mu.RLock()
	all := make([]domain.Order, 0)
	for _, o := range m.orders {
		if match(o) {
			all = append(all, *o)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	offset := page.Offset()
	if offset >= len(all) {
		return []domain.Order{}, nil
	}
	end := offset + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Cancel removes the order and credits the product inside one critical
// section, so no reader ever observes the delete without the credit.
func (m *MemoryAdapter) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	delete(m.orders, orderID)
	delete(m.pairs, pairKey(o.UserID, o.ProductID))

	if p, exists := m.products[o.ProductID]; exists {
		p.Quantity += o.Quantity
		p.Version++
		p.UpdatedAt = time.Now()
	}

	clone := *o
	return &clone, nil
}

func (m *MemoryAdapter) rowLock(productID string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	l, ok := m.rowLocks[productID]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[productID] = l
	}
	return l
}

func pairKey(userID, productID string) string {
	return userID + ":" + productID
}

func checkReservable(p *domain.Product, quantity int, now time.Time) error {
	if !p.OnSale(now) {
		return domain.ErrNotSaleTime
	}
	if !p.HasStock(quantity) {
		return domain.ErrSoldOut
	}
	return nil
}
