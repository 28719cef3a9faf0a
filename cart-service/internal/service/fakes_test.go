package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/cache"
	"github.com/fjod/go_cart/cart-service/internal/coupon"
	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/repository"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/shopspring/decimal"
)

type fakeCatalog struct {
	m        sync.RWMutex
	products map[string]domain.Product
	err      error
	calls    int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]domain.Product{}}
}

func (f *fakeCatalog) set(id, price string, stock int) {
	f.m.Lock()
	defer f.m.Unlock()
	f.products[id] = domain.Product{
		ID:             id,
		Name:           "Product " + id,
		Price:          decimal.RequireFromString(price),
		AvailableStock: stock,
		Images:         []string{id + ".png"},
	}
}

func (f *fakeCatalog) remove(id string) {
	f.m.Lock()
	defer f.m.Unlock()
	delete(f.products, id)
}

func (f *fakeCatalog) fail(err error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.err = err
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return &p, nil
}

type mockCache struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
	err   error
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}}
}

func (m *mockCache) Get(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[owner.Topic()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c.Clone(), nil
}

func (m *mockCache) Set(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	key := cart.Owner().Topic()
	if cur, ok := m.carts[key]; ok && cur.ID == cart.ID && cur.Version > cart.Version {
		return nil
	}
	m.carts[key] = cart.Clone()
	return nil
}

func (m *mockCache) version(owner domain.Owner) int64 {
	m.m.RLock()
	defer m.m.RUnlock()
	if c, ok := m.carts[owner.Topic()]; ok {
		return c.Version
	}
	return -1
}

func (m *mockCache) Delete(_ context.Context, owner domain.Owner) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, owner.Topic())
	return m.err
}

func (m *mockCache) has(owner domain.Owner) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.carts[owner.Topic()]
	return ok
}

type recordingPublisher struct {
	m      sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.Event) {
	p.m.Lock()
	defer p.m.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) names() []string {
	p.m.Lock()
	defer p.m.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

func (p *recordingPublisher) last() domain.Event {
	p.m.Lock()
	defer p.m.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) reset() {
	p.m.Lock()
	defer p.m.Unlock()
	p.events = nil
}

// conflictRepository fails the next n saves with ErrConflict.
type conflictRepository struct {
	repository.CartRepository
	m         sync.Mutex
	conflicts int
	saves     int
}

func (r *conflictRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	r.m.Lock()
	r.saves++
	if r.conflicts > 0 {
		r.conflicts--
		r.m.Unlock()
		return domain.ErrConflict
	}
	r.m.Unlock()
	return r.CartRepository.SaveCart(ctx, cart)
}

type errRepository struct {
	err error
}

func (r errRepository) GetCart(context.Context, domain.Owner) (*domain.Cart, error) {
	return nil, r.err
}

func (r errRepository) SaveCart(context.Context, *domain.Cart) error {
	return r.err
}

func (r errRepository) DeleteCart(context.Context, domain.Owner) error {
	return r.err
}

type fixture struct {
	svc     *CartService
	repo    *repository.MemoryRepository
	cache   *mockCache
	catalog *fakeCatalog
	pub     *recordingPublisher
	now     time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	t.Cleanup(func() { repo.Close() })

	f := &fixture{
		repo:    repo,
		cache:   newMockCache(),
		catalog: newFakeCatalog(),
		pub:     &recordingPublisher{},
		now:     time.Now(),
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return f.now }
	}
	book, err := coupon.Parse("SAVE10:percentage:10,FIVEOFF:fixed:5,HUGE:fixed:1000")
	if err != nil {
		t.Fatal(err)
	}
	f.svc = NewCartService(repo, f.cache, f.catalog, book, f.pub, logger.Discard(), opts)
	return f
}

func (f *fixture) stored(t *testing.T, owner domain.Owner) *domain.Cart {
	t.Helper()
	c, err := f.repo.GetCart(context.Background(), owner)
	if err != nil {
		t.Fatalf("stored cart for %s: %v", owner, err)
	}
	return c
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
