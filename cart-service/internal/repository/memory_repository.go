package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
)

// SweepInterval is how often the memory repository drops expired guest carts.
const SweepInterval = 30 * time.Second

// MemoryRepository keeps carts in process memory. It backs local development
// (no MONGO_URI) and the service tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart // owner topic -> cart
	now   func() time.Time

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{
		carts:     make(map[string]*domain.Cart),
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.sweepLoop()

	return r
}

func (r *MemoryRepository) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.SweepExpired()
		case <-r.stopSweep:
			return
		}
	}
}

// SweepExpired removes guest carts whose TTL has elapsed and reports how
// many were dropped.
func (r *MemoryRepository) SweepExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for key, cart := range r.carts {
		if expired(cart, now) {
			delete(r.carts, key)
			n++
		}
	}
	return n
}

func expired(c *domain.Cart, now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

func (r *MemoryRepository) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !owner.Valid() {
		return nil, domain.ErrInvalidOwner
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[owner.Topic()]
	if !ok || expired(cart, r.now()) {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *MemoryRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owner := cart.Owner()
	if !owner.Valid() {
		return domain.ErrInvalidOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := owner.Topic()
	stored, exists := r.carts[key]
	if exists && expired(stored, now) {
		delete(r.carts, key)
		exists = false
	}

	switch {
	case cart.IsNew() && exists:
		return domain.ErrConflict
	case !cart.IsNew() && (!exists || stored.ID != cart.ID || stored.Version != cart.Version):
		return domain.ErrConflict
	}

	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	cart.Version++
	r.carts[key] = cart.Clone()
	return nil
}

func (r *MemoryRepository) DeleteCart(ctx context.Context, owner domain.Owner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !owner.Valid() {
		return domain.ErrInvalidOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[owner.Topic()]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, owner.Topic())
	return nil
}

// Close stops the sweeper and waits for it to finish.
func (r *MemoryRepository) Close() error {
	close(r.stopSweep)
	r.wg.Wait()
	return nil
}
