package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/cache"
	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/fjod/go_cart/cart-service/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultGuestTTL    = 7 * 24 * time.Hour
	DefaultMaxAttempts = 3
	invalidateTimeout  = time.Second
)

type CatalogLookup interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type CouponBook interface {
	Lookup(ctx context.Context, code string) (*domain.Coupon, error)
}

// Publisher delivers events after a mutation has been committed. It must not
// block and has no way to fail the caller.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event)
}

type MergePolicy string

const (
	MergeSum MergePolicy = "sum"
	MergeMax MergePolicy = "max"
)

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch p := MergePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", MergeSum:
		return MergeSum, nil
	case MergeMax:
		return MergeMax, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}

type Options struct {
	GuestTTL    time.Duration
	MergePolicy MergePolicy
	MaxAttempts int
	Now         func() time.Time
}

type CartService struct {
	repo      repository.CartRepository
	cache     cache.CartCache
	catalog   CatalogLookup
	coupons   CouponBook
	publisher Publisher
	log       *slog.Logger

	guestTTL    time.Duration
	policy      MergePolicy
	maxAttempts int
	now         func() time.Time

	sfg singleflight.Group // Prevents cache stampede
}

func NewCartService(
	repo repository.CartRepository,
	cache cache.CartCache,
	catalog CatalogLookup,
	coupons CouponBook,
	publisher Publisher,
	log *slog.Logger,
	opts Options,
) *CartService {
	s := &CartService{
		repo:        repo,
		cache:       cache,
		catalog:     catalog,
		coupons:     coupons,
		publisher:   publisher,
		log:         log,
		guestTTL:    opts.GuestTTL,
		policy:      opts.MergePolicy,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
	if s.guestTTL <= 0 {
		s.guestTTL = DefaultGuestTTL
	}
	if s.policy == "" {
		s.policy = MergeSum
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// change is applied to a freshly loaded cart. It returns the events to emit
// and whether the cart must be saved. It may run more than once when a
// concurrent write wins the race.
type change func(ctx context.Context, cart *domain.Cart) (events []domain.Event, save bool, err error)

// mutate runs one read-modify-write against owner's cart. On failure it
// returns the cart as it was before the change.
func (s *CartService) mutate(ctx context.Context, op string, owner domain.Owner, fn change) (*domain.Cart, []domain.Event, error) {
	if !owner.Valid() {
		return nil, nil, domain.ErrNoIdentity
	}

	for attempt := 1; ; attempt++ {
		cart, err := s.load(ctx, owner)
		if err != nil {
			metrics.Mutations.WithLabelValues(op, "error").Inc()
			return nil, nil, err
		}
		current := cart.Clone()

		events, save, err := fn(ctx, cart)
		if err != nil {
			metrics.Mutations.WithLabelValues(op, "rejected").Inc()
			return current, nil, err
		}
		if !save {
			metrics.Mutations.WithLabelValues(op, "ok").Inc()
			return cart, events, nil
		}

		s.touch(cart)
		cart.Recalculate()
		err = s.repo.SaveCart(ctx, cart)
		if errors.Is(err, domain.ErrConflict) && attempt < s.maxAttempts {
			metrics.ConflictRetries.Inc()
			s.log.DebugContext(ctx, "cart save conflict, retrying",
				slog.String("op", op),
				slog.String("owner", owner.String()),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			metrics.Mutations.WithLabelValues(op, "error").Inc()
			s.log.ErrorContext(ctx, "failed to save cart",
				slog.String("op", op),
				slog.String("owner", owner.String()),
				slog.Any("error", err),
			)
			return current, nil, err
		}

		s.writeThrough(cart)
		metrics.Mutations.WithLabelValues(op, "ok").Inc()
		return cart, events, nil
	}
}

// load returns the stored cart, or a new unsaved one for owner.
func (s *CartService) load(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(owner, s.now())
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) touch(cart *domain.Cart) {
	now := s.now()
	cart.UpdatedAt = now
	if cart.Owner().IsGuest() {
		exp := now.Add(s.guestTTL)
		cart.ExpiresAt = &exp
	} else {
		cart.ExpiresAt = nil
	}
}

func (s *CartService) dispatch(ctx context.Context, events []domain.Event) {
	if len(events) == 0 || s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events...)
}

// writeThrough replaces the cached cart with the version just saved. The
// cache refuses older versions, so a slower refill from a concurrent read
// can't bring back the pre-write cart.
func (s *CartService) writeThrough(cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cart); err != nil {
		s.log.Warn("cache write error", slog.String("owner", cart.Owner().String()), slog.Any("error", err))
		s.invalidate(cart.Owner())
	}
}

func (s *CartService) invalidate(owner domain.Owner) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.log.Warn("cache invalidate error", slog.String("owner", owner.String()), slog.Any("error", err))
	}
}

func updated(cart *domain.Cart, message string) domain.Event {
	return domain.Event{
		Name:    domain.EventCartUpdated,
		Topics:  cart.Topics(),
		Payload: domain.CartUpdatedPayload{Cart: cart, Message: message},
	}
}
