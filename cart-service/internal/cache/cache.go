package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-service/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, owner domain.Owner) error
}

var ErrCacheMiss = errors.New("cache miss")
