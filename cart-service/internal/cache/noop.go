package cache

import (
	"context"

	"github.com/fjod/go_cart/cart-service/internal/domain"
)

// Noop is used when Redis is unreachable at startup. Every read misses.
type Noop struct{}

func (Noop) Get(context.Context, domain.Owner) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, *domain.Cart) error                  { return nil }
func (Noop) Delete(context.Context, domain.Owner) error               { return nil }
