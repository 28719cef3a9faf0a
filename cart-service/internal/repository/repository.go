package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-service/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository persists whole carts keyed by owner.
// SaveCart is a compare-and-swap on Cart.Version: a cart read at version N is
// only written if the stored copy is still at N, and the saved cart comes back
// at N+1. A version mismatch or a duplicate owner is reported as
// domain.ErrConflict.
type CartRepository interface {
	GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, owner domain.Owner) error
}
