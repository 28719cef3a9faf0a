package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/cart-service/internal/cache"
	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/repository"
	"github.com/google/uuid"
)

// GetCart returns owner's cart hydrated with catalog display fields. An owner
// without a cart, or a request without an owner, gets an empty cart that is
// not persisted.
func (s *CartService) GetCart(ctx context.Context, owner domain.Owner) (*CartView, error) {
	if !owner.Valid() {
		return s.hydrate(ctx, &domain.Cart{Items: []domain.CartLine{}}), nil
	}

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(owner.Topic(), func() (any, error) {
		cart, err := s.cache.Get(ctx, owner)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get error", slog.String("owner", owner.String()), slog.Any("error", err))
		}

		cart, err = s.repo.GetCart(ctx, owner)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewCart(owner, s.now())
		}
		if err != nil {
			return nil, err
		}

		go func(cart *domain.Cart) {
			if err := s.cache.Set(context.Background(), cart); err != nil {
				s.log.Warn("cache set error", slog.String("owner", owner.String()), slog.Any("error", err))
			}
		}(cart.Clone())

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight shares the value between callers; each gets its own copy
	return s.hydrate(ctx, v.(*domain.Cart).Clone()), nil
}

func (s *CartService) AddItem(ctx context.Context, owner domain.Owner, productID string, quantity int, variant domain.Variant) (*domain.Cart, error) {
	var product *domain.Product
	cart, events, err := s.mutate(ctx, "add_item", owner, func(ctx context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		if quantity < 1 {
			return nil, false, fmt.Errorf("%w: quantity must be at least 1", domain.ErrQuantityLimit)
		}
		if product == nil {
			p, err := s.catalog.GetProduct(ctx, productID)
			if err != nil {
				return nil, false, err
			}
			product = p
		}

		total := cart.QuantityOf(productID, variant) + quantity
		if total > domain.MaxLineQuantity {
			return nil, false, domain.ErrQuantityLimit
		}
		if product.AvailableStock < total {
			return nil, false, &domain.StockError{ProductID: productID, Available: product.AvailableStock, Requested: total}
		}

		if i := cart.FindExact(productID, variant); i >= 0 {
			cart.Items[i].Quantity = total
			cart.Items[i].Price = product.Price
		} else {
			cart.Items = append(cart.Items, domain.CartLine{
				ID:        uuid.NewString(),
				ProductID: productID,
				Quantity:  quantity,
				Price:     product.Price,
				Variant:   variant.Clone(),
				AddedAt:   s.now(),
			})
		}
		return []domain.Event{updated(cart, "Item added to cart")}, true, nil
	})
	if err != nil {
		return cart, err
	}
	s.dispatch(ctx, events)
	return cart, nil
}

// UpdateItem sets the quantity of the referenced line. A quantity of zero or
// less removes the line.
func (s *CartService) UpdateItem(ctx context.Context, owner domain.Owner, ref domain.LineRef, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, owner, ref)
	}
	var product *domain.Product
	cart, events, err := s.mutate(ctx, "update_item", owner, func(ctx context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		if quantity > domain.MaxLineQuantity {
			return nil, false, domain.ErrQuantityLimit
		}
		i := cart.Find(ref)
		if i < 0 {
			return nil, false, domain.ErrItemNotFound
		}
		if product == nil {
			p, err := s.catalog.GetProduct(ctx, ref.ProductID)
			if err != nil {
				return nil, false, err
			}
			product = p
		}
		if product.AvailableStock < quantity {
			return nil, false, &domain.StockError{ProductID: ref.ProductID, Available: product.AvailableStock, Requested: quantity}
		}

		cart.Items[i].Quantity = quantity
		cart.Items[i].Price = product.Price
		return []domain.Event{updated(cart, "Cart updated")}, true, nil
	})
	if err != nil {
		return cart, err
	}
	s.dispatch(ctx, events)
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, owner domain.Owner, ref domain.LineRef) (*domain.Cart, error) {
	cart, events, err := s.mutate(ctx, "remove_item", owner, func(_ context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		i := cart.Find(ref)
		if i < 0 {
			return nil, false, domain.ErrItemNotFound
		}
		line := cart.RemoveAt(i)
		return []domain.Event{
			{
				Name:    domain.EventItemRemoved,
				Topics:  cart.Topics(),
				Payload: domain.ItemRemovedPayload{ItemID: line.ID},
			},
			updated(cart, "Item removed from cart"),
		}, true, nil
	})
	if err != nil {
		return cart, err
	}
	s.dispatch(ctx, events)
	return cart, nil
}

// Clear empties the cart and drops its coupon. Clearing an empty cart is not
// an error.
func (s *CartService) Clear(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	cart, events, err := s.mutate(ctx, "clear", owner, func(_ context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		cart.Clear()
		ev := domain.Event{Name: domain.EventCartCleared, Topics: cart.Topics()}
		return []domain.Event{ev}, !cart.IsNew(), nil
	})
	if err != nil {
		return cart, err
	}
	s.dispatch(ctx, events)
	return cart, nil
}

func (s *CartService) ApplyCoupon(ctx context.Context, owner domain.Owner, code string) (*domain.Cart, error) {
	cart, events, err := s.mutate(ctx, "apply_coupon", owner, func(ctx context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		c, err := s.coupons.Lookup(ctx, code)
		if err != nil {
			return nil, false, err
		}
		cart.Coupon = c
		cart.Recalculate()
		return []domain.Event{updated(cart, fmt.Sprintf("Coupon %s applied", c.Code))}, true, nil
	})
	if err != nil {
		return cart, err
	}
	s.dispatch(ctx, events)
	return cart, nil
}

func (s *CartService) RemoveCoupon(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	cart, events, err := s.mutate(ctx, "remove_coupon", owner, func(_ context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		if cart.Coupon == nil {
			return nil, false, nil
		}
		cart.Coupon = nil
		return []domain.Event{updated(cart, "Coupon removed")}, true, nil
	})
	if err != nil {
		return cart, err
	}
	s.dispatch(ctx, events)
	return cart, nil
}

// ClearForUser empties a user's cart once their order has been placed.
func (s *CartService) ClearForUser(ctx context.Context, userID string) error {
	_, err := s.Clear(ctx, domain.UserOwner(userID))
	return err
}

// CartID returns the id of owner's stored cart, or "" when there is none.
func (s *CartService) CartID(ctx context.Context, owner domain.Owner) (string, error) {
	cart, err := s.repo.GetCart(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cart.ID, nil
}
