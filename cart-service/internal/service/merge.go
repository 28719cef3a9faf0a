package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/repository"
)

// Merge folds the guest cart of guestSessionID into user's cart and deletes
// the guest cart. Matching lines are combined by the configured policy and
// capped at MaxLineQuantity; line prices keep their snapshots. A guest cart
// that does not exist (or was already merged) leaves the user cart as is.
func (s *CartService) Merge(ctx context.Context, user domain.Owner, guestSessionID string) (*domain.Cart, error) {
	if !user.Valid() || user.IsGuest() {
		return nil, fmt.Errorf("%w: merge requires a signed-in user", domain.ErrNoIdentity)
	}
	if guestSessionID == "" {
		return nil, fmt.Errorf("%w: missing guest session", domain.ErrNoIdentity)
	}
	guestOwner := domain.SessionOwner(guestSessionID)

	guest, err := s.repo.GetCart(ctx, guestOwner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return s.load(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("load guest cart: %w", err)
	}

	cart, events, err := s.mutate(ctx, "merge", user, func(_ context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		s.mergeLines(cart, guest)
		if cart.Coupon == nil && guest.Coupon != nil {
			c := *guest.Coupon
			cart.Coupon = &c
		}
		return []domain.Event{updated(cart, "Guest cart merged")}, true, nil
	})
	if err != nil {
		return cart, err
	}

	if err := s.repo.DeleteCart(ctx, guestOwner); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		// the user cart is already committed; the guest cart will expire on its own
		s.log.ErrorContext(ctx, "failed to delete merged guest cart",
			slog.String("session_id", guestSessionID),
			slog.Any("error", err),
		)
	}
	s.invalidate(guestOwner)

	events = append(events, domain.Event{
		Name:   domain.EventCartCleared,
		Topics: guest.Topics(),
	})
	s.dispatch(ctx, events)
	return cart, nil
}

func (s *CartService) mergeLines(dst, guest *domain.Cart) {
	for _, gl := range guest.Items {
		i := dst.FindExact(gl.ProductID, gl.Variant)
		if i < 0 {
			gl.Variant = gl.Variant.Clone()
			dst.Items = append(dst.Items, gl)
			continue
		}

		q := dst.Items[i].Quantity
		switch s.policy {
		case MergeMax:
			q = max(q, gl.Quantity)
		default:
			q += gl.Quantity
		}
		dst.Items[i].Quantity = min(q, domain.MaxLineQuantity)
	}
}
