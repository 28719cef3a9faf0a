package service

import (
	"context"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

const hydrateConcurrency = 8

type LineView struct {
	domain.CartLine
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// CartView is a cart with display fields joined from the catalog. It is
// only ever rendered, never stored.
type CartView struct {
	*domain.Cart
	Items []LineView `json:"items"`
}

// hydrate looks up every line's product. A failed lookup leaves that line's
// display fields empty; the cart itself is still served.
func (s *CartService) hydrate(ctx context.Context, cart *domain.Cart) *CartView {
	view := &CartView{Cart: cart, Items: make([]LineView, len(cart.Items))}
	for i, l := range cart.Items {
		view.Items[i] = LineView{CartLine: l}
	}
	if len(cart.Items) == 0 || s.catalog == nil {
		return view
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i := range view.Items {
		i := i
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, view.Items[i].ProductID)
			if err != nil {
				s.log.DebugContext(ctx, "hydrate line failed",
					"product_id", view.Items[i].ProductID,
					"error", err,
				)
				return nil
			}
			view.Items[i].Name = p.Name
			view.Items[i].Image = p.Image()
			return nil
		})
	}
	_ = g.Wait()
	return view
}
