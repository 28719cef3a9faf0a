package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	IssueProductNotFound   = "product_not_found"
	IssueOutOfStock        = "out_of_stock"
	IssueInsufficientStock = "insufficient_stock"
)

type ValidationIssue struct {
	ProductID string `json:"product_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Available int    `json:"available,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Shortfall int    `json:"shortfall,omitempty"`
}

type PriceUpdate struct {
	ProductID string          `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
}

type ValidationResult struct {
	IsValid      bool              `json:"is_valid"`
	Errors       []ValidationIssue `json:"errors"`
	PriceUpdates []PriceUpdate     `json:"price_updates"`
	Cart         *domain.Cart      `json:"cart"`
}

// Validate checks every line against the catalog. Stale prices are corrected
// in place and saved whether or not the cart is otherwise valid; stock and
// availability problems are only reported. A catalog outage aborts the whole
// run without saving.
func (s *CartService) Validate(ctx context.Context, owner domain.Owner) (*ValidationResult, error) {
	var res *ValidationResult

	cart, events, err := s.mutate(ctx, "validate", owner, func(ctx context.Context, cart *domain.Cart) ([]domain.Event, bool, error) {
		res = &ValidationResult{Errors: []ValidationIssue{}, PriceUpdates: []PriceUpdate{}}
		var events []domain.Event

		for i := range cart.Items {
			line := &cart.Items[i]
			p, err := s.catalog.GetProduct(ctx, line.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) {
				res.Errors = append(res.Errors, ValidationIssue{
					ProductID: line.ProductID,
					Code:      IssueProductNotFound,
					Message:   "product is no longer available",
				})
				continue
			}
			if err != nil {
				return nil, false, err
			}

			switch {
			case p.AvailableStock <= 0:
				res.Errors = append(res.Errors, ValidationIssue{
					ProductID: line.ProductID,
					Code:      IssueOutOfStock,
					Message:   "product is out of stock",
					Requested: line.Quantity,
					Shortfall: line.Quantity,
				})
				events = append(events, stockWarning(cart, line.ProductID, 0, line.Quantity))
			case p.AvailableStock < line.Quantity:
				res.Errors = append(res.Errors, ValidationIssue{
					ProductID: line.ProductID,
					Code:      IssueInsufficientStock,
					Message:   fmt.Sprintf("only %d available", p.AvailableStock),
					Available: p.AvailableStock,
					Requested: line.Quantity,
					Shortfall: line.Quantity - p.AvailableStock,
				})
				events = append(events, stockWarning(cart, line.ProductID, p.AvailableStock, line.Quantity))
			}

			if !p.Price.Equal(line.Price) {
				res.PriceUpdates = append(res.PriceUpdates, PriceUpdate{
					ProductID: line.ProductID,
					OldPrice:  line.Price,
					NewPrice:  p.Price,
				})
				events = append(events, domain.Event{
					Name:   domain.EventPriceChanged,
					Topics: cart.Topics(),
					Payload: domain.PriceChangedPayload{
						ProductID: line.ProductID,
						OldPrice:  line.Price,
						NewPrice:  p.Price,
						Cart:      cart,
					},
				})
				line.Price = p.Price
			}
		}

		res.IsValid = len(res.Errors) == 0
		save := len(res.PriceUpdates) > 0 && !cart.IsNew()
		return events, save, nil
	})
	if err != nil {
		return nil, err
	}

	res.Cart = cart
	s.dispatch(ctx, events)
	return res, nil
}

func stockWarning(cart *domain.Cart, productID string, available, requested int) domain.Event {
	return domain.Event{
		Name:   domain.EventStockWarning,
		Topics: cart.Topics(),
		Payload: domain.StockWarningPayload{
			ProductID: productID,
			Available: available,
			Requested: requested,
		},
	}
}
