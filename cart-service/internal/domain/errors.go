package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoIdentity         = errors.New("session required")
	ErrInvalidToken       = errors.New("invalid bearer token")
	ErrInvalidOwner       = errors.New("cart owner must be exactly one of user or session")
	ErrProductNotFound    = errors.New("product not found")
	ErrOutOfStock         = errors.New("out of stock")
	ErrItemNotFound       = errors.New("item not found in cart")
	ErrServiceUnavailable = errors.New("catalog service unavailable")
	ErrConflict           = errors.New("cart was modified concurrently")
	ErrInvalidCoupon      = errors.New("invalid coupon code")
	ErrQuantityLimit      = fmt.Errorf("quantity must not exceed %d per item", MaxLineQuantity)
)

// StockError carries the numbers behind an ErrOutOfStock.
type StockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("out of stock: product %s has %d available, %d requested", e.ProductID, e.Available, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == ErrOutOfStock
}
