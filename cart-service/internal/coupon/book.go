package coupon

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Book is a static set of coupons keyed by upper-cased code.
type Book struct {
	coupons map[string]domain.Coupon
}

func NewBook(coupons ...domain.Coupon) *Book {
	b := &Book{coupons: make(map[string]domain.Coupon, len(coupons))}
	for _, c := range coupons {
		c.Code = strings.ToUpper(c.Code)
		b.coupons[c.Code] = c
	}
	return b
}

// Parse builds a Book from "CODE:type:value" entries separated by commas,
// e.g. "SAVE10:percentage:10,FIVEOFF:fixed:5".
func Parse(s string) (*Book, error) {
	var coupons []domain.Coupon
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("coupon %q: want CODE:type:value", entry)
		}
		code := strings.TrimSpace(parts[0])
		if code == "" {
			return nil, fmt.Errorf("coupon %q: empty code", entry)
		}
		kind := domain.DiscountType(strings.ToLower(strings.TrimSpace(parts[1])))
		if kind != domain.DiscountPercentage && kind != domain.DiscountFixed {
			return nil, fmt.Errorf("coupon %q: unknown discount type %q", entry, parts[1])
		}
		value, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("coupon %q: %w", entry, err)
		}
		if !value.IsPositive() {
			return nil, fmt.Errorf("coupon %q: value must be positive", entry)
		}
		if kind == domain.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("coupon %q: percentage above 100", entry)
		}
		coupons = append(coupons, domain.Coupon{Code: code, DiscountType: kind, DiscountValue: value})
	}
	return NewBook(coupons...), nil
}

func (b *Book) Lookup(_ context.Context, code string) (*domain.Coupon, error) {
	c, ok := b.coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCoupon, code)
	}
	return &c, nil
}

func (b *Book) Len() int {
	return len(b.coupons)
}
