package domain

import "github.com/shopspring/decimal"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

var hundred = decimal.NewFromInt(100)

// DiscountFor computes the discount against subtotal. Percentages are taken
// from the live subtotal; the result never exceeds the subtotal.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	if c == nil || !c.DiscountValue.IsPositive() || !subtotal.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		d = Round2(subtotal.Mul(c.DiscountValue).Div(hundred))
	case DiscountFixed:
		d = Round2(c.DiscountValue)
	default:
		return decimal.Zero
	}

	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}
