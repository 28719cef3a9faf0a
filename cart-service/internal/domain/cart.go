package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 100

type Cart struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Items     []CartLine      `json:"items"`
	Coupon    *Coupon         `json:"coupon,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Version   int64           `json:"version"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CartLine struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Variant   Variant         `json:"variant,omitempty"`
	AddedAt   time.Time       `json:"added_at"`
}

// LineRef points at a cart line. A nil Variant matches the first line of the
// product; a non-nil Variant must match exactly.
type LineRef struct {
	ProductID string
	Variant   Variant
}

// NewCart returns an empty, unsaved cart for owner.
func NewCart(owner Owner, now time.Time) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	c := &Cart{
		ID:        uuid.NewString(),
		UserID:    owner.UserID,
		SessionID: owner.SessionID,
		Items:     []CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Recalculate()
	return c, nil
}

func (c *Cart) Owner() Owner {
	return Owner{UserID: c.UserID, SessionID: c.SessionID}
}

// IsNew reports whether the cart has never been persisted.
func (c *Cart) IsNew() bool {
	return c.Version == 0
}

func (l CartLine) Key() string {
	return lineKey(l.ProductID, l.Variant)
}

func lineKey(productID string, v Variant) string {
	return productID + "|" + v.Key()
}

// FindExact returns the index of the line for (productID, variant) or -1.
func (c *Cart) FindExact(productID string, v Variant) int {
	key := lineKey(productID, v)
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return i
		}
	}
	return -1
}

func (c *Cart) Find(ref LineRef) int {
	if ref.Variant != nil {
		return c.FindExact(ref.ProductID, ref.Variant)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == ref.ProductID {
			return i
		}
	}
	return -1
}

// QuantityOf returns the quantity already held for (productID, variant).
func (c *Cart) QuantityOf(productID string, v Variant) int {
	if i := c.FindExact(productID, v); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

func (c *Cart) RemoveAt(i int) CartLine {
	line := c.Items[i]
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return line
}

func (c *Cart) Clear() {
	c.Items = []CartLine{}
	c.Coupon = nil
}

// Recalculate refreshes the derived totals from the current lines and coupon.
// The subtotal is rounded once, on the aggregate.
func (c *Cart) Recalculate() {
	count := 0
	sum := decimal.Zero
	for _, l := range c.Items {
		count += l.Quantity
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	c.ItemCount = count
	c.Subtotal = Round2(sum)
	c.Discount = c.Coupon.DiscountFor(c.Subtotal)
	c.Total = c.Subtotal.Sub(c.Discount)
	if c.Total.IsNegative() {
		c.Total = decimal.Zero
	}
}

// Round2 rounds half away from zero to two places, which is half-up for the
// non-negative amounts a cart deals in.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Clone returns a deep copy, so a snapshot handed to a broadcaster or cache
// can't be mutated by a later write.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]CartLine, len(c.Items))
	for i, l := range c.Items {
		l.Variant = l.Variant.Clone()
		out.Items[i] = l
	}
	if c.Coupon != nil {
		cp := *c.Coupon
		out.Coupon = &cp
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
