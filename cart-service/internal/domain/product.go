package domain

import "github.com/shopspring/decimal"

// Product is the catalog's current view of a product. The cart never stores
// it, only a price snapshot on each line.
type Product struct {
	ID             string
	Name           string
	Price          decimal.Decimal
	AvailableStock int
	Images         []string
}

func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
