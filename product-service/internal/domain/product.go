package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Stock       int32
	CreatedAt   time.Time
}
