package domain

import "github.com/shopspring/decimal"

const (
	EventCartUpdated  = "cart:updated"
	EventItemRemoved  = "cart:item_removed"
	EventCartCleared  = "cart:cleared"
	EventPriceChanged = "cart:price-changed"
	EventStockWarning = "cart:stock-warning"
)

// Event is a change notification produced by a cart operation. Operations
// collect events while mutating and hand them to the dispatcher afterwards.
type Event struct {
	Name    string
	Topics  []string
	Payload any
}

type CartUpdatedPayload struct {
	Cart    *Cart  `json:"cart"`
	Message string `json:"message"`
}

type ItemRemovedPayload struct {
	ItemID string `json:"item_id"`
}

type PriceChangedPayload struct {
	ProductID string          `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	Cart      *Cart           `json:"cart"`
}

type StockWarningPayload struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// Topics returns the topics a change to c is published on.
func (c *Cart) Topics() []string {
	return []string{c.Owner().Topic(), CartTopic(c.ID)}
}
