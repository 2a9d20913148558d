package checkout

import (
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

type SnapshotItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Snapshot is the cart state handed to the checkout flow. Prices come from the
// snapshots captured when each product was added.
type Snapshot struct {
	Items       []SnapshotItem  `json:"items"`
	TotalItems  int             `json:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CapturedAt  time.Time       `json:"captured_at"`
}

// NewSnapshot copies the lines and totals of c. A line whose price cannot be
// parsed is listed with a zero unit price, matching its contribution to the
// cart total.
func NewSnapshot(c cart.Cart, currency string, now time.Time) Snapshot {
	if currency == "" {
		currency = DefaultCurrency
	}
	snapshot := Snapshot{
		Items:       make([]SnapshotItem, 0, len(c.Lines)),
		TotalItems:  c.TotalItems,
		TotalAmount: c.TotalPrice,
		Currency:    currency,
		CapturedAt:  now,
	}

	for _, line := range c.Lines {
		unit, _ := line.Product.UnitPrice()
		snapshot.Items = append(snapshot.Items, SnapshotItem{
			ProductID:   line.ProductID,
			ProductName: line.Product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unit,
			Subtotal:    unit.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	return snapshot
}
