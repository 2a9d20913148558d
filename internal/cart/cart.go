package cart

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultQuantity is used by AddItem when the caller does not ask for a specific amount.
const DefaultQuantity = 1

// Product is the catalog snapshot captured when a product is first added.
// It is never refreshed afterwards.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Qty      int    `json:"qty"`
	Image    string `json:"image"`
}

// UnitPrice parses the snapshot price. ok is false for a missing or non-numeric price.
func (p Product) UnitPrice() (price decimal.Decimal, ok bool) {
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

type Line struct {
	ProductID string    `json:"productId"`
	Product   Product   `json:"product"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

// Cart is an immutable value: every transition returns a new Cart and leaves the
// receiver untouched. TotalItems, TotalPrice and InvalidPrices are derived from
// Lines and recomputed by every constructor and transition.
type Cart struct {
	Lines         []Line
	TotalItems    int
	TotalPrice    decimal.Decimal
	InvalidPrices []string
}

// Empty returns a cart with no lines and zero totals.
func Empty() Cart {
	return Cart{Lines: []Line{}, TotalPrice: decimal.Zero}
}

// New builds a cart from previously stored lines, recomputing the aggregates.
// Lines with an empty product id or a non-positive quantity are dropped, and
// repeated product ids are merged into the first occurrence.
func New(lines []Line) Cart {
	c := Empty()
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 {
			continue
		}
		if i := c.indexOf(l.ProductID); i >= 0 {
			c.Lines[i].Quantity += l.Quantity
			continue
		}
		c.Lines = append(c.Lines, l)
	}
	return c.recompute()
}

// AddItem inserts product or increases the quantity of its existing line.
// A quantity below 1 means the default of one unit. The snapshot and the
// timestamp of an existing line are kept.
func (c Cart) AddItem(product Product, quantity int, now time.Time) Cart {
	if quantity < 1 {
		quantity = DefaultQuantity
	}
	next := c.clone()
	if i := next.indexOf(product.ID); i >= 0 {
		next.Lines[i].Quantity += quantity
		return next.recompute()
	}
	next.Lines = append(next.Lines, Line{
		ProductID: product.ID,
		Product:   product,
		Quantity:  quantity,
		AddedAt:   now,
	})
	return next.recompute()
}

// RemoveItem deletes the line for productID. Removing an absent product is a no-op.
func (c Cart) RemoveItem(productID string) Cart {
	next := c.clone()
	next.Lines = slices.DeleteFunc(next.Lines, func(l Line) bool {
		return l.ProductID == productID
	})
	return next.recompute()
}

// UpdateQuantity sets the quantity of the line for productID. A quantity of zero
// or less removes the line. found reports whether a line matched; an unknown
// product leaves the cart unchanged and is not an error.
func (c Cart) UpdateQuantity(productID string, quantity int) (next Cart, found bool) {
	i := c.indexOf(productID)
	if i < 0 {
		return c.clone().recompute(), false
	}
	if quantity <= 0 {
		return c.RemoveItem(productID), true
	}
	next = c.clone()
	next.Lines[i].Quantity = quantity
	return next.recompute(), true
}

// Clear returns an empty cart.
func (c Cart) Clear() Cart {
	return Empty()
}

// Quantity returns the quantity of productID, or 0 when it is not in the cart.
func (c Cart) Quantity(productID string) int {
	if i := c.indexOf(productID); i >= 0 {
		return c.Lines[i].Quantity
	}
	return 0
}

// Contains reports whether productID has a line in the cart.
func (c Cart) Contains(productID string) bool {
	return c.indexOf(productID) >= 0
}

// Line returns the line for productID.
func (c Cart) Line(productID string) (Line, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c Cart) indexOf(productID string) int {
	return slices.IndexFunc(c.Lines, func(l Line) bool {
		return l.ProductID == productID
	})
}

func (c Cart) clone() Cart {
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}

func (c Cart) recompute() Cart {
	c.TotalItems, c.TotalPrice, c.InvalidPrices = Totals(c.Lines)
	return c
}

// Totals computes the aggregates for lines. Products whose price cannot be
// parsed contribute nothing to the price and are listed in invalid.
func Totals(lines []Line) (items int, price decimal.Decimal, invalid []string) {
	price = decimal.Zero
	for _, l := range lines {
		items += l.Quantity
		unit, ok := l.Product.UnitPrice()
		if !ok {
			invalid = append(invalid, l.ProductID)
			continue
		}
		price = price.Add(unit.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return items, price, invalid
}
