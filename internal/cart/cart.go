// Package cart keeps the shopper's (product, quantity) lines.
package cart

import (
	"encoding/json"

	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/shopspring/decimal"
)

type Line struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is not safe for concurrent use; it belongs to one session.
type Cart struct {
	lines []Line
}

func New() *Cart { return &Cart{} }

func (c *Cart) index(productID int64) int {
	for i, l := range c.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

// Add puts one more of p in the cart. Inactive products are ignored and Add
// reports false.
func (c *Cart) Add(p catalog.Product) bool {
	if !p.Active {
		return false
	}
	if i := c.index(p.ID); i >= 0 {
		c.lines[i].Quantity++
		return true
	}
	c.lines = append(c.lines, Line{Product: p, Quantity: 1})
	return true
}

func (c *Cart) Remove(productID int64) {
	if i := c.index(productID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

// SetQuantity clamps n to at least 1. It reports false when the product is not in the cart.
func (c *Cart) SetQuantity(productID int64, n int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.lines[i].Quantity = max(n, 1)
	return true
}

// Quantity returns 0 for products not in the cart.
func (c *Cart) Quantity(productID int64) int {
	if i := c.index(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

func (c *Cart) Lines() []Line { return append([]Line(nil), c.lines...) }

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) Empty() bool { return len(c.lines) == 0 }

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Total is recomputed from the lines on every call.
func (c *Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

func (c *Cart) Clear() { c.lines = nil }

type wireCart struct {
	Lines []Line          `json:"lines"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	lines := c.lines
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(wireCart{Lines: lines, Count: c.Count(), Total: c.Total()})
}

// UnmarshalJSON restores lines, merging duplicates and clamping quantities.
func (c *Cart) UnmarshalJSON(b []byte) error {
	var w wireCart
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	c.lines = nil
	for _, l := range w.Lines {
		q := max(l.Quantity, 1)
		if i := c.index(l.Product.ID); i >= 0 {
			c.lines[i].Quantity += q
			continue
		}
		c.lines = append(c.lines, Line{Product: l.Product, Quantity: q})
	}
	return nil
}
