// Package cart holds the per-session selection of catalog items.
package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/grocery-fulfillment/internal/catalog"
	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

// MaxQuantity caps the units of a single line. It keeps quantities inside
// the order_items INTEGER column and subtotals far from overflow.
const MaxQuantity = 999

// Line is one selected item. UnitPrice is the catalog price at the time the
// item was first added.
type Line struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Notes     string          `json:"notes,omitempty"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

// Cart is not safe for concurrent use; it belongs to a single session.
//
// Invariants: item ids are unique across lines and every quantity is in
// [1, MaxQuantity].
type Cart struct {
	catalog catalog.Store
	lines   []Line
}

func New(store catalog.Store) *Cart {
	return &Cart{catalog: store}
}

// Add puts quantity units of itemID in the cart and returns the new total.
// An existing line has its quantity increased; its notes are replaced only
// when notes is non-empty. A merge that would exceed MaxQuantity leaves the
// line untouched.
func (c *Cart) Add(ctx context.Context, itemID string, quantity int, notes string) (decimal.Decimal, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return c.Total(), domain.ErrInvalidQuantity
	}

	item, err := c.catalog.Lookup(ctx, itemID)
	if err != nil {
		return c.Total(), fmt.Errorf("%w: lookup %s: %w", domain.ErrPersistence, itemID, err)
	}
	if item == nil {
		return c.Total(), fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}

	if i := c.index(item.ID); i >= 0 {
		if c.lines[i].Quantity > MaxQuantity-quantity {
			return c.Total(), fmt.Errorf("%w: %s would exceed %d", domain.ErrInvalidQuantity, item.ID, MaxQuantity)
		}
		c.lines[i].Quantity += quantity
		if notes != "" {
			c.lines[i].Notes = notes
		}
		return c.Total(), nil
	}

	c.lines = append(c.lines, Line{
		ItemID:    item.ID,
		Name:      item.Name,
		UnitPrice: item.Price,
		Quantity:  quantity,
		Notes:     notes,
	})
	return c.Total(), nil
}

// Remove deletes the line for itemID. ErrLineNotFound signals that the cart
// did not change.
func (c *Cart) Remove(itemID string) (decimal.Decimal, error) {
	i := c.index(itemID)
	if i < 0 {
		return c.Total(), fmt.Errorf("%w: %s", domain.ErrLineNotFound, itemID)
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return c.Total(), nil
}

// SetQuantity overwrites the quantity of an existing line. Quantities below
// one remove the line.
func (c *Cart) SetQuantity(itemID string, quantity int) (decimal.Decimal, error) {
	if quantity < 1 {
		return c.Remove(itemID)
	}
	if quantity > MaxQuantity {
		return c.Total(), domain.ErrInvalidQuantity
	}
	i := c.index(itemID)
	if i < 0 {
		return c.Total(), fmt.Errorf("%w: %s", domain.ErrLineNotFound, itemID)
	}
	c.lines[i].Quantity = quantity
	return c.Total(), nil
}

// Total is recomputed from the lines on every call and rounded to cents.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.Round(2)
}

// Lines returns a copy of the cart contents in insertion order.
func (c *Cart) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

// OrderLines freezes the current lines for order placement.
func (c *Cart) OrderLines() []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, domain.OrderLine{
			ItemID:    l.ItemID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Notes:     l.Notes,
		})
	}
	return out
}

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) Empty() bool { return len(c.lines) == 0 }

func (c *Cart) Clear() { c.lines = nil }

func (c *Cart) index(itemID string) int {
	itemID = strings.TrimSpace(itemID)
	for i, l := range c.lines {
		if strings.EqualFold(l.ItemID, itemID) {
			return i
		}
	}
	return -1
}
