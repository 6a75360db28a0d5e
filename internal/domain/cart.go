package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Mode says where the authoritative copy of a cart lives.
type Mode string

const (
	// ModeLocal is an anonymous cart persisted only in the session store.
	ModeLocal Mode = "local"
	// ModeRemote is a signed-in cart backed by the shop API.
	ModeRemote Mode = "remote"
)

// CartLine is one product-quantity pair within a cart.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`

	// UnitPriceSnapshot is the price seen when the line was added. It is only
	// used for display while the catalog is unreachable.
	UnitPriceSnapshot *decimal.Decimal `json:"unit_price_snapshot,omitempty"`

	// RemoteLineID is the id the shop API assigned to the line. Empty for
	// lines that only exist locally.
	RemoteLineID string `json:"remote_line_id,omitempty"`

	// MergedLineIDs lists extra remote rows for the same product that were
	// folded into this line on fetch.
	MergedLineIDs []string `json:"merged_line_ids,omitempty"`
}

// IsRemote reports whether the line has been persisted by the shop API.
func (l CartLine) IsRemote() bool {
	return l.RemoteLineID != ""
}

// Cart is the aggregate owned by the cart engine. Lines is keyed by product
// id, so a product can never appear twice.
type Cart struct {
	Lines map[string]CartLine `json:"lines"`
	Mode  Mode                `json:"mode"`
	// Degraded is the "fell back to local after a failed remote write" state:
	// the cart stays Remote but its lines hold writes the shop has not seen.
	Degraded bool `json:"degraded"`
}

// NewCart returns an empty cart in the given mode.
func NewCart(mode Mode) *Cart {
	return &Cart{Lines: make(map[string]CartLine), Mode: mode}
}

// Line returns the line for productID.
func (c *Cart) Line(productID string) (CartLine, bool) {
	l, ok := c.Lines[productID]
	return l, ok
}

// ItemCount returns the total number of units in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, l := range c.Lines {
		count += l.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// SortedLines returns the lines ordered by product id.
func (c *Cart) SortedLines() []CartLine {
	lines := make([]CartLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	out := &Cart{
		Lines:    make(map[string]CartLine, len(c.Lines)),
		Mode:     c.Mode,
		Degraded: c.Degraded,
	}
	for id, l := range c.Lines {
		if l.UnitPriceSnapshot != nil {
			p := *l.UnitPriceSnapshot
			l.UnitPriceSnapshot = &p
		}
		if l.MergedLineIDs != nil {
			l.MergedLineIDs = append([]string(nil), l.MergedLineIDs...)
		}
		out.Lines[id] = l
	}
	return out
}

// Quantities returns productID -> quantity. Handy for comparing carts.
func (c *Cart) Quantities() map[string]int {
	out := make(map[string]int, len(c.Lines))
	for id, l := range c.Lines {
		out[id] = l.Quantity
	}
	return out
}

// PriceFunc resolves the unit price of a line. ok is false when no price is
// known, in which case the line contributes nothing to the total.
type PriceFunc func(line CartLine) (price decimal.Decimal, ok bool)

// TotalValue sums price x quantity over all lines.
func (c *Cart) TotalValue(price PriceFunc) decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		p, ok := price(l)
		if !ok {
			continue
		}
		total = total.Add(p.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}
