package http

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/pkg/httputil"
)

// LineView is one cart line as the browser sees it.
type LineView struct {
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// CartView is the cart as the browser sees it. Lines are sorted by product id.
type CartView struct {
	Mode      domain.Mode `json:"mode"`
	Degraded  bool        `json:"degraded"`
	ItemCount int         `json:"item_count"`
	Lines     []LineView  `json:"lines"`
}

func cartView(c *domain.Cart) CartView {
	lines := c.SortedLines()
	v := CartView{
		Mode:      c.Mode,
		Degraded:  c.Degraded,
		ItemCount: c.ItemCount(),
		Lines:     make([]LineView, 0, len(lines)),
	}
	for _, l := range lines {
		v.Lines = append(v.Lines, LineView{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPriceSnapshot})
	}
	return v
}

// warnings turns engine signals into response warnings.
func warnings(signals []engine.Signal) []httputil.Warning {
	var out []httputil.Warning
	for _, s := range signals {
		switch s.Kind {
		case engine.SignalSyncFailed:
			out = append(out, httputil.Warning{
				Code:    "SYNC_FAILED",
				Message: "Some cart changes could not be saved to your account yet",
				Items:   s.ProductIDs,
			})
		case engine.SignalMergeConflict:
			out = append(out, httputil.Warning{
				Code: "MERGE_CONFLICT",
				Message: fmt.Sprintf("Quantities from this device and your account were combined (%d + %d = %d)",
					s.LocalQuantity, s.RemoteQuantity, s.MergedQuantity),
				Items: s.ProductIDs,
			})
		}
	}
	return out
}
