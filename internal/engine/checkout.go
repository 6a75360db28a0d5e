package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Checkout asks the shop to turn the signed-in cart into an order. It is only
// available for remote carts. On success the cart is emptied; on failure the
// cart is left untouched and the shop's reason is returned as is, without
// retrying.
func (e *Engine) Checkout(ctx context.Context) (*CheckoutResult, error) {
	pending := e.ensureInitialized(ctx)

	e.gate.Lock()
	defer e.gate.Unlock()

	cur := e.current()
	id := e.signedIn()
	if cur.Mode != domain.ModeRemote || id == nil {
		return nil, apperrors.AuthenticationRequired("sign in to check out")
	}
	if cur.IsEmpty() {
		return nil, apperrors.InvalidInput("cart is empty")
	}
	if cur.Degraded {
		e.logger.WarnContext(ctx, "checking out a cart with unsynced changes")
	}

	order, err := e.orders.Checkout(ctx, *id)
	if err != nil {
		e.logger.WarnContext(ctx, "checkout failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("checkout: %w", err)
	}

	res := &CheckoutResult{Result: Result{Signals: pending}, Order: order}
	res.Cart = e.commit(domain.NewCart(domain.ModeRemote))
	e.clearLocal(ctx)
	e.emit(ctx, &res.Result, Signal{
		Kind:       SignalCheckedOut,
		Operation:  OpCheckout,
		ProductIDs: productIDs(cur),
		Order:      order,
	})

	e.logger.InfoContext(ctx, "checkout completed",
		slog.String("user_id", id.UserID),
		slog.String("order_id", order.OrderID),
		slog.Int("item_count", cur.ItemCount()),
	)
	return res, nil
}

// Totals is the priced summary of a cart.
type Totals struct {
	Value     decimal.Decimal `json:"total_value"`
	ItemCount int             `json:"item_count"`
	// Estimated lists products priced from their add-time snapshot because
	// the catalog could not be reached.
	Estimated []string `json:"estimated,omitempty"`
	// Unpriced lists products that contributed nothing to Value.
	Unpriced []string `json:"unpriced,omitempty"`
}

// TotalValue sums price x quantity over the cart using lookup, or the
// engine's own price lookup when lookup is nil.
func (e *Engine) TotalValue(ctx context.Context, lookup PriceLookup) decimal.Decimal {
	return e.Totals(ctx, lookup).Value
}

// Totals prices the current cart. A product the catalog does not know counts
// as zero. When the catalog itself fails, the add-time snapshot is used if
// there is one.
func (e *Engine) Totals(ctx context.Context, lookup PriceLookup) Totals {
	e.ensureInitialized(ctx)
	if lookup == nil {
		lookup = e.prices
	}

	c := e.Snapshot()
	out := Totals{ItemCount: c.ItemCount()}

	out.Value = c.TotalValue(func(l domain.CartLine) (decimal.Decimal, bool) {
		if lookup == nil {
			return e.fromSnapshot(&out, l)
		}
		p, err := lookup.PriceOf(ctx, l.ProductID)
		switch {
		case err == nil:
			return p, true
		case errors.Is(err, apperrors.ErrNotFound):
			out.Unpriced = append(out.Unpriced, l.ProductID)
			return decimal.Zero, false
		default:
			e.logger.DebugContext(ctx, "price lookup failed",
				slog.String("product_id", l.ProductID),
				slog.String("error", err.Error()),
			)
			return e.fromSnapshot(&out, l)
		}
	})
	return out
}

func (e *Engine) fromSnapshot(out *Totals, l domain.CartLine) (decimal.Decimal, bool) {
	if l.UnitPriceSnapshot == nil {
		out.Unpriced = append(out.Unpriced, l.ProductID)
		return decimal.Zero, false
	}
	out.Estimated = append(out.Estimated, l.ProductID)
	return *l.UnitPriceSnapshot, true
}
