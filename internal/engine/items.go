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

// errNotSignedIn stands in for a remote failure when a remote cart has lost
// its identity before the sign-out notification arrived.
var errNotSignedIn = apperrors.ServiceUnavailable("no signed-in identity for remote cart")

// AddItem adds quantity units of productID, creating the line if needed.
func (e *Engine) AddItem(ctx context.Context, productID string, quantity int) (*Result, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}

	res := &Result{Signals: e.ensureInitialized(ctx)}

	e.gate.RLock()
	defer e.gate.RUnlock()
	unlock := e.locks.Lock(productID)
	defer unlock()

	cur := e.current()
	line, exists := cur.Line(productID)
	target := line.Quantity + quantity
	if !exists {
		line = domain.CartLine{ProductID: productID, UnitPriceSnapshot: e.snapshotPrice(ctx, productID)}
	}

	if err := e.writeLine(ctx, res, cur.Mode, OpAddItem, line, target); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "item added to cart",
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
		slog.String("mode", string(cur.Mode)),
	)
	return res, nil
}

// UpdateQuantity sets the quantity of productID. A quantity of zero or less
// removes the line.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, quantity int) (*Result, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity <= 0 {
		return e.RemoveItem(ctx, productID)
	}

	res := &Result{Signals: e.ensureInitialized(ctx)}

	e.gate.RLock()
	defer e.gate.RUnlock()
	unlock := e.locks.Lock(productID)
	defer unlock()

	cur := e.current()
	line, exists := cur.Line(productID)
	if !exists {
		line = domain.CartLine{ProductID: productID, UnitPriceSnapshot: e.snapshotPrice(ctx, productID)}
	}
	if exists && line.Quantity == quantity && len(line.MergedLineIDs) == 0 {
		res.Cart = cur
		return res, nil
	}

	if err := e.writeLine(ctx, res, cur.Mode, OpUpdateQuantity, line, quantity); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
		slog.String("mode", string(cur.Mode)),
	)
	return res, nil
}

// RemoveItem deletes the line for productID. Removing an absent product is a
// no-op.
func (e *Engine) RemoveItem(ctx context.Context, productID string) (*Result, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	res := &Result{Signals: e.ensureInitialized(ctx)}

	e.gate.RLock()
	defer e.gate.RUnlock()
	unlock := e.locks.Lock(productID)
	defer unlock()

	cur := e.current()
	line, exists := cur.Line(productID)
	if !exists {
		res.Cart = cur
		return res, nil
	}

	if cur.Mode == domain.ModeLocal {
		res.Cart = e.update(func(c *domain.Cart) { delete(c.Lines, productID) })
		e.persistLocal(ctx, res.Cart)
		return res, nil
	}

	var err error
	if id := e.signedIn(); id == nil {
		err = errNotSignedIn
	} else {
		err = e.removeRemote(ctx, *id, line)
	}

	switch {
	case err == nil:
		res.Cart = e.update(func(c *domain.Cart) { delete(c.Lines, productID) })
	case apperrors.IsTransient(err):
		res.Cart = e.update(func(c *domain.Cart) {
			delete(c.Lines, productID)
			c.Degraded = true
		})
		e.syncFailed(ctx, res, OpRemoveItem, []string{productID}, err)
	default:
		return nil, fmt.Errorf("remove %s: %w", productID, err)
	}

	e.logger.InfoContext(ctx, "item removed from cart", slog.String("product_id", productID))
	return res, nil
}

// writeLine brings line to quantity target in the current mode. In remote mode
// a transient failure still applies the change locally and raises SyncFailed;
// any other failure leaves the cart untouched and is returned.
func (e *Engine) writeLine(ctx context.Context, res *Result, mode domain.Mode, op string, line domain.CartLine, target int) error {
	if mode == domain.ModeLocal {
		line.Quantity = target
		res.Cart = e.update(func(c *domain.Cart) { c.Lines[line.ProductID] = line })
		e.persistLocal(ctx, res.Cart)
		return nil
	}

	written := line
	var err error
	if id := e.signedIn(); id == nil {
		err = errNotSignedIn
	} else {
		written, err = e.pushLine(ctx, *id, line, target)
	}

	switch {
	case err == nil:
		res.Cart = e.update(func(c *domain.Cart) { c.Lines[written.ProductID] = written })
		return nil
	case apperrors.IsTransient(err):
		written.Quantity = target
		res.Cart = e.update(func(c *domain.Cart) {
			c.Lines[written.ProductID] = written
			c.Degraded = true
		})
		e.syncFailed(ctx, res, op, []string{line.ProductID}, err)
		return nil
	default:
		return fmt.Errorf("%s %s: %w", op, line.ProductID, err)
	}
}

// pushLine makes the remote cart hold exactly target units of line's product.
// The returned line reflects what the remote now holds, even when err is
// non-nil part way through.
func (e *Engine) pushLine(ctx context.Context, id domain.Identity, line domain.CartLine, target int) (domain.CartLine, error) {
	out := line

	// Extra rows folded into this line must go before the absolute write,
	// otherwise the shop would still count them.
	for len(out.MergedLineIDs) > 0 {
		if err := e.remote.RemoveLine(ctx, id, out.MergedLineIDs[0]); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return out, err
		}
		out.MergedLineIDs = out.MergedLineIDs[1:]
	}
	out.MergedLineIDs = nil

	if out.IsRemote() {
		err := e.remote.UpdateLine(ctx, id, out.RemoteLineID, target)
		if err == nil {
			out.Quantity = target
			return out, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return out, err
		}
		// The row vanished server side; recreate it.
		out.RemoteLineID = ""
	}

	remoteID, err := e.remote.AddLine(ctx, id, out.ProductID, target)
	if err != nil {
		return out, err
	}
	out.RemoteLineID = remoteID
	out.Quantity = target
	return out, nil
}

func (e *Engine) removeRemote(ctx context.Context, id domain.Identity, line domain.CartLine) error {
	ids := append([]string(nil), line.MergedLineIDs...)
	if line.IsRemote() {
		ids = append(ids, line.RemoteLineID)
	}
	for _, rid := range ids {
		if err := e.remote.RemoveLine(ctx, id, rid); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) syncFailed(ctx context.Context, res *Result, op string, products []string, cause error) {
	e.logger.WarnContext(ctx, "cart sync failed, keeping local change",
		slog.String("operation", op),
		slog.Any("product_ids", products),
		slog.String("error", cause.Error()),
	)
	e.emit(ctx, res, Signal{
		Kind:       SignalSyncFailed,
		Operation:  op,
		ProductIDs: products,
		Reason:     cause.Error(),
	})
}

// snapshotPrice records the price seen at add time. Best effort.
func (e *Engine) snapshotPrice(ctx context.Context, productID string) *decimal.Decimal {
	if e.prices == nil {
		return nil
	}
	p, err := e.prices.PriceOf(ctx, productID)
	if err != nil {
		return nil
	}
	return &p
}
