package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Initialize loads the cart for the current identity. A signed-in session
// gets the remote cart, merged with any anonymous cart still in the local
// store; an anonymous session gets the local store. A failed fetch falls back
// to the local store and raises SyncFailed. Calling it again without
// intervening changes yields the same lines.
func (e *Engine) Initialize(ctx context.Context) *Result {
	e.gate.Lock()
	defer e.gate.Unlock()
	return e.initializeLocked(ctx)
}

func (e *Engine) initializeLocked(ctx context.Context) *Result {
	res := &Result{}
	stored := e.loadLocal(ctx)
	localLines, _ := domain.Fold(stored)

	id := e.signedIn()
	if id == nil {
		c := domain.NewCart(domain.ModeLocal)
		c.Lines = localLines
		res.Cart = e.commit(c)
		e.logger.DebugContext(ctx, "cart initialized", slog.String("mode", string(c.Mode)), slog.Int("lines", len(c.Lines)))
		return res
	}

	if len(localLines) > 0 {
		// An anonymous cart survived a previous failed merge attempt.
		e.reconcileLocked(ctx, res, *id, localLines)
		return res
	}

	lines, err := e.fetch(ctx, *id, OpInitialize)
	if err != nil {
		c := domain.NewCart(domain.ModeLocal)
		c.Lines = localLines
		res.Cart = e.commit(c)
		e.syncFailed(ctx, res, OpInitialize, nil, err)
		return res
	}

	c := domain.NewCart(domain.ModeRemote)
	c.Lines = lines
	res.Cart = e.commit(c)
	e.logger.DebugContext(ctx, "cart initialized", slog.String("mode", string(c.Mode)), slog.Int("lines", len(c.Lines)))
	return res
}

// ReconcileOnLogin merges the anonymous cart into the signed-in shopper's
// remote cart. Quantities of products present on both sides are summed. The
// merge keeps going when single lines fail and reports them together in one
// SyncFailed signal. A cart that is already remote is only refreshed.
func (e *Engine) ReconcileOnLogin(ctx context.Context) (*Result, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	id := e.signedIn()
	if id == nil {
		return nil, apperrors.AuthenticationRequired("sign in before merging carts")
	}

	if !e.isInitialized() {
		// A fresh engine has not read the local store yet; initializing
		// with the identity set merges whatever anonymous cart it holds.
		return e.initializeLocked(ctx), nil
	}

	res := &Result{}
	cur := e.current()
	if cur.Mode == domain.ModeRemote || cur.IsEmpty() {
		e.refreshLocked(ctx, res, *id, OpReconcileOnLogin)
		return res, nil
	}

	e.reconcileLocked(ctx, res, *id, cur.Lines)
	return res, nil
}

func (e *Engine) reconcileLocked(ctx context.Context, res *Result, id domain.Identity, local map[string]domain.CartLine) {
	anonymous := domain.NewCart(domain.ModeLocal)
	anonymous.Lines = local
	localIDs := productIDs(anonymous)

	remoteLines, err := e.fetch(ctx, id, OpReconcileOnLogin)
	if err != nil {
		// Nothing was pushed; keep the anonymous cart so a later attempt can merge it.
		res.Cart = e.commit(anonymous)
		e.syncFailed(ctx, res, OpReconcileOnLogin, localIDs, err)
		return
	}

	merged := &domain.Cart{Lines: remoteLines, Mode: domain.ModeRemote}
	merged = merged.Clone()
	var (
		failed   []string
		causes   []string
		rejected = make(map[string]bool)
	)

	for _, l := range anonymous.SortedLines() {
		r, onRemote := remoteLines[l.ProductID]
		target := l.Quantity
		base := domain.CartLine{ProductID: l.ProductID, UnitPriceSnapshot: l.UnitPriceSnapshot}
		if onRemote {
			target += r.Quantity
			base = r
			if base.UnitPriceSnapshot == nil {
				base.UnitPriceSnapshot = l.UnitPriceSnapshot
			}
			e.logger.InfoContext(ctx, "merging cart line present on both sides",
				slog.String("product_id", l.ProductID),
				slog.Int("local_quantity", l.Quantity),
				slog.Int("remote_quantity", r.Quantity),
			)
			e.emit(ctx, res, Signal{
				Kind:           SignalMergeConflict,
				Operation:      OpReconcileOnLogin,
				ProductIDs:     []string{l.ProductID},
				LocalQuantity:  l.Quantity,
				RemoteQuantity: r.Quantity,
				MergedQuantity: target,
			})
		}

		written, err := e.pushLine(ctx, id, base, target)
		if err != nil {
			failed = append(failed, l.ProductID)
			causes = append(causes, fmt.Sprintf("%s: %v", l.ProductID, err))
			if !apperrors.IsTransient(err) {
				// The shop refused the line; it is reported but not kept.
				rejected[l.ProductID] = true
				if !onRemote {
					continue
				}
				written.Quantity = r.Quantity
			} else {
				written.Quantity = target
			}
		}
		merged.Lines[l.ProductID] = written
	}

	// The shop enforces one row per product, so a fresh fetch is the
	// authoritative merged cart.
	refetched, refetchErr := e.fetch(ctx, id, OpReconcileOnLogin)
	if refetchErr != nil {
		merged.Degraded = true
		causes = append(causes, "refetch: "+refetchErr.Error())
	} else {
		final := &domain.Cart{Lines: refetched, Mode: domain.ModeRemote}
		// Lines that could not be pushed stay visible until the next refresh.
		for _, pid := range failed {
			if rejected[pid] {
				continue
			}
			final.Lines[pid] = merged.Lines[pid]
			final.Degraded = true
		}
		merged = final
	}

	res.Cart = e.commit(merged)
	e.clearLocal(ctx)

	if len(failed) > 0 || refetchErr != nil {
		e.syncFailed(ctx, res, OpReconcileOnLogin, failed, fmt.Errorf("%d of %d lines not merged: %v", len(failed), len(localIDs), causes))
	}

	e.logger.InfoContext(ctx, "anonymous cart merged",
		slog.String("user_id", id.UserID),
		slog.Int("local_lines", len(localIDs)),
		slog.Int("merged_lines", len(merged.Lines)),
		slog.Int("failed_lines", len(failed)),
	)
}

// Refresh replaces a remote cart with a fresh fetch from the shop API and
// clears the degraded flag. A signed-in session left local by an earlier
// failed fetch retries initialization, merging the kept anonymous cart.
// Anonymous carts are returned unchanged.
func (e *Engine) Refresh(ctx context.Context) *Result {
	res := &Result{Signals: e.ensureInitialized(ctx)}

	e.gate.Lock()
	defer e.gate.Unlock()

	cur := e.current()
	id := e.signedIn()
	switch {
	case id == nil:
		res.Cart = cur
	case cur.Mode == domain.ModeRemote:
		e.refreshLocked(ctx, res, *id, OpRefresh)
	case res.SyncFailed():
		// Initialization just failed; do not hit the shop twice.
		res.Cart = cur
	default:
		retry := e.initializeLocked(ctx)
		res.Cart = retry.Cart
		res.Signals = append(res.Signals, retry.Signals...)
	}
	return res
}

func (e *Engine) refreshLocked(ctx context.Context, res *Result, id domain.Identity, op string) {
	lines, err := e.fetch(ctx, id, op)
	if err != nil {
		res.Cart = e.current()
		e.syncFailed(ctx, res, op, nil, err)
		return
	}
	c := domain.NewCart(domain.ModeRemote)
	c.Lines = lines
	res.Cart = e.commit(c)
}

// Logout drops the signed-in cart and starts over from the local store.
func (e *Engine) Logout(ctx context.Context) *Result {
	e.gate.Lock()
	defer e.gate.Unlock()

	lines, _ := domain.Fold(e.loadLocal(ctx))
	c := domain.NewCart(domain.ModeLocal)
	c.Lines = lines
	e.logger.InfoContext(ctx, "cart reset after sign out", slog.Int("lines", len(lines)))
	return &Result{Cart: e.commit(c)}
}

// HandleAuthChange is the callback for identity changes: sign in merges the
// anonymous cart, sign out resets to a local cart.
func (e *Engine) HandleAuthChange(ctx context.Context, change domain.AuthChange) (*Result, error) {
	if change.SignedIn() {
		return e.ReconcileOnLogin(ctx)
	}
	return e.Logout(ctx), nil
}

// fetch reads and folds the remote cart.
func (e *Engine) fetch(ctx context.Context, id domain.Identity, op string) (map[string]domain.CartLine, error) {
	rows, err := e.remote.FetchCart(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, duplicated := domain.Fold(rows)
	if len(duplicated) > 0 {
		e.logger.WarnContext(ctx, "remote cart returned duplicate rows, quantities summed",
			slog.String("operation", op),
			slog.Any("product_ids", duplicated),
		)
	}
	return lines, nil
}

func productIDs(c *domain.Cart) []string {
	lines := c.SortedLines()
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}
