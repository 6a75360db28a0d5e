package engine

import (
	"time"

	"github.com/utafrali/storefront/internal/domain"
)

// SignalKind names a notable, non-fatal outcome of an engine operation.
type SignalKind string

const (
	// SignalSyncFailed means a remote read or write failed and local state
	// stands in for the shop API until the next successful refresh.
	SignalSyncFailed SignalKind = "sync_failed"
	// SignalMergeConflict means a product was in both the anonymous and the
	// signed-in cart at login and the quantities were summed.
	SignalMergeConflict SignalKind = "merge_conflict"
	// SignalCheckedOut means the shop accepted a checkout.
	SignalCheckedOut SignalKind = "checked_out"
)

// Operation names used in signals and logs.
const (
	OpInitialize       = "initialize"
	OpAddItem          = "add_item"
	OpRemoveItem       = "remove_item"
	OpUpdateQuantity   = "update_quantity"
	OpReconcileOnLogin = "reconcile_on_login"
	OpRefresh          = "refresh"
	OpCheckout         = "checkout"
)

// Signal describes one emitted event. Only the fields relevant to Kind are set.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	SessionID  string     `json:"session_id"`
	Operation  string     `json:"operation"`
	ProductIDs []string   `json:"product_ids,omitempty"`
	Reason     string     `json:"reason,omitempty"`

	LocalQuantity  int `json:"local_quantity,omitempty"`
	RemoteQuantity int `json:"remote_quantity,omitempty"`
	MergedQuantity int `json:"merged_quantity,omitempty"`

	Order *domain.OrderConfirmation `json:"order,omitempty"`
	At    time.Time                 `json:"at"`
}

// Result is the cart after an operation plus whatever signals it raised.
type Result struct {
	Cart    *domain.Cart
	Signals []Signal
}

// SyncFailed reports whether any remote call in the operation failed.
func (r *Result) SyncFailed() bool {
	return len(r.Of(SignalSyncFailed)) > 0
}

// Of returns the signals of the given kind.
func (r *Result) Of(kind SignalKind) []Signal {
	var out []Signal
	for _, s := range r.Signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// CheckoutResult is returned by a successful checkout.
type CheckoutResult struct {
	Result
	Order *domain.OrderConfirmation
}
