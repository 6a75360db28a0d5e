package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func TestAddItem_LocalCreatesAndIncrements(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)

	res, err := h.engine.AddItem(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLocal, res.Cart.Mode)
	assert.Equal(t, map[string]int{"p1": 2}, res.Cart.Quantities())

	res, err = h.engine.AddItem(ctx, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 5}, res.Cart.Quantities())
	assert.Empty(t, res.Signals)

	assert.Equal(t, map[string]int{"p1": 5}, h.local.quantities())
	assert.Zero(t, h.remote.adds)
}

func TestAddItem_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)

	_, err := h.engine.AddItem(ctx, "p1", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = h.engine.AddItem(ctx, "", 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.True(t, h.engine.Snapshot().IsEmpty())
}

func TestUpdateQuantity_ZeroOrNegativeRemoves(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)

	_, err := h.engine.AddItem(ctx, "p1", 2)
	require.NoError(t, err)
	_, err = h.engine.AddItem(ctx, "p2", 1)
	require.NoError(t, err)

	res, err := h.engine.UpdateQuantity(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p2": 1}, res.Cart.Quantities())

	res, err = h.engine.UpdateQuantity(ctx, "p2", -4)
	require.NoError(t, err)
	assert.True(t, res.Cart.IsEmpty())
	assert.Empty(t, h.local.quantities())
}

func TestUpdateQuantity_SetsAbsoluteValue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)

	_, err := h.engine.AddItem(ctx, "p1", 2)
	require.NoError(t, err)

	res, err := h.engine.UpdateQuantity(ctx, "p1", 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 7}, res.Cart.Quantities())

	res, err = h.engine.UpdateQuantity(ctx, "p9", 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 7, "p9": 1}, res.Cart.Quantities())
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.identity.signIn()
	h.engine.Initialize(ctx)

	res, err := h.engine.RemoveItem(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, res.Cart.IsEmpty())
	assert.Zero(t, h.remote.removes)
}

func TestAddItem_RemoteWritesThrough(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.identity.signIn()
	h.engine.Initialize(ctx)

	res, err := h.engine.AddItem(ctx, "p1", 1)
	require.NoError(t, err)
	res, err = h.engine.AddItem(ctx, "p1", 2)
	require.NoError(t, err)

	line, ok := res.Cart.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, line.IsRemote())
	assert.False(t, res.Cart.Degraded)
	assert.Equal(t, map[string]int{"p1": 3}, h.remote.quantities())
	assert.Equal(t, 1, h.remote.adds)
	assert.Equal(t, 1, h.remote.updates)
}

func TestAddItem_RemoteOutageDegrades(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.identity.signIn()
	h.engine.Initialize(ctx)
	h.remote.addErr["*"] = errShopDown

	res, err := h.engine.AddItem(ctx, "X", 1)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"X": 1}, res.Cart.Quantities())
	assert.True(t, res.Cart.Degraded)
	require.True(t, res.SyncFailed())
	sig := res.Of(SignalSyncFailed)[0]
	assert.Equal(t, []string{"X"}, sig.ProductIDs)
	assert.Equal(t, OpAddItem, sig.Operation)
	assert.Equal(t, "sess-1", sig.SessionID)
	assert.Equal(t, []SignalKind{SignalSyncFailed}, h.notifier.kinds())

	// The degraded change is not persisted as an anonymous cart.
	assert.Empty(t, h.local.quantities())
}

func TestAddItem_RemoteRejectionLeavesCartUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(newFakeRemote(domain.CartLine{ProductID: "p1", Quantity: 1}))
	h.identity.signIn()
	h.engine.Initialize(ctx)
	h.remote.updateErr = errOutOfStock

	_, err := h.engine.AddItem(ctx, "p1", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRejected)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Only 2 left in stock", appErr.Message)

	assert.Equal(t, map[string]int{"p1": 1}, h.engine.Snapshot().Quantities())
	assert.Empty(t, h.notifier.kinds())
}

func TestRemoveItem_RemoteOutageRemovesLocally(t *testing.T) {
	ctx := context.Background()
	h := newHarness(newFakeRemote(domain.CartLine{ProductID: "p1", Quantity: 1}))
	h.identity.signIn()
	h.engine.Initialize(ctx)
	h.remote.removeErr = errShopDown

	res, err := h.engine.RemoveItem(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, res.Cart.IsEmpty())
	assert.True(t, res.Cart.Degraded)
	assert.True(t, res.SyncFailed())
	assert.Equal(t, map[string]int{"p1": 1}, h.remote.quantities())
}

func TestUpdateQuantity_VanishedRowIsRecreated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(newFakeRemote(domain.CartLine{ProductID: "p1", Quantity: 1}))
	h.identity.signIn()
	h.engine.Initialize(ctx)

	// Someone removed the row in another tab.
	h.remote.mu.Lock()
	h.remote.rows = nil
	h.remote.mu.Unlock()

	res, err := h.engine.UpdateQuantity(ctx, "p1", 4)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 4}, res.Cart.Quantities())
	assert.Equal(t, map[string]int{"p1": 4}, h.remote.quantities())
	assert.False(t, res.SyncFailed())
}

func TestUpdateQuantity_CollapsesDuplicateRemoteRows(t *testing.T) {
	ctx := context.Background()
	h := newHarness(newFakeRemote(
		domain.CartLine{ProductID: "p1", Quantity: 2},
		domain.CartLine{ProductID: "p1", Quantity: 3},
	))
	h.identity.signIn()

	res := h.engine.Initialize(ctx)
	line, ok := res.Cart.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 5, line.Quantity)
	assert.Equal(t, "101", line.RemoteLineID)
	assert.Equal(t, []string{"102"}, line.MergedLineIDs)

	upd, err := h.engine.UpdateQuantity(ctx, "p1", 4)
	require.NoError(t, err)

	line, _ = upd.Cart.Line("p1")
	assert.Equal(t, 4, line.Quantity)
	assert.Empty(t, line.MergedLineIDs)
	assert.Equal(t, 1, h.remote.rowCount())
	assert.Equal(t, map[string]int{"p1": 4}, h.remote.quantities())
}

func TestRemoveItem_RemovesFoldedRows(t *testing.T) {
	ctx := context.Background()
	h := newHarness(newFakeRemote(
		domain.CartLine{ProductID: "p1", Quantity: 2},
		domain.CartLine{ProductID: "p1", Quantity: 3},
	))
	h.identity.signIn()
	h.engine.Initialize(ctx)

	res, err := h.engine.RemoveItem(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, res.Cart.IsEmpty())
	assert.Zero(t, h.remote.rowCount())
}

func TestOperations_InitializeLazily(t *testing.T) {
	ctx := context.Background()
	h := newHarness(newFakeRemote(domain.CartLine{ProductID: "p1", Quantity: 2}))
	h.identity.signIn()

	res, err := h.engine.AddItem(ctx, "p2", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeRemote, res.Cart.Mode)
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, res.Cart.Quantities())
}

func TestRandomOperations_KeepLinesValid(t *testing.T) {
	for _, signedIn := range []bool{false, true} {
		t.Run(fmt.Sprintf("signed_in=%v", signedIn), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(nil)
			if signedIn {
				h.identity.signIn()
			}
			h.engine.Initialize(ctx)

			rng := rand.New(rand.NewSource(42))
			products := []string{"a", "b", "c", "d"}
			for i := 0; i < 300; i++ {
				pid := products[rng.Intn(len(products))]
				var err error
				switch rng.Intn(3) {
				case 0:
					_, err = h.engine.AddItem(ctx, pid, 1+rng.Intn(3))
				case 1:
					_, err = h.engine.UpdateQuantity(ctx, pid, rng.Intn(5)-1)
				case 2:
					_, err = h.engine.RemoveItem(ctx, pid)
				}
				require.NoError(t, err)

				c := h.engine.Snapshot()
				for id, l := range c.Lines {
					require.Equal(t, id, l.ProductID)
					require.GreaterOrEqual(t, l.Quantity, 1)
				}
				if signedIn {
					require.Equal(t, c.Quantities(), h.remote.quantities())
					require.Equal(t, len(c.Lines), h.remote.rowCount())
				} else {
					require.Equal(t, c.Quantities(), h.local.quantities())
				}
			}
		})
	}
}

func TestConcurrentAdds_SameProductAreSerialized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.identity.signIn()
	h.engine.Initialize(ctx)
	h.remote.delay = time.Millisecond

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.AddItem(ctx, "p1", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"p1": n}, h.engine.Snapshot().Quantities())
	assert.Equal(t, map[string]int{"p1": n}, h.remote.quantities())
	assert.Equal(t, 1, h.remote.rowCount())
	assert.Zero(t, h.engine.locks.size())
}

func TestConcurrentAdds_DifferentProducts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.identity.signIn()
	h.engine.Initialize(ctx)
	h.remote.delay = time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		pid := fmt.Sprintf("p%d", i)
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.engine.AddItem(ctx, pid, 1)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	c := h.engine.Snapshot()
	assert.Len(t, c.Lines, 10)
	assert.Equal(t, 30, c.ItemCount())
	assert.Equal(t, c.Quantities(), h.remote.quantities())
}

func TestSubscribe_ReceivesCopiesUntilUnsubscribed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.engine.Initialize(ctx)

	var seen []*domain.Cart
	unsubscribe := h.engine.Subscribe(func(c *domain.Cart) { seen = append(seen, c) })

	_, err := h.engine.AddItem(ctx, "p1", 1)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, map[string]int{"p1": 1}, seen[0].Quantities())

	// Mutating the copy does not leak into the engine.
	delete(seen[0].Lines, "p1")
	assert.Equal(t, 1, h.engine.ItemCount())

	unsubscribe()
	_, err = h.engine.AddItem(ctx, "p2", 1)
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestCurrent_InitializesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(newFakeRemote(domain.CartLine{ProductID: "p1", Quantity: 2}))
	h.identity.signIn()

	first := h.engine.Current(ctx)
	second := h.engine.Current(ctx)

	assert.Equal(t, map[string]int{"p1": 2}, first.Cart.Quantities())
	assert.Equal(t, first.Cart.Quantities(), second.Cart.Quantities())
	assert.Equal(t, 1, h.remote.fetches)
}
