// Package engine keeps one session's cart consistent across anonymous and
// signed-in use and across shop API outages.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// IdentityProvider reports who the session is signed in as, if anyone.
type IdentityProvider interface {
	CurrentIdentity() *domain.Identity
}

// RemoteCartStore is the shop API's server side cart.
type RemoteCartStore interface {
	FetchCart(ctx context.Context, id domain.Identity) ([]domain.CartLine, error)
	AddLine(ctx context.Context, id domain.Identity, productID string, quantity int) (remoteLineID string, err error)
	UpdateLine(ctx context.Context, id domain.Identity, remoteLineID string, quantity int) error
	RemoveLine(ctx context.Context, id domain.Identity, remoteLineID string) error
}

// OrderService turns the signed-in cart into an order.
type OrderService interface {
	Checkout(ctx context.Context, id domain.Identity) (*domain.OrderConfirmation, error)
}

// LocalStore persists the anonymous cart of one session. Load returns nil
// lines when nothing was saved.
type LocalStore interface {
	Load(ctx context.Context) ([]domain.CartLine, error)
	Save(ctx context.Context, lines []domain.CartLine) error
	Clear(ctx context.Context) error
}

// PriceLookup resolves current catalog prices. Unknown products return an
// error matching apperrors.ErrNotFound.
type PriceLookup interface {
	PriceOf(ctx context.Context, productID string) (decimal.Decimal, error)
}

// Notifier receives every signal the engine emits.
type Notifier interface {
	Notify(ctx context.Context, s Signal)
}

// Deps bundles the collaborators of an Engine. Prices and Notifier are optional.
type Deps struct {
	SessionID string
	Identity  IdentityProvider
	Remote    RemoteCartStore
	Orders    OrderService
	Local     LocalStore
	Prices    PriceLookup
	Notifier  Notifier
	Logger    *slog.Logger
}

// Engine owns the cart of one session.
//
// Item operations hold gate for reading plus a per-product lock, so updates to
// the same product are applied in call order while different products proceed
// in parallel. Whole-cart operations hold gate for writing.
type Engine struct {
	sessionID string
	identity  IdentityProvider
	remote    RemoteCartStore
	orders    OrderService
	local     LocalStore
	prices    PriceLookup
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time

	gate  sync.RWMutex
	locks *keyedMutex

	mu          sync.Mutex
	cart        *domain.Cart
	initialized bool
	subs        map[int]func(*domain.Cart)
	nextSub     int
}

// New creates an engine with an empty local cart. Call Initialize before use;
// operations initialize lazily otherwise.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessionID: d.SessionID,
		identity:  d.Identity,
		remote:    d.Remote,
		orders:    d.Orders,
		local:     d.Local,
		prices:    d.Prices,
		notifier:  d.Notifier,
		logger:    logger.With(slog.String("session_id", d.SessionID)),
		now:       time.Now,
		locks:     newKeyedMutex(),
		cart:      domain.NewCart(domain.ModeLocal),
		subs:      make(map[int]func(*domain.Cart)),
	}
}

// SessionID returns the session the engine belongs to.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Snapshot returns a copy of the current cart.
func (e *Engine) Snapshot() *domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Clone()
}

// Current returns the cart, initializing it on first use.
func (e *Engine) Current(ctx context.Context) *Result {
	res := &Result{Signals: e.ensureInitialized(ctx)}
	res.Cart = e.Snapshot()
	return res
}

// Mode returns the current cart mode.
func (e *Engine) Mode() domain.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Mode
}

// ItemCount returns the number of units in the cart.
func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.ItemCount()
}

// Subscribe registers fn to receive a copy of the cart after every change.
// The returned function removes the subscription.
func (e *Engine) Subscribe(fn func(*domain.Cart)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// commit replaces the cart, tells subscribers and returns the copy they saw.
func (e *Engine) commit(c *domain.Cart) *domain.Cart {
	e.mu.Lock()
	e.cart = c
	e.initialized = true
	snap := c.Clone()
	subs := make([]func(*domain.Cart), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(snap.Clone())
	}
	return snap
}

// update applies fn to a copy of the current cart and commits the result.
func (e *Engine) update(fn func(c *domain.Cart)) *domain.Cart {
	e.mu.Lock()
	c := e.cart.Clone()
	e.mu.Unlock()
	fn(c)
	return e.commit(c)
}

func (e *Engine) current() *domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Clone()
}

func (e *Engine) isInitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// ensureInitialized runs Initialize once if the caller skipped it.
func (e *Engine) ensureInitialized(ctx context.Context) []Signal {
	e.mu.Lock()
	done := e.initialized
	e.mu.Unlock()
	if done {
		return nil
	}

	e.gate.Lock()
	defer e.gate.Unlock()

	e.mu.Lock()
	done = e.initialized
	e.mu.Unlock()
	if done {
		return nil
	}
	return e.initializeLocked(ctx).Signals
}

// signedIn returns the identity to use for remote calls, or nil.
func (e *Engine) signedIn() *domain.Identity {
	if e.identity == nil {
		return nil
	}
	return e.identity.CurrentIdentity()
}

func (e *Engine) emit(ctx context.Context, res *Result, s Signal) {
	s.SessionID = e.sessionID
	if s.At.IsZero() {
		s.At = e.now().UTC()
	}
	res.Signals = append(res.Signals, s)
	if e.notifier != nil {
		e.notifier.Notify(ctx, s)
	}
}

// persistLocal saves the lines of a local cart. Failures are logged only.
func (e *Engine) persistLocal(ctx context.Context, c *domain.Cart) {
	if e.local == nil || c.Mode != domain.ModeLocal {
		return
	}
	if err := e.local.Save(ctx, c.SortedLines()); err != nil {
		e.logger.WarnContext(ctx, "failed to save local cart", slog.String("error", err.Error()))
	}
}

func (e *Engine) clearLocal(ctx context.Context) {
	if e.local == nil {
		return
	}
	if err := e.local.Clear(ctx); err != nil {
		e.logger.WarnContext(ctx, "failed to clear local cart", slog.String("error", err.Error()))
	}
}

func (e *Engine) loadLocal(ctx context.Context) []domain.CartLine {
	if e.local == nil {
		return nil
	}
	lines, err := e.local.Load(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to load local cart, starting empty", slog.String("error", err.Error()))
		return nil
	}
	return lines
}
