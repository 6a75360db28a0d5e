package engine

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

var (
	errShopDown  = apperrors.ServiceUnavailable("shop API is temporarily unavailable")
	errOutOfStock = apperrors.Rejected("Only 2 left in stock")
)

// --- Remote cart store ---

// fakeRemote behaves like the shop API: one row per product, AddLine on an
// existing product increments it.
type fakeRemote struct {
	mu     sync.Mutex
	rows   []domain.CartLine
	nextID int
	delay  time.Duration

	fetchErrs []error // consumed one per FetchCart call
	fetchErr  error
	addErr    map[string]error
	updateErr error
	removeErr error

	adds, updates, removes, fetches int
}

func newFakeRemote(rows ...domain.CartLine) *fakeRemote {
	r := &fakeRemote{addErr: make(map[string]error), nextID: 100}
	for _, row := range rows {
		if row.RemoteLineID == "" {
			row.RemoteLineID = r.newID()
		}
		r.rows = append(r.rows, row)
	}
	return r
}

func (r *fakeRemote) newID() string {
	r.nextID++
	return strconv.Itoa(r.nextID)
}

func (r *fakeRemote) FetchCart(_ context.Context, _ domain.Identity) ([]domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return append([]domain.CartLine(nil), r.rows...), nil
}

func (r *fakeRemote) AddLine(_ context.Context, _ domain.Identity, productID string, quantity int) (string, error) {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds++
	if err := r.addErr[productID]; err != nil {
		return "", err
	}
	if err := r.addErr["*"]; err != nil {
		return "", err
	}
	for i := range r.rows {
		if r.rows[i].ProductID == productID {
			r.rows[i].Quantity += quantity
			return r.rows[i].RemoteLineID, nil
		}
	}
	id := r.newID()
	r.rows = append(r.rows, domain.CartLine{ProductID: productID, Quantity: quantity, RemoteLineID: id})
	return id, nil
}

func (r *fakeRemote) UpdateLine(_ context.Context, _ domain.Identity, remoteLineID string, quantity int) error {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return r.updateErr
	}
	for i := range r.rows {
		if r.rows[i].RemoteLineID == remoteLineID {
			r.rows[i].Quantity = quantity
			return nil
		}
	}
	return apperrors.NotFound("cart item", remoteLineID)
}

func (r *fakeRemote) RemoveLine(_ context.Context, _ domain.Identity, remoteLineID string) error {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	if r.removeErr != nil {
		return r.removeErr
	}
	for i := range r.rows {
		if r.rows[i].RemoteLineID == remoteLineID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("cart item", remoteLineID)
}

func (r *fakeRemote) sleep() {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
}

// quantities returns productID -> summed quantity of the server rows.
func (r *fakeRemote) quantities() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, row := range r.rows {
		out[row.ProductID] += row.Quantity
	}
	return out
}

func (r *fakeRemote) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- Local store ---

type memLocal struct {
	mu      sync.Mutex
	lines   []domain.CartLine
	saves   int
	clears  int
	saveErr error
}

func (m *memLocal) Load(context.Context) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CartLine(nil), m.lines...), nil
}

func (m *memLocal) Save(_ context.Context, lines []domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.lines = append([]domain.CartLine(nil), lines...)
	return nil
}

func (m *memLocal) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.lines = nil
	return nil
}

func (m *memLocal) quantities() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, l := range m.lines {
		out[l.ProductID] += l.Quantity
	}
	return out
}

// --- Identity ---

type fakeIdentity struct {
	mu sync.Mutex
	id *domain.Identity
}

func (f *fakeIdentity) CurrentIdentity() *domain.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeIdentity) signIn() domain.AuthChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = &domain.Identity{UserID: "7", Username: "ada", Token: "tok"}
	return domain.AuthChange{Identity: f.id}
}

func (f *fakeIdentity) signOut() domain.AuthChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = nil
	return domain.AuthChange{}
}

// --- Orders ---

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Checkout(ctx context.Context, id domain.Identity) (*domain.OrderConfirmation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderConfirmation), args.Error(1)
}

// --- Prices ---

type fakePrices struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f fakePrices) PriceOf(_ context.Context, productID string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	p, ok := f.prices[productID]
	if !ok {
		return decimal.Zero, apperrors.NotFound("product", productID)
	}
	return p, nil
}

// --- Notifier ---

type recordingNotifier struct {
	mu      sync.Mutex
	signals []Signal
}

func (n *recordingNotifier) Notify(_ context.Context, s Signal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, s)
}

func (n *recordingNotifier) kinds() []SignalKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SignalKind, len(n.signals))
	for i, s := range n.signals {
		out[i] = s.Kind
	}
	return out
}

// --- Harness ---

type harness struct {
	engine   *Engine
	remote   *fakeRemote
	local    *memLocal
	identity *fakeIdentity
	orders   *mockOrders
	notifier *recordingNotifier
}

func newHarness(remote *fakeRemote) *harness {
	if remote == nil {
		remote = newFakeRemote()
	}
	h := &harness{
		remote:   remote,
		local:    &memLocal{},
		identity: &fakeIdentity{},
		orders:   &mockOrders{},
		notifier: &recordingNotifier{},
	}
	h.engine = New(Deps{
		SessionID: "sess-1",
		Identity:  h.identity,
		Remote:    h.remote,
		Orders:    h.orders,
		Local:     h.local,
		Notifier:  h.notifier,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}
