// Package localstore keeps anonymous carts in Redis so they survive process
// restarts and reach whichever storefront instance serves the next request.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

const keyPrefix = "storefront:cart:"

// Store persists anonymous carts keyed by session id.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Redis-backed local cart store. Saved carts expire after ttl
// without writes.
func New(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// Key returns the Redis key holding a session's cart.
func Key(sessionID string) string {
	return keyPrefix + sessionID
}

// ForSession scopes the store to one session.
func (s *Store) ForSession(sessionID string) *SessionStore {
	return &SessionStore{store: s, key: Key(sessionID)}
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type storedLine struct {
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type payload struct {
	Lines   []storedLine `json:"lines"`
	SavedAt time.Time    `json:"saved_at"`
}

// SessionStore is the local store of a single session.
type SessionStore struct {
	store *Store
	key   string
}

// Load returns the saved lines, or nil when nothing is saved.
func (s *SessionStore) Load(ctx context.Context) ([]domain.CartLine, error) {
	data, err := s.store.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get local cart: %w", err)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal local cart: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, domain.CartLine{
			ProductID:         l.ProductID,
			Quantity:          l.Quantity,
			UnitPriceSnapshot: l.UnitPrice,
		})
	}
	return lines, nil
}

// Save replaces the saved lines and restarts the expiry. Remote row ids are
// not stored; an anonymous cart has none. Saving no lines deletes the key.
func (s *SessionStore) Save(ctx context.Context, lines []domain.CartLine) error {
	if len(lines) == 0 {
		return s.Clear(ctx)
	}

	p := payload{Lines: make([]storedLine, 0, len(lines)), SavedAt: s.store.now().UTC()}
	for _, l := range lines {
		p.Lines = append(p.Lines, storedLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPriceSnapshot})
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal local cart: %w", err)
	}
	if err := s.store.client.Set(ctx, s.key, data, s.store.ttl).Err(); err != nil {
		return fmt.Errorf("redis set local cart: %w", err)
	}
	return nil
}

// Clear deletes the saved cart.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.store.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del local cart: %w", err)
	}
	return nil
}
