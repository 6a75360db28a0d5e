// Package catalog prices cart lines through a short lived Redis cache in
// front of the shop's product catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	keyPrefix = "price:"
	// unknownMarker caches a catalog miss so unknown products do not hit the
	// shop on every totals request.
	unknownMarker = "unknown"
)

// Source is the authoritative price lookup, normally shopapi.Catalog.
type Source interface {
	PriceOf(ctx context.Context, productID string) (decimal.Decimal, error)
}

// CachedPrices is a read-through price cache.
type CachedPrices struct {
	source  Source
	client  redis.UniversalClient
	ttl     time.Duration
	missTTL time.Duration
	logger  *slog.Logger
}

// NewCachedPrices wraps source with a Redis cache. Known prices live for ttl,
// unknown products for a tenth of it.
func NewCachedPrices(source Source, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedPrices {
	if logger == nil {
		logger = slog.Default()
	}
	miss := ttl / 10
	if miss <= 0 {
		miss = ttl
	}
	return &CachedPrices{source: source, client: client, ttl: ttl, missTTL: miss, logger: logger}
}

// PriceOf returns the price of productID. Unknown products yield an error
// matching apperrors.ErrNotFound. A Redis outage only costs the cache.
func (c *CachedPrices) PriceOf(ctx context.Context, productID string) (decimal.Decimal, error) {
	key := keyPrefix + productID

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == unknownMarker {
			return decimal.Zero, apperrors.NotFound("product", productID)
		}
		if p, perr := decimal.NewFromString(cached); perr == nil {
			return p, nil
		}
		c.logger.WarnContext(ctx, "discarding malformed cached price", slog.String("product_id", productID))
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "price cache unavailable", slog.String("error", err.Error()))
	}

	price, err := c.source.PriceOf(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.store(ctx, key, unknownMarker, c.missTTL)
		}
		return decimal.Zero, fmt.Errorf("price of %s: %w", productID, err)
	}
	c.store(ctx, key, price.String(), c.ttl)
	return price, nil
}

// Invalidate drops the cached price of productID.
func (c *CachedPrices) Invalidate(ctx context.Context, productID string) error {
	if err := c.client.Del(ctx, keyPrefix+productID).Err(); err != nil {
		return fmt.Errorf("redis del price: %w", err)
	}
	return nil
}

func (c *CachedPrices) store(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.DebugContext(ctx, "failed to cache price", slog.String("key", key), slog.String("error", err.Error()))
	}
}
