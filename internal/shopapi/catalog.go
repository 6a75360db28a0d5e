package shopapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// Catalog reads product records.
type Catalog struct {
	client *Client
}

// NewCatalog creates a catalog adapter.
func NewCatalog(c *Client) *Catalog {
	return &Catalog{client: c}
}

// Product fetches one product. Unknown products yield an error matching
// apperrors.ErrNotFound.
func (s *Catalog) Product(ctx context.Context, productID string) (*domain.Product, error) {
	var row productRow
	err := s.client.do(ctx, call{
		op:     "get_product",
		method: http.MethodGet,
		path:   "/products/" + url.PathEscape(productID),
		out:    &row,
	})
	if err != nil {
		return nil, err
	}
	p := row.product()
	if p.ID == "" {
		p.ID = productID
	}
	return &p, nil
}

// PriceOf returns the current price of productID.
func (s *Catalog) PriceOf(ctx context.Context, productID string) (decimal.Decimal, error) {
	p, err := s.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}
