package shopapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/utafrali/storefront/internal/domain"
)

// CartStore is the signed-in shopper's server side cart.
type CartStore struct {
	client *Client
}

// NewCartStore creates a cart adapter.
func NewCartStore(c *Client) *CartStore {
	return &CartStore{client: c}
}

// FetchCart returns the raw remote rows. Rows are not folded here; repeated
// products are the caller's concern.
func (s *CartStore) FetchCart(ctx context.Context, id domain.Identity) ([]domain.CartLine, error) {
	var rows []cartRow
	err := s.client.do(ctx, call{
		op:     "fetch_cart",
		method: http.MethodGet,
		path:   "/cart/",
		token:  id.Token,
		out:    &rows,
	})
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, r.line())
	}
	return lines, nil
}

// AddLine adds quantity units of productID and returns the id of the row
// the shop stored them in.
func (s *CartStore) AddLine(ctx context.Context, id domain.Identity, productID string, quantity int) (string, error) {
	var row cartRow
	err := s.client.do(ctx, call{
		op:     "add_line",
		method: http.MethodPost,
		path:   "/cart/add",
		token:  id.Token,
		body:   addRequest{ProductID: wireID(productID), Quantity: quantity},
		out:    &row,
	})
	if err != nil {
		return "", err
	}
	if row.ID == "" {
		return "", fmt.Errorf("add line: shop returned no row id for product %s", productID)
	}
	return string(row.ID), nil
}

// UpdateLine sets the quantity of an existing row.
func (s *CartStore) UpdateLine(ctx context.Context, id domain.Identity, remoteLineID string, quantity int) error {
	q := url.Values{"quantity": []string{strconv.Itoa(quantity)}}
	return s.client.do(ctx, call{
		op:     "update_line",
		method: http.MethodPut,
		path:   "/cart/update/" + url.PathEscape(remoteLineID) + "?" + q.Encode(),
		token:  id.Token,
	})
}

// RemoveLine deletes a row. A row that no longer exists yields an error
// matching apperrors.ErrNotFound.
func (s *CartStore) RemoveLine(ctx context.Context, id domain.Identity, remoteLineID string) error {
	return s.client.do(ctx, call{
		op:     "remove_line",
		method: http.MethodDelete,
		path:   "/cart/remove/" + url.PathEscape(remoteLineID),
		token:  id.Token,
	})
}
