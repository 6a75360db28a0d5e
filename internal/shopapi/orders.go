package shopapi

import (
	"context"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
)

// OrderService places orders from the signed-in cart.
type OrderService struct {
	client *Client
}

// NewOrderService creates an order adapter.
func NewOrderService(c *Client) *OrderService {
	return &OrderService{client: c}
}

// Checkout turns the shopper's remote cart into an order. A refusal comes
// back as an AppError carrying the shop's message unchanged.
func (s *OrderService) Checkout(ctx context.Context, id domain.Identity) (*domain.OrderConfirmation, error) {
	var row orderRow
	err := s.client.do(ctx, call{
		op:     "checkout",
		method: http.MethodPost,
		path:   "/cart/checkout",
		token:  id.Token,
		out:    &row,
	})
	if err != nil {
		return nil, err
	}
	return row.confirmation(), nil
}
