package shopapi

import (
	"context"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Users resolves bearer tokens through the shop's /auth/me endpoint.
type Users struct {
	client *Client
}

// NewUsers creates an auth adapter.
func NewUsers(c *Client) *Users {
	return &Users{client: c}
}

// Me returns the identity the token belongs to.
func (s *Users) Me(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("missing bearer token")
	}
	var row userRow
	err := s.client.do(ctx, call{
		op:     "me",
		method: http.MethodGet,
		path:   "/auth/me",
		token:  token,
		out:    &row,
	})
	if err != nil {
		return nil, err
	}
	return &domain.Identity{
		UserID:   string(row.ID),
		Username: row.Username,
		Email:    row.Email,
		Token:    token,
	}, nil
}
