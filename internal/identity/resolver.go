// Package identity turns bearer tokens into shopper identities and tracks who
// each session is signed in as.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Resolver validates a bearer token and returns the identity it carries.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*domain.Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// JWTResolver validates HS256 tokens issued by the shop with a shared secret.
// The shop puts the username in "sub"; "user_id" is used when present.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve validates token locally.
func (r *JWTResolver) Resolve(_ context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("missing bearer token")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("token expired")
		}
		return nil, apperrors.Unauthorized("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.Unauthorized("invalid token claims")
	}

	sub := claimString(claims, "sub")
	if sub == "" {
		return nil, apperrors.Unauthorized("token has no subject")
	}
	id := &domain.Identity{UserID: sub, Username: sub, Token: token}
	if v := claimString(claims, "user_id"); v != "" {
		id.UserID = v
	}
	if v := claimString(claims, "username"); v != "" {
		id.Username = v
	}
	if v := claimString(claims, "email"); v != "" {
		id.Email = v
	}
	return id, nil
}

func claimString(c jwt.MapClaims, name string) string {
	switch v := c[name].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// UserLookup is the shop's "who am I" endpoint.
type UserLookup interface {
	Me(ctx context.Context, token string) (*domain.Identity, error)
}

// RemoteResolver asks the shop API who a token belongs to.
type RemoteResolver struct {
	users UserLookup
}

// NewRemoteResolver creates a resolver backed by users.
func NewRemoteResolver(users UserLookup) *RemoteResolver {
	return &RemoteResolver{users: users}
}

// Resolve calls the shop API.
func (r *RemoteResolver) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	id, err := r.users.Me(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return id, nil
}

// ChainResolver validates the token locally first and, when that succeeds,
// fills in profile details from the shop. A shop outage after a valid local
// check still signs the shopper in with the token's claims.
type ChainResolver struct {
	local  *JWTResolver
	remote *RemoteResolver
}

// NewChainResolver combines a local and a remote resolver.
func NewChainResolver(local *JWTResolver, remote *RemoteResolver) *ChainResolver {
	return &ChainResolver{local: local, remote: remote}
}

// Resolve runs the local check, then the remote lookup.
func (r *ChainResolver) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	id, err := r.local.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	full, err := r.remote.Resolve(ctx, token)
	switch {
	case err == nil:
		return full, nil
	case apperrors.IsTransient(err):
		return id, nil
	default:
		return nil, err
	}
}
