package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionStore hands out the session a request belongs to.
type SessionStore interface {
	Get(id string) *session.Session
}

// WithSession loads the request's session into the context. It must run after
// middleware.SessionID. A signed-in session also tags the context with its
// user id for logs and events.
func WithSession(sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := logger.SessionIDFromContext(ctx)
			if id == "" {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "session id is required"},
				})
				return
			}

			s := sessions.Get(id)
			if ident := s.Auth.CurrentIdentity(); ident != nil {
				ctx = logger.WithUserID(ctx, ident.UserID)
				ctx = logger.NewContext(ctx, logger.FromContext(ctx).With("user_id", ident.UserID))
			}
			ctx = context.WithValue(ctx, sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
