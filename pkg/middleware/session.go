package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

// SessionIDHeader identifies the browser session a request belongs to.
const SessionIDHeader = "X-Session-ID"

// maxSessionIDLen bounds client supplied ids so they stay usable as Redis keys.
const maxSessionIDLen = 128

// SessionID extracts the session id from the request header, or mints a new
// one when it is missing or malformed, stores it in the context and echoes it
// back in the response so the browser can keep sending it.
func SessionID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(SessionIDHeader)
			if !validSessionID(id) {
				id = uuid.New().String()
			}

			w.Header().Set(SessionIDHeader, id)
			next.ServeHTTP(w, r.WithContext(logger.WithSessionID(r.Context(), id)))
		})
	}
}

func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
