package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/identity"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// SessionHandler handles sign in and sign out.
type SessionHandler struct {
	logger *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(logger *slog.Logger) *SessionHandler {
	return &SessionHandler{logger: logger}
}

// LoginRequest is the optional body of POST /api/v1/session/login. The
// Authorization header takes precedence.
type LoginRequest struct {
	Token string `json:"token" validate:"omitempty,jwt"`
}

// SessionResponse describes who the session is signed in as.
type SessionResponse struct {
	SignedIn bool             `json:"signed_in"`
	Identity *domain.Identity `json:"identity,omitempty"`
	Cart     *CartView        `json:"cart,omitempty"`
}

// Login handles POST /api/v1/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		var req LoginRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		token = req.Token
	}
	if token == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("bearer token is required"), h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	res, id, err := s.Login(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	view := cartView(res.Cart)
	httputil.WriteData(w, http.StatusOK, SessionResponse{SignedIn: true, Identity: id, Cart: &view}, warnings(res.Signals)...)
}

// Logout handles POST /api/v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	res, err := s.Logout(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	view := cartView(res.Cart)
	httputil.WriteData(w, http.StatusOK, SessionResponse{Cart: &view})
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	id := s.Auth.CurrentIdentity()
	httputil.WriteData(w, http.StatusOK, SessionResponse{SignedIn: id != nil, Identity: id})
}
