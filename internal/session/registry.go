// Package session keeps one identity holder and one cart engine per browser
// session and forgets sessions that go quiet.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/internal/identity"
)

var (
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_sessions_active",
		Help: "Number of sessions held in memory",
	})
	evictedSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sessions_evicted_total",
		Help: "Total number of sessions evicted after being idle",
	})
	authChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_auth_changes_total",
		Help: "Total number of sign ins and sign outs",
	}, []string{"change"})
)

func init() {
	prometheus.MustRegister(activeSessions, evictedSessions, authChanges)
}

// EngineFactory builds the cart engine of a new session.
type EngineFactory func(sessionID string, ids engine.IdentityProvider) *engine.Engine

// Session is the server side state of one browser session.
type Session struct {
	ID     string
	Auth   *identity.Auth
	Engine *engine.Engine

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Login signs the session in with token and merges the anonymous cart into
// the shopper's remote cart.
func (s *Session) Login(ctx context.Context, token string) (*engine.Result, *domain.Identity, error) {
	change, err := s.Auth.SignIn(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.Engine.HandleAuthChange(ctx, change)
	if err != nil {
		return nil, nil, err
	}
	return res, change.Identity, nil
}

// Logout signs the session out and resets the cart to the anonymous one.
func (s *Session) Logout(ctx context.Context) (*engine.Result, error) {
	return s.Engine.HandleAuthChange(ctx, s.Auth.SignOut(ctx))
}

// Registry maps session ids to sessions.
type Registry struct {
	resolver  identity.Resolver
	newEngine EngineFactory
	idle      time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. Sessions unused for idle are
// dropped by Sweep.
func NewRegistry(resolver identity.Resolver, newEngine EngineFactory, idle time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		resolver:  resolver,
		newEngine: newEngine,
		idle:      idle,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the session for id, creating it on first use.
func (r *Registry) Get(id string) *Session {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.touch(now)
		return s
	}

	auth := identity.NewAuth(r.resolver)
	s := &Session{ID: id, Auth: auth, Engine: r.newEngine(id, auth), lastSeen: now}
	auth.OnAuthChange(func(ctx context.Context, c domain.AuthChange) {
		change := "sign_out"
		if c.SignedIn() {
			change = "sign_in"
		}
		authChanges.WithLabelValues(change).Inc()
		r.logger.InfoContext(ctx, "session auth changed", slog.String("session_id", id), slog.String("change", change))
	})
	r.sessions[id] = s
	activeSessions.Set(float64(len(r.sessions)))
	return s
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the idle timeout and returns how
// many were dropped. An anonymous cart survives in the local store; a
// signed-in shopper has to sign in again.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		evictedSessions.Add(float64(n))
		activeSessions.Set(float64(len(r.sessions)))
		r.logger.Debug("idle sessions evicted", slog.Int("count", n), slog.Int("remaining", len(r.sessions)))
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
