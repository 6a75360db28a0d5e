package identity

import (
	"context"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Listener is called after every sign in or sign out.
type Listener func(ctx context.Context, change domain.AuthChange)

// Auth holds the identity of one session.
type Auth struct {
	resolver Resolver

	mu        sync.RWMutex
	current   *domain.Identity
	listeners map[int]Listener
	nextID    int
}

// NewAuth creates an anonymous session identity.
func NewAuth(resolver Resolver) *Auth {
	return &Auth{resolver: resolver, listeners: make(map[int]Listener)}
}

// CurrentIdentity returns a copy of the signed-in identity, or nil.
func (a *Auth) CurrentIdentity() *domain.Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return nil
	}
	id := *a.current
	return &id
}

// OnAuthChange registers fn and returns a function that removes it.
func (a *Auth) OnAuthChange(fn Listener) (remove func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

// SignIn resolves token and makes it the session's identity. A token that
// does not resolve leaves the session as it was.
func (a *Auth) SignIn(ctx context.Context, token string) (domain.AuthChange, error) {
	id, err := a.resolver.Resolve(ctx, token)
	if err != nil {
		return domain.AuthChange{}, err
	}
	return a.set(ctx, id), nil
}

// SignOut forgets the identity.
func (a *Auth) SignOut(ctx context.Context) domain.AuthChange {
	return a.set(ctx, nil)
}

func (a *Auth) set(ctx context.Context, id *domain.Identity) domain.AuthChange {
	a.mu.Lock()
	a.current = id
	listeners := make([]Listener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	change := domain.AuthChange{}
	if id != nil {
		cp := *id
		change.Identity = &cp
	}
	for _, fn := range listeners {
		fn(ctx, change)
	}
	return change
}
