// Package session exposes the signed-in user. Credential storage lives elsewhere.
package session

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type Provider interface {
	// Current returns domain.ErrNoSession when nobody is signed in.
	Current(ctx context.Context) (*domain.User, error)
}

// Static holds the single active user of the process.
type Static struct {
	mu   sync.RWMutex
	user *domain.User
}

func NewStatic(u *domain.User) *Static {
	s := &Static{}
	s.SignIn(u)
	return s
}

func (s *Static) Current(context.Context) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, domain.ErrNoSession
	}
	u := *s.user
	return &u, nil
}

// SignIn replaces the active user; nil signs out.
func (s *Static) SignIn(u *domain.User) {
	var cp *domain.User
	if u != nil {
		v := *u
		cp = &v
	}
	s.mu.Lock()
	s.user = cp
	s.mu.Unlock()
}

func (s *Static) SignOut() {
	s.SignIn(nil)
}

type ctxKey struct{}

// WithUser stores u in ctx for request-scoped handlers.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFrom(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*domain.User)
	return u, ok && u != nil
}
