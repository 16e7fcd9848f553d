package cart

import (
	"context"
	"sync"
)

// Registry keeps one running Engine per user. Engines live until Close.
type Registry struct {
	ctx       context.Context
	newEngine func(userID int64) *Engine

	mu      sync.Mutex
	engines map[int64]*Engine
}

// NewRegistry starts engines with ctx, so they stop when ctx is done.
func NewRegistry(ctx context.Context, newEngine func(userID int64) *Engine) *Registry {
	return &Registry{ctx: ctx, newEngine: newEngine, engines: make(map[int64]*Engine)}
}

// Engine returns the user's engine, starting it on first use.
func (r *Registry) Engine(userID int64) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[userID]; ok {
		return e, nil
	}
	e := r.newEngine(userID)
	if err := e.Start(r.ctx); err != nil {
		return nil, err
	}
	r.engines[userID] = e
	return e, nil
}

// RefreshAll reprices every running engine.
func (r *Registry) RefreshAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.engines {
		e.Refresh()
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[int64]*Engine)
	r.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}
