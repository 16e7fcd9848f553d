// Package watch turns store writes into latest-wins change streams.
package watch

import (
	"context"
	"log/slog"
	"sync"
)

// Hub fans out change signals per key. Signals are coalesced: a subscriber
// that has not consumed the previous signal only sees one pending signal.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan struct{}]struct{})}
}

func (h *Hub) Subscribe(key int64) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan struct{}]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], ch)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
		})
	}
}

func (h *Hub) Notify(key int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NotifyAll signals every subscriber regardless of key.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	keys := make([]int64, 0, len(h.subs))
	for k := range h.subs {
		keys = append(keys, k)
	}
	h.mu.Unlock()
	for _, k := range keys {
		h.Notify(k)
	}
}

// Observe emits load's result immediately and again after every signal for key.
// The initial load error is returned; later load errors are logged and skipped.
// The channel is closed when ctx is done.
func Observe[T any](ctx context.Context, hub *Hub, key int64, log *slog.Logger, load func(context.Context) (T, error)) (<-chan T, error) {
	signals, unsubscribe := hub.Subscribe(key)
	first, err := load(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	out := make(chan T)
	go func() {
		defer close(out)
		defer unsubscribe()

		pending, send := first, true
		for {
			if send {
				select {
				case out <- pending:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-signals:
			case <-ctx.Done():
				return
			}
			next, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("reload failed", "key", key, "err", err)
				send = false
				continue
			}
			pending, send = next, true
		}
	}()
	return out, nil
}
