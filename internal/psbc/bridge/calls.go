package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// callRegistry tracks the Context cancel funcs for tool calls still in
// flight, keyed by the call-scoped id invoke_tool hands back alongside
// its still-pending result (spec §4.6: long-running calls may be
// cancelled; on cancellation no commands are applied). One registry is
// shared by every document; call ids are unique process-wide.
type callRegistry struct {
	mu    sync.Mutex
	calls map[string]context.CancelFunc
}

func newCallRegistry() *callRegistry {
	return &callRegistry{calls: make(map[string]context.CancelFunc)}
}

// start derives a cancellable Context from parent, registers its cancel
// func under a fresh call id, and returns both.
func (r *callRegistry) start(parent context.Context) (string, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	r.mu.Lock()
	r.calls[id] = cancel
	r.mu.Unlock()
	return id, ctx
}

// finish forgets id, whether the call completed, failed, or was
// cancelled. Calling cancel for an id already finished is a no-op.
func (r *callRegistry) finish(id string) {
	r.mu.Lock()
	delete(r.calls, id)
	r.mu.Unlock()
}

// cancel cancels the call registered under id, reporting whether it was
// still in flight.
func (r *callRegistry) cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.calls[id]
	if ok {
		delete(r.calls, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// cancelAll cancels every in-flight call, used on Bridge shutdown.
func (r *callRegistry) cancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.calls))
	for id, cancel := range r.calls {
		cancels = append(cancels, cancel)
		delete(r.calls, id)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
