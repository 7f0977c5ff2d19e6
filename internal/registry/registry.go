// Package registry tracks the latest payload received for each named event a
// simulation client cares about, and lets callers block until one of a set of
// expected events arrives.
package registry

import (
	"context"
	"sync"

	"go.bryk.io/x/cargonetsim/internal/wire"
)

// Registry is a per-client map of normalized event name to the latest
// payload received for it, guarded by a condition variable so waiters can
// be woken as soon as a relevant event is registered.
type Registry struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events map[string]map[string]interface{}
}

// New returns a ready to use Registry.
func New() *Registry {
	r := &Registry{events: make(map[string]map[string]interface{})}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register records the payload under the normalized form of the event name
// and wakes any goroutine currently waiting on it.
func (r *Registry) Register(name string, payload map[string]interface{}) {
	normalized := wire.NormalizeEventName(name)
	r.mu.Lock()
	r.events[normalized] = payload
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Has reports whether an event has been registered.
func (r *Registry) Has(name string) bool {
	normalized := wire.NormalizeEventName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.events[normalized]
	return ok
}

// Get returns the payload registered for an event, if any.
func (r *Registry) Get(name string) (map[string]interface{}, bool) {
	normalized := wire.NormalizeEventName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, ok := r.events[normalized]
	return payload, ok
}

// Clear removes a single registered event, normally once it has been
// consumed by a waiter.
func (r *Registry) Clear(name string) {
	normalized := wire.NormalizeEventName(name)
	r.mu.Lock()
	delete(r.events, normalized)
	r.mu.Unlock()
}

// ClearNames removes every event in the provided list.
func (r *Registry) ClearNames(names []string) {
	r.mu.Lock()
	for _, name := range names {
		delete(r.events, wire.NormalizeEventName(name))
	}
	r.mu.Unlock()
}

// ClearAll discards every registered event.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	r.events = make(map[string]map[string]interface{})
	r.mu.Unlock()
}

// Wait blocks until one of the expected events has been registered, or ctx
// is done. On success it returns the matched (normalized) event name and its
// payload, consuming the entry. Using ctx's deadline instead of repeatedly
// diffing wall-clock timestamps means an external clock change can never
// cause this call to return early or hang past its intended deadline.
func (r *Registry) Wait(ctx context.Context, expected []string) (string, map[string]interface{}, bool) {
	normalized := make([]string, len(expected))
	for i, name := range expected {
		normalized[i] = wire.NormalizeEventName(name)
	}

	// A dedicated goroutine turns ctx cancellation into a cond.Broadcast so
	// the waiting goroutine below is never stuck inside cond.Wait past the
	// deadline.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.cond.Broadcast()
		case <-done:
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		for _, name := range normalized {
			if payload, ok := r.events[name]; ok {
				delete(r.events, name)
				return name, payload, true
			}
		}
		if ctx.Err() != nil {
			return "", nil, false
		}
		r.cond.Wait()
	}
}
