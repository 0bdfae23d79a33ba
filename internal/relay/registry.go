package relay

import "sync"

// Registry serializes work per request identifier inside this process, so a
// caller retry and the resender never drive the same identifier at once.
// Cross-process exclusion is the marker store's job, not the registry's.
type Registry struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		inFlight: make(map[string]struct{}),
	}
}

// Acquire claims the identifier. It reports false if someone in this process
// already holds it.
func (r *Registry) Acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.inFlight[id]; held {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

// Release gives the identifier back. Releasing an unheld identifier is a
// no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}

// Len returns how many identifiers are currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}
