package sendonce

import (
	"context"
	"sync"
)

// fakeStore is a MarkerStore with overridable behavior and call counters.
// Defaults behave like MemoryStore.
type fakeStore struct {
	mu      sync.Mutex
	markers map[string]struct{}
	calls   map[string]int

	StoreFn   func(ctx context.Context, id string) error
	UnstoreFn func(ctx context.Context, id string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		markers: make(map[string]struct{}),
		calls:   make(map[string]int),
	}
}

func (s *fakeStore) inc(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
}

func (s *fakeStore) GetCalls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *fakeStore) Store(ctx context.Context, id string) error {
	s.inc("Store")
	if s.StoreFn != nil {
		return s.StoreFn(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.markers[id]; exists {
		return ErrInFlight
	}
	s.markers[id] = struct{}{}
	return nil
}

func (s *fakeStore) Unstore(ctx context.Context, id string) error {
	s.inc("Unstore")
	if s.UnstoreFn != nil {
		return s.UnstoreFn(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, id)
	return nil
}

func (s *fakeStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.markers[id]
	return exists
}

func (s *fakeStore) put(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[id] = struct{}{}
}

// fakeGateway is a Gateway[string, string] with overridable behavior and
// call counters. Default Mutate succeeds, default CheckReceived says no.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	MutateFn        func(ctx context.Context, req Request[string]) (string, error)
	CheckReceivedFn func(ctx context.Context, req Request[string]) (bool, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls: make(map[string]int),
	}
}

func (g *fakeGateway) inc(method string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[method]++
}

func (g *fakeGateway) GetCalls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

func (g *fakeGateway) Mutate(ctx context.Context, req Request[string]) (string, error) {
	g.inc("Mutate")
	if g.MutateFn != nil {
		return g.MutateFn(ctx, req)
	}
	return "receipt:" + req.Payload, nil
}

func (g *fakeGateway) CheckReceived(ctx context.Context, req Request[string]) (bool, error) {
	g.inc("CheckReceived")
	if g.CheckReceivedFn != nil {
		return g.CheckReceivedFn(ctx, req)
	}
	return false, nil
}
