package sendonce

import "context"

// Request names one logical mutation. ID must be unique per mutation and
// stable across retries of that mutation; Payload is opaque data handed to
// the gateway. A Request is never mutated or retained beyond the Send call
// it is passed to.
type Request[P any] struct {
	ID      string
	Payload P
}

// MarkerStore persists in-flight markers keyed by request identifier.
// Markers must survive process restarts for the protocol's guarantees to
// hold across crashes, which is why implementations are expected to live
// outside the process. Implementations must be safe for concurrent use.
type MarkerStore interface {
	// Store atomically inserts a marker for id. It must fail with an error
	// matching ErrInFlight when a marker already exists, and must not
	// overwrite. The marker must be persisted before Store returns.
	Store(ctx context.Context, id string) error

	// Unstore deletes the marker for id if present. Absence is success:
	// Unstore is idempotent.
	Unstore(ctx context.Context, id string) error
}

// Gateway exposes the two receiver operations the protocol sequences: the
// non-idempotent mutation and the idempotent existence check.
//
// Both operations must report an unknown outcome (timeout, lost response)
// with an error matching ErrInconclusive, and only then; definite failures
// propagate as ordinary errors. Mutate performs the side effect once per
// successful completion. CheckReceived is side-effect-free and reports
// whether the receiver already processed the request's identifier.
type Gateway[P, R any] interface {
	Mutate(ctx context.Context, req Request[P]) (R, error)
	CheckReceived(ctx context.Context, req Request[P]) (bool, error)
}

// GatewayFuncs adapts a pair of plain functions to the Gateway interface.
type GatewayFuncs[P, R any] struct {
	MutateFn        func(ctx context.Context, req Request[P]) (R, error)
	CheckReceivedFn func(ctx context.Context, req Request[P]) (bool, error)
}

func (g GatewayFuncs[P, R]) Mutate(ctx context.Context, req Request[P]) (R, error) {
	return g.MutateFn(ctx, req)
}

func (g GatewayFuncs[P, R]) CheckReceived(ctx context.Context, req Request[P]) (bool, error) {
	return g.CheckReceivedFn(ctx, req)
}
