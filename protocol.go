package sendonce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Protocol turns a non-idempotent mutation into a retry-safe send. One call
// to Send claims the in-flight marker, performs the mutation, and, when the
// claim is contested, reconciles against the receiver's existence check.
//
// Concurrency contract (precondition, not enforced internally): at most one
// Send in flight per identifier at any time, across the whole system, and no
// further Send for an identifier after one returned a response successfully.
// The store's atomic insert is the only internal guard.
type Protocol[P, R any] struct {
	store   MarkerStore
	gateway Gateway[P, R]
	logger  *slog.Logger
}

// Option configures a Protocol or Factory.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used by the protocol. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New builds a Protocol over one marker store and one gateway pair.
func New[P, R any](store MarkerStore, gateway Gateway[P, R], opts ...Option) *Protocol[P, R] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Protocol[P, R]{
		store:   store,
		gateway: gateway,
		logger:  o.logger,
	}
}

// Send performs the request exactly once as observed by the caller.
//
// Outcomes: a response with the marker left in the store; ErrAlreadySent
// when the receiver already holds the effect; an error matching
// ErrInconclusive when the outcome is unknown and the same Send should be
// retried; the store's ErrInFlight error when a contested marker cannot be
// resolved; any other collaborator error verbatim after compensating
// cleanup. No branch swallows an error.
func (p *Protocol[P, R]) Send(ctx context.Context, req Request[P]) (R, error) {
	var zero R

	if req.ID == "" {
		return zero, errors.New("send: empty request identifier")
	}

	storeErr := p.store.Store(ctx, req.ID)
	if storeErr != nil {
		if !errors.Is(storeErr, ErrInFlight) {
			return zero, fmt.Errorf("store marker %q: %w", req.ID, storeErr)
		}
		return zero, p.reconcile(ctx, req, storeErr)
	}

	resp, err := p.gateway.Mutate(ctx, req)
	if err == nil {
		// The marker stays: its presence is what makes a later duplicate
		// send for this identifier resolve to ErrAlreadySent instead of
		// mutating again.
		return resp, nil
	}

	if errors.Is(err, ErrInconclusive) {
		// Unknown outcome. The marker stays so the next attempt enters
		// reconciliation instead of mutating blindly.
		p.logger.Debug("mutation inconclusive, marker kept", "request_id", req.ID)
		return zero, err
	}

	// Definite failure: the mutation did not happen, so withdraw the marker
	// and let a future retry start fresh.
	if unstoreErr := p.store.Unstore(ctx, req.ID); unstoreErr != nil {
		return zero, errors.Join(err, fmt.Errorf("unstore marker %q: %w", req.ID, unstoreErr))
	}
	return zero, err
}

// reconcile resolves a contested marker: either the identifier's effect is
// already in place (terminal), or a genuine in-flight attempt exists and the
// original store error propagates unchanged.
func (p *Protocol[P, R]) reconcile(ctx context.Context, req Request[P], storeErr error) error {
	received, err := p.gateway.CheckReceived(ctx, req)
	if err != nil {
		// Inconclusive or otherwise: the marker's fate cannot be decided,
		// so it is left untouched and the next Send reconciles again.
		return err
	}

	if !received {
		// A marker with no recorded effect: some other attempt is (or was)
		// genuinely in flight. Neither success nor a safe retry point.
		p.logger.Warn("marker contested and request not received", "request_id", req.ID)
		return storeErr
	}

	// The receiver already holds the effect; the marker outlived its send.
	p.logger.Debug("request already received, clearing stale marker", "request_id", req.ID)
	if unstoreErr := p.store.Unstore(ctx, req.ID); unstoreErr != nil {
		return errors.Join(ErrAlreadySent, fmt.Errorf("unstore marker %q: %w", req.ID, unstoreErr))
	}
	return ErrAlreadySent
}
