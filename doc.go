// Package sendonce makes a single non-idempotent request safe to retry over
// an unreliable transport.
//
// A transport may lose a request, lose its response, or time out, leaving
// the sender unable to tell whether the receiver performed the side effect.
// Naively retrying risks performing it twice; never retrying risks not at
// all. This package pairs the mutating call with two collaborators to close
// that gap: a persistent in-flight marker keyed by a caller-supplied
// identifier (MarkerStore), and an idempotent existence check against the
// receiver (Gateway.CheckReceived).
//
// One Send call claims the marker, performs the mutation, and classifies
// every failure as retry (ErrInconclusive), already delivered
// (ErrAlreadySent), or fatal. When the marker is already held, Send consults
// the existence check to decide between "a previous attempt completed"
// (terminal ErrAlreadySent) and "an attempt is genuinely in flight"
// (ErrInFlight). After a successful Send the marker is deliberately left in
// the store; that record is what turns a late duplicate Send into
// ErrAlreadySent instead of a second mutation.
//
// Basic usage:
//
//	store := sendonce.NewMemoryStore()
//	proto := sendonce.New[Invoice, Receipt](store, gateway)
//
//	receipt, err := proto.Send(ctx, sendonce.Request[Invoice]{ID: key, Payload: inv})
//	switch {
//	case err == nil:
//		// delivered, response in hand
//	case sendonce.Terminal(err):
//		// delivered earlier; stop retrying this identifier
//	case sendonce.Retryable(err):
//		// outcome unknown; call Send again with the same request
//	default:
//		// fatal; surface it
//	}
//
// The retry subpackage implements that loop with backoff; store/redisstore
// and store/pgstore provide persistent marker stores; receiver is an HTTP
// gateway that maps transport ambiguity onto ErrInconclusive.
//
// Callers must serialize Send per identifier and stop after a success;
// the protocol documents this as a precondition rather than guarding it.
package sendonce
