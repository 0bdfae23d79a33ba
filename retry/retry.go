// Package retry implements the caller's side of the send protocol: a loop
// that re-invokes Send while the outcome is inconclusive and stops on
// success, on a terminal outcome, or on a fatal error.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ostraco/sendonce"
)

// Policy controls how Do paces repeated attempts.
type Policy struct {
	// MaxAttempts bounds the total number of attempts. Values below one
	// mean a single attempt.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Zero means uncapped.
	MaxDelay time.Duration
	// Jitter adds a random duration in [0, Jitter) to every delay. Zero
	// disables jitter.
	Jitter time.Duration
}

// DefaultPolicy suits interactive callers: a few quick attempts under a
// second of total backoff.
var DefaultPolicy = Policy{
	MaxAttempts: 4,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	Jitter:      50 * time.Millisecond,
}

// Do invokes send until it returns a non-retryable outcome or the attempt
// budget runs out. Success, ErrAlreadySent, ErrInFlight, and fatal errors
// return immediately; inconclusive outcomes are retried after an
// exponential, jittered delay. Waits respect ctx cancellation. An exhausted
// budget wraps the last error so errors.Is still classifies it.
func Do[R any](ctx context.Context, policy Policy, send func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	var lastErr error

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(policy.backoff(attempt - 1)):
			}
		}

		resp, err := send(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !sendonce.Retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func (p Policy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<attempt)
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return delay
}
