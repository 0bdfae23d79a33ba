package sendonce

import "errors"

// The protocol's closed error taxonomy. Callers branch with errors.Is;
// everything outside these three is a collaborator error propagated verbatim.
var (
	// ErrInFlight reports that a marker already exists for the identifier
	// and reconciliation could not resolve it to a definite "already sent".
	// Marker stores return it (possibly wrapped) from Store on a duplicate
	// insert. Fatal to the current Send call; a caller's outer loop may
	// still retry the whole Send after a delay.
	ErrInFlight = errors.New("send already in flight")

	// ErrAlreadySent reports that the receiver already holds the effect of
	// this identifier. Terminal: callers must treat it as success and stop
	// retrying the identifier. The mutation's response is not available.
	ErrAlreadySent = errors.New("request already sent")

	// ErrInconclusive reports that the outcome of a mutation or existence
	// check is genuinely unknown. Retrying the same Send with the same
	// identifier is the designed recovery; the marker's presence routes the
	// retry through reconciliation.
	ErrInconclusive = errors.New("outcome inconclusive")
)

// Inconclusive wraps err so it matches ErrInconclusive while keeping the
// cause available to errors.Is and errors.As. Gateways use it to reclassify
// timeouts and lost responses. Returns nil when err is nil.
func Inconclusive(err error) error {
	if err == nil {
		return nil
	}
	return &inconclusiveError{err: err}
}

type inconclusiveError struct {
	err error
}

func (e *inconclusiveError) Error() string {
	return "outcome inconclusive: " + e.err.Error()
}

func (e *inconclusiveError) Unwrap() error {
	return e.err
}

func (e *inconclusiveError) Is(target error) bool {
	return target == ErrInconclusive
}

// Category represents the caller-facing nature of a Send failure.
type Category string

const (
	// CategoryRetry: retry the same Send with the same request.
	CategoryRetry Category = "RETRY"
	// CategoryDelivered: the effect is already in place; stop retrying.
	CategoryDelivered Category = "DELIVERED"
	// CategoryFatal: neither retriable nor delivered; surface to the caller.
	CategoryFatal Category = "FATAL"
)

// Categorize maps a Send error onto the retry / delivered / fatal taxonomy.
// Delivered wins over retry so that a joined compensation failure still
// reads as delivered. Returns "" for nil.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrAlreadySent) {
		return CategoryDelivered
	}
	if errors.Is(err, ErrInconclusive) {
		return CategoryRetry
	}
	return CategoryFatal
}

// Retryable reports whether re-invoking Send with the same request is the
// designed recovery for err.
func Retryable(err error) bool {
	return Categorize(err) == CategoryRetry
}

// Terminal reports whether the caller must stop retrying the identifier
// because its effect is already in place.
func Terminal(err error) bool {
	return Categorize(err) == CategoryDelivered
}
