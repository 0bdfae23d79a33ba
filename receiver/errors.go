package receiver

import "fmt"

// Error is a definite rejection from the receiver: the request was judged
// and refused, so the mutation is known not to have been applied.
type Error struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("receiver error: %s (status: %d)", e.Message, e.StatusCode)
}

type errorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}
