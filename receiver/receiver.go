// Package receiver provides an HTTP gateway for submitting requests to a
// receiver service and checking whether a given request was already recorded.
//
// The wire contract is small: POST {base}/requests records a request and
// answers with a Receipt, GET {base}/requests/{id} reports whether the
// identifier is known. Transport failures, timeouts and 5xx answers are
// classified as inconclusive because the submission may or may not have been
// recorded; 4xx answers are definite rejections.
package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ostraco/sendonce"
)

const defaultTimeout = 10 * time.Second

// Receipt is the receiver's acknowledgement that a request was recorded.
type Receipt struct {
	RequestID  string    `json:"request_id"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

type submission struct {
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Client talks to a receiver service over HTTP. It satisfies the gateway
// contract expected by the send protocol, so it can be handed directly to
// sendonce.New.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ sendonce.Gateway[json.RawMessage, *Receipt] = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a client for the receiver at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mutate submits the request to the receiver. The submission is not
// idempotent on the wire: every delivered POST records a new entry, which is
// exactly why callers route it through the send protocol.
func (c *Client) Mutate(ctx context.Context, req sendonce.Request[json.RawMessage]) (*Receipt, error) {
	body, err := json.Marshal(submission{RequestID: req.ID, Payload: req.Payload})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/requests", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// The POST may have reached the receiver even though the reply
		// never made it back.
		return nil, sendonce.Inconclusive(fmt.Errorf("error making request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sendonce.Inconclusive(fmt.Errorf("error reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.statusError(resp.StatusCode, respBody)
	}

	var receipt Receipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	return &receipt, nil
}

// CheckReceived reports whether the receiver already recorded the request
// identifier. The lookup is read-only and safe to repeat.
func (c *Client) CheckReceived(ctx context.Context, req sendonce.Request[json.RawMessage]) (bool, error) {
	lookupURL := fmt.Sprintf("%s/requests/%s", c.baseURL, url.PathEscape(req.ID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return false, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, sendonce.Inconclusive(fmt.Errorf("error making request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, sendonce.Inconclusive(fmt.Errorf("error reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, c.statusError(resp.StatusCode, respBody)
	}
}

// statusError turns a non-success answer into a typed error. Server-side
// failures are wrapped as inconclusive because the receiver's state is
// unknown; everything else is a definite rejection.
func (c *Client) statusError(statusCode int, body []byte) error {
	recvErr := &Error{
		Code:       "unknown_error",
		Message:    http.StatusText(statusCode),
		StatusCode: statusCode,
	}
	var wire errorResponse
	if err := json.Unmarshal(body, &wire); err == nil && wire.Err != "" {
		recvErr.Code = wire.Err
		recvErr.Message = wire.Message
	}

	if statusCode >= http.StatusInternalServerError {
		return sendonce.Inconclusive(recvErr)
	}
	return recvErr
}
