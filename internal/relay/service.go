package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"time"

	"github.com/ostraco/sendonce"
	"github.com/ostraco/sendonce/internal/metrics"
	"github.com/ostraco/sendonce/receiver"
	"github.com/ostraco/sendonce/retry"
)

// Sender is the slice of the send protocol the service drives. The concrete
// implementation is a sendonce.Protocol wired to the receiver client.
type Sender interface {
	Send(ctx context.Context, req sendonce.Request[json.RawMessage]) (*receiver.Receipt, error)
}

var (
	// ErrBusy means another submission of the same identifier is running
	// in this process right now.
	ErrBusy = errors.New("request identifier is being submitted")
	// ErrPayloadMismatch means the identifier was reused with a payload
	// that differs from the recorded one.
	ErrPayloadMismatch = errors.New("request identifier reused with a different payload")
)

type Service struct {
	jobs     JobStore
	sender   Sender
	registry *Registry
	policy   retry.Policy
	logger   *slog.Logger
}

func NewService(jobs JobStore, sender Sender, registry *Registry, policy retry.Policy, logger *slog.Logger) *Service {
	return &Service{
		jobs:     jobs,
		sender:   sender,
		registry: registry,
		policy:   policy,
		logger:   logger,
	}
}

// Submit relays the payload under the caller's request identifier and
// returns the job record describing the outcome. Submitting an identifier
// whose job already finished returns the recorded outcome without touching
// the wire, except for FAILED jobs, which get a fresh delivery attempt.
func (s *Service) Submit(ctx context.Context, requestID string, payload json.RawMessage) (*Job, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, errors.New("empty request identifier")
	}

	if !s.registry.Acquire(requestID) {
		return nil, ErrBusy
	}
	defer s.registry.Release(requestID)

	job, created, err := s.loadOrCreateJob(ctx, requestID, payload)
	if err != nil {
		return nil, err
	}

	if !created {
		if !payloadsEqual(job.Payload, payload) {
			return nil, ErrPayloadMismatch
		}
		if job.Status == StatusDelivered || job.Status == StatusDuplicate {
			return job, nil
		}
	}

	s.attempt(ctx, job)
	return job, nil
}

// Status returns the job record for the identifier.
func (s *Service) Status(ctx context.Context, requestID string) (*Job, error) {
	return s.jobs.FindJobByRequestID(ctx, requestID)
}

// Resend drives one more delivery round for a due job. Identifiers being
// submitted in this process right now are skipped, not queued.
func (s *Service) Resend(ctx context.Context, job *Job) error {
	if !s.registry.Acquire(job.RequestID) {
		return ErrBusy
	}
	defer s.registry.Release(job.RequestID)

	s.attempt(ctx, job)
	return nil
}

func (s *Service) loadOrCreateJob(ctx context.Context, requestID string, payload json.RawMessage) (*Job, bool, error) {
	job, err := s.jobs.FindJobByRequestID(ctx, requestID)
	if err == nil {
		return job, false, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, false, fmt.Errorf("failed to look up relay job: %w", err)
	}

	job = NewJob(requestID, payload)
	err = s.jobs.CreateJob(ctx, job)
	if err == nil {
		return job, true, nil
	}
	if errors.Is(err, ErrJobExists) {
		// Lost a cross-process insert race; the row is there now.
		job, err = s.jobs.FindJobByRequestID(ctx, requestID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to reload relay job: %w", err)
		}
		return job, false, nil
	}
	return nil, false, fmt.Errorf("failed to create relay job: %w", err)
}

// attempt runs one bounded delivery round through the send protocol and
// folds the outcome into the job record.
func (s *Service) attempt(ctx context.Context, job *Job) {
	started := time.Now()

	receipt, err := retry.Do(ctx, s.policy, func(ctx context.Context) (*receiver.Receipt, error) {
		return s.sender.Send(ctx, sendonce.Request[json.RawMessage]{
			ID:      job.RequestID,
			Payload: job.Payload,
		})
	})

	job.Attempts++
	job.UpdatedAt = time.Now()

	switch {
	case err == nil:
		now := time.Now()
		job.Status = StatusDelivered
		job.DeliveredAt = &now
		job.ReceiptStatus = &receipt.Status
		job.LastError = nil
		job.NextRetryAt = nil
	case errors.Is(err, sendonce.ErrAlreadySent):
		job.Status = StatusDuplicate
		job.LastError = nil
		job.NextRetryAt = nil
	case sendonce.Retryable(err), errors.Is(err, sendonce.ErrInFlight):
		// Outcome still unknown, or another sender holds the marker.
		// Either way the resender picks the job up again later.
		if errors.Is(err, sendonce.ErrInFlight) {
			metrics.RecordMarkerConflict()
		}
		job.Status = StatusPending
		s.scheduleRetry(job, err)
	default:
		job.Status = StatusFailed
		msg := err.Error()
		job.LastError = &msg
		job.NextRetryAt = nil
		s.logger.Warn("relay job failed",
			"request_id", job.RequestID,
			"attempts", job.Attempts,
			"error", err,
		)
	}

	metrics.RecordSend(strings.ToLower(string(job.Status)), time.Since(started))

	if updateErr := s.jobs.UpdateJob(ctx, job); updateErr != nil {
		s.logger.Error("failed to persist relay job outcome",
			"request_id", job.RequestID,
			"status", job.Status,
			"error", updateErr,
		)
	}
}

// payloadsEqual compares payloads as JSON values, not bytes: the job store
// normalizes JSON on the way through, so a byte comparison would reject a
// caller resubmitting the exact payload it sent before.
func payloadsEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

func (s *Service) scheduleRetry(job *Job, cause error) {
	delay := math.Pow(2, float64(job.Attempts)) * float64(30*time.Second)
	if maxDelay := float64(time.Hour); delay > maxDelay {
		delay = maxDelay
	}

	jitter := rand.Int63n(1000)
	next := time.Now().Add(time.Duration(delay) + time.Duration(jitter)*time.Millisecond)
	job.NextRetryAt = &next

	msg := cause.Error()
	job.LastError = &msg
}
