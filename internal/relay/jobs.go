package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	// StatusPending means the payload still needs wire attempts; the
	// resender owns due pending jobs.
	StatusPending JobStatus = "PENDING"
	// StatusDelivered means this service delivered the payload.
	StatusDelivered JobStatus = "DELIVERED"
	// StatusDuplicate means the receiver already had the request before
	// this service managed a delivery of its own.
	StatusDuplicate JobStatus = "DUPLICATE"
	// StatusFailed means the receiver definitively rejected the payload.
	// A fresh submission of the same identifier tries again.
	StatusFailed JobStatus = "FAILED"
)

var (
	ErrJobNotFound = errors.New("relay job not found")
	ErrJobExists   = errors.New("relay job already exists")
)

// Job is the service-side record of one relayed request. The request
// identifier is the caller's handle and is unique across jobs; the send
// protocol's marker store keys on the same identifier.
type Job struct {
	ID            uuid.UUID
	RequestID     string
	Payload       json.RawMessage
	Status        JobStatus
	Attempts      int
	LastError     *string
	NextRetryAt   *time.Time
	ReceiptStatus *string
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewJob(requestID string, payload json.RawMessage) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New(),
		RequestID: requestID,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Finished reports whether the job reached an outcome that no worker will
// touch again.
func (j *Job) Finished() bool {
	switch j.Status {
	case StatusDelivered, StatusDuplicate, StatusFailed:
		return true
	}
	return false
}

// JobStore persists relay jobs.
type JobStore interface {
	// CreateJob inserts the job. A concurrent insert of the same request
	// identifier reports ErrJobExists.
	CreateJob(ctx context.Context, job *Job) error
	// FindJobByRequestID reports ErrJobNotFound for unknown identifiers.
	FindJobByRequestID(ctx context.Context, requestID string) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	// FindDueJobs returns pending jobs whose retry time has passed,
	// oldest first.
	FindDueJobs(ctx context.Context, limit int) ([]*Job, error)
	// CountPending returns how many jobs still await delivery.
	CountPending(ctx context.Context) (int64, error)
	// DeleteFinishedJobs removes finished jobs older than the retention
	// window and returns how many went away.
	DeleteFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}
