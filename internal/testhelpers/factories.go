package testhelpers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ostraco/sendonce/internal/relay"
)

// DefaultPayload returns a valid relay payload for testing.
func DefaultPayload() json.RawMessage {
	return json.RawMessage(`{"amount":125,"currency":"USD"}`)
}

// NewRequestID returns a fresh unique request identifier.
func NewRequestID() string {
	return "req-" + uuid.New().String()
}

// PendingJob returns a pending job ready for the resender, due immediately.
func PendingJob(requestID string) *relay.Job {
	job := relay.NewJob(requestID, DefaultPayload())
	due := time.Now().Add(-time.Second)
	job.NextRetryAt = &due
	job.Attempts = 1
	return job
}

// DeliveredJob returns a job already recorded as delivered.
func DeliveredJob(requestID string) *relay.Job {
	job := relay.NewJob(requestID, DefaultPayload())
	now := time.Now()
	status := "received"
	job.Status = relay.StatusDelivered
	job.Attempts = 1
	job.ReceiptStatus = &status
	job.DeliveredAt = &now
	return job
}
