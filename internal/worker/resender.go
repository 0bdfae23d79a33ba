package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ostraco/sendonce/internal/metrics"
	"github.com/ostraco/sendonce/internal/relay"
)

// ResendService is the slice of the relay service the resender drives.
type ResendService interface {
	Resend(ctx context.Context, job *relay.Job) error
}

// Resender periodically picks up pending jobs whose retry time has passed
// and drives another delivery round for each.
type Resender struct {
	jobs      relay.JobStore
	service   ResendService
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewResender(
	jobs relay.JobStore,
	service ResendService,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Resender {
	return &Resender{
		jobs:      jobs,
		service:   service,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (w *Resender) Start(ctx context.Context) {
	w.logger.Info("resender started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("resender stopping")
			return
		case <-ticker.C:
			if err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("resend processing failed", "error", err)
			}
		}
	}
}

// ProcessDue executes a single resend cycle.
func (w *Resender) ProcessDue(ctx context.Context) error {
	due, err := w.jobs.FindDueJobs(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("query due jobs: %w", err)
	}

	var processed int
	for _, job := range due {
		if err := w.service.Resend(ctx, job); err != nil {
			// Busy means a live submission holds the identifier; it
			// will record its own outcome.
			if errors.Is(err, relay.ErrBusy) {
				continue
			}
			w.logger.Error("resend failed",
				"request_id", job.RequestID,
				"attempts", job.Attempts,
				"error", err)
			continue
		}
		processed++
	}

	if processed > 0 {
		w.logger.Info("processed due jobs", "count", processed)
	}

	if pending, err := w.jobs.CountPending(ctx); err == nil {
		metrics.SetPendingJobs(pending)
	}

	return nil
}
