package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ostraco/sendonce/internal/metrics"
	"github.com/ostraco/sendonce/internal/relay"
)

// MarkerPurger removes send markers older than a cutoff. The redis backend
// expires markers on its own, so the purger may be nil.
type MarkerPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor sweeps finished jobs and stale send markers past the retention
// window. Markers for finished jobs stay around as duplicate-detection
// records, so retention bounds how long a repeated identifier is recognized.
type Janitor struct {
	jobs      relay.JobStore
	markers   MarkerPurger
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

func NewJanitor(
	jobs relay.JobStore,
	markers MarkerPurger,
	interval time.Duration,
	retention time.Duration,
	logger *slog.Logger,
) *Janitor {
	return &Janitor{
		jobs:      jobs,
		markers:   markers,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

func (w *Janitor) Start(ctx context.Context) {
	w.logger.Info("janitor started", "interval", w.interval, "retention", w.retention)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("janitor stopping")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("retention sweep failed", "error", err)
			}
		}
	}
}

// Sweep executes a single retention pass.
func (w *Janitor) Sweep(ctx context.Context) error {
	purged, err := w.jobs.DeleteFinishedJobs(ctx, w.retention)
	if err != nil {
		return err
	}

	if purged > 0 {
		metrics.RecordJobsPurged(purged)
		w.logger.Info("purged finished jobs", "count", purged, "retention", w.retention)
	}

	if w.markers == nil {
		return nil
	}

	cutoff := time.Now().Add(-w.retention)
	markers, err := w.markers.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	if markers > 0 {
		w.logger.Info("purged stale send markers", "count", markers)
	}

	return nil
}
