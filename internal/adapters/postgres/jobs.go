package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ostraco/sendonce/internal/relay"
)

// JobRepository persists relay jobs in the relay_jobs table.
type JobRepository struct {
	q Executor
}

var _ relay.JobStore = (*JobRepository)(nil)

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{q: db.Pool}
}

func (r *JobRepository) CreateJob(ctx context.Context, job *relay.Job) error {
	query := `INSERT INTO relay_jobs (
				id, request_id, payload, status, attempts, last_error,
				next_retry_at, receipt_status, delivered_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.Exec(ctx, query,
		job.ID,
		job.RequestID,
		job.Payload,
		job.Status,
		job.Attempts,
		job.LastError,
		job.NextRetryAt,
		job.ReceiptStatus,
		job.DeliveredAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("job %q: %w", job.RequestID, relay.ErrJobExists)
		}
		return fmt.Errorf("failed to create relay job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindJobByRequestID(ctx context.Context, requestID string) (*relay.Job, error) {
	query := `
			SELECT id, request_id, payload, status, attempts, last_error,
				next_retry_at, receipt_status, delivered_at, created_at, updated_at
			FROM relay_jobs
			WHERE request_id = $1
			`

	row := r.q.QueryRow(ctx, query, requestID)
	return scanJob(row)
}

func (r *JobRepository) UpdateJob(ctx context.Context, job *relay.Job) error {
	query := `
			UPDATE relay_jobs SET status = $1, attempts = $2, last_error = $3,
				next_retry_at = $4, receipt_status = $5, delivered_at = $6, updated_at = NOW()
			WHERE id = $7
	`

	cmdTag, err := r.q.Exec(ctx, query,
		job.Status,
		job.Attempts,
		job.LastError,
		job.NextRetryAt,
		job.ReceiptStatus,
		job.DeliveredAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update relay job: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("job %q: %w", job.RequestID, relay.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindDueJobs(ctx context.Context, limit int) ([]*relay.Job, error) {
	query := `
        SELECT id, request_id, payload, status, attempts, last_error,
			next_retry_at, receipt_status, delivered_at, created_at, updated_at
        FROM relay_jobs
        WHERE status = 'PENDING'
            AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY next_retry_at ASC NULLS FIRST
        LIMIT $1
    `

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query due relay jobs: %w", err)
	}

	due, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*relay.Job, error) {
		var j relay.Job
		err := row.Scan(
			&j.ID,
			&j.RequestID,
			&j.Payload,
			&j.Status,
			&j.Attempts,
			&j.LastError,
			&j.NextRetryAt,
			&j.ReceiptStatus,
			&j.DeliveredAt,
			&j.CreatedAt,
			&j.UpdatedAt,
		)
		return &j, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan due relay jobs: %w", err)
	}

	return due, nil
}

func (r *JobRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	row := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM relay_jobs WHERE status = 'PENDING'`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending relay jobs: %w", err)
	}
	return n, nil
}

func (r *JobRepository) DeleteFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	cmdTag, err := r.q.Exec(ctx, `
		DELETE FROM relay_jobs
		WHERE status IN ('DELIVERED', 'DUPLICATE', 'FAILED')
			AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished relay jobs: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// scanJob scans a pgx.Row into a relay.Job.
func scanJob(row pgx.Row) (*relay.Job, error) {
	var j relay.Job
	err := row.Scan(
		&j.ID,
		&j.RequestID,
		&j.Payload,
		&j.Status,
		&j.Attempts,
		&j.LastError,
		&j.NextRetryAt,
		&j.ReceiptStatus,
		&j.DeliveredAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, relay.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to scan relay job: %w", err)
	}
	return &j, nil
}
