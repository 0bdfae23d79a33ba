// Package pgstore backs the send protocol's marker store with PostgreSQL.
//
// Markers live in the send_markers table and are claimed with a single
// INSERT ... ON CONFLICT DO NOTHING, so concurrent senders racing on the same
// identifier resolve inside the database: exactly one insert lands and every
// other caller observes sendonce.ErrInFlight.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ostraco/sendonce"
)

// Schema creates the marker table. Services that manage migrations themselves
// ship the same DDL in their migration files.
const Schema = `
CREATE TABLE IF NOT EXISTS send_markers (
	request_id TEXT PRIMARY KEY,
	stored_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Executor is the common interface of pgxpool.Pool and pgx.Tx. Accepting it
// lets callers claim markers inside their own transactions.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a durable marker store. It satisfies sendonce.MarkerStore.
type Store struct {
	db Executor
}

var _ sendonce.MarkerStore = (*Store)(nil)

// NewStore creates a marker store on top of an existing pool or transaction.
func NewStore(db Executor) *Store {
	return &Store{db: db}
}

// Store claims the identifier. The insert either lands, making this caller
// the owner of the in-flight send, or hits the primary key and reports
// sendonce.ErrInFlight without touching the existing row.
func (s *Store) Store(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO send_markers (request_id)
		VALUES ($1)
		ON CONFLICT DO NOTHING
	`, id)
	if err != nil {
		return fmt.Errorf("failed to store marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("marker %q: %w", id, sendonce.ErrInFlight)
	}
	return nil
}

// Unstore withdraws the marker. Deleting an identifier that is not stored is
// a no-op, so the call is safe to repeat.
func (s *Store) Unstore(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM send_markers WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("failed to unstore marker: %w", err)
	}
	return nil
}

// Contains reports whether the identifier is currently marked in-flight.
func (s *Store) Contains(ctx context.Context, id string) (bool, error) {
	var exists bool
	row := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM send_markers WHERE request_id = $1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check marker: %w", err)
	}
	return exists, nil
}

// PurgeOlderThan deletes markers stored before the cutoff and returns how
// many rows went away. Markers double as permanent duplicate-detection
// records, so only run this once the dedupe window has truly passed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM send_markers WHERE stored_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge markers: %w", err)
	}
	return tag.RowsAffected(), nil
}
