package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opertusmundi/normalize/internal/core"
	"github.com/opertusmundi/normalize/internal/data/pgxutil"
)

// Advisory lock namespace for retention operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for normalize retention operations.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperFailStuck   = 1 // minor key for FailStuckRunningTickets
	advisoryLockReaperDeleteCompl = 2 // minor key for DeleteOldCompletedTickets
)

// FailStuckRunningTickets completes running tickets whose processing started
// longer than maxAge ago, recording a failure outcome. Processes up to batchSize
// tickets per call to prevent long locks and I/O spikes. Uses advisory locks to
// prevent concurrent retention instances from conflicting.
// Returns the number of tickets failed.
func (r *TicketRepo) FailStuckRunningTickets(ctx context.Context, params core.FailStuckRunningParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperFailStuck).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-params.MaxAge)

			res, err := tx.ExecContext(ctx, `
				UPDATE tickets
				SET status = 'completed',
					success = FALSE,
					comment = 'Processing timed out',
					completed_time = $1,
					execution_time = EXTRACT(EPOCH FROM ($1::timestamptz - requested_time))
				WHERE id IN (
					SELECT id FROM tickets
					WHERE status = 'running'
					  AND COALESCE(started_time, requested_time) < $2
					ORDER BY COALESCE(started_time, requested_time)
					LIMIT $3
				)
			`, currentTime.UTC(), cutoffTime.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("fail stuck running tickets: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldCompletedTickets deletes completed tickets older than maxAge.
// Processes up to batchSize tickets per call to prevent long locks and I/O
// spikes. Uses advisory locks to prevent concurrent retention instances from
// conflicting. Returns the number of tickets deleted.
func (r *TicketRepo) DeleteOldCompletedTickets(ctx context.Context, params core.DeleteOldCompletedParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeleteCompl).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-params.MaxAge)

			res, err := tx.ExecContext(ctx, `
				DELETE FROM tickets
				WHERE id IN (
					SELECT id FROM tickets
					WHERE status = 'completed'
					  AND (completed_time < $1 OR (completed_time IS NULL AND requested_time < $1))
					ORDER BY COALESCE(completed_time, requested_time)
					LIMIT $2
				)
			`, cutoffTime.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old completed tickets: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
