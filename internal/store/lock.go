package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ledgersync/internal/commerce"
)

const runLockName = "sync"

// LockTTL bounds how long a crashed run can block new ones. A lock older
// than this is taken over by the next run.
const LockTTL = time.Hour

// AcquireRunLock claims the single sync_lock row for runID.
//
// Returns commerce.ErrRunInProgress if a run holds a lock younger than
// LockTTL. The release function deletes the row only if it still belongs
// to runID.
func (s *Store) AcquireRunLock(ctx context.Context, runID string, now time.Time) (func(context.Context) error, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_lock (name, run_id, acquired_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE
			SET run_id = excluded.run_id, acquired_at = excluded.acquired_at
			WHERE sync_lock.acquired_at < ?
	`, runLockName, runID, marshalLockTime(now), marshalLockTime(now.Add(-LockTTL)))
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: rows affected: %w", err)
	}
	if n == 0 {
		var holder, since string
		if err := s.db.QueryRowContext(ctx,
			`SELECT run_id, acquired_at FROM sync_lock WHERE name = ?`, runLockName,
		).Scan(&holder, &since); err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", commerce.ErrRunInProgress)
		}
		return nil, fmt.Errorf("acquire run lock: run %s since %s: %w", holder, since, commerce.ErrRunInProgress)
	}

	release := func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM sync_lock WHERE name = ? AND run_id = ?`, runLockName, runID,
		); err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		return nil
	}
	return release, nil
}
