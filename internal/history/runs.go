package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, script_id, started_at_ms, finished_at_ms, exit_code, output, status`

// CreateRun inserts a running record and returns its id.
func (s *Store) CreateRun(ctx context.Context, scriptID int64, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history (script_id, started_at_ms, status)
		VALUES (?, ?, ?)
	`, scriptID, toMillis(startedAt), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("insert run for script %d: %w", scriptID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}

	return id, nil
}

// FinalizeRun moves a running record to its terminal status. A record that
// is already terminal is never reopened or overwritten.
func (s *Store) FinalizeRun(ctx context.Context, runID int64, fin Finalization) error {
	if !fin.Status.Terminal() {
		return fmt.Errorf("finalize run %d: %q is not a terminal status", runID, fin.Status)
	}

	finishedAt := fin.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE run_history
		SET finished_at_ms = ?, exit_code = ?, output = ?, status = ?
		WHERE id = ? AND status = 'running'
	`, toMillis(finishedAt), fin.ExitCode, fin.Output, fin.Status, runID)
	if err != nil {
		return fmt.Errorf("finalize run %d: %w", runID, err)
	}

	n, err := rowsAffected(res, fmt.Sprintf("finalize run %d", runID))
	if err != nil {
		return err
	}

	if n > 0 {
		return nil
	}

	if _, err := s.GetRun(ctx, runID); err != nil {
		return err
	}

	return fmt.Errorf("%w: %d", ErrRunFinalized, runID)
}

// GetRun returns one run record.
func (s *Store) GetRun(ctx context.Context, runID int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM run_history WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
		}

		return nil, fmt.Errorf("query run %d: %w", runID, err)
	}

	return &run, nil
}

// ListRuns returns the newest runs of a script, at most limit of them
// (DefaultRunLimit when limit <= 0).
func (s *Store) ListRuns(ctx context.Context, scriptID int64, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM run_history
		WHERE script_id = ?
		ORDER BY started_at_ms DESC, id DESC
		LIMIT ?
	`, scriptID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs for script %d: %w", scriptID, err)
	}
	defer rows.Close()

	items := make([]RunRecord, 0)

	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		items = append(items, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return items, nil
}

// LatestRun returns the most recent run of a script.
func (s *Store) LatestRun(ctx context.Context, scriptID int64) (*RunRecord, error) {
	runs, err := s.ListRuns(ctx, scriptID, 1)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: script %d has no runs", ErrRunNotFound, scriptID)
	}

	return &runs[0], nil
}

// ClearRuns deletes the finished runs of a script. A record still running
// is kept so its finalize has a row to land on.
func (s *Store) ClearRuns(ctx context.Context, scriptID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM run_history WHERE script_id = ? AND status != 'running'
	`, scriptID)
	if err != nil {
		return 0, fmt.Errorf("clear runs for script %d: %w", scriptID, err)
	}

	return rowsAffected(res, fmt.Sprintf("clear runs for script %d", scriptID))
}

// ReconcileOrphans marks every record still in running as error. It must
// only be called when no engine in this process holds active runs.
func (s *Store) ReconcileOrphans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE run_history
		SET status = 'error',
			exit_code = -1,
			finished_at_ms = ?,
			output = CASE WHEN output = '' THEN ? ELSE output || char(10) || ? END
		WHERE status = 'running'
	`, toMillis(s.now()), orphanNote, orphanNote)
	if err != nil {
		return 0, fmt.Errorf("reconcile orphaned runs: %w", err)
	}

	return rowsAffected(res, "reconcile orphaned runs")
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		run        RunRecord
		startedMS  int64
		finishedMS sql.NullInt64
		exitCode   sql.NullInt64
		status     string
	)

	if err := s.Scan(
		&run.ID,
		&run.ScriptID,
		&startedMS,
		&finishedMS,
		&exitCode,
		&run.Output,
		&status,
	); err != nil {
		return RunRecord{}, err
	}

	run.StartedAt = fromMillis(startedMS)
	run.Status = Status(status)

	if finishedMS.Valid {
		t := fromMillis(finishedMS.Int64)
		run.FinishedAt = &t
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}

	return run, nil
}
