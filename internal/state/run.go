package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRun inserts a new RUNNING run for the given plan and returns it.
func (s *Store) CreateRun(ctx context.Context, planPath, planName string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		PlanPath:  planPath,
		PlanName:  planName,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO runs (id, plan_path, plan_name, status, current_phase, started_at)
		VALUES (?, ?, ?, ?, '', ?)
	`), run.ID, run.PlanPath, run.PlanName, string(run.Status), formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// GetRun returns the run with the given id, or (nil, nil) if absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, plan_path, plan_name, status, current_phase, started_at, completed_at
		FROM runs WHERE id = ?
	`), id)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// GetCurrentRun returns the most-recently-started run whose status is
// RUNNING or PAUSED, or (nil, nil) when none exists.
func (s *Store) GetCurrentRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, plan_path, plan_name, status, current_phase, started_at, completed_at
		FROM runs WHERE status IN ('RUNNING', 'PAUSED')
		ORDER BY started_at DESC LIMIT 1
	`)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get current run: %w", err)
	}
	return run, nil
}

// FindResumableRun returns the most recent RUNNING/PAUSED/FAILED run for the
// given plan path, or (nil, nil) when none exists.
func (s *Store) FindResumableRun(ctx context.Context, planPath string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, plan_path, plan_name, status, current_phase, started_at, completed_at
		FROM runs WHERE plan_path = ? AND status IN ('RUNNING', 'PAUSED', 'FAILED')
		ORDER BY started_at DESC LIMIT 1
	`), planPath)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find resumable run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus sets the run status, stamping the completion time when the
// status is terminal.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	var completedAt *string
	if status.Terminal() {
		t := formatTime(time.Now().UTC())
		completedAt = &t
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE runs SET status = ?, completed_at = ? WHERE id = ?
	`), string(status), completedAt, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run status: run %s not found", runID)
	}
	return nil
}

// SetCurrentPhase records which phase the run is on. Empty phaseID clears it.
func (s *Store) SetCurrentPhase(ctx context.Context, runID, phaseID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE runs SET current_phase = ? WHERE id = ?
	`), phaseID, runID)
	if err != nil {
		return fmt.Errorf("set current phase: %w", err)
	}
	return nil
}

// ListRuns returns runs newest-first, at most limit (0 means all).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, plan_path, plan_name, status, current_phase, started_at, completed_at
		FROM runs ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var status, startedAt string
	var completedAt sql.NullString

	if err := row.Scan(&r.ID, &r.PlanPath, &r.PlanName, &status, &r.CurrentPhase, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	r.Status = RunStatus(status)
	r.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		r.CompletedAt = &t
	}
	return &r, nil
}
