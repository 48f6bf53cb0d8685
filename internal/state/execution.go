package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreatePhaseExecution inserts a new attempt record for (run, phase).
// It fails if that attempt number already exists.
func (s *Store) CreatePhaseExecution(ctx context.Context, runID, phaseID string, attempt int) (*PhaseExecution, error) {
	if attempt < 1 {
		return nil, fmt.Errorf("create phase execution: attempt must be >= 1, got %d", attempt)
	}

	exec := &PhaseExecution{
		RunID:     runID,
		PhaseID:   phaseID,
		Attempt:   attempt,
		Status:    PhasePending,
		StartedAt: time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO phase_executions (run_id, phase_id, attempt, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`), runID, phaseID, attempt, string(exec.Status), formatTime(exec.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("create phase execution (%s attempt %d): %w", phaseID, attempt, err)
	}

	if id, err := res.LastInsertId(); err == nil {
		exec.ID = id
	} else {
		// Postgres result sets don't carry LastInsertId; read it back.
		row := s.db.QueryRowContext(ctx, s.rebind(`
			SELECT id FROM phase_executions WHERE run_id = ? AND phase_id = ? AND attempt = ?
		`), runID, phaseID, attempt)
		if err := row.Scan(&exec.ID); err != nil {
			return nil, fmt.Errorf("read back execution id: %w", err)
		}
	}
	return exec, nil
}

// UpdatePhaseStatus updates the highest-attempt execution for (run, phase).
// Terminal statuses stamp the end time; non-terminal leave it null.
func (s *Store) UpdatePhaseStatus(ctx context.Context, runID, phaseID string, status PhaseStatus, errorMessage string) error {
	var completedAt *string
	if status.Terminal() {
		t := formatTime(time.Now().UTC())
		completedAt = &t
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE phase_executions SET status = ?, error_message = ?, completed_at = ?
		WHERE run_id = ? AND phase_id = ?
		  AND attempt = (
			SELECT MAX(attempt) FROM phase_executions WHERE run_id = ? AND phase_id = ?
		  )
	`), string(status), errorMessage, completedAt, runID, phaseID, runID, phaseID)
	if err != nil {
		return fmt.Errorf("update phase status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update phase status: no execution for (%s, %s)", runID, phaseID)
	}
	return nil
}

// SetWorkerInfo records the worker process id and log path on the
// highest-attempt execution.
func (s *Store) SetWorkerInfo(ctx context.Context, runID, phaseID string, pid int, logPath string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE phase_executions SET worker_pid = ?, log_path = ?
		WHERE run_id = ? AND phase_id = ?
		  AND attempt = (
			SELECT MAX(attempt) FROM phase_executions WHERE run_id = ? AND phase_id = ?
		  )
	`), pid, logPath, runID, phaseID, runID, phaseID)
	if err != nil {
		return fmt.Errorf("set worker info: %w", err)
	}
	return nil
}

// GetAttemptCount returns the number of attempts recorded for (run, phase).
func (s *Store) GetAttemptCount(ctx context.Context, runID, phaseID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM phase_executions WHERE run_id = ? AND phase_id = ?
	`), runID, phaseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("get attempt count: %w", err)
	}
	return count, nil
}

// GetPhaseExecution returns the highest-attempt execution for (run, phase),
// or (nil, nil) when the phase has never been attempted.
func (s *Store) GetPhaseExecution(ctx context.Context, runID, phaseID string) (*PhaseExecution, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, run_id, phase_id, attempt, status, worker_pid, log_path, error_message, started_at, completed_at
		FROM phase_executions WHERE run_id = ? AND phase_id = ?
		ORDER BY attempt DESC LIMIT 1
	`), runID, phaseID)

	exec, err := scanExecution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get phase execution: %w", err)
	}
	return exec, nil
}

// GetCompletedPhases returns the phase ids whose highest-attempt execution
// reached COMPLETED, as a set.
func (s *Store) GetCompletedPhases(ctx context.Context, runID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT phase_id FROM phase_executions pe
		WHERE run_id = ?
		  AND attempt = (
			SELECT MAX(attempt) FROM phase_executions
			WHERE run_id = pe.run_id AND phase_id = pe.phase_id
		  )
		  AND status = 'COMPLETED'
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("get completed phases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	completed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed phase: %w", err)
		}
		completed[id] = true
	}
	return completed, rows.Err()
}

// ListPhaseExecutions returns every execution of the run ordered by start
// time, oldest first.
func (s *Store) ListPhaseExecutions(ctx context.Context, runID string) ([]*PhaseExecution, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, run_id, phase_id, attempt, status, worker_pid, log_path, error_message, started_at, completed_at
		FROM phase_executions WHERE run_id = ?
		ORDER BY id
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("list phase executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var execs []*PhaseExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(row scanner) (*PhaseExecution, error) {
	var e PhaseExecution
	var status, startedAt string
	var completedAt sql.NullString

	if err := row.Scan(&e.ID, &e.RunID, &e.PhaseID, &e.Attempt, &status, &e.WorkerPID, &e.LogPath, &e.ErrorMessage, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	e.Status = PhaseStatus(status)
	e.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		e.CompletedAt = &t
	}
	return &e, nil
}
