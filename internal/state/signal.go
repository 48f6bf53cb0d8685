package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordCompletionSignal appends the worker's terminal declaration for a
// phase. Signals are append-only; readers take the latest.
func (s *Store) RecordCompletionSignal(ctx context.Context, sig *CompletionSignal) error {
	switch sig.Status {
	case "completed", "blocked", "failed":
	default:
		return fmt.Errorf("record completion signal: invalid status %q", sig.Status)
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO completion_signals (run_id, phase_id, status, reason, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), sig.RunID, sig.PhaseID, sig.Status, sig.Reason, sig.Report, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record completion signal: %w", err)
	}
	return nil
}

// GetCompletionSignal returns the latest signal for (run, phase), or
// (nil, nil) when the worker never signalled.
func (s *Store) GetCompletionSignal(ctx context.Context, runID, phaseID string) (*CompletionSignal, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, run_id, phase_id, status, reason, report, created_at
		FROM completion_signals WHERE run_id = ? AND phase_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`), runID, phaseID)

	var sig CompletionSignal
	var createdAt string
	err := row.Scan(&sig.ID, &sig.RunID, &sig.PhaseID, &sig.Status, &sig.Reason, &sig.Report, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get completion signal: %w", err)
	}
	sig.CreatedAt = parseTime(createdAt)
	return &sig, nil
}
