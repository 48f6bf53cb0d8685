package state

import (
	"context"
	"fmt"
	"time"
)

// LogProgress appends a milestone note for (run, phase).
func (s *Store) LogProgress(ctx context.Context, runID, phaseID, step string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO progress_events (run_id, phase_id, step, created_at)
		VALUES (?, ?, ?, ?)
	`), runID, phaseID, step, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("log progress: %w", err)
	}
	return nil
}

// GetProgress returns the milestone notes for (run, phase) in record order.
func (s *Store) GetProgress(ctx context.Context, runID, phaseID string) ([]*ProgressEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, run_id, phase_id, step, created_at
		FROM progress_events WHERE run_id = ? AND phase_id = ?
		ORDER BY id
	`), runID, phaseID)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*ProgressEvent
	for rows.Next() {
		var e ProgressEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.PhaseID, &e.Step, &createdAt); err != nil {
			return nil, fmt.Errorf("scan progress event: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}
