package state

import (
	"context"
	"fmt"
	"time"
)

// RecordGateResult appends a gate outcome to a phase execution.
func (s *Store) RecordGateResult(ctx context.Context, executionID int64, r *GateResult) error {
	passed := 0
	if r.Passed {
		passed = 1
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO gate_results (execution_id, name, command, passed, output, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), executionID, r.Name, r.Command, passed, r.Output, r.Duration.Milliseconds(), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record gate result %s: %w", r.Name, err)
	}
	return nil
}

// GetGateResults returns the gate outcomes for an execution in record order.
func (s *Store) GetGateResults(ctx context.Context, executionID int64) ([]*GateResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, execution_id, name, command, passed, output, duration_ms, created_at
		FROM gate_results WHERE execution_id = ?
		ORDER BY id
	`), executionID)
	if err != nil {
		return nil, fmt.Errorf("get gate results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*GateResult
	for rows.Next() {
		var r GateResult
		var passed int
		var durationMS int64
		var createdAt string
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.Name, &r.Command, &passed, &r.Output, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan gate result: %w", err)
		}
		r.Passed = passed != 0
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = parseTime(createdAt)
		results = append(results, &r)
	}
	return results, rows.Err()
}
