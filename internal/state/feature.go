package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordCompletion registers a plan as completed for re-run protection and
// returns the feature id. Completing the same plan again updates the
// existing record.
func (s *Store) RecordCompletion(ctx context.Context, name string, issueRefs []string, planPath, runID string) (string, error) {
	refs, err := json.Marshal(issueRefs)
	if err != nil {
		return "", fmt.Errorf("encode issue refs: %w", err)
	}

	id := uuid.NewString()
	query := fmt.Sprintf(`
		INSERT INTO completed_features (id, name, issue_refs, plan_path, run_id, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		%s (plan_path) DO UPDATE SET
			name = excluded.name,
			issue_refs = excluded.issue_refs,
			run_id = excluded.run_id,
			completed_at = excluded.completed_at
	`, s.db.Driver().UpsertConflict())

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		id, name, string(refs), planPath, runID, formatTime(time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("record completion: %w", err)
	}

	// On conflict the original id survives; read back whichever won.
	var storedID string
	if err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id FROM completed_features WHERE plan_path = ?
	`), planPath).Scan(&storedID); err != nil {
		return "", fmt.Errorf("read back feature id: %w", err)
	}
	return storedID, nil
}

// FindCompletedFeature returns the completion record for a plan path, or
// (nil, nil) when the plan has never completed.
func (s *Store) FindCompletedFeature(ctx context.Context, planPath string) (*CompletedFeature, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, issue_refs, plan_path, run_id, completed_at
		FROM completed_features WHERE plan_path = ?
	`), planPath)

	feature, err := scanFeature(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find completed feature: %w", err)
	}
	return feature, nil
}

// ListCompletedFeatures returns all completion records, newest first.
func (s *Store) ListCompletedFeatures(ctx context.Context) ([]*CompletedFeature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, issue_refs, plan_path, run_id, completed_at
		FROM completed_features ORDER BY completed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list completed features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var features []*CompletedFeature
	for rows.Next() {
		feature, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completed feature: %w", err)
		}
		features = append(features, feature)
	}
	return features, rows.Err()
}

func scanFeature(row scanner) (*CompletedFeature, error) {
	var f CompletedFeature
	var refs, completedAt string

	if err := row.Scan(&f.ID, &f.Name, &refs, &f.PlanPath, &f.RunID, &completedAt); err != nil {
		return nil, err
	}

	if refs != "" {
		if err := json.Unmarshal([]byte(refs), &f.IssueRefs); err != nil {
			return nil, fmt.Errorf("decode issue refs: %w", err)
		}
	}
	f.CompletedAt = parseTime(completedAt)
	return &f, nil
}
