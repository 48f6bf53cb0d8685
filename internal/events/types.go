// Package events carries the orchestrator's lifecycle events to
// collaborators: issue-tracker sync, notifier, progress display, TUI, and
// the websocket broadcaster. Collaborator failures never abort a run.
package events

import (
	"time"
)

// Type defines the type of event.
type Type string

const (
	// TypePlanStart indicates a run began.
	TypePlanStart Type = "plan_start"
	// TypePhaseStart indicates a phase began executing.
	TypePhaseStart Type = "phase_start"
	// TypePhaseComplete indicates a phase passed compliance.
	TypePhaseComplete Type = "phase_complete"
	// TypePhaseFailed indicates a phase failed terminally.
	TypePhaseFailed Type = "phase_failed"
	// TypePlanComplete indicates the run finished.
	TypePlanComplete Type = "plan_complete"
	// TypeMilestone indicates overall progress changed (done/total phases).
	TypeMilestone Type = "milestone_progress"
	// TypeAlert indicates human attention is required.
	TypeAlert Type = "alert"
	// TypeOutput carries worker display output.
	TypeOutput Type = "output"
	// TypeTokens carries a token-stats snapshot.
	TypeTokens Type = "tokens"
)

// Event is a published event.
type Event struct {
	Type    Type      `json:"type"`
	RunID   string    `json:"run_id"`
	PhaseID string    `json:"phase_id,omitempty"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time"`
}

// New creates an event stamped with the current time.
func New(t Type, runID, phaseID string, data any) Event {
	return Event{
		Type:    t,
		RunID:   runID,
		PhaseID: phaseID,
		Data:    data,
		Time:    time.Now(),
	}
}

// PlanInfo describes the run for collaborators, detached from the plan
// model so hooks don't reach back into orchestrator-owned data.
type PlanInfo struct {
	RunID       string   `json:"run_id"`
	Name        string   `json:"name"`
	PlanPath    string   `json:"plan_path"`
	GitHubRepo  string   `json:"github_repo,omitempty"`
	IssueRefs   []string `json:"issue_refs,omitempty"`
	TotalPhases int      `json:"total_phases"`
}

// PhaseInfo describes one phase for collaborators.
type PhaseInfo struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Attempt int    `json:"attempt"`
	Index   int    `json:"index"` // position in document order, 1-based
	Total   int    `json:"total"`
}

// Milestone is the done/total progress payload.
type Milestone struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}
