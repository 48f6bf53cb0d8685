// Package state persists everything a run needs to survive a crash: runs,
// per-attempt phase executions, gate results, completion signals, progress
// events, and the completed-feature registry used for re-run protection.
//
// All writes are transactional units against a single database owned by the
// orchestrator process. The `debussy done` and `debussy progress` commands
// write through separate short-lived connections and rely on the store's
// file locking.
package state

import (
	"time"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunPaused    RunStatus = "PAUSED"
)

// Terminal reports whether the run reached a final state. PAUSED is not
// terminal: it parks the run for resume.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// PhaseStatus is the lifecycle status of one phase execution attempt.
type PhaseStatus string

const (
	PhasePending       PhaseStatus = "PENDING"
	PhaseRunning       PhaseStatus = "RUNNING"
	PhaseValidating    PhaseStatus = "VALIDATING"
	PhaseCompleted     PhaseStatus = "COMPLETED"
	PhaseFailed        PhaseStatus = "FAILED"
	PhaseBlocked       PhaseStatus = "BLOCKED"
	PhaseAwaitingHuman PhaseStatus = "AWAITING_HUMAN"
)

// Terminal reports whether the execution can no longer change. A terminal
// execution is immutable; retries create a new attempt record.
func (s PhaseStatus) Terminal() bool {
	switch s {
	case PhaseCompleted, PhaseFailed, PhaseBlocked, PhaseAwaitingHuman:
		return true
	}
	return false
}

// Run is one orchestrated execution of a plan.
type Run struct {
	ID           string
	PlanPath     string
	PlanName     string
	Status       RunStatus
	CurrentPhase string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// PhaseExecution is one worker attempt at one phase within one run.
// (RunID, PhaseID, Attempt) is unique; attempts are contiguous from 1.
type PhaseExecution struct {
	ID           int64
	RunID        string
	PhaseID      string
	Attempt      int
	Status       PhaseStatus
	WorkerPID    int
	LogPath      string
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// GateResult is the outcome of one gate command, attached to an execution.
type GateResult struct {
	ID          int64
	ExecutionID int64
	Name        string
	Command     string
	Passed      bool
	Output      string
	Duration    time.Duration
	CreatedAt   time.Time
}

// CompletionSignal is the worker's out-of-band terminal declaration for a
// phase, submitted through `debussy done`. The latest signal per (run,
// phase) is authoritative.
type CompletionSignal struct {
	ID        int64
	RunID     string
	PhaseID   string
	Status    string // "completed" | "blocked" | "failed"
	Reason    string
	Report    string // opaque JSON report, may be empty
	CreatedAt time.Time
}

// ProgressEvent is a short milestone note recorded mid-phase, used to build
// the resumption preamble after a context-window restart.
type ProgressEvent struct {
	ID        int64
	RunID     string
	PhaseID   string
	Step      string
	CreatedAt time.Time
}

// CompletedFeature maps a finished plan to its external issue references,
// for re-run protection.
type CompletedFeature struct {
	ID          string
	Name        string
	IssueRefs   []string
	PlanPath    string
	RunID       string
	CompletedAt time.Time
}

// timeFormat is fixed-width RFC 3339 with nanoseconds so stored timestamps
// sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
