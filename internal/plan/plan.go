// Package plan parses markdown execution plans: a master document with a
// phases table, plus one markdown document per phase.
package plan

import (
	"strings"
)

// Status is a phase's declared status in the plan documents. The state
// store, not the markdown, is authoritative during a run; this value only
// acts as a fallback when no store record exists.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusRunning       Status = "RUNNING"
	StatusValidating    Status = "VALIDATING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusBlocked       Status = "BLOCKED"
	StatusAwaitingHuman Status = "AWAITING_HUMAN"
)

// ParseStatus maps a status string case-insensitively; unknown values
// become PENDING.
func ParseStatus(s string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending
	case StatusRunning:
		return StatusRunning
	case StatusValidating:
		return StatusValidating
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	case StatusBlocked:
		return StatusBlocked
	case StatusAwaitingHuman:
		return StatusAwaitingHuman
	default:
		return StatusPending
	}
}

// Canonical step names a phase's process wrapper can require.
const (
	StepReadPreviousNotes = "read_previous_notes"
	StepDocSyncManager    = "doc_sync_manager"
	StepImplementation    = "implementation"
	StepPreValidation     = "pre_validation"
	StepTaskValidator     = "task_validator"
	StepWriteNotes        = "write_notes"
)

// Gate is one validation command declared by a phase.
type Gate struct {
	Name        string
	Command     string
	Description string
	Blocking    bool
}

// DefaultGateCommands maps well-known gate names to their commands.
// Projects override these in config; unknown names run their description
// as a literal shell command.
var DefaultGateCommands = map[string]string{
	"lint": "make lint",
	"type": "make typecheck",
	"test": "make test",
}

// Phase is one unit of work in a plan, backed by a markdown document.
type Phase struct {
	ID      string
	Title   string
	RelPath string // as written in the master's table
	DocPath string // resolved against the master's directory
	Status  Status

	DependsOn      []string
	Gates          []Gate
	Tasks          []string
	RequiredAgents []string
	RequiredSteps  []string
	NotesInput     string
	NotesOutput    string
}

// Metadata carries plan-level issue references, surfaced opaquely for the
// tracker collaborators.
type Metadata struct {
	GitHubIssues []string
	GitHubRepo   string
	GitLabIssues []string
	JiraIssues   []string
}

// IssueRefs flattens all references for the completed-feature registry.
func (m Metadata) IssueRefs() []string {
	var refs []string
	refs = append(refs, m.GitHubIssues...)
	refs = append(refs, m.GitLabIssues...)
	refs = append(refs, m.JiraIssues...)
	return refs
}

// Plan is an immutable parsed plan. The orchestrator owns one for the
// duration of a run.
type Plan struct {
	Name   string
	Path   string // master document path
	Dir    string // master document directory
	Meta   Metadata
	Phases []*Phase
}

// GetPhase returns a phase by id, or nil.
func (p *Plan) GetPhase(id string) *Phase {
	for _, phase := range p.Phases {
		if phase.ID == id {
			return phase
		}
	}
	return nil
}

// PhaseIDs returns the phase ids in document order.
func (p *Plan) PhaseIDs() []string {
	ids := make([]string, len(p.Phases))
	for i, phase := range p.Phases {
		ids[i] = phase.ID
	}
	return ids
}

// Errors
var (
	ErrNoPhases = planError("plan has no phases table")
)

type planError string

func (e planError) Error() string { return string(e) }
