// Package errors provides structured error types for debussy.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for debussy.
const (
	// Plan errors
	CodePlanParse Code = "PLAN_PARSE_ERROR"
	CodePlanAudit Code = "PLAN_AUDIT_FAILED"

	// Worker errors
	CodeWorkerSpawn   Code = "WORKER_SPAWN_FAILED"
	CodeWorkerTimeout Code = "WORKER_TIMEOUT"
	CodeRestartLimit  Code = "CONTEXT_RESTART_LIMIT"
	CodeMaxAttempts   Code = "MAX_ATTEMPTS_EXCEEDED"

	// Run errors
	CodeRunNotFound  Code = "RUN_NOT_FOUND"
	CodeNoCurrentRun Code = "NO_CURRENT_RUN"
	CodeRunCancelled Code = "RUN_CANCELLED"
	CodeLockHeld     Code = "LOCK_HELD"

	// Store errors
	CodeStore Code = "STORE_ERROR"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"

	// Git errors
	CodeGitDirty Code = "GIT_DIRTY"
)

// Error is the structured error type for debussy.
type Error struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *Error) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrPlanParse returns an error for an unparseable plan document.
func ErrPlanParse(path, reason string) *Error {
	return &Error{
		Code: CodePlanParse,
		What: fmt.Sprintf("cannot parse plan %s", path),
		Why:  reason,
		Fix:  "Check the master plan's phase table and phase document paths",
	}
}

// ErrPlanAudit returns an error when the pre-run audit finds blocking issues.
func ErrPlanAudit(count int) *Error {
	return &Error{
		Code: CodePlanAudit,
		What: fmt.Sprintf("plan audit found %d blocking issue(s)", count),
		Why:  "The plan references missing documents or has structural problems",
		Fix:  "Run 'debussy audit <plan>' for the full report, fix the plan, and retry",
	}
}

// ErrWorkerSpawn returns an error when the worker CLI cannot be started.
func ErrWorkerSpawn(command string) *Error {
	return &Error{
		Code: CodeWorkerSpawn,
		What: fmt.Sprintf("worker command %q could not be started", command),
		Why:  "The worker CLI is missing from PATH or not executable",
		Fix:  "Install the worker CLI or set worker.command in .debussy/config.yaml",
	}
}

// ErrWorkerTimeout returns an error when a phase exceeds its execution timeout.
func ErrWorkerTimeout(phaseID string, seconds int) *Error {
	return &Error{
		Code: CodeWorkerTimeout,
		What: fmt.Sprintf("phase %s timed out", phaseID),
		Why:  fmt.Sprintf("No completion after %d seconds", seconds),
		Fix:  "Increase worker.timeout_seconds, or split the phase into smaller ones",
	}
}

// ErrRestartLimit returns an error when context-window restarts are exhausted.
func ErrRestartLimit(phaseID string, max int) *Error {
	return &Error{
		Code: CodeRestartLimit,
		What: fmt.Sprintf("phase %s exceeded %d context restarts", phaseID, max),
		Why:  "The worker kept approaching its context window without finishing",
		Fix:  "Split the phase into smaller units of work, then 'debussy resume'",
	}
}

// ErrMaxAttempts returns an error when compliance retries are exhausted.
func ErrMaxAttempts(phaseID string, attempts int) *Error {
	return &Error{
		Code: CodeMaxAttempts,
		What: fmt.Sprintf("phase %s failed after %d attempts", phaseID, attempts),
		Why:  "Compliance issues persisted through every remediation attempt",
		Fix:  "Review the phase log under .debussy/logs/, fix manually, then 'debussy resume'",
	}
}

// ErrRunNotFound returns an error when a run id doesn't exist.
func ErrRunNotFound(id string) *Error {
	return &Error{
		Code: CodeRunNotFound,
		What: fmt.Sprintf("run %s not found", id),
		Why:  "No run with this ID exists in the state store",
		Fix:  "Run 'debussy history' to list known runs",
	}
}

// ErrNoCurrentRun returns an error when no run is active.
func ErrNoCurrentRun() *Error {
	return &Error{
		Code: CodeNoCurrentRun,
		What: "no active run",
		Why:  "No run is currently RUNNING or PAUSED in this project",
		Fix:  "Start one with 'debussy run <plan>'",
	}
}

// ErrRunCancelled returns an error for an operator-cancelled run.
func ErrRunCancelled(runID string) *Error {
	return &Error{
		Code: CodeRunCancelled,
		What: fmt.Sprintf("run %s cancelled", runID),
		Why:  "The run was interrupted and parked as PAUSED",
		Fix:  "Continue it later with 'debussy resume'",
	}
}

// ErrLockHeld returns an error when another orchestrator owns the plan.
func ErrLockHeld(pid int) *Error {
	return &Error{
		Code: CodeLockHeld,
		What: "another debussy process is already running here",
		Why:  fmt.Sprintf("PID %d holds .debussy/debussy.pid", pid),
		Fix:  "Wait for it to finish, or remove the pid file if the process is dead",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *Error {
	return &Error{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .debussy/config.yaml and fix the invalid field",
	}
}

// ErrGitDirty returns an error when the working tree has uncommitted changes.
func ErrGitDirty() *Error {
	return &Error{
		Code: CodeGitDirty,
		What: "working directory has uncommitted changes",
		Why:  "Starting a run on a dirty tree would mix worker commits with yours",
		Fix:  "Commit or stash your changes, or pass --allow-dirty",
	}
}

// FromError attempts to convert an error to a structured *Error.
// Returns nil if the error chain contains none.
func FromError(err error) *Error {
	var derr *Error
	if stderrors.As(err, &derr) {
		return derr
	}
	return nil
}

// Wrap wraps a generic error into a structured Error with unknown code.
func Wrap(err error, what string) *Error {
	return &Error{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
