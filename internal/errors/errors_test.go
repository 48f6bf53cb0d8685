package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &Error{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "Error: something broke",
		},
		{
			name:     "what and why",
			err:      &Error{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input",
		},
		{
			name: "full error",
			err: &Error{
				What: "something broke",
				Why:  "bad input",
				Fix:  "try again",
			},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input\n\nFix: try again",
		},
		{
			name: "with cause",
			err: &Error{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "Error: something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestErrorJSON(t *testing.T) {
	err := &Error{
		Code:  CodeRunNotFound,
		What:  "run 0199 not found",
		Why:   "No run with this ID exists",
		Fix:   "Run 'debussy history' to list runs",
		Cause: errors.New("sql: no rows in result set"),
	}

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("MarshalJSON failed: %v", marshalErr)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["code"] != string(CodeRunNotFound) {
		t.Errorf("code = %v, want %v", result["code"], CodeRunNotFound)
	}
	if result["what"] != "run 0199 not found" {
		t.Errorf("what = %v, want %v", result["what"], "run 0199 not found")
	}
	if result["cause"] != "sql: no rows in result set" {
		t.Errorf("cause = %v, want %v", result["cause"], "sql: no rows in result set")
	}
}

func TestConstructorsCarryCodeAndFix(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code Code
	}{
		{"plan parse", ErrPlanParse("plans/master.md", "no phase table"), CodePlanParse},
		{"plan audit", ErrPlanAudit(3), CodePlanAudit},
		{"worker spawn", ErrWorkerSpawn("claude"), CodeWorkerSpawn},
		{"worker timeout", ErrWorkerTimeout("2", 1800), CodeWorkerTimeout},
		{"restart limit", ErrRestartLimit("2", 3), CodeRestartLimit},
		{"max attempts", ErrMaxAttempts("2", 3), CodeMaxAttempts},
		{"run not found", ErrRunNotFound("abc"), CodeRunNotFound},
		{"no current run", ErrNoCurrentRun(), CodeNoCurrentRun},
		{"run cancelled", ErrRunCancelled("abc"), CodeRunCancelled},
		{"lock held", ErrLockHeld(4242), CodeLockHeld},
		{"config invalid", ErrConfigInvalid("worker.timeout_seconds", "must be positive"), CodeConfigInvalid},
		{"git dirty", ErrGitDirty(), CodeGitDirty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.What == "" {
				t.Error("What should not be empty")
			}
			if tt.err.Fix == "" {
				t.Error("Fix should not be empty")
			}
		})
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("starting run: %w", ErrGitDirty())

	if !errors.Is(wrapped, ErrGitDirty()) {
		t.Error("errors.Is should match two GIT_DIRTY errors")
	}
	if errors.Is(wrapped, ErrNoCurrentRun()) {
		t.Error("errors.Is should not match different codes")
	}
}

func TestFromError(t *testing.T) {
	inner := ErrMaxAttempts("3", 3)
	wrapped := fmt.Errorf("phase loop: %w", inner)

	got := FromError(wrapped)
	if got == nil {
		t.Fatal("FromError returned nil for wrapped structured error")
	}
	if got.Code != CodeMaxAttempts {
		t.Errorf("Code = %v, want %v", got.Code, CodeMaxAttempts)
	}

	if FromError(errors.New("plain")) != nil {
		t.Error("FromError should return nil for plain errors")
	}
}

func TestWithCause(t *testing.T) {
	cause := errors.New("exec: \"claude\": executable file not found in $PATH")
	err := ErrWorkerSpawn("claude").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("Unwrap chain should reach the cause")
	}
	if err.Code != CodeWorkerSpawn {
		t.Errorf("Code = %v, want %v", err.Code, CodeWorkerSpawn)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, "writing session log")

	if err.Code != Code("UNKNOWN") {
		t.Errorf("Code = %v, want UNKNOWN", err.Code)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve the cause in the unwrap chain")
	}
}
