// Package compliance verifies that a completed phase actually met its
// contract: gates pass, notes exist, required agents were invoked, required
// steps happened. The worker's own claims are cross-checked against the
// session transcript; gates are re-run no matter what the worker reported.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/debussylabs/debussy/internal/gate"
	"github.com/debussylabs/debussy/internal/plan"
)

// IssueKind classifies a compliance failure.
type IssueKind string

const (
	NotesMissing    IssueKind = "NOTES_MISSING"
	NotesIncomplete IssueKind = "NOTES_INCOMPLETE"
	GatesFailed     IssueKind = "GATES_FAILED"
	AgentSkipped    IssueKind = "AGENT_SKIPPED"
	StepSkipped     IssueKind = "STEP_SKIPPED"
)

// Severity grades an issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Issue is one compliance failure found in an attempt.
type Issue struct {
	Kind     IssueKind
	Severity Severity
	Subject  string // agent, step, gate, or notes path the issue is about
	Details  string
	Evidence string
}

// Strategy is the checker's remediation verdict.
type Strategy string

const (
	WarnAndAccept Strategy = "WARN_AND_ACCEPT"
	TargetedFix   Strategy = "TARGETED_FIX"
	FullRetry     Strategy = "FULL_RETRY"
	HumanRequired Strategy = "HUMAN_REQUIRED"
)

// Result is the outcome of verifying one attempt.
type Result struct {
	Passed   bool
	Issues   []Issue
	Strategy Strategy
}

// requiredNotesSections must all appear in a phase's notes file.
var requiredNotesSections = []string{"## Summary", "## Key Decisions", "## Files Modified"}

// stepEvidence maps each canonical step to the transcript pattern that
// counts as having done it.
var stepEvidence = map[string]*regexp.Regexp{
	plan.StepReadPreviousNotes: regexp.MustCompile(`(?i)read.{0,30}previous.{0,10}notes|previous.{0,10}notes.{0,20}(read|review)`),
	plan.StepDocSyncManager:    regexp.MustCompile(`(?i)doc[- _]?sync`),
	plan.StepImplementation:    regexp.MustCompile(`(?i)implement`),
	plan.StepPreValidation:     regexp.MustCompile(`(?i)pre[- _]?valid`),
	plan.StepTaskValidator:     regexp.MustCompile(`(?i)task[- _]?valid`),
	plan.StepWriteNotes:        regexp.MustCompile(`(?i)(wrote|write|writing|saved|saving).{0,30}notes`),
}

// Checker verifies phase attempts.
type Checker struct {
	gates   *gate.Runner
	workDir string
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// NewChecker creates a Checker. Notes paths resolve against workDir.
func NewChecker(gates *gate.Runner, workDir string, opts ...Option) *Checker {
	c := &Checker{
		gates:   gates,
		workDir: workDir,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify checks an attempt and picks a remediation strategy. The gate
// results are returned alongside so the caller can persist them.
func (c *Checker) Verify(ctx context.Context, phase *plan.Phase, sessionText string, report Report) (*Result, []gate.Result) {
	var issues []Issue

	allPassed, gateResults := c.gates.VerifyAllGatesPass(ctx, phase)
	if !allPassed {
		for _, gr := range gateResults {
			if gr.Passed {
				continue
			}
			issues = append(issues, Issue{
				Kind:     GatesFailed,
				Severity: SeverityCritical,
				Subject:  gr.Name,
				Details:  fmt.Sprintf("gate %q failed (%s)", gr.Name, gr.Command),
				Evidence: tail(gr.Output, 500),
			})
		}
	}

	issues = append(issues, c.checkNotes(phase)...)
	issues = append(issues, c.checkAgents(phase, sessionText, report)...)
	issues = append(issues, c.checkSteps(phase, sessionText, report)...)

	result := &Result{Issues: issues}
	if len(issues) == 0 {
		result.Passed = true
	} else {
		result.Strategy = selectStrategy(issues)
	}

	c.logger.Info("compliance verified",
		"phase", phase.ID,
		"passed", result.Passed,
		"issues", len(issues),
		"strategy", result.Strategy,
	)
	return result, gateResults
}

func (c *Checker) checkNotes(phase *plan.Phase) []Issue {
	if phase.NotesOutput == "" {
		return nil
	}

	path := phase.NotesOutput
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.workDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return []Issue{{
			Kind:     NotesMissing,
			Severity: SeverityHigh,
			Subject:  phase.NotesOutput,
			Details:  fmt.Sprintf("notes file %s was not written", phase.NotesOutput),
		}}
	}

	var missing []string
	for _, section := range requiredNotesSections {
		if !strings.Contains(string(data), section) {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return []Issue{{
			Kind:     NotesIncomplete,
			Severity: SeverityLow,
			Subject:  phase.NotesOutput,
			Details:  fmt.Sprintf("notes file %s is missing sections: %s", phase.NotesOutput, strings.Join(missing, ", ")),
		}}
	}
	return nil
}

func (c *Checker) checkAgents(phase *plan.Phase, sessionText string, report Report) []Issue {
	var issues []Issue
	for _, agent := range phase.RequiredAgents {
		inLog := agentEvidence(sessionText, agent)
		inReport := report.ClaimsAgent(agent)

		switch {
		case inLog:
			// Transcript evidence is authoritative.
		case inReport:
			issues = append(issues, Issue{
				Kind:     AgentSkipped,
				Severity: SeverityHigh,
				Subject:  agent,
				Details:  fmt.Sprintf("report claims agent %q was used but the transcript shows no invocation", agent),
			})
		default:
			issues = append(issues, Issue{
				Kind:     AgentSkipped,
				Severity: SeverityCritical,
				Subject:  agent,
				Details:  fmt.Sprintf("required agent %q was never invoked", agent),
			})
		}
	}
	return issues
}

// agentEvidence looks for any of the accepted invocation traces in the
// transcript.
func agentEvidence(sessionText, agent string) bool {
	quoted := regexp.QuoteMeta(agent)
	for _, pattern := range []string{
		`(?i)subagent_type["\s:=]+` + quoted,
		`(?i)Task.*` + quoted,
		`(?i)launching.*` + quoted,
	} {
		if regexp.MustCompile(pattern).MatchString(sessionText) {
			return true
		}
	}
	return false
}

func (c *Checker) checkSteps(phase *plan.Phase, sessionText string, report Report) []Issue {
	var issues []Issue
	for _, step := range phase.RequiredSteps {
		re, known := stepEvidence[step]
		inLog := known && re.MatchString(sessionText)
		if inLog || report.ClaimsStep(step) {
			continue
		}
		issues = append(issues, Issue{
			Kind:     StepSkipped,
			Severity: SeverityHigh,
			Subject:  step,
			Details:  fmt.Sprintf("required step %q has no transcript evidence and is not in the report", step),
		})
	}
	return issues
}

// selectStrategy maps issue severities to the remediation verdict.
func selectStrategy(issues []Issue) Strategy {
	var critical, high int
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		}
	}

	switch {
	case critical >= 2:
		return FullRetry
	case critical == 1 || high >= 2:
		return TargetedFix
	default:
		return WarnAndAccept
	}
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
