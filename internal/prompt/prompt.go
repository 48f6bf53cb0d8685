// Package prompt renders the prompts sent to the worker: the fresh phase
// prompt and the remediation prompt derived from compliance issues.
// Templates are embedded; a project can override them under
// .debussy/prompts/.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/debussylabs/debussy/internal/compliance"
	"github.com/debussylabs/debussy/internal/plan"
	"github.com/debussylabs/debussy/templates"
)

// Builder renders worker prompts.
type Builder struct {
	overrideDir string // .debussy/prompts, may not exist
}

// NewBuilder creates a Builder that looks for template overrides under
// stateDir/prompts before falling back to the embedded defaults.
func NewBuilder(stateDir string) *Builder {
	return &Builder{overrideDir: filepath.Join(stateDir, "prompts")}
}

// Phase renders the prompt for a fresh attempt at the phase.
func (b *Builder) Phase(phase *plan.Phase) (string, error) {
	return b.render("phase.md", map[string]any{
		"Phase": phase,
	})
}

// Remediation renders the corrective prompt for a retry attempt, one
// action line per compliance issue from the previous attempt.
func (b *Builder) Remediation(phase *plan.Phase, issues []compliance.Issue) (string, error) {
	actions := make([]string, 0, len(issues))
	for _, issue := range issues {
		actions = append(actions, actionFor(phase, issue))
	}
	return b.render("remediation.md", map[string]any{
		"Phase":   phase,
		"Issues":  issues,
		"Actions": actions,
	})
}

// actionFor translates one compliance issue into a concrete instruction.
func actionFor(phase *plan.Phase, issue compliance.Issue) string {
	switch issue.Kind {
	case compliance.AgentSkipped:
		return fmt.Sprintf("Invoke the %s agent via Task tool", issue.Subject)
	case compliance.NotesMissing:
		return fmt.Sprintf("Write notes to: %s", issue.Subject)
	case compliance.NotesIncomplete:
		return fmt.Sprintf("Complete the notes at %s with the sections %s",
			issue.Subject, "## Summary, ## Key Decisions, ## Files Modified")
	case compliance.GatesFailed:
		action := fmt.Sprintf("Fix failing gate: %s", issue.Details)
		if issue.Evidence != "" {
			action += "\n  Last output:\n  " + strings.ReplaceAll(issue.Evidence, "\n", "\n  ")
		}
		return action
	case compliance.StepSkipped:
		return fmt.Sprintf("Perform the required %s step from the process wrapper", issue.Subject)
	default:
		return issue.Details
	}
}

func (b *Builder) render(name string, data map[string]any) (string, error) {
	text, err := b.templateText(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template %s: %w", name, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return sb.String(), nil
}

// templateText prefers a project override over the embedded default.
func (b *Builder) templateText(name string) (string, error) {
	if b.overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(b.overrideDir, name)); err == nil {
			return string(data), nil
		}
	}

	data, err := templates.Prompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("read embedded prompt %s: %w", name, err)
	}
	return string(data), nil
}
