// Package audit structurally validates a plan before a run: documents
// exist, every phase has gates, and the dependency graph is acyclic.
// Audit never executes anything.
package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/debussylabs/debussy/internal/plan"
)

// Severity grades an audit issue. Only errors fail the audit.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Issue codes.
const (
	CodeMasterNotFound     = "MASTER_NOT_FOUND"
	CodeMasterParseError   = "MASTER_PARSE_ERROR"
	CodeNoPhases           = "NO_PHASES"
	CodePhaseNotFound      = "PHASE_NOT_FOUND"
	CodeMissingGates       = "MISSING_GATES"
	CodeNoNotesOutput      = "NO_NOTES_OUTPUT"
	CodeMissingDependency  = "MISSING_DEPENDENCY"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeOrphanPhaseDoc     = "ORPHAN_PHASE_DOC"
)

// Issue is one audit finding.
type Issue struct {
	Severity Severity
	Code     string
	Message  string
}

// Result is the outcome of an audit.
type Result struct {
	Passed  bool
	Issues  []Issue
	Summary string
	Plan    *plan.Plan // nil when the master could not be parsed
}

// Errors returns only the blocking issues.
func (r *Result) Errors() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// Run audits the plan at masterPath.
func Run(masterPath string, opts ...plan.Option) *Result {
	a := &auditor{}

	if _, err := os.Stat(masterPath); err != nil {
		a.add(SeverityError, CodeMasterNotFound, fmt.Sprintf("master plan %s does not exist", masterPath))
		return a.finish(nil)
	}

	p, err := plan.ParseMaster(masterPath, opts...)
	if err != nil {
		if errors.Is(err, plan.ErrNoPhases) {
			a.add(SeverityError, CodeNoPhases, "master plan has no phases table")
		} else {
			a.add(SeverityError, CodeMasterParseError, fmt.Sprintf("master plan cannot be parsed: %v", err))
		}
		return a.finish(nil)
	}

	for _, phase := range p.Phases {
		if _, err := os.Stat(phase.DocPath); err != nil {
			a.add(SeverityError, CodePhaseNotFound,
				fmt.Sprintf("phase %s document %s does not exist", phase.ID, phase.RelPath))
			continue
		}
		if err := plan.ParsePhase(phase, opts...); err != nil {
			a.add(SeverityError, CodePhaseNotFound,
				fmt.Sprintf("phase %s document %s cannot be parsed: %v", phase.ID, phase.RelPath, err))
			continue
		}

		if len(phase.Gates) == 0 {
			a.add(SeverityError, CodeMissingGates,
				fmt.Sprintf("phase %s declares no gates", phase.ID))
		}
		if phase.NotesOutput == "" {
			a.add(SeverityWarning, CodeNoNotesOutput,
				fmt.Sprintf("phase %s declares no notes output path", phase.ID))
		}
	}

	a.checkDependencies(p)
	a.checkOrphanDocs(p)

	return a.finish(p)
}

type auditor struct {
	issues []Issue
}

func (a *auditor) add(sev Severity, code, msg string) {
	a.issues = append(a.issues, Issue{Severity: sev, Code: code, Message: msg})
}

func (a *auditor) finish(p *plan.Plan) *Result {
	var errs, warns int
	for _, issue := range a.issues {
		switch issue.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		}
	}

	return &Result{
		Passed:  errs == 0,
		Issues:  a.issues,
		Summary: fmt.Sprintf("%d error(s), %d warning(s)", errs, warns),
		Plan:    p,
	}
}

func (a *auditor) checkDependencies(p *plan.Plan) {
	known := make(map[string]bool, len(p.Phases))
	for _, phase := range p.Phases {
		known[phase.ID] = true
	}

	for _, phase := range p.Phases {
		for _, dep := range phase.DependsOn {
			if !known[dep] {
				a.add(SeverityWarning, CodeMissingDependency,
					fmt.Sprintf("phase %s depends on unknown phase %s", phase.ID, dep))
			}
		}
	}

	if cycle := findCycle(p); cycle != nil {
		a.add(SeverityError, CodeCircularDependency,
			fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}
}

// findCycle runs DFS with a recursion stack over the dependency graph and
// returns the first cycle found as `A -> B -> ... -> A`, or nil.
func findCycle(p *plan.Plan) []string {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(p.Phases))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = onStack
		stack = append(stack, id)

		phase := p.GetPhase(id)
		if phase != nil {
			for _, dep := range phase.DependsOn {
				switch state[dep] {
				case onStack:
					// Slice the stack from the cycle entry point and close it.
					for i, v := range stack {
						if v == dep {
							return append(append([]string{}, stack[i:]...), dep)
						}
					}
				case unvisited:
					if cycle := visit(dep); cycle != nil {
						return cycle
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, phase := range p.Phases {
		if state[phase.ID] == unvisited {
			if cycle := visit(phase.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// checkOrphanDocs flags markdown files sitting in phase-doc directories
// that no table row references.
func (a *auditor) checkOrphanDocs(p *plan.Plan) {
	referenced := make(map[string]bool, len(p.Phases)+1)
	referenced[filepath.Clean(p.Path)] = true

	dirs := make(map[string]bool)
	for _, phase := range p.Phases {
		referenced[filepath.Clean(phase.DocPath)] = true
		dirs[filepath.Dir(phase.DocPath)] = true
	}

	for dir := range dirs {
		if dir == filepath.Clean(p.Dir) {
			// Docs living next to the master share a directory with
			// arbitrary project markdown; skip to avoid noise.
			continue
		}
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, "*.md"))
		if err != nil {
			continue
		}
		for _, match := range matches {
			if !referenced[filepath.Clean(match)] {
				a.add(SeverityWarning, CodeOrphanPhaseDoc,
					fmt.Sprintf("%s is not referenced by the master's phases table", match))
			}
		}
	}
}
