package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	deberrors "github.com/debussylabs/debussy/internal/errors"
)

var (
	phaseIDRe   = regexp.MustCompile(`^\d+(\.\d+)?$`)
	phaseLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	idTokenRe   = regexp.MustCompile(`\d+(\.\d+)?`)
	agentMarkRe = regexp.MustCompile(`AGENT:\s*([A-Za-z0-9_-]+)`)
	notesPathRe = regexp.MustCompile("`([^`]+\\.md)`")
	metaLineRe  = regexp.MustCompile(`^\*\*([^*]+):\*\*\s*(.*)$`)

	// Explicit dependency declarations. Casual mentions ("used by Phase 3")
	// never count.
	dependsLineRe = regexp.MustCompile(`(?i)^(depends on|previous phase|requires):\s*(.+)$`)
	dependsItemRe = regexp.MustCompile(`(?i)^phase\s+(\d+(?:\.\d+)?)\b`)

	gateLineRe = regexp.MustCompile(`^([A-Za-z0-9_-]+)\s*:\s*(.*)$`)

	// Canonical process-wrapper step patterns.
	stepPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{StepReadPreviousNotes, regexp.MustCompile(`(?i)read[- _]?previous[- _]?notes|previous[- _]notes`)},
		{StepDocSyncManager, regexp.MustCompile(`(?i)doc[- _]?sync`)},
		{StepImplementation, regexp.MustCompile(`(?i)implement`)},
		{StepPreValidation, regexp.MustCompile(`(?i)pre[- _]?valid`)},
		{StepTaskValidator, regexp.MustCompile(`(?i)task[- _]?valid`)},
		{StepWriteNotes, regexp.MustCompile(`(?i)write[- _]?notes`)},
	}
)

// Option adjusts parsing.
type Option func(*parser)

// WithGateCommands overrides entries of the canonical gate command table.
func WithGateCommands(table map[string]string) Option {
	return func(p *parser) {
		for name, cmd := range table {
			p.gateCommands[name] = cmd
		}
	}
}

type parser struct {
	gateCommands map[string]string
}

func newParser(opts ...Option) *parser {
	p := &parser{gateCommands: make(map[string]string, len(DefaultGateCommands))}
	for name, cmd := range DefaultGateCommands {
		p.gateCommands[name] = cmd
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load parses the master document and every referenced phase document.
func Load(masterPath string, opts ...Option) (*Plan, error) {
	p := newParser(opts...)

	plan, err := p.parseMaster(masterPath)
	if err != nil {
		return nil, err
	}

	for _, phase := range plan.Phases {
		if err := p.parsePhaseDoc(phase); err != nil {
			return nil, deberrors.ErrPlanParse(masterPath,
				fmt.Sprintf("phase %s (%s)", phase.ID, phase.RelPath)).WithCause(err)
		}
	}
	return plan, nil
}

// ParseMaster parses only the master document, leaving phases as stubs
// (id, title, path, declared status). The auditor builds on this so it can
// report missing phase documents itself instead of failing outright.
func ParseMaster(masterPath string, opts ...Option) (*Plan, error) {
	return newParser(opts...).parseMaster(masterPath)
}

// ParsePhase fills a phase stub from its markdown document.
func ParsePhase(phase *Phase, opts ...Option) error {
	return newParser(opts...).parsePhaseDoc(phase)
}

func (p *parser) parseMaster(masterPath string) (*Plan, error) {
	data, err := os.ReadFile(masterPath)
	if err != nil {
		return nil, deberrors.ErrPlanParse(masterPath, "cannot read master document").WithCause(err)
	}

	plan := &Plan{
		Path: masterPath,
		Dir:  filepath.Dir(masterPath),
	}

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)

		if plan.Name == "" && strings.HasPrefix(line, "# ") {
			plan.Name = cleanPlanName(strings.TrimPrefix(line, "# "))
			continue
		}

		if m := metaLineRe.FindStringSubmatch(line); m != nil {
			p.applyMetadata(plan, m[1], m[2])
			continue
		}

		if phase := parsePhaseRow(line, plan.Dir); phase != nil {
			plan.Phases = append(plan.Phases, phase)
		}
	}

	if len(plan.Phases) == 0 {
		return nil, deberrors.ErrPlanParse(masterPath, "no phases table found").WithCause(ErrNoPhases)
	}
	return plan, nil
}

// cleanPlanName strips the conventional "Master Plan" suffix from a title.
func cleanPlanName(s string) string {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"Master Plan", "master plan"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
		}
	}
	return strings.TrimSuffix(s, " -")
}

func (p *parser) applyMetadata(plan *Plan, key, value string) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "github issues":
		plan.Meta.GitHubIssues = splitRefs(value)
	case "github repo":
		plan.Meta.GitHubRepo = strings.TrimSpace(value)
	case "gitlab issues":
		plan.Meta.GitLabIssues = splitRefs(value)
	case "jira issues":
		plan.Meta.JiraIssues = splitRefs(value)
	}
}

// splitRefs splits comma- or whitespace-separated issue references.
func splitRefs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var refs []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			refs = append(refs, f)
		}
	}
	return refs
}

// parsePhaseRow recognizes `| id | [title](path) | ... | ... | status |`
// rows. Header and separator rows fall out naturally: their first cell is
// not a phase id.
func parsePhaseRow(line, dir string) *Phase {
	if !strings.HasPrefix(line, "|") {
		return nil
	}

	cells := splitTableRow(line)
	if len(cells) < 2 {
		return nil
	}
	if !phaseIDRe.MatchString(cells[0]) {
		return nil
	}

	link := phaseLinkRe.FindStringSubmatch(cells[1])
	if link == nil {
		return nil
	}

	phase := &Phase{
		ID:      cells[0],
		Title:   strings.TrimSpace(link[1]),
		RelPath: strings.TrimSpace(link[2]),
		Status:  StatusPending,
	}
	phase.DocPath = filepath.Join(dir, phase.RelPath)

	// Status lives in the last cell when present.
	if len(cells) >= 3 {
		phase.Status = ParseStatus(cells[len(cells)-1])
	}
	return phase
}

func splitTableRow(line string) []string {
	parts := strings.Split(line, "|")
	// First and last parts are the empty strings outside the border pipes.
	if len(parts) >= 2 {
		parts = parts[1 : len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// parsePhaseDoc reads and parses one phase document in place.
func (p *parser) parsePhaseDoc(phase *Phase) error {
	data, err := os.ReadFile(phase.DocPath)
	if err != nil {
		return fmt.Errorf("read phase document: %w", err)
	}

	var section string
	seenSteps := make(map[string]bool)
	seenAgents := make(map[string]bool)
	seenDeps := make(map[string]bool)

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "## ") {
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			continue
		}

		// Bold metadata fields double as dependency/status declarations.
		plain := strings.ReplaceAll(line, "**", "")

		if m := dependsLineRe.FindStringSubmatch(plain); m != nil {
			for _, id := range idTokenRe.FindAllString(m[2], -1) {
				addDep(phase, seenDeps, id)
			}
			continue
		}

		if m := metaLineRe.FindStringSubmatch(line); m != nil {
			if strings.EqualFold(strings.TrimSpace(m[1]), "status") {
				phase.Status = ParseStatus(m[2])
			}
			continue
		}

		for _, m := range agentMarkRe.FindAllStringSubmatch(line, -1) {
			addAgent(phase, seenAgents, m[1])
		}

		bullet, isBullet := strings.CutPrefix(line, "- ")
		bullet = strings.TrimSpace(bullet)

		switch {
		case strings.HasPrefix(section, "gates"):
			if isBullet && bullet != "" {
				phase.Gates = append(phase.Gates, p.parseGate(bullet))
			}

		case strings.HasPrefix(section, "tasks"):
			if isBullet && bullet != "" {
				phase.Tasks = append(phase.Tasks, bullet)
			}

		case strings.HasPrefix(section, "dependencies"):
			if isBullet {
				if m := dependsItemRe.FindStringSubmatch(bullet); m != nil {
					addDep(phase, seenDeps, m[1])
				}
			}

		case strings.HasPrefix(section, "agents to use"):
			if strings.Contains(line, "REQUIRED") {
				if name := firstAgentToken(line); name != "" {
					addAgent(phase, seenAgents, name)
				}
			}

		case strings.HasPrefix(section, "process wrapper"):
			for _, sp := range stepPatterns {
				if !seenSteps[sp.name] && sp.re.MatchString(line) {
					seenSteps[sp.name] = true
					phase.RequiredSteps = append(phase.RequiredSteps, sp.name)
				}
			}
		}

		// Backticked markdown paths carry the notes contract.
		if m := notesPathRe.FindStringSubmatch(line); m != nil {
			lower := strings.ToLower(line)
			switch {
			case strings.Contains(lower, "previous") || strings.Contains(lower, "read"):
				if phase.NotesInput == "" {
					phase.NotesInput = m[1]
				}
			case strings.Contains(lower, "write") || strings.Contains(lower, "output") || strings.Contains(lower, "save"):
				if phase.NotesOutput == "" {
					phase.NotesOutput = m[1]
				}
			}
		}
	}

	return nil
}

func (p *parser) parseGate(bullet string) Gate {
	gate := Gate{Blocking: true}

	if m := gateLineRe.FindStringSubmatch(bullet); m != nil {
		gate.Name = strings.ToLower(m[1])
		gate.Description = strings.TrimSpace(m[2])
	} else {
		gate.Name = strings.ToLower(strings.TrimSpace(bullet))
	}

	if cmd, ok := p.gateCommands[gate.Name]; ok {
		gate.Command = cmd
	} else if gate.Description != "" {
		// Unknown gate names run their description verbatim.
		gate.Command = gate.Description
	}
	return gate
}

// firstAgentToken pulls the agent name out of a table row or bullet within
// the "Agents to Use" section.
func firstAgentToken(line string) string {
	line = strings.TrimPrefix(strings.TrimSpace(line), "|")
	line = strings.TrimPrefix(strings.TrimSpace(line), "- ")
	for _, sep := range []string{"|", ":", "(", "—"} {
		if i := strings.Index(line, sep); i >= 0 {
			line = line[:i]
		}
	}
	token := strings.TrimSpace(strings.Trim(line, "`*"))
	if token == "" || strings.EqualFold(token, "agent") || strings.EqualFold(token, "name") {
		return ""
	}
	if strings.ContainsAny(token, " \t") {
		token = strings.Fields(token)[0]
	}
	return token
}

func addDep(phase *Phase, seen map[string]bool, id string) {
	if id == "" || seen[id] {
		return
	}
	seen[id] = true
	phase.DependsOn = append(phase.DependsOn, id)
}

func addAgent(phase *Phase, seen map[string]bool, name string) {
	if name == "" || seen[name] {
		return
	}
	seen[name] = true
	phase.RequiredAgents = append(phase.RequiredAgents, name)
}
