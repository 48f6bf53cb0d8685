// Package stream interprets the worker CLI's line-delimited JSON output in
// real time: assistant text, tool banners, subagent tracking, and token
// accounting. Lines are probed with gjson so unknown fields and foreign
// event types pass through harmlessly.
package stream

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/debussylabs/debussy/internal/util"
)

// DefaultAgent is the active agent before any Task subagent is launched.
const DefaultAgent = "Debussy"

// defaultContextWindow is assumed for per-turn stats; the final result
// event reports the real window via modelUsage.
const defaultContextWindow = 200_000

const bashBannerWidth = 60

// TokenStats is a snapshot of the worker's token consumption.
type TokenStats struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
	CostUSD             float64
	ContextWindow       int
}

// ContextTokens approximates the worker's occupied context: the latest
// turn's input plus everything served from cache.
func (s TokenStats) ContextTokens() int {
	return s.InputTokens + s.CacheReadTokens + s.CacheCreationTokens
}

// Option configures a Parser.
type Option func(*Parser)

// WithTextOutput sets the callback for display text (assistant prose, tool
// banners, subagent output, plain non-JSON lines).
func WithTextOutput(fn func(string)) Option {
	return func(p *Parser) { p.onText = fn }
}

// WithToolUse sets the callback fired once per tool invocation.
func WithToolUse(fn func(name string)) Option {
	return func(p *Parser) { p.onToolUse = fn }
}

// WithBashCommand sets a callback receiving every Bash tool invocation's
// full command line. The checkpoint manager listens here for progress
// signals.
func WithBashCommand(fn func(command string)) Option {
	return func(p *Parser) { p.onBashCommand = fn }
}

// WithTokenStats sets the callback for token accounting updates.
func WithTokenStats(fn func(TokenStats)) Option {
	return func(p *Parser) { p.onTokenStats = fn }
}

// WithAgentChange sets the callback fired when the active agent changes.
func WithAgentChange(fn func(agent string)) Option {
	return func(p *Parser) { p.onAgentChange = fn }
}

// WithRawSink echoes every raw line to w as JSONL, producing the session
// log file.
func WithRawSink(w io.Writer) Option {
	return func(p *Parser) { p.rawSink = w }
}

// Parser consumes one worker output line at a time.
type Parser struct {
	onText        func(string)
	onToolUse     func(name string)
	onBashCommand func(command string)
	onTokenStats  func(TokenStats)
	onAgentChange func(agent string)
	rawSink       io.Writer

	activeAgent  string
	pendingTasks map[string]string // tool_use_id -> subagent name
	sessionText  strings.Builder
	needsNewline bool
}

// New creates a Parser with the default agent active.
func New(opts ...Option) *Parser {
	p := &Parser{
		activeAgent:  DefaultAgent,
		pendingTasks: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ActiveAgent returns the currently active agent name.
func (p *Parser) ActiveAgent() string { return p.activeAgent }

// SessionText returns the accumulated assistant text: every text block and
// text delta, in arrival order. This is the canonical transcript the
// compliance checker reads.
func (p *Parser) SessionText() string { return p.sessionText.String() }

// Reset clears all parser state for a fresh attempt.
func (p *Parser) Reset() {
	p.activeAgent = DefaultAgent
	p.pendingTasks = make(map[string]string)
	p.sessionText.Reset()
	p.needsNewline = false
}

// ParseLine processes one line of worker output.
func (p *Parser) ParseLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	if p.rawSink != nil {
		fmt.Fprintln(p.rawSink, line)
	}

	if !gjson.Valid(line) {
		// The worker sometimes writes plain text (panics, shell noise).
		p.emitLine(line)
		return
	}

	switch gjson.Get(line, "type").String() {
	case "assistant":
		p.handleAssistant(line)
	case "content_block_delta":
		p.handleDelta(line)
	case "user":
		p.handleUser(line)
	case "result":
		p.handleResult(line)
	}
}

func (p *Parser) handleAssistant(line string) {
	gjson.Get(line, "message.content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			p.emitText(block.Get("text").String())
		case "tool_use":
			p.handleToolUse(block)
		}
		return true
	})

	if usage := gjson.Get(line, "message.usage"); usage.Exists() {
		p.emitTokenStats(TokenStats{
			InputTokens:         int(usage.Get("input_tokens").Int()),
			OutputTokens:        int(usage.Get("output_tokens").Int()),
			CacheReadTokens:     int(usage.Get("cache_read_input_tokens").Int()),
			CacheCreationTokens: int(usage.Get("cache_creation_input_tokens").Int()),
			ContextWindow:       defaultContextWindow,
		})
	}
}

func (p *Parser) handleDelta(line string) {
	if gjson.Get(line, "delta.type").String() == "text_delta" {
		p.emitText(gjson.Get(line, "delta.text").String())
	}
}

func (p *Parser) handleToolUse(block gjson.Result) {
	name := block.Get("name").String()
	input := block.Get("input")

	var banner string
	switch name {
	case "Read", "Write", "Edit":
		banner = fmt.Sprintf("[%s: %s]", name, filepath.Base(input.Get("file_path").String()))
	case "Bash":
		command := input.Get("command").String()
		banner = fmt.Sprintf("[Bash: %s]", util.TruncateTail(command, bashBannerWidth))
		if p.onBashCommand != nil {
			p.onBashCommand(command)
		}
	case "Glob", "Grep":
		banner = fmt.Sprintf("[%s: %s]", name, input.Get("pattern").String())
	case "TodoWrite":
		banner = fmt.Sprintf("[TodoWrite: %d items]", len(input.Get("todos").Array()))
	case "Task":
		banner = fmt.Sprintf("[Task: %s]", input.Get("description").String())
		if agent := input.Get("subagent_type").String(); agent != "" {
			p.pendingTasks[block.Get("id").String()] = agent
			p.setActiveAgent(agent)
		}
	default:
		banner = fmt.Sprintf("[%s]", name)
	}

	p.emitLine(banner)
	if p.onToolUse != nil {
		p.onToolUse(name)
	}
}

func (p *Parser) handleUser(line string) {
	gjson.Get(line, "message.content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() != "tool_result" {
			return true
		}

		id := block.Get("tool_use_id").String()
		if agent, ok := p.pendingTasks[id]; ok {
			p.emitSubagentResult(agent, block.Get("content"))
			delete(p.pendingTasks, id)
			p.setActiveAgent(DefaultAgent)
			return true
		}

		if block.Get("is_error").Bool() {
			p.emitLine("[ERROR] " + util.TruncateTail(resultContentText(block.Get("content")), 200))
		}
		return true
	})
}

func (p *Parser) handleResult(line string) {
	usage := gjson.Get(line, "usage")
	stats := TokenStats{
		InputTokens:         int(usage.Get("input_tokens").Int()),
		OutputTokens:        int(usage.Get("output_tokens").Int()),
		CacheReadTokens:     int(usage.Get("cache_read_input_tokens").Int()),
		CacheCreationTokens: int(usage.Get("cache_creation_input_tokens").Int()),
		CostUSD:             gjson.Get(line, "total_cost_usd").Float(),
		ContextWindow:       defaultContextWindow,
	}

	// Any modelUsage entry carries the real context window.
	gjson.Get(line, "modelUsage").ForEach(func(_, entry gjson.Result) bool {
		if w := entry.Get("contextWindow").Int(); w > 0 {
			stats.ContextWindow = int(w)
			return false
		}
		return true
	})

	p.emitTokenStats(stats)
}

// emitSubagentResult prints a Task tool's result attributed to its agent.
// The content arrives either as a list of text blocks or as one string.
func (p *Parser) emitSubagentResult(agent string, content gjson.Result) {
	for _, line := range strings.Split(resultContentText(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "agentId:") {
			continue
		}
		p.emitLine(fmt.Sprintf("[%s] %s", agent, line))
	}
}

func resultContentText(content gjson.Result) string {
	if content.IsArray() {
		var sb strings.Builder
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(block.Get("text").String())
			}
			return true
		})
		return sb.String()
	}
	return content.String()
}

func (p *Parser) setActiveAgent(agent string) {
	if p.activeAgent == agent {
		return
	}
	p.activeAgent = agent
	if p.onAgentChange != nil {
		p.onAgentChange(agent)
	}
}

// emitText sends assistant prose to the display and the transcript.
func (p *Parser) emitText(text string) {
	if text == "" {
		return
	}
	p.sessionText.WriteString(text)
	if p.onText != nil {
		p.onText(text)
	}
	p.needsNewline = !strings.HasSuffix(text, "\n")
}

// emitTokenStats forwards a token snapshot to the stats callback.
func (p *Parser) emitTokenStats(stats TokenStats) {
	if p.onTokenStats != nil {
		p.onTokenStats(stats)
	}
}

// emitLine sends a display-only line (banner, subagent output, error),
// starting a fresh line if prose left the cursor mid-line.
func (p *Parser) emitLine(line string) {
	if p.onText == nil {
		p.needsNewline = false
		return
	}
	if p.needsNewline {
		p.onText("\n")
	}
	p.onText(line + "\n")
	p.needsNewline = false
}
