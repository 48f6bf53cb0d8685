package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTextAccumulatesBlocksAndDeltas(t *testing.T) {
	p := New()

	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"Hello "}]}}`)
	p.ParseLine(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"world"}}`)
	p.ParseLine(`{"type":"content_block_delta","delta":{"type":"other","text":"IGNORED"}}`)
	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"!"}]}}`)

	assert.Equal(t, "Hello world!", p.SessionText())
}

func TestEmptyLinesSkipped(t *testing.T) {
	var sb strings.Builder
	p := New(WithTextOutput(func(s string) { sb.WriteString(s) }))

	p.ParseLine("")
	p.ParseLine("   ")

	assert.Empty(t, sb.String())
	assert.Empty(t, p.SessionText())
}

func TestNonJSONLinePassesThrough(t *testing.T) {
	var sb strings.Builder
	p := New(WithTextOutput(func(s string) { sb.WriteString(s) }))

	p.ParseLine("panic: something broke")

	assert.Contains(t, sb.String(), "panic: something broke")
	// Plain text is display-only, not transcript.
	assert.Empty(t, p.SessionText())
}

func TestToolBanners(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			"read basename",
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/a/b/main.go"}}]}}`,
			"[Read: main.go]",
		},
		{
			"bash truncated",
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t2","name":"Bash","input":{"command":"` + strings.Repeat("x", 80) + `"}}]}}`,
			"[Bash: " + strings.Repeat("x", 60) + "...]",
		},
		{
			"grep pattern",
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t3","name":"Grep","input":{"pattern":"func main"}}]}}`,
			"[Grep: func main]",
		},
		{
			"todowrite count",
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t4","name":"TodoWrite","input":{"todos":[{},{},{}]}}]}}`,
			"[TodoWrite: 3 items]",
		},
		{
			"task description",
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t5","name":"Task","input":{"description":"review the diff"}}]}}`,
			"[Task: review the diff]",
		},
		{
			"unknown tool",
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t6","name":"WebSearch","input":{}}]}}`,
			"[WebSearch]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			p := New(WithTextOutput(func(s string) { sb.WriteString(s) }))
			p.ParseLine(tt.line)
			assert.Equal(t, tt.want+"\n", sb.String())
		})
	}
}

func TestToolUseCallbackCounts(t *testing.T) {
	var calls []string
	p := New(WithToolUse(func(name string) { calls = append(calls, name) }))

	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"a.go"}},{"type":"tool_use","id":"t2","name":"Bash","input":{"command":"ls"}}]}}`)

	assert.Equal(t, []string{"Read", "Bash"}, calls)
}

func TestSubagentLifecycle(t *testing.T) {
	var sb strings.Builder
	var agents []string
	p := New(
		WithTextOutput(func(s string) { sb.WriteString(s) }),
		WithAgentChange(func(a string) { agents = append(agents, a) }),
	)

	require.Equal(t, DefaultAgent, p.ActiveAgent())

	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"task-1","name":"Task","input":{"description":"validate","subagent_type":"task-validator"}}]}}`)
	assert.Equal(t, "task-validator", p.ActiveAgent())

	p.ParseLine(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"task-1","content":[{"type":"text","text":"agentId: abc123\nall checks green\n\ndone"}]}]}}`)

	assert.Equal(t, DefaultAgent, p.ActiveAgent())
	assert.Equal(t, []string{"task-validator", DefaultAgent}, agents)

	out := sb.String()
	assert.Contains(t, out, "[task-validator] all checks green\n")
	assert.Contains(t, out, "[task-validator] done\n")
	assert.NotContains(t, out, "agentId")
}

func TestSubagentResultStringContent(t *testing.T) {
	var sb strings.Builder
	p := New(WithTextOutput(func(s string) { sb.WriteString(s) }))

	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"task-9","name":"Task","input":{"description":"d","subagent_type":"reviewer"}}]}}`)
	p.ParseLine(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"task-9","content":"looks good"}]}}`)

	assert.Contains(t, sb.String(), "[reviewer] looks good\n")
}

func TestToolResultErrorLine(t *testing.T) {
	var sb strings.Builder
	p := New(WithTextOutput(func(s string) { sb.WriteString(s) }))

	p.ParseLine(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"other","is_error":true,"content":"command not found"}]}}`)

	assert.Contains(t, sb.String(), "[ERROR] command not found")
}

func TestPerTurnTokenStats(t *testing.T) {
	var stats []TokenStats
	p := New(WithTokenStats(func(s TokenStats) { stats = append(stats, s) }))

	p.ParseLine(`{"type":"assistant","message":{"content":[],"usage":{"input_tokens":1000,"output_tokens":50,"cache_read_input_tokens":40000,"cache_creation_input_tokens":2000}}}`)

	require.Len(t, stats, 1)
	assert.Equal(t, 1000, stats[0].InputTokens)
	assert.Equal(t, 50, stats[0].OutputTokens)
	assert.Equal(t, 40000, stats[0].CacheReadTokens)
	assert.Equal(t, 2000, stats[0].CacheCreationTokens)
	assert.Zero(t, stats[0].CostUSD)
	assert.Equal(t, 200_000, stats[0].ContextWindow)
	assert.Equal(t, 43000, stats[0].ContextTokens())
}

func TestTokenStatsWithoutCallback(t *testing.T) {
	p := New()

	// Usage lines must be safe to parse when nobody listens for stats.
	p.ParseLine(`{"type":"assistant","message":{"content":[],"usage":{"input_tokens":1000,"output_tokens":50}}}`)
	p.ParseLine(`{"type":"result","total_cost_usd":0.5,"usage":{"input_tokens":2000,"output_tokens":100}}`)
}

func TestFinalResultStats(t *testing.T) {
	var stats []TokenStats
	p := New(WithTokenStats(func(s TokenStats) { stats = append(stats, s) }))

	p.ParseLine(`{"type":"result","total_cost_usd":1.25,"usage":{"input_tokens":9000,"output_tokens":700},"modelUsage":{"claude-x":{"contextWindow":500000}}}`)

	require.Len(t, stats, 1)
	assert.Equal(t, 9000, stats[0].InputTokens)
	assert.Equal(t, 1.25, stats[0].CostUSD)
	assert.Equal(t, 500000, stats[0].ContextWindow)
}

func TestRawSinkEchoesEveryLine(t *testing.T) {
	var sink strings.Builder
	p := New(WithRawSink(&sink))

	p.ParseLine(`{"type":"assistant","message":{"content":[]}}`)
	p.ParseLine("not json")

	assert.Equal(t,
		"{\"type\":\"assistant\",\"message\":{\"content\":[]}}\nnot json\n",
		sink.String())
}

func TestBannerStartsFreshLineAfterProse(t *testing.T) {
	var sb strings.Builder
	p := New(WithTextOutput(func(s string) { sb.WriteString(s) }))

	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"thinking"}]}}`)
	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}`)

	assert.Equal(t, "thinking\n[Bash: ls]\n", sb.String())
}

func TestReset(t *testing.T) {
	p := New()

	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"abc"},{"type":"tool_use","id":"task-1","name":"Task","input":{"description":"d","subagent_type":"reviewer"}}]}}`)
	require.NotEmpty(t, p.SessionText())
	require.Equal(t, "reviewer", p.ActiveAgent())

	p.Reset()

	assert.Empty(t, p.SessionText())
	assert.Equal(t, DefaultAgent, p.ActiveAgent())
}
