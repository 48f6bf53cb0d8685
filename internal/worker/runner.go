// Package worker spawns the code-generation worker CLI for one phase
// attempt, routes its stdout through the stream parser, and supports
// cooperative stop for context-window restarts.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/stream"
)

// RestartSentinel prefixes the session log of an execution that was stopped
// cooperatively so the orchestrator can branch into the restart loop.
const RestartSentinel = "CONTEXT_LIMIT_RESTART"

// DefaultTimeout bounds one worker invocation.
const DefaultTimeout = 1800 * time.Second

// killedExitCode is reported when the runner had to kill the worker.
const killedExitCode = -2

// maxLineSize accommodates large single-line JSON events (whole-file tool
// results routinely exceed bufio's default).
const maxLineSize = 10 * 1024 * 1024

// Result is the outcome of one worker invocation.
type Result struct {
	Success         bool
	SessionLog      string
	ExitCode        int
	DurationSeconds float64
	PID             int
	ErrorMessage    string
}

// Stopped reports whether this execution ended in a cooperative stop.
func (r *Result) Stopped() bool {
	return strings.HasPrefix(r.SessionLog, RestartSentinel)
}

// Runner executes the worker CLI.
type Runner struct {
	command string
	args    []string
	sandbox []string // argv prefix, e.g. a container wrapper
	model   string
	workDir string
	timeout time.Duration
	parser  *stream.Parser
	onErr   func(line string)
	logger  *slog.Logger

	stop atomic.Bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithCommand overrides the worker argv.
func WithCommand(command string, args ...string) Option {
	return func(r *Runner) {
		r.command = command
		r.args = args
	}
}

// WithSandbox prepends a wrapper argv (container runner) to the command.
func WithSandbox(argv []string) Option {
	return func(r *Runner) { r.sandbox = argv }
}

// WithModel passes a model selection flag to the worker.
func WithModel(model string) Option {
	return func(r *Runner) { r.model = model }
}

// WithWorkdir sets the working directory.
func WithWorkdir(dir string) Option {
	return func(r *Runner) { r.workDir = dir }
}

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithStderrOutput sets the callback receiving worker stderr lines,
// prefixed "[ERR] ".
func WithStderrOutput(fn func(line string)) Option {
	return func(r *Runner) { r.onErr = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner that feeds parser with worker stdout.
func New(parser *stream.Parser, opts ...Option) *Runner {
	r := &Runner{
		command: "claude",
		args: []string{
			"-p",
			"--output-format", "stream-json",
			"--verbose",
			"--dangerously-skip-permissions",
		},
		timeout: DefaultTimeout,
		parser:  parser,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RequestStop asks the running worker to stop cooperatively. The flag is
// checked between stream reads; the process is then killed and the result
// carries the restart sentinel.
func (r *Runner) RequestStop() {
	r.stop.Store(true)
}

// Execute runs the worker with the given prompt on stdin and blocks until
// it exits, times out, or is stopped. Only spawn failures return an error.
func (r *Runner) Execute(ctx context.Context, prompt string) (*Result, error) {
	r.stop.Store(false)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	argv := append(append([]string{}, r.sandbox...), r.command)
	argv = append(argv, r.args...)
	if r.model != "" {
		argv = append(argv, "--model", r.model)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.workDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, deberrors.ErrWorkerSpawn(argv[0]).WithCause(err)
	}

	pid := cmd.Process.Pid
	r.logger.Info("worker started", "pid", pid, "command", argv[0], "timeout", r.timeout)

	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			if r.stop.Load() {
				_ = cmd.Process.Kill()
				break
			}
			r.parser.ParseLine(scanner.Text())
		}
		return scanner.Err()
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			if r.onErr != nil {
				r.onErr("[ERR] " + scanner.Text())
			}
		}
		return scanner.Err()
	})

	pumpErr := g.Wait()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	if pumpErr != nil {
		r.logger.Warn("stream pump error", "error", pumpErr)
	}

	result := &Result{
		SessionLog:      r.parser.SessionText(),
		ExitCode:        cmd.ProcessState.ExitCode(),
		DurationSeconds: duration.Seconds(),
		PID:             pid,
	}

	switch {
	case r.stop.Load():
		// Stopped between reads; the process was killed, not failed.
		if result.ExitCode < 0 {
			result.ExitCode = killedExitCode
		}
		result.SessionLog = RestartSentinel + "\n" + result.SessionLog
		r.logger.Info("worker stopped cooperatively", "pid", pid, "duration", duration)

	case ctx.Err() == context.DeadlineExceeded:
		result.ErrorMessage = fmt.Sprintf("timeout after %d seconds", int(r.timeout.Seconds()))
		r.logger.Warn("worker timed out", "pid", pid, "timeout", r.timeout)

	case waitErr != nil:
		result.ErrorMessage = fmt.Sprintf("worker exited with code %d", result.ExitCode)
		r.logger.Warn("worker failed", "pid", pid, "exit_code", result.ExitCode)

	default:
		result.Success = true
		r.logger.Info("worker finished", "pid", pid, "duration", duration)
	}

	return result, nil
}
