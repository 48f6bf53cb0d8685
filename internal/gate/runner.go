// Package gate runs a phase's validation commands (lint, type-check, test)
// as shell subprocesses and reports pass/fail per gate.
package gate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/debussylabs/debussy/internal/plan"
	"github.com/debussylabs/debussy/internal/util"
)

// DefaultTimeout bounds a single gate command.
const DefaultTimeout = 300 * time.Second

// maxStoredOutput caps the combined stdout+stderr kept per gate. The tail
// is preserved: build and test tools put the summary last.
const maxStoredOutput = 10_000

// Result is the outcome of one gate command.
type Result struct {
	Name     string
	Command  string
	Passed   bool
	Output   string
	Duration time.Duration
}

// Runner executes gates serially in the project root.
type Runner struct {
	workDir string
	timeout time.Duration
	logger  *slog.Logger
	shell   string
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the per-gate timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner rooted at workDir.
func NewRunner(workDir string, opts ...Option) *Runner {
	r := &Runner{
		workDir: workDir,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		shell:   detectShell(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes gates in declaration order, stopping at the first blocking
// failure. Gates after the stop point are not run and produce no result.
func (r *Runner) Run(ctx context.Context, gates []plan.Gate) []Result {
	results := make([]Result, 0, len(gates))

	for _, g := range gates {
		res := r.runGate(ctx, g)
		results = append(results, res)

		if !res.Passed && g.Blocking {
			r.logger.Info("blocking gate failed, stopping", "gate", g.Name)
			break
		}
	}
	return results
}

// VerifyAllGatesPass runs every gate declared by the phase and reports
// whether all of them passed.
func (r *Runner) VerifyAllGatesPass(ctx context.Context, phase *plan.Phase) (bool, []Result) {
	results := r.Run(ctx, phase.Gates)

	allPassed := len(results) == len(phase.Gates)
	for _, res := range results {
		if !res.Passed {
			allPassed = false
		}
	}
	return allPassed, results
}

func (r *Runner) runGate(ctx context.Context, g plan.Gate) Result {
	res := Result{Name: g.Name, Command: g.Command}

	// A gate with no resolvable command is not applicable.
	if g.Command == "" {
		r.logger.Debug("gate has no command, skipping", "gate", g.Name)
		res.Passed = true
		return res
	}

	r.logger.Debug("running gate",
		"gate", g.Name,
		"command", g.Command,
		"workdir", r.workDir,
		"timeout", r.timeout,
	)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.shell, "-c", g.Command)
	cmd.Dir = r.workDir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		res.Output = fmt.Sprintf("TIMEOUT after %d seconds", int(r.timeout.Seconds()))
		r.logger.Warn("gate timed out", "gate", g.Name, "timeout", r.timeout)
		return res
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += stderr.String()
	}
	res.Output = util.TruncateHead(output, maxStoredOutput)
	res.Passed = err == nil

	if res.Passed {
		r.logger.Info("gate passed", "gate", g.Name, "duration", res.Duration)
	} else {
		r.logger.Info("gate failed", "gate", g.Name, "error", err, "output_len", len(output))
	}
	return res
}

// detectShell prefers bash for consistent behavior, falling back to sh and
// finally $SHELL.
func detectShell() string {
	if _, err := exec.LookPath("bash"); err == nil {
		return "bash"
	}
	if _, err := exec.LookPath("sh"); err == nil {
		return "sh"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "sh"
}
