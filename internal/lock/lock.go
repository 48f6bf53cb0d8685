// Package lock prevents two orchestrator processes from mutating one
// plan's state store. A PID file in the state directory is the whole
// mechanism; stale files from dead processes are reclaimed.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/util"
)

// PIDGuard guards one state directory.
type PIDGuard struct {
	pidFile string
}

// NewPIDGuard creates a guard for the PID file at path.
func NewPIDGuard(path string) *PIDGuard {
	return &PIDGuard{pidFile: path}
}

// Acquire claims the guard for the current process. It fails when another
// live process holds it; a PID file left by a dead process is removed and
// reclaimed.
func (g *PIDGuard) Acquire() error {
	if err := g.check(); err != nil {
		return err
	}

	if err := util.AtomicWriteFileString(g.pidFile, strconv.Itoa(os.Getpid()), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file. Safe to call when the file is gone.
func (g *PIDGuard) Release() {
	os.Remove(g.pidFile)
}

func (g *PIDGuard) check() error {
	data, err := os.ReadFile(g.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Unreadable PID file, reclaim it.
		os.Remove(g.pidFile)
		return nil
	}

	if processExists(pid) {
		return deberrors.ErrLockHeld(pid)
	}

	os.Remove(g.pidFile)
	return nil
}

// processExists reports whether a process with the given PID is alive.
// On Unix, FindProcess always succeeds; signal 0 does the real check.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
