package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deberrors "github.com/debussylabs/debussy/internal/errors"
)

func guardPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), ".debussy", "debussy.pid")
}

func TestAcquireWritesOwnPID(t *testing.T) {
	path := guardPath(t)
	g := NewPIDGuard(path)

	require.NoError(t, g.Acquire())
	defer g.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestAcquireFailsWhenHeldByLiveProcess(t *testing.T) {
	path := guardPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	// Our own PID stands in for another live orchestrator.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))

	err := NewPIDGuard(path).Acquire()
	require.Error(t, err)

	var derr *deberrors.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, deberrors.CodeLockHeld, derr.Code)
}

func TestAcquireReclaimsStalePID(t *testing.T) {
	path := guardPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	// PID far above any real process on the test machine.
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o644))

	g := NewPIDGuard(path)
	require.NoError(t, g.Acquire())
	defer g.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestAcquireReclaimsGarbagePIDFile(t *testing.T) {
	path := guardPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	g := NewPIDGuard(path)
	require.NoError(t, g.Acquire())
	g.Release()
}

func TestReleaseRemovesFile(t *testing.T) {
	path := guardPath(t)
	g := NewPIDGuard(path)
	require.NoError(t, g.Acquire())

	g.Release()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Releasing twice is fine.
	g.Release()
}
