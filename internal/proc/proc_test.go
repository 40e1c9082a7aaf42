package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run real child processes (sh and friends) the same way
// the tool does in production. They assume a POSIX environment.

// TestRun_Success verifies a zero-exit command reports success with no
// abnormal-termination error.
func TestRun_Success(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "exit 0"}, Options{
		Dir: t.TempDir(),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Err)
	assert.True(t, res.OK())
	assert.Greater(t, res.Duration, time.Duration(0))
}

// TestRun_NonZeroExit verifies that a failing command is a normal
// completion: the exit code lands in the result and no error is
// returned.
func TestRun_NonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "exit 3"}, Options{
		Dir: t.TempDir(),
	})

	require.NoError(t, err, "non-zero exit is a result, not an error")
	assert.Equal(t, 3, res.ExitCode)
	assert.Empty(t, res.Err)
	assert.False(t, res.OK())
}

// TestRun_Capture verifies combined stdout+stderr capture.
func TestRun_Capture(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "echo out; echo err 1>&2"}, Options{
		Dir:     t.TempDir(),
		Capture: true,
	})

	require.NoError(t, err)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")
}

// TestRun_Streaming verifies streaming mode writes to the provided
// writers and leaves the result's Output empty.
func TestRun_Streaming(t *testing.T) {
	var stdout, stderr strings.Builder

	res, err := Run(context.Background(), []string{"sh", "-c", "echo out; echo err 1>&2"}, Options{
		Dir:    t.TempDir(),
		Stdout: &stdout,
		Stderr: &stderr,
	})

	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
	assert.Empty(t, res.Output)
}

// TestRun_WorkingDirectory verifies the command runs in the requested
// directory.
func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	// Resolve symlinks (macOS tempdirs live under a symlinked /var)
	// so the comparison is against what pwd actually prints.
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	res, runErr := Run(context.Background(), []string{"sh", "-c", "pwd"}, Options{
		Dir:     dir,
		Capture: true,
	})

	require.NoError(t, runErr)
	assert.Equal(t, resolved, strings.TrimSpace(res.Output))
}

// TestRun_HermeticEnv verifies the child sees exactly the provided
// environment: injected variables appear, parent variables do not.
func TestRun_HermeticEnv(t *testing.T) {
	t.Setenv("PROC_TEST_LEAK", "should-not-appear")

	res, err := Run(context.Background(), []string{"sh", "-c", "echo probe=$PROC_TEST_PROBE leak=$PROC_TEST_LEAK"}, Options{
		Dir:     t.TempDir(),
		Env:     []string{"PATH=" + os.Getenv("PATH"), "PROC_TEST_PROBE=visible"},
		Capture: true,
	})

	require.NoError(t, err)
	assert.Contains(t, res.Output, "probe=visible")
	assert.Contains(t, res.Output, "leak=\n", "parent variable must not leak into the child")
}

// TestRun_NotFound verifies the missing-executable classification that
// skip-missing semantics rely on.
func TestRun_NotFound(t *testing.T) {
	res, err := Run(context.Background(), []string{"envmatrix-definitely-missing-binary"}, Options{
		Dir: t.TempDir(),
	})

	require.Error(t, err)
	assert.True(t, IsNotFound(err), "error should classify as executable-not-found")
	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.Err)
}

// TestRun_ContextCancellation verifies that a cancelled context kills
// the command and surfaces the context error, not the kill signal.
func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := Run(ctx, []string{"sleep", "30"}, Options{Dir: t.TempDir()})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.Err)
	assert.Less(t, time.Since(start), 10*time.Second, "the process must not run to completion")
}

// TestRun_EmptyArgv verifies the guard against a command that resolved
// to nothing.
func TestRun_EmptyArgv(t *testing.T) {
	res, err := Run(context.Background(), nil, Options{Dir: t.TempDir()})

	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}
