package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasugano/envmatrix/internal/config"
	"github.com/kasugano/envmatrix/internal/model"
)

// hostEnv builds a resolved host-mode environment rooted in a fresh
// temporary directory, with each command expressed as a shell snippet.
// The child environment carries the test process PATH so the snippets
// can reach ordinary binaries.
func hostEnv(t *testing.T, name string, scripts ...string) *config.ResolvedEnv {
	t.Helper()

	dir := t.TempDir()
	commands := make([][]string, 0, len(scripts))
	for _, script := range scripts {
		commands = append(commands, []string{"sh", "-c", script})
	}

	return &config.ResolvedEnv{
		Name:       name,
		Mode:       model.ModeHost,
		ConfigPath: filepath.Join(dir, "envmatrix.toml"),
		BaseDir:    dir,
		WorkDir:    dir,
		Commands:   commands,
		Env: []string{
			"ENVMATRIX_ENV=" + name,
			"PATH=" + os.Getenv("PATH"),
		},
	}
}

// newTestRunner wires a Runner to an in-memory buffer so tests can
// assert on the rendered output.
func newTestRunner(opts Options) (*Runner, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	opts.Stdout = buf
	opts.Stderr = buf
	return New(opts), buf
}

// run executes the environments and requires that nothing aborted the
// run itself.
func run(t *testing.T, r *Runner, envs ...*config.ResolvedEnv) []model.EnvResult {
	t.Helper()

	results, err := r.Run(context.Background(), envs)
	require.NoError(t, err)
	require.Len(t, results, len(envs))
	return results
}

// TestRunner_SerialPassed verifies the happy path: every environment
// runs its commands in order, streams output, and passes.
func TestRunner_SerialPassed(t *testing.T) {
	r, buf := newTestRunner(Options{})
	results := run(t, r,
		hostEnv(t, "py35", "echo first-env"),
		hostEnv(t, "flake8", "echo second-env"),
	)

	assert.Equal(t, model.StatusPassed, results[0].Status)
	assert.Equal(t, model.StatusPassed, results[1].Status)
	assert.Equal(t, model.ExitSuccess, model.OverallExitCode(results))

	out := buf.String()
	assert.Contains(t, out, "=== py35 (host) ===")
	assert.Contains(t, out, "$ sh -c echo first-env")
	assert.Contains(t, out, "first-env")
	assert.Contains(t, out, "py35: passed")
	assert.Contains(t, out, "=== flake8 (host) ===")
	assert.Contains(t, out, "flake8: passed")

	// Environments run in declaration order.
	assert.Less(t, strings.Index(out, "py35: passed"), strings.Index(out, "=== flake8"))
}

// TestRunner_StopsAtFirstFailingCommand verifies that a non-zero exit
// fails the environment and skips its remaining commands while
// propagating the failure into the overall exit code.
func TestRunner_StopsAtFirstFailingCommand(t *testing.T) {
	r, buf := newTestRunner(Options{})
	results := run(t, r,
		hostEnv(t, "py36", "echo ran", "exit 3", "echo never-reached"),
	)

	res := results[0]
	assert.Equal(t, model.StatusFailed, res.Status)
	require.Len(t, res.Commands, 2)
	assert.Equal(t, 0, res.Commands[0].ExitCode)
	assert.Equal(t, 3, res.Commands[1].ExitCode)
	assert.Equal(t, model.ExitCommandFailed, model.OverallExitCode(results))
	assert.NotContains(t, buf.String(), "never-reached")
}

// TestRunner_ContinuesAfterEnvFailure verifies that one failing
// environment does not prevent later environments from running.
func TestRunner_ContinuesAfterEnvFailure(t *testing.T) {
	r, _ := newTestRunner(Options{})
	results := run(t, r,
		hostEnv(t, "py35", "exit 1"),
		hostEnv(t, "py36", "echo still-runs"),
	)

	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Equal(t, model.StatusPassed, results[1].Status)
	assert.Equal(t, model.ExitCommandFailed, model.OverallExitCode(results))
}

// TestRunner_MissingExecutable verifies skip-missing classification: a
// runtime that does not exist on PATH is skipped when tolerated and an
// error otherwise.
func TestRunner_MissingExecutable(t *testing.T) {
	missing := func(t *testing.T) *config.ResolvedEnv {
		env := hostEnv(t, "py37")
		env.Commands = [][]string{{"envmatrix-test-no-such-binary"}}
		return env
	}

	t.Run("tolerated by environment flag", func(t *testing.T) {
		env := missing(t)
		env.SkipMissing = true

		r, buf := newTestRunner(Options{})
		results := run(t, r, env)

		assert.Equal(t, model.StatusSkipped, results[0].Status)
		assert.Contains(t, results[0].Reason, "not found")
		assert.Contains(t, buf.String(), "py37: skipped")
		assert.Equal(t, model.ExitSuccess, model.OverallExitCode(results))
	})

	t.Run("tolerated by run option", func(t *testing.T) {
		r, _ := newTestRunner(Options{SkipMissing: true})
		results := run(t, r, missing(t))

		assert.Equal(t, model.StatusSkipped, results[0].Status)
	})

	t.Run("error when not tolerated", func(t *testing.T) {
		r, _ := newTestRunner(Options{})
		results := run(t, r, missing(t))

		assert.Equal(t, model.StatusError, results[0].Status)
		assert.Equal(t, model.ExitGeneralError, model.OverallExitCode(results))
	})
}

// TestRunner_Timeout verifies that an environment exceeding its
// configured limit is reported as an error, not a command failure.
func TestRunner_Timeout(t *testing.T) {
	env := hostEnv(t, "py35", "exec sleep 5")
	env.Timeout = 100 * time.Millisecond

	r, _ := newTestRunner(Options{})
	results := run(t, r, env)

	res := results[0]
	assert.Equal(t, model.StatusError, res.Status)
	assert.Contains(t, res.Reason, "timed out after")
	assert.Equal(t, model.ExitGeneralError, model.OverallExitCode(results))
}

// TestRunner_Interrupted verifies cancellation handling: the running
// environment is marked interrupted and queued environments are marked
// without being started.
func TestRunner_Interrupted(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r, _ := newTestRunner(Options{})
		results, err := r.Run(ctx, []*config.ResolvedEnv{
			hostEnv(t, "py35", "echo unreachable"),
			hostEnv(t, "py36", "echo unreachable"),
		})
		require.NoError(t, err)
		require.Len(t, results, 2)

		for _, res := range results {
			assert.Equal(t, model.StatusInterrupted, res.Status)
			assert.Equal(t, "run cancelled before start", res.Reason)
			assert.Empty(t, res.Commands)
		}
		assert.Equal(t, model.ExitInterrupted, model.OverallExitCode(results))
	})

	t.Run("cancelled mid-run", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()

		r, _ := newTestRunner(Options{})
		results, err := r.Run(ctx, []*config.ResolvedEnv{
			hostEnv(t, "py35", "exec sleep 5"),
			hostEnv(t, "py36", "echo unreachable"),
		})
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, model.StatusInterrupted, results[0].Status)
		assert.Equal(t, "interrupted", results[0].Reason)
		assert.Equal(t, model.StatusInterrupted, results[1].Status)
		assert.Equal(t, "run cancelled before start", results[1].Reason)
		assert.Equal(t, model.ExitInterrupted, model.OverallExitCode(results))
	})
}

// TestRunner_CheckOnlyViolation verifies the workspace guard: a
// check-only environment whose commands all exit zero still fails when
// it leaves a new file behind, and the change is attributed.
func TestRunner_CheckOnlyViolation(t *testing.T) {
	env := hostEnv(t, "black", "echo checking > newfile.txt")
	env.CheckOnly = true

	r, buf := newTestRunner(Options{})
	results := run(t, r, env)

	res := results[0]
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, "check-only environment modified the workspace", res.Reason)
	assert.Equal(t, []string{"added: newfile.txt"}, res.Changes)
	assert.True(t, res.CheckViolation())
	assert.Equal(t, model.ExitCheckViolation, model.OverallExitCode(results))
	assert.Contains(t, buf.String(), "added: newfile.txt")
}

// TestRunner_CheckOnlyClean verifies that a well-behaved check-only
// environment passes with no recorded changes.
func TestRunner_CheckOnlyClean(t *testing.T) {
	env := hostEnv(t, "isort", "test -f seed.txt")
	env.CheckOnly = true
	require.NoError(t, os.WriteFile(filepath.Join(env.BaseDir, "seed.txt"), []byte("seed\n"), 0o644))

	r, _ := newTestRunner(Options{})
	results := run(t, r, env)

	assert.Equal(t, model.StatusPassed, results[0].Status)
	assert.Empty(t, results[0].Changes)
}

// TestRunner_CheckOnlyFailedCommandStillVerified verifies that the
// guard runs even when a check-only command fails, so a tool that both
// rewrites files and exits non-zero has its changes recorded. The
// command failure keeps precedence in the exit code.
func TestRunner_CheckOnlyFailedCommandStillVerified(t *testing.T) {
	env := hostEnv(t, "black", "echo rewrote > mutated.txt; exit 1")
	env.CheckOnly = true

	r, _ := newTestRunner(Options{})
	results := run(t, r, env)

	res := results[0]
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, []string{"added: mutated.txt"}, res.Changes)
	assert.False(t, res.CheckViolation())
	assert.Equal(t, model.ExitCommandFailed, model.OverallExitCode(results))
}

// TestRunner_MissingWorkdir verifies that an absent working directory
// is caught before any command runs.
func TestRunner_MissingWorkdir(t *testing.T) {
	env := hostEnv(t, "build_docs", "echo unreachable")
	env.WorkDir = filepath.Join(env.BaseDir, "docs")

	r, _ := newTestRunner(Options{})
	results := run(t, r, env)

	res := results[0]
	assert.Equal(t, model.StatusError, res.Status)
	assert.Contains(t, res.Reason, "does not exist")
	assert.Empty(t, res.Commands)
}

// TestRunner_ParallelReplaysInOrder verifies parallel execution:
// output is captured per environment and replayed in declaration
// order, so the transcript reads exactly like a serial run.
func TestRunner_ParallelReplaysInOrder(t *testing.T) {
	r, buf := newTestRunner(Options{Parallel: 3})
	results := run(t, r,
		hostEnv(t, "py35", "echo marker-one"),
		hostEnv(t, "py36", "echo marker-two"),
		hostEnv(t, "py37", "echo marker-three"),
	)

	for i, res := range results {
		assert.Equal(t, model.StatusPassed, res.Status, "env %d", i)
		require.Len(t, res.Commands, 1)
		assert.Contains(t, res.Commands[0].Output, "marker-")
	}

	out := buf.String()
	first := strings.Index(out, "marker-one")
	second := strings.Index(out, "marker-two")
	third := strings.Index(out, "marker-three")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	require.NotEqual(t, -1, third)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
}

// TestRunner_ParallelFailure verifies that failures in a parallel run
// are attributed to the right environment and fold into the exit code.
func TestRunner_ParallelFailure(t *testing.T) {
	r, _ := newTestRunner(Options{Parallel: 2})
	results := run(t, r,
		hostEnv(t, "py35", "echo fine"),
		hostEnv(t, "flake8", "exit 1"),
		hostEnv(t, "isort", "echo also-fine"),
	)

	assert.Equal(t, model.StatusPassed, results[0].Status)
	assert.Equal(t, model.StatusFailed, results[1].Status)
	assert.Equal(t, model.StatusPassed, results[2].Status)
	assert.Equal(t, model.ExitCommandFailed, model.OverallExitCode(results))
}

// TestRunner_CommandEnvironment verifies that commands observe the
// resolved child environment rather than the runner's own.
func TestRunner_CommandEnvironment(t *testing.T) {
	env := hostEnv(t, "py35", `test "$ENVMATRIX_ENV" = py35`)

	r, _ := newTestRunner(Options{})
	results := run(t, r, env)

	assert.Equal(t, model.StatusPassed, results[0].Status)
}
