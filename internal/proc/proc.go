// Package proc executes resolved commands as host child processes.
//
// Each invocation receives an exact argv, an explicit working directory,
// and a fully computed environment. Nothing is inherited implicitly and
// no shell is involved, so the executed command is byte-for-byte the one
// resolution produced.
//
// Two output modes cover the runner's needs: streaming (stdout/stderr
// wired straight to the caller's writers, used for serial runs) and
// capture (combined output collected into the result, used for parallel
// runs where interleaved output would be unreadable).
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kasugano/envmatrix/internal/model"
)

// Options controls where a command runs and where its output goes.
type Options struct {
	// Dir is the working directory for the command. Required.
	Dir string

	// Env is the complete child environment as KEY=value pairs. The
	// parent environment is never inherited.
	Env []string

	// Capture collects combined stdout+stderr into the result instead
	// of streaming. Stdout/Stderr are ignored when set.
	Capture bool

	// Stdout and Stderr receive the command's output in streaming mode.
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes one argv to completion, honoring context cancellation.
//
// The returned error is nil whenever the command itself ran to
// completion: a non-zero exit is recorded in the result, not returned
// as an error. A non-nil error means the command could not run (missing
// executable, unusable directory) or the context ended; callers can
// classify with errors.Is against exec.ErrNotFound and the context
// errors.
func Run(ctx context.Context, argv []string, opts Options) (model.CommandResult, error) {
	res := model.CommandResult{Argv: argv, ExitCode: -1}
	if len(argv) == 0 {
		err := fmt.Errorf("empty argv")
		res.Err = err.Error()
		return res, err
	}

	// #nosec G204 -- argv comes from the resolved matrix, not raw user input
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	// A grandchild that inherits the output pipes must not stall Wait
	// once the command itself is gone or cancelled.
	cmd.WaitDelay = 10 * time.Second

	var captured strings.Builder
	if opts.Capture {
		// Combined capture keeps the tool's own stdout/stderr ordering,
		// the same view a terminal user would see.
		cmd.Stdout = &captured
		cmd.Stderr = &captured
	} else {
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
	}

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	if opts.Capture {
		res.Output = captured.String()
	}

	if err != nil {
		// Context end takes priority: the kill signal the process died
		// from is a consequence, not the cause.
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = ctxErr.Error()
			return res, ctxErr
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if res.ExitCode < 0 {
				// Killed by a signal outside our control.
				res.Err = exitErr.Error()
			}
			return res, nil
		}

		// The command never started: missing executable, permission
		// problem, or a bad working directory.
		res.Err = err.Error()
		return res, err
	}

	res.ExitCode = 0
	return res, nil
}

// IsNotFound reports whether an error from Run means the executable
// does not exist on PATH, which skip-missing semantics treat as an
// absent runtime rather than a failure.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
