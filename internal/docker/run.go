// run.go executes an environment's commands inside containers built
// from its configured image. Creation uses the docker CLI in the
// foreground so output and exit codes flow exactly as they do for host
// commands; discovery and removal use the SDK (container.go).
package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kasugano/envmatrix/internal/model"
	"github.com/kasugano/envmatrix/internal/proc"
)

// WorkMount is where the workspace base directory is bind-mounted
// inside every run container. Working directories resolve under it.
const WorkMount = "/work"

// dockerRunDaemonError is the exit code `docker run` reserves for its
// own failures (daemon error, name conflict, bad flags). Codes above it
// (126, 127) and below it come from the command inside the container.
const dockerRunDaemonError = 125

// hostOnlyVars never cross into a container. The image supplies its own
// PATH and HOME; forwarding the host values would shadow the very
// interpreter the container exists to provide.
var hostOnlyVars = map[string]bool{
	"PATH":   true,
	"HOME":   true,
	"TMPDIR": true,
	"USER":   true,
}

// RunSpec describes one environment's container execution: what to run
// it in, where the workspace lives, and how output is handled.
type RunSpec struct {
	// EnvName is the environment being executed.
	EnvName string

	// Image is the configured container image reference.
	Image string

	// ConfigPath is the absolute matrix configuration path, recorded
	// in the container labels.
	ConfigPath string

	// BaseDir is the absolute workspace root on the host, bind-mounted
	// read-write at WorkMount.
	BaseDir string

	// ChangeDir is the declared working directory relative to BaseDir.
	// Empty runs at the mount root.
	ChangeDir string

	// Env is the resolved child environment as KEY=value pairs.
	// Host-only variables are filtered out before they reach the
	// container.
	Env []string

	// StartedAt is stamped into the container labels.
	StartedAt time.Time

	// Keep leaves every container in place after its command finishes,
	// successful or not.
	Keep bool

	// Capture collects command output into the CommandResult instead
	// of streaming. Stdout and Stderr are the streaming destinations,
	// defaulting to the process streams.
	Capture bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// RunEnv runs an environment's commands, one container per command,
// stopping at the first failure.
//
// Each container gets a deterministic name (AllocateName) and the
// envmatrix labels. A successful command's container is removed
// immediately, freeing the name for the next command; a failed
// command's container is kept, stopped, for inspection. With Keep set
// every container survives and later commands fall back to suffixed
// names.
//
// The returned CommandResults carry the in-container argv (the
// environment's declared command, which is the operator-facing
// contract), not the docker wrapper argv. kept lists the names of
// containers left on the host.
//
// A non-zero command exit is a normal return, reflected in the result.
// The error return covers envmatrix-level trouble only: a missing
// docker binary, a daemon-side run failure, cancellation, or a removal
// failure.
func RunEnv(ctx context.Context, cli *Client, spec RunSpec, commands [][]string) ([]model.CommandResult, []string, error) {
	var results []model.CommandResult
	var kept []string

	labels := BuildRunLabels(&model.RunRecord{
		EnvName:    spec.EnvName,
		ConfigPath: spec.ConfigPath,
		Image:      spec.Image,
		StartedAt:  spec.StartedAt,
	})

	for _, argv := range commands {
		name, err := AllocateName(ctx, cli, spec.EnvName, !spec.Keep)
		if err != nil {
			return results, kept, err
		}

		if !spec.Capture {
			out := spec.Stdout
			if out == nil {
				out = os.Stdout
			}
			fmt.Fprintf(out, "$ %s\n", strings.Join(argv, " "))
		}

		res, runErr := proc.Run(ctx, runArgs(spec, name, labels, argv), proc.Options{
			Capture: spec.Capture,
			Stdout:  spec.Stdout,
			Stderr:  spec.Stderr,
		})
		// Report the command the environment declared; the docker
		// wrapper around it is mechanics.
		res.Argv = argv
		results = append(results, res)

		if runErr != nil {
			if ctx.Err() != nil {
				// Cancellation kills the docker CLI, not the
				// daemon-side container, which keeps running until
				// cleaned up.
				kept = append(kept, name)
			}
			return results, kept, runErr
		}

		if res.ExitCode == dockerRunDaemonError {
			return results, kept, model.NewCLIError(
				model.ExitDockerUnavailable,
				fmt.Sprintf("docker run failed for environment %q (exit %d)", spec.EnvName, res.ExitCode),
			)
		}

		if res.ExitCode != 0 {
			kept = append(kept, name)
			return results, kept, nil
		}

		if spec.Keep {
			kept = append(kept, name)
			continue
		}
		// The daemon accepts names as well as IDs for removal. Freeing
		// the name here lets the next command reuse it.
		if err := RemoveRunContainer(ctx, cli, name, false); err != nil {
			return results, kept, err
		}
	}

	return results, kept, nil
}

// runArgs builds the full docker CLI argument vector for one command.
// Label flags are emitted in sorted key order so the same spec always
// produces the same argv.
func runArgs(spec RunSpec, containerName string, labels map[string]string, argv []string) []string {
	args := []string{"docker", "run", "--name", containerName, "--pull=never"}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+labels[k])
	}

	args = append(args, "-v", spec.BaseDir+":"+WorkMount)
	args = append(args, "-w", containerWorkdir(spec.ChangeDir))

	for _, kv := range containerEnv(spec.Env) {
		args = append(args, "-e", kv)
	}

	args = append(args, spec.Image)
	return append(args, argv...)
}

// containerWorkdir maps a declared working directory onto the mount.
func containerWorkdir(changeDir string) string {
	if changeDir == "" {
		return WorkMount
	}
	// The container path is always slash-separated, whatever the host.
	return path.Join(WorkMount, filepath.ToSlash(changeDir))
}

// containerEnv filters the resolved environment down to the variables
// that make sense inside a container.
func containerEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if hostOnlyVars[key] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// CLIPull fetches an image with `docker pull`, streaming progress to
// out (both streams; nil means the process streams). Images are
// fetched here or not at all: run containers are created with
// --pull=never so a run never triggers an implicit network pull.
//
// The returned error preserves exec.ErrNotFound from a missing docker
// binary so callers can apply skip-missing classification.
func CLIPull(ctx context.Context, ref string, out io.Writer) error {
	res, err := proc.Run(ctx, []string{"docker", "pull", ref}, proc.Options{
		Stdout: out,
		Stderr: out,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("docker pull %s: exit status %d", ref, res.ExitCode)
	}
	return nil
}
