// Package runner executes selected environments and classifies their
// outcomes.
//
// Environments run in declaration order, serially by default. Serial
// runs stream command output directly; parallel runs capture each
// environment's output and replay it in declaration order, so the two
// modes read identically. Every environment runs its commands
// sequentially and stops at the first failure; environments never
// share mutable state, each one writes only its own result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kasugano/envmatrix/internal/config"
	"github.com/kasugano/envmatrix/internal/docker"
	"github.com/kasugano/envmatrix/internal/guard"
	"github.com/kasugano/envmatrix/internal/model"
	"github.com/kasugano/envmatrix/internal/proc"
)

// Options configure one run.
type Options struct {
	// Parallel is the maximum number of environments running at once.
	// Values below two select serial streaming execution.
	Parallel int

	// Pull refreshes container images before running them.
	Pull bool

	// Keep leaves run containers in place after successful commands.
	Keep bool

	// SkipMissing tolerates missing runtimes for every environment,
	// regardless of per-environment configuration.
	SkipMissing bool

	// Stdout and Stderr receive run output. Nil selects the process
	// streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes environments against one matrix configuration.
type Runner struct {
	opts Options

	// The Docker client is created on the first container-backed
	// environment and shared by all of them for the rest of the run.
	clientOnce sync.Once
	client     *docker.Client
	clientErr  error
}

// New creates a Runner. Nil output streams default to the process
// streams.
func New(opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Runner{opts: opts}
}

// Close releases the Docker client if one was created.
func (r *Runner) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Run executes the environments in order and returns one result per
// attempted environment.
//
// The error return is reserved for run-aborting conditions, currently
// a needed Docker daemon that is unavailable and not tolerated by
// skip-missing. Command failures, check violations, skips, and per-
// environment errors are normal returns expressed in the results;
// model.OverallExitCode folds them into the process exit code.
func (r *Runner) Run(ctx context.Context, envs []*config.ResolvedEnv) ([]model.EnvResult, error) {
	if r.opts.Parallel > 1 && len(envs) > 1 {
		return r.runParallel(ctx, envs)
	}
	return r.runSerial(ctx, envs)
}

// runSerial executes environments one at a time, streaming output.
func (r *Runner) runSerial(ctx context.Context, envs []*config.ResolvedEnv) ([]model.EnvResult, error) {
	results := make([]model.EnvResult, 0, len(envs))

	for _, env := range envs {
		r.printHeader(env)
		res, fatal := r.runOne(ctx, env, false)
		results = append(results, res)
		r.printOutcome(&res)
		if fatal != nil {
			return results, fatal
		}
	}

	return results, nil
}

// runParallel executes environments with bounded concurrency. Output
// is captured per command and replayed in declaration order as each
// environment finishes, so interleaving never reaches the terminal.
func (r *Runner) runParallel(ctx context.Context, envs []*config.ResolvedEnv) ([]model.EnvResult, error) {
	results := make([]model.EnvResult, len(envs))
	done := make([]chan struct{}, len(envs))
	for i := range done {
		done[i] = make(chan struct{})
	}

	// A fatal error cancels the group context, which the remaining
	// workers observe as interruption.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)

	for i, env := range envs {
		i, env := i, env
		g.Go(func() error {
			res, fatal := r.runOne(gctx, env, true)
			results[i] = res
			close(done[i])
			return fatal
		})
	}

	for i, env := range envs {
		<-done[i]
		r.printHeader(env)
		r.replay(&results[i])
		r.printOutcome(&results[i])
	}

	fatal := g.Wait()
	return results, fatal
}

// runOne executes a single environment and finalizes its result.
func (r *Runner) runOne(ctx context.Context, env *config.ResolvedEnv, capture bool) (model.EnvResult, error) {
	res := model.EnvResult{Name: env.Name, Mode: env.Mode, Status: model.StatusPending}
	start := time.Now()

	fatal := r.execute(ctx, env, capture, &res)
	if fatal != nil && res.Status == model.StatusPending {
		res.Status = model.StatusError
		if res.Reason == "" {
			res.Reason = fatal.Error()
		}
	}

	res.Duration = time.Since(start)
	if res.Status == model.StatusPending {
		res.Status = model.StatusPassed
	}
	return res, fatal
}

// execute runs one environment's guard and commands, mutating res.
// A nil return with res.Status still pending means the environment
// passed. The error return aborts the whole run.
func (r *Runner) execute(ctx context.Context, env *config.ResolvedEnv, capture bool, res *model.EnvResult) error {
	// Check 1: a cancelled run marks queued environments without
	// starting them.
	if ctx.Err() != nil {
		res.Status = model.StatusInterrupted
		res.Reason = "run cancelled before start"
		return nil
	}

	// Check 2: the working directory must exist up front. A container
	// run would otherwise create it inside the bind mount, which
	// mutates the workspace.
	if info, err := os.Stat(env.WorkDir); err != nil || !info.IsDir() {
		res.Status = model.StatusError
		res.Reason = fmt.Sprintf("working directory %s does not exist", env.WorkDir)
		return nil
	}

	runCtx := ctx
	if env.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, env.Timeout)
		defer cancel()
	}

	// Step 1: snapshot the workspace for check-only environments. The
	// whole base directory is guarded, not just the working directory:
	// a check invoked from docs/ can still touch src/.
	var (
		g      *guard.Guard
		before guard.Snapshot
	)
	if env.CheckOnly {
		g = guard.New(env.BaseDir)
		snap, err := g.Snapshot()
		if err != nil {
			res.Status = model.StatusError
			res.Reason = fmt.Sprintf("workspace snapshot failed: %v", err)
			return nil
		}
		before = snap
	}

	// Step 2: run the commands, stopping at the first failure.
	var fatal error
	switch env.Mode {
	case model.ModeContainer:
		fatal = r.runContainer(runCtx, ctx, env, capture, res)
	default:
		r.runHost(runCtx, ctx, env, capture, res)
	}
	if fatal != nil {
		return fatal
	}

	// Step 3: verify the workspace afterwards. Failed environments are
	// verified too; their changes are recorded alongside the failure.
	if g != nil && (res.Status == model.StatusPending || res.Status == model.StatusFailed) {
		after, err := g.Snapshot()
		if err != nil {
			res.Status = model.StatusError
			res.Reason = fmt.Sprintf("workspace verification failed: %v", err)
			return nil
		}
		if changes := g.Diff(before, after); len(changes) > 0 {
			res.Changes = changes
			res.Status = model.StatusFailed
			if res.Reason == "" {
				res.Reason = "check-only environment modified the workspace"
			}
		}
	}

	return nil
}

// runHost executes the environment's commands as direct child
// processes.
func (r *Runner) runHost(runCtx, outerCtx context.Context, env *config.ResolvedEnv, capture bool, res *model.EnvResult) {
	for _, argv := range env.Commands {
		if !capture {
			fmt.Fprintf(r.opts.Stdout, "$ %s\n", strings.Join(argv, " "))
		}

		cmdRes, err := proc.Run(runCtx, argv, proc.Options{
			Dir:     env.WorkDir,
			Env:     env.Env,
			Capture: capture,
			Stdout:  r.opts.Stdout,
			Stderr:  r.opts.Stderr,
		})
		res.Commands = append(res.Commands, cmdRes)

		if err != nil {
			r.classifyRunError(err, outerCtx, env, fmt.Sprintf("executable %q not found", argv[0]), res)
			return
		}
		if cmdRes.ExitCode != 0 {
			res.Status = model.StatusFailed
			return
		}
	}
}

// runContainer executes the environment's commands inside containers
// of its configured image. The error return aborts the run (Docker
// needed but unavailable, without skip tolerance).
func (r *Runner) runContainer(runCtx, outerCtx context.Context, env *config.ResolvedEnv, capture bool, res *model.EnvResult) error {
	cli, err := r.dockerClient(runCtx)
	if err != nil {
		return r.containerUnavailable(env, res, err)
	}

	// Image preflight: run containers never pull implicitly, so the
	// image has to be present before the first command starts.
	if ok, fatal := r.ensureImage(runCtx, cli, env, capture, res); !ok {
		return fatal
	}

	spec := docker.RunSpec{
		EnvName:    env.Name,
		Image:      env.Image,
		ConfigPath: env.ConfigPath,
		BaseDir:    env.BaseDir,
		ChangeDir:  env.ChangeDir,
		Env:        env.Env,
		StartedAt:  time.Now(),
		Keep:       r.opts.Keep,
		Capture:    capture,
		Stdout:     r.opts.Stdout,
		Stderr:     r.opts.Stderr,
	}

	cmdResults, kept, err := docker.RunEnv(runCtx, cli, spec, env.Commands)
	res.Commands = append(res.Commands, cmdResults...)
	res.Containers = append(res.Containers, kept...)

	if err != nil {
		var cliErr *model.CLIError
		switch {
		case outerCtx.Err() != nil:
			res.Status = model.StatusInterrupted
			res.Reason = "interrupted"
		case errors.Is(err, context.DeadlineExceeded):
			res.Status = model.StatusError
			res.Reason = fmt.Sprintf("timed out after %s", env.Timeout)
		case proc.IsNotFound(err):
			return r.containerUnavailable(env, res,
				model.WrapCLIError(model.ExitDockerUnavailable, "docker CLI not found", err))
		case errors.As(err, &cliErr) && cliErr.Code == model.ExitDockerUnavailable:
			return r.containerUnavailable(env, res, err)
		default:
			res.Status = model.StatusError
			res.Reason = err.Error()
		}
		return nil
	}

	if n := len(cmdResults); n > 0 && !cmdResults[n-1].OK() {
		res.Status = model.StatusFailed
	}
	return nil
}

// ensureImage makes the environment's image available: --pull always
// refreshes, otherwise a locally absent image is pulled once. A pull
// failure is the container analog of a missing interpreter and goes
// through skip-missing classification. ok reports whether the
// commands may run.
func (r *Runner) ensureImage(ctx context.Context, cli *docker.Client, env *config.ResolvedEnv, capture bool, res *model.EnvResult) (ok bool, fatal error) {
	if !r.opts.Pull {
		exists, err := docker.ImageExists(ctx, cli, env.Image)
		if err != nil {
			return false, r.containerUnavailable(env, res, err)
		}
		if exists {
			return true, nil
		}
	}

	var pullOut io.Writer = r.opts.Stdout
	if capture {
		pullOut = io.Discard
	}
	if err := docker.CLIPull(ctx, env.Image, pullOut); err != nil {
		if proc.IsNotFound(err) {
			return false, r.containerUnavailable(env, res,
				model.WrapCLIError(model.ExitDockerUnavailable, "docker CLI not found", err))
		}
		r.classifyMissing(env, fmt.Sprintf("image %q is not available: %v", env.Image, err), res)
		return false, nil
	}
	return true, nil
}

// containerUnavailable handles an unreachable container runtime:
// skipped when tolerated, otherwise the error aborts the run with the
// Docker-unavailable exit code.
func (r *Runner) containerUnavailable(env *config.ResolvedEnv, res *model.EnvResult, err error) error {
	if env.SkipMissing || r.opts.SkipMissing {
		res.Status = model.StatusSkipped
		res.Reason = err.Error()
		return nil
	}
	res.Status = model.StatusError
	res.Reason = err.Error()
	return err
}

// classifyRunError maps a host execution error onto the environment
// status: interruption first, then timeout, then missing executables
// through skip-missing, everything else an environment error.
func (r *Runner) classifyRunError(err error, outerCtx context.Context, env *config.ResolvedEnv, notFoundReason string, res *model.EnvResult) {
	switch {
	case outerCtx.Err() != nil:
		res.Status = model.StatusInterrupted
		res.Reason = "interrupted"
	case errors.Is(err, context.DeadlineExceeded):
		res.Status = model.StatusError
		res.Reason = fmt.Sprintf("timed out after %s", env.Timeout)
	case proc.IsNotFound(err):
		r.classifyMissing(env, notFoundReason, res)
	default:
		res.Status = model.StatusError
		res.Reason = err.Error()
	}
}

// classifyMissing applies skip-missing tolerance to a missing runtime.
func (r *Runner) classifyMissing(env *config.ResolvedEnv, reason string, res *model.EnvResult) {
	if env.SkipMissing || r.opts.SkipMissing {
		res.Status = model.StatusSkipped
	} else {
		res.Status = model.StatusError
	}
	res.Reason = reason
}

// dockerClient creates the shared Docker client on first use and
// verifies the daemon answers.
func (r *Runner) dockerClient(ctx context.Context) (*docker.Client, error) {
	r.clientOnce.Do(func() {
		cli, err := docker.NewClient()
		if err != nil {
			r.clientErr = err
			return
		}
		if err := cli.Ping(ctx); err != nil {
			_ = cli.Close()
			r.clientErr = err
			return
		}
		r.client = cli
	})
	return r.client, r.clientErr
}

// printHeader announces an environment. In serial mode it precedes the
// streamed output; in parallel mode it precedes the replay.
func (r *Runner) printHeader(env *config.ResolvedEnv) {
	fmt.Fprintf(r.opts.Stdout, "\n=== %s (%s) ===\n", env.Name, modeLabel(env))
}

// printOutcome prints the environment's one-line verdict plus any
// check-only changes and leftover containers.
func (r *Runner) printOutcome(res *model.EnvResult) {
	line := fmt.Sprintf("%s: %s", res.Name, res.Status)
	if res.Reason != "" {
		line += " (" + res.Reason + ")"
	}
	fmt.Fprintln(r.opts.Stdout, line)

	for _, change := range res.Changes {
		fmt.Fprintf(r.opts.Stdout, "  %s\n", change)
	}
	for _, name := range res.Containers {
		fmt.Fprintf(r.opts.Stdout, "  container %s kept\n", name)
	}
}

// replay prints an environment's captured command transcript.
func (r *Runner) replay(res *model.EnvResult) {
	for i := range res.Commands {
		cmd := &res.Commands[i]
		fmt.Fprintf(r.opts.Stdout, "$ %s\n", cmd.String())
		if cmd.Output != "" {
			fmt.Fprint(r.opts.Stdout, cmd.Output)
			if !strings.HasSuffix(cmd.Output, "\n") {
				fmt.Fprintln(r.opts.Stdout)
			}
		}
	}
}

// modeLabel renders where an environment runs: the image reference for
// container mode, "host" otherwise.
func modeLabel(env *config.ResolvedEnv) string {
	if env.Mode == model.ModeContainer {
		return env.Image
	}
	return "host"
}
