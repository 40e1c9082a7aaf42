// run.go implements the "envmatrix run" command.
//
// The run command resolves the selected environments (or the default
// list when none are named) and executes them in order: serially with
// streamed output by default, or with bounded concurrency and ordered
// replay under --parallel. Arguments after "--" are positional
// arguments substituted for {posargs} in the declared commands.
//
// The process exit code folds the per-environment outcomes by fixed
// precedence: interrupted, then error, then command failure, then
// check violation, then success.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kasugano/envmatrix/internal/config"
	"github.com/kasugano/envmatrix/internal/model"
	"github.com/kasugano/envmatrix/internal/runner"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	// parallel is the maximum number of environments running at once.
	// One (the default) streams output serially.
	parallel int

	// dryRun prints the fully resolved commands without executing.
	dryRun bool

	// skipMissing tolerates a missing runtime for every environment,
	// as if each declared skipmissing = true.
	skipMissing bool

	// pull refreshes container images before running.
	pull bool

	// keep leaves run containers in place after successful commands.
	keep bool

	// report is a path to write the JSON run report to. Empty disables
	// the report file.
	report string
}

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [environment ...] [-- posargs ...]",
		Short: "Run environments from the matrix",
		Long: `Run the named environments, or the default list when none are named.

Environments execute in the order given, commands within an environment
in declaration order, stopping at the environment's first failing
command. Arguments after "--" are substituted for {posargs} in the
declared commands.

Examples:
  envmatrix run
  envmatrix run py37 flake8
  envmatrix run py37 -- -k test_spectrum
  envmatrix run --parallel 4
  envmatrix run --dry-run py37 -- -k test_spectrum`,

		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			names, posargs := splitPosargs(args, cmd.ArgsLenAtDash())
			return runRun(cmd.Context(), names, posargs, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.parallel, "parallel", "p", 1, "Run up to N environments concurrently")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print resolved commands without executing anything")
	cmd.Flags().BoolVar(&flags.skipMissing, "skip-missing", false, "Skip environments whose runtime is unavailable")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "Pull container images before running")
	cmd.Flags().BoolVar(&flags.keep, "keep", false, "Keep run containers after successful commands")
	cmd.Flags().StringVar(&flags.report, "report", "", "Write a JSON run report to this path")

	return cmd
}

// splitPosargs separates environment names from positional arguments
// using the index cobra reports for the "--" separator. dashAt is -1
// when no separator was given.
func splitPosargs(args []string, dashAt int) (names, posargs []string) {
	if dashAt < 0 {
		return args, nil
	}
	return args[:dashAt], args[dashAt:]
}

// runRun is the main logic function for the run command.
func runRun(ctx context.Context, names, posargs []string, flags *runFlags) error {
	// Step 1: Load and validate the matrix configuration.
	m, err := loadMatrix()
	if err != nil {
		return err
	}

	// Step 2: Select the environments to run, in order.
	selected, err := config.SelectEnvs(m, names)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("no environments selected: %s declares none", m.Path))
	}
	VerboseLog("Selected environments: %s", strings.Join(selected, ", "))

	// Step 3: Resolve every selected environment up front, so a config
	// problem in the last environment surfaces before the first runs.
	envs := make([]*config.ResolvedEnv, 0, len(selected))
	for _, name := range selected {
		env, err := config.Resolve(m, name, posargs)
		if err != nil {
			return err
		}
		envs = append(envs, env)
	}

	// Step 4: A dry run prints the resolved commands and stops. This is
	// the introspection surface for verifying that an environment runs
	// exactly the commands its declaration documents.
	if flags.dryRun {
		printDryRun(envs)
		return nil
	}

	// Step 5: Execute. In JSON mode stdout carries only the report
	// document, so live command output moves to stderr.
	runStdout := io.Writer(os.Stdout)
	if IsJSONOutput() {
		runStdout = os.Stderr
	}

	r := runner.New(runner.Options{
		Parallel:    flags.parallel,
		Pull:        flags.pull,
		Keep:        flags.keep,
		SkipMissing: flags.skipMissing,
		Stdout:      runStdout,
		Stderr:      os.Stderr,
	})
	defer func() { _ = r.Close() }()

	startedAt := time.Now()
	results, fatal := r.Run(ctx, envs)
	report := model.BuildRunReport(Version, m.Path, startedAt, time.Since(startedAt), results)

	// Step 6: Write the report file if requested, even for an aborted
	// run: the attempted environments are still worth recording.
	if flags.report != "" {
		if err := runner.WriteReport(flags.report, report); err != nil {
			return err
		}
		VerboseLog("Wrote run report to %s", flags.report)
	}

	// Step 7: Print the run summary.
	printRunResult(report, results)

	if fatal != nil {
		return fatal
	}

	// Step 8: Fold the per-environment outcomes into the exit code.
	if code := model.OverallExitCode(results); code != model.ExitSuccess {
		if code == model.ExitInterrupted {
			return model.NewCLIError(code, "run interrupted")
		}
		return model.NewCLIError(code,
			fmt.Sprintf("%d of %d environments did not pass", failedCount(results), len(results)))
	}
	return nil
}

// printDryRun outputs the exact resolved commands in text or JSON form.
func printDryRun(envs []*config.ResolvedEnv) {
	if IsJSONOutput() {
		printDryRunJSON(envs)
	} else {
		printDryRunText(envs)
	}
}

// dryRunEnvJSON is the JSON output structure for one environment in
// --dry-run mode.
type dryRunEnvJSON struct {
	Name     string     `json:"name"`
	Mode     string     `json:"mode"`
	Image    string     `json:"image,omitempty"`
	Workdir  string     `json:"workdir"`
	Commands [][]string `json:"commands"`
}

// printDryRunJSON outputs the resolved environments as structured JSON.
func printDryRunJSON(envs []*config.ResolvedEnv) {
	type resultJSON struct {
		Environments []dryRunEnvJSON `json:"environments"`
	}

	result := resultJSON{Environments: make([]dryRunEnvJSON, 0, len(envs))}
	for _, env := range envs {
		result.Environments = append(result.Environments, dryRunEnvJSON{
			Name:     env.Name,
			Mode:     env.Mode.String(),
			Image:    env.Image,
			Workdir:  env.WorkDir,
			Commands: env.Commands,
		})
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printDryRunText outputs the resolved environments as human-readable
// text, one block per environment.
func printDryRunText(envs []*config.ResolvedEnv) {
	for _, env := range envs {
		target := "host"
		if env.Mode == model.ModeContainer {
			target = env.Image
		}
		fmt.Printf("%s (%s):\n", env.Name, target)
		fmt.Printf("  workdir: %s\n", env.WorkDir)
		for _, argv := range env.Commands {
			fmt.Printf("  $ %s\n", strings.Join(argv, " "))
		}
	}
}

// printRunResult outputs the run summary: the full report document in
// JSON mode, a one-line roll-up in text mode (the per-environment
// output has already been streamed or replayed by the runner).
func printRunResult(report *model.RunReport, results []model.EnvResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("\nRan %d environment(s) in %.1fs: %s\n",
		len(results), report.DurationSeconds, summarize(results))
}

// summarize renders per-status counts as "3 passed, 1 failed, 1
// skipped", in fixed status order, omitting zero counts.
func summarize(results []model.EnvResult) string {
	counts := make(map[model.EnvStatus]int, len(results))
	for i := range results {
		counts[results[i].Status]++
	}

	order := []model.EnvStatus{
		model.StatusPassed,
		model.StatusFailed,
		model.StatusSkipped,
		model.StatusError,
		model.StatusInterrupted,
	}

	parts := make([]string, 0, len(order))
	for _, status := range order {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	if len(parts) == 0 {
		return "nothing ran"
	}
	return strings.Join(parts, ", ")
}

// failedCount counts the environments that count against the run:
// failed, errored, and interrupted ones. Skipped environments do not.
func failedCount(results []model.EnvResult) int {
	n := 0
	for i := range results {
		if results[i].Failed() {
			n++
		}
	}
	return n
}
