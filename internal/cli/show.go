// show.go implements the "envmatrix show" command.
//
// The show command prints the full resolved detail for one
// environment: the exact argv of every command, the computed child
// environment, the working directory, and the container image when one
// is declared. This is how an operator verifies what `envmatrix run`
// would execute, including {posargs} substitution for arguments after
// "--".
package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kasugano/envmatrix/internal/config"
	"github.com/kasugano/envmatrix/internal/model"
)

// NewShowCommand creates the "show" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <environment> [-- posargs ...]",
		Short: "Show one environment's resolved commands and settings",
		Long: `Show the fully resolved form of one environment: every command as the
exact argv that would execute, the computed child environment, the
working directory, and the container image when one is declared.

Arguments after "--" are substituted for {posargs}, so the output
matches what an identically invoked run would execute.

Examples:
  envmatrix show py37
  envmatrix show py37 -- -k test_spectrum
  envmatrix show build_docs --json`,

		// The single environment name is validated in RunE because
		// positional arguments after "--" are also accepted.
		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			names, posargs := splitPosargs(args, cmd.ArgsLenAtDash())
			if len(names) != 1 {
				return model.NewCLIError(model.ExitGeneralError,
					"show requires exactly one environment name")
			}
			return runShow(names[0], posargs)
		},
	}
}

// runShow is the main logic function for the show command.
func runShow(name string, posargs []string) error {
	m, err := loadMatrix()
	if err != nil {
		return err
	}

	env, err := config.Resolve(m, name, posargs)
	if err != nil {
		return err
	}

	printShowResult(env)
	return nil
}

// printShowResult outputs the resolved environment in text or JSON
// format, depending on the global --json flag.
func printShowResult(env *config.ResolvedEnv) {
	if IsJSONOutput() {
		printShowResultJSON(env)
	} else {
		printShowResultText(env)
	}
}

// showEnvJSON is the JSON output structure for the show command. It
// mirrors the resolved environment field by field.
type showEnvJSON struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Mode        string     `json:"mode"`
	Image       string     `json:"image,omitempty"`
	ConfigPath  string     `json:"configPath"`
	BaseDir     string     `json:"basedir"`
	ChangeDir   string     `json:"changedir,omitempty"`
	Workdir     string     `json:"workdir"`
	CheckOnly   bool       `json:"checkonly"`
	SkipMissing bool       `json:"skipmissing"`
	Timeout     string     `json:"timeout,omitempty"`
	Commands    [][]string `json:"commands"`
	Env         []string   `json:"env"`
}

// printShowResultJSON outputs the resolved environment as structured
// JSON.
func printShowResultJSON(env *config.ResolvedEnv) {
	result := showEnvJSON{
		Name:        env.Name,
		Description: env.Description,
		Mode:        env.Mode.String(),
		Image:       env.Image,
		ConfigPath:  env.ConfigPath,
		BaseDir:     env.BaseDir,
		ChangeDir:   env.ChangeDir,
		Workdir:     env.WorkDir,
		CheckOnly:   env.CheckOnly,
		SkipMissing: env.SkipMissing,
		Timeout:     formatTimeout(env.Timeout),
		Commands:    env.Commands,
		Env:         env.Env,
	}
	if result.Timeout == "none" {
		result.Timeout = ""
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printShowResultText outputs the resolved environment as a
// human-readable detail block.
func printShowResultText(env *config.ResolvedEnv) {
	fmt.Printf("%-13s %s\n", "Name:", env.Name)
	if env.Description != "" {
		fmt.Printf("%-13s %s\n", "Description:", env.Description)
	}
	fmt.Printf("%-13s %s\n", "Mode:", env.Mode)
	if env.Image != "" {
		fmt.Printf("%-13s %s\n", "Image:", env.Image)
	}
	fmt.Printf("%-13s %s\n", "Config:", env.ConfigPath)
	fmt.Printf("%-13s %s\n", "Base dir:", env.BaseDir)
	fmt.Printf("%-13s %s\n", "Workdir:", env.WorkDir)
	fmt.Printf("%-13s %s\n", "Check-only:", yesNo(env.CheckOnly))
	fmt.Printf("%-13s %s\n", "Skip-missing:", yesNo(env.SkipMissing))
	fmt.Printf("%-13s %s\n", "Timeout:", formatTimeout(env.Timeout))

	fmt.Println("Commands:")
	for _, argv := range env.Commands {
		fmt.Printf("  $ %s\n", strings.Join(argv, " "))
	}

	fmt.Println("Environment:")
	for _, kv := range env.Env {
		fmt.Printf("  %s\n", kv)
	}
}

// yesNo renders a boolean setting for the detail block.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatTimeout renders a per-environment time limit, "none" when
// unset.
func formatTimeout(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
