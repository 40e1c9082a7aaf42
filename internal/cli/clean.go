// clean.go implements the "envmatrix clean" command.
//
// The clean command removes leftover run containers: everything ps
// lists, or only the containers of the named environments. Because the
// containers are identified purely by their envmatrix labels, clean
// works without a matrix config file.
//
// By default, the command prompts for confirmation before removing
// anything. The --force flag skips the prompt.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kasugano/envmatrix/internal/docker"
	"github.com/kasugano/envmatrix/internal/model"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	// force skips the interactive confirmation prompt when true.
	force bool
}

// NewCleanCommand creates the "clean" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean [environment ...]",
		Short: "Remove leftover run containers",
		Long: `Remove run containers left on the host, identified by their envmatrix
labels. Without arguments every leftover container is removed; with
environment names only those environments' containers are.

Unless --force is specified, the command prompts for confirmation.

Examples:
  envmatrix clean
  envmatrix clean py35
  envmatrix clean --force`,

		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation")

	return cmd
}

// runClean is the main logic function for the clean command. It lists
// the leftover containers, filters by the requested environments,
// prompts, and removes.
func runClean(ctx context.Context, envNames []string, flags *cleanFlags) error {
	// Step 1: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 2: List the managed run containers and apply the
	// environment-name filter.
	containers, err := docker.ListRunContainers(ctx, cli)
	if err != nil {
		return err
	}
	targets := selectCleanTargets(containers, envNames)
	VerboseLog("Found %d run containers, %d selected", len(containers), len(targets))

	if len(targets) == 0 {
		printCleanResult(nil)
		return nil
	}

	// Step 3: Prompt for confirmation unless --force is specified.
	if !flags.force {
		confirmed, err := promptCleanConfirmation(targets)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitGeneralError, "operation cancelled by user")
		}
	}

	// Step 4: Remove each container. force=true handles containers an
	// interrupted run left running.
	removed := make([]string, 0, len(targets))
	for _, c := range targets {
		VerboseLog("Removing container %s (%s)...", c.ContainerName, shortID(c.ContainerID))
		if err := docker.RemoveRunContainer(ctx, cli, c.ContainerID, true); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to remove container %q", c.ContainerName), err)
		}
		removed = append(removed, c.ContainerName)
	}

	// Step 5: Output the result.
	printCleanResult(removed)
	return nil
}

// selectCleanTargets filters the leftover containers down to the named
// environments. No names selects everything.
func selectCleanTargets(containers []model.ContainerInfo, envNames []string) []model.ContainerInfo {
	if len(envNames) == 0 {
		return containers
	}

	targets := make([]model.ContainerInfo, 0, len(containers))
	for _, name := range envNames {
		targets = append(targets, docker.FilterByEnv(containers, name)...)
	}
	return targets
}

// promptCleanConfirmation asks the user to confirm the removal. It
// reads a single line from stdin and checks for "y" or "yes". Returns
// true if the user confirmed, false otherwise.
func promptCleanConfirmation(targets []model.ContainerInfo) (bool, error) {
	fmt.Printf("About to remove %d run container(s):\n", len(targets))
	for _, c := range targets {
		fmt.Printf("  - %s (%s)\n", c.ContainerName, c.Status)
	}
	fmt.Print("\nContinue? [y/N] ")

	// bufio.Scanner handles line endings across platforms (LF on Unix,
	// CRLF on Windows).
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// If stdin is closed or an error occurred, treat it as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}

	return false, nil
}

// printCleanResult outputs the clean result in text or JSON format.
func printCleanResult(removed []string) {
	if IsJSONOutput() {
		printCleanResultJSON(removed)
	} else {
		printCleanResultText(removed)
	}
}

// printCleanResultJSON outputs the removed container names as
// structured JSON.
func printCleanResultJSON(removed []string) {
	result := map[string]interface{}{
		"removed":    len(removed),
		"containers": removed,
	}
	if removed == nil {
		result["containers"] = []string{}
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printCleanResultText outputs the clean result as human-readable text.
func printCleanResultText(removed []string) {
	if len(removed) == 0 {
		fmt.Println("No run containers to remove.")
		return
	}

	fmt.Printf("Removed %d run container(s):\n", len(removed))
	for _, name := range removed {
		fmt.Printf("  - %s\n", name)
	}
}
