// ps.go implements the "envmatrix ps" command.
//
// The ps command lists run containers left on the host: failures kept
// for inspection, --keep survivors, and interruption leftovers. The
// containers are discovered purely through their envmatrix.* labels,
// so no matrix config file is needed and the command works after the
// config that created them is gone.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/kasugano/envmatrix/internal/docker"
	"github.com/kasugano/envmatrix/internal/model"
)

// NewPsCommand creates the "ps" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewPsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List run containers left on the host",
		Long: `List containers that envmatrix runs left behind: failed commands kept
for inspection, --keep survivors, and containers orphaned by an
interrupted run.

Containers are identified by their envmatrix labels; no matrix config
is consulted.

Examples:
  envmatrix ps
  envmatrix ps --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPs(cmd.Context())
		},
	}
}

// runPs is the main logic function for the ps command. It connects to
// Docker, lists labeled run containers, and outputs them.
func runPs(ctx context.Context) error {
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

	// Step 2: List every container carrying the managed-by label.
	containers, err := docker.ListRunContainers(ctx, cli)
	if err != nil {
		return err
	}
	VerboseLog("Found %d run containers", len(containers))

	// Step 3: Build display rows from the container labels.
	printPsResult(psRows(containers))
	return nil
}

// psRow is one leftover container's display entry, shared by the text
// and JSON printers.
type psRow struct {
	ContainerName string `json:"containerName"`
	ContainerID   string `json:"containerId"`
	Environment   string `json:"environment"`
	Image         string `json:"image"`
	Status        string `json:"status"`
	StartedAt     string `json:"startedAt,omitempty"`
}

// psRows converts labeled containers into display rows sorted by
// environment name, then container name. Containers whose labels do
// not parse are shown with what the daemon reports directly, so a
// mangled label set never hides a leftover container.
func psRows(containers []model.ContainerInfo) []psRow {
	rows := make([]psRow, 0, len(containers))
	for _, c := range containers {
		row := psRow{
			ContainerName: c.ContainerName,
			ContainerID:   shortID(c.ContainerID),
			Environment:   "-",
			Image:         c.Image,
			Status:        c.Status,
		}
		if rec, err := docker.ParseRunLabels(c.Labels); err == nil {
			row.Environment = rec.EnvName
			row.Image = rec.Image
			row.StartedAt = rec.StartedAt.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Environment != rows[j].Environment {
			return rows[i].Environment < rows[j].Environment
		}
		return rows[i].ContainerName < rows[j].ContainerName
	})
	return rows
}

// shortID truncates a container ID to the 12-character form docker's
// own CLI displays.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// printPsResult outputs the container rows in text or JSON format,
// depending on the global --json flag.
func printPsResult(rows []psRow) {
	if IsJSONOutput() {
		printPsResultJSON(rows)
	} else {
		printPsResultText(rows)
	}
}

// printPsResultJSON outputs the container list as structured JSON. The
// top-level key is "containers" containing an array of rows.
func printPsResultJSON(rows []psRow) {
	type resultJSON struct {
		Containers []psRow `json:"containers"`
	}

	result := resultJSON{Containers: rows}
	if result.Containers == nil {
		result.Containers = []psRow{}
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printPsResultText outputs the container list as a human-readable
// table with aligned columns.
func printPsResultText(rows []psRow) {
	if len(rows) == 0 {
		fmt.Println("No run containers found.")
		return
	}

	fmt.Printf("%-24s %-12s %-12s %-20s %-10s %s\n",
		"CONTAINER", "ID", "ENVIRONMENT", "IMAGE", "STATUS", "STARTED")

	for _, row := range rows {
		started := row.StartedAt
		if started == "" {
			started = "-"
		}
		fmt.Printf("%-24s %-12s %-12s %-20s %-10s %s\n",
			row.ContainerName,
			row.ContainerID,
			row.Environment,
			row.Image,
			row.Status,
			started,
		)
	}
}
