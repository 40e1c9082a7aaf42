// list.go implements the "envmatrix list" command.
//
// The list command displays every environment the matrix declares:
// name, execution mode (host or container image), command count,
// whether it is check-only, and whether it belongs to the default run
// list. Output is a text table or a JSON array, depending on the
// --json flag.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kasugano/envmatrix/internal/config"
)

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared environments",
		Long: `List every environment the matrix configuration declares.

Each environment is shown with its execution mode (host or container
image), the number of declared commands, a check-only marker, and
whether it runs by default.

Examples:
  envmatrix list
  envmatrix list --json`,

		// No positional arguments are required for the list command.
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}
}

// runList is the main logic function for the list command. It loads
// the matrix, builds one row per declared environment, and outputs
// them in the appropriate format.
func runList() error {
	m, err := loadMatrix()
	if err != nil {
		return err
	}

	printListResult(listRows(m))
	return nil
}

// listRow is one environment's list entry, shared by the text and JSON
// printers.
type listRow struct {
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	Commands    int    `json:"commands"`
	CheckOnly   bool   `json:"checkonly"`
	Default     bool   `json:"default"`
}

// listRows converts the matrix into display rows, sorted by name for
// consistent output. Default-list membership is marked per row; the
// default list's own order only matters to the run command.
func listRows(m *config.Matrix) []listRow {
	inDefault := make(map[string]bool, len(m.Default))
	for _, name := range m.DefaultList() {
		inDefault[name] = true
	}

	rows := make([]listRow, 0, len(m.Envs))
	for _, name := range m.Names() {
		env := m.Envs[name]
		rows = append(rows, listRow{
			Name:        name,
			Mode:        envModeLabel(env),
			Image:       env.Container,
			Description: env.Description,
			Commands:    len(env.Commands),
			CheckOnly:   env.CheckOnly,
			Default:     inDefault[name],
		})
	}
	return rows
}

// envModeLabel renders where a declared environment runs: its container
// image reference, or "host" when it declares none.
func envModeLabel(env config.EnvConfig) string {
	if env.Container != "" {
		return env.Container
	}
	return "host"
}

// printListResult outputs the environment rows in text or JSON format,
// depending on the global --json flag.
func printListResult(rows []listRow) {
	if IsJSONOutput() {
		printListResultJSON(rows)
	} else {
		printListResultText(rows)
	}
}

// printListResultJSON outputs the environment list as structured JSON.
// The top-level key is "environments" containing an array of rows.
func printListResultJSON(rows []listRow) {
	type resultJSON struct {
		Environments []listRow `json:"environments"`
	}

	// An empty slice instead of nil ensures JSON output shows []
	// instead of null when no environments are declared.
	result := resultJSON{Environments: rows}
	if result.Environments == nil {
		result.Environments = []listRow{}
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the environment list as a human-readable
// table with aligned columns.
//
// The table format is:
//
//	NAME        MODE         COMMANDS  CHECKONLY  DEFAULT
//	black       host         1         yes        yes
//	py35        python:3.5   1         -          yes
func printListResultText(rows []listRow) {
	if len(rows) == 0 {
		fmt.Println("No environments declared.")
		return
	}

	fmt.Printf("%-16s %-20s %-9s %-10s %s\n",
		"NAME", "MODE", "COMMANDS", "CHECKONLY", "DEFAULT")

	for _, row := range rows {
		fmt.Printf("%-16s %-20s %-9d %-10s %s\n",
			row.Name,
			row.Mode,
			row.Commands,
			yesDash(row.CheckOnly),
			yesDash(row.Default),
		)
	}
}

// yesDash renders a boolean marker column: "yes" or "-".
func yesDash(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
