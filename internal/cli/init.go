// init.go implements the "envmatrix init" command.
//
// The init command writes a starter envmatrix.toml into the current
// directory: the classic matrix shape of interpreter-version test
// environments, a lint environment, check-only formatting and import
// order environments, an example runner, and a documentation build. It
// refuses to overwrite any existing matrix config.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kasugano/envmatrix/internal/config"
	"github.com/kasugano/envmatrix/internal/model"
)

// seedConfig is the starter matrix init writes. It demonstrates every
// major schema feature: the default list, container-backed version
// environments, {posargs} pass-through, check-only environments, and a
// changedir documentation build.
const seedConfig = `# envmatrix configuration.
#
# "envmatrix run" executes the default list below; "envmatrix run <name>"
# runs any declared environment. Arguments after "--" replace {posargs}.

default = ["py35", "py36", "py37", "flake8"]

# Extra variables for every environment, on top of the hermetic baseline:
# setenv = { PIP_DISABLE_PIP_VERSION_CHECK = "1" }
# Parent variables passed through by glob:
# passenv = ["CI_*"]

[env.py35]
description = "test suite on Python 3.5"
container = "python:3.5"
commands = ["pytest -vv {posargs} tests"]

[env.py36]
description = "test suite on Python 3.6"
container = "python:3.6"
commands = ["pytest -vv {posargs} tests"]

[env.py37]
description = "test suite on Python 3.7"
container = "python:3.7"
commands = ["pytest -vv {posargs} tests"]

[env.flake8]
description = "style lint"
commands = ["flake8 src"]

[env.black]
description = "formatting check"
checkonly = true
commands = ["black --check src docs"]

[env.isort]
description = "import order check"
checkonly = true
commands = ["isort --check-only --diff src"]

[env.examples]
description = "run the example scripts"
commands = ["bash examples/run_all.sh"]

[env.build_docs]
description = "HTML documentation build"
changedir = "docs"
commands = ["sphinx-build -b html . _build/html"]
`

// NewInitCommand creates the "init" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter envmatrix.toml",
		Long: `Write a starter envmatrix.toml into the current directory.

The starter matrix declares container-backed test environments across
interpreter versions, a lint environment, check-only formatting and
import order environments, an example runner, and a documentation
build with its own working directory.

init refuses to overwrite an existing matrix config.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

// runInit is the main logic function for the init command.
func runInit() error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "cannot determine current directory", err)
	}

	// Any existing matrix config blocks init: writing envmatrix.toml
	// next to an envmatrix.yaml would shadow it in discovery order.
	for _, name := range config.CandidateNames() {
		candidate := filepath.Join(cwd, name)
		if _, err := os.Stat(candidate); err == nil {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("%s already exists; not overwriting", candidate))
		}
	}

	target := filepath.Join(cwd, "envmatrix.toml")
	if err := os.WriteFile(target, []byte(seedConfig), 0o644); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to write %s", target), err)
	}

	printInitResult(target)
	return nil
}

// printInitResult outputs the init result in text or JSON format.
func printInitResult(path string) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]string{"path": path}, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Run `envmatrix list` to see the declared environments.")
}
