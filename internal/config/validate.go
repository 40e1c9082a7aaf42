// validate.go provides validation functions that check a parsed matrix
// for internal consistency before anything runs.
//
// Validation happens once, right after loading, so every later stage
// (resolution, execution, reporting) can assume a well-formed matrix.
// All problems are collected into a list rather than failing on the
// first one, giving the operator a complete picture in a single run.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kasugano/envmatrix/internal/model"
)

// ValidationError represents a specific validation failure in the matrix file.
type ValidationError struct {
	// Field is the config field path that failed validation
	// (e.g., "env.py35.commands").
	Field string

	// Message describes what's wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("matrix validation error: %s: %s", e.Field, e.Message)
}

// ValidateMatrix performs consistency checks on a parsed matrix.
// It returns a list of validation errors (empty list = valid matrix).
//
// Checks performed:
//   - At least one environment is declared
//   - Environment names follow the naming rules
//   - Every environment has at least one non-blank command
//   - Names in the default list refer to declared environments
//   - Timeout strings parse as Go durations
//   - changedir is relative and stays inside the workspace root
func ValidateMatrix(m *Matrix) []ValidationError {
	var errs []ValidationError

	// Check 1: the matrix must declare something to run.
	if len(m.Envs) == 0 {
		errs = append(errs, ValidationError{
			Field:   "env",
			Message: "no environments declared",
		})
		return errs
	}

	// Check 2: per-environment rules. Iterate in sorted order so the
	// error list is deterministic across runs.
	for _, name := range m.Names() {
		env := m.Envs[name]
		prefix := fmt.Sprintf("env.%s", name)

		if err := model.ValidateName(name); err != nil {
			errs = append(errs, ValidationError{
				Field:   prefix,
				Message: err.Error(),
			})
		}

		if len(env.Commands) == 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".commands",
				Message: "at least one command is required",
			})
		}
		for i, cmd := range env.Commands {
			if strings.TrimSpace(cmd) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.commands[%d]", prefix, i),
					Message: "command must not be blank",
				})
			}
		}

		if env.Timeout != "" {
			if _, err := time.ParseDuration(env.Timeout); err != nil {
				errs = append(errs, ValidationError{
					Field:   prefix + ".timeout",
					Message: fmt.Sprintf("invalid duration %q (expected forms like \"10m\", \"1h30m\")", env.Timeout),
				})
			}
		}

		if env.ChangeDir != "" {
			if filepath.IsAbs(env.ChangeDir) {
				errs = append(errs, ValidationError{
					Field:   prefix + ".changedir",
					Message: "changedir must be relative to the workspace root",
				})
			} else if escapesBase(env.ChangeDir) {
				errs = append(errs, ValidationError{
					Field:   prefix + ".changedir",
					Message: fmt.Sprintf("changedir %q escapes the workspace root", env.ChangeDir),
				})
			}
		}

		if env.Container != "" && strings.TrimSpace(env.Container) == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".container",
				Message: "container image reference must not be blank",
			})
		}
	}

	// Check 3: the default list only names declared environments.
	for i, name := range m.Default {
		if _, ok := m.Envs[name]; !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("default[%d]", i),
				Message: fmt.Sprintf("environment %q is not declared", name),
			})
		}
	}

	return errs
}

// escapesBase reports whether a relative path climbs above its root
// after cleaning (e.g., "../other" or "docs/../../other").
func escapesBase(rel string) bool {
	clean := filepath.Clean(rel)
	return clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

// ValidationErrorsToCLIError folds a non-empty validation error list into
// a single CLIError with the config exit code, joining the individual
// messages. Returns nil for an empty list.
func ValidationErrorsToCLIError(errs []ValidationError, configPath string) *model.CLIError {
	if len(errs) == 0 {
		return nil
	}

	lines := make([]string, 0, len(errs))
	for i := range errs {
		lines = append(lines, fmt.Sprintf("%s: %s", errs[i].Field, errs[i].Message))
	}

	return model.NewCLIError(
		model.ExitConfigError,
		fmt.Sprintf("invalid matrix config %s:\n  %s", configPath, strings.Join(lines, "\n  ")),
	)
}
