// Package model defines the domain types for the envmatrix CLI.
//
// All entities in this package represent the vocabulary of an environment
// matrix run: the lifecycle status of an environment, where its commands
// execute, per-command and per-environment results, and the exit codes the
// process reports to the operating system.
//
// Key design decision: the matrix is read once at startup (see
// internal/config) and never mutated, and results are plain values
// assembled by the runner and frozen once an environment finishes.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EnvStatus represents the outcome of running a single environment.
// The state transitions are:
//
//	pending → passed | failed | skipped | error | interrupted
//
// A status never changes once the environment has finished.
type EnvStatus string

const (
	// StatusPending indicates the environment has been selected for this
	// run but has not produced a result yet.
	StatusPending EnvStatus = "pending"

	// StatusPassed indicates every command in the environment exited zero
	// and, for check-only environments, the workspace was left untouched.
	StatusPassed EnvStatus = "passed"

	// StatusFailed indicates a command exited non-zero, or a check-only
	// environment modified the workspace. The failure is the invoked
	// tool's verdict, not an envmatrix malfunction.
	StatusFailed EnvStatus = "failed"

	// StatusSkipped indicates the environment could not run because its
	// runtime (container engine or host executable) is missing and the
	// run tolerates that.
	StatusSkipped EnvStatus = "skipped"

	// StatusError indicates envmatrix itself could not run the environment:
	// missing executable without skip tolerance, container engine failure,
	// or an unusable working directory.
	StatusError EnvStatus = "error"

	// StatusInterrupted indicates the run was cancelled (typically by
	// SIGINT) while this environment was executing or still queued.
	StatusInterrupted EnvStatus = "interrupted"
)

// String returns the string representation of EnvStatus.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in summaries and reports.
func (s EnvStatus) String() string {
	return string(s)
}

// IsValid checks whether the EnvStatus value is one of the
// predefined valid states.
func (s EnvStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPassed, StatusFailed, StatusSkipped, StatusError, StatusInterrupted:
		return true
	default:
		return false
	}
}

// ParseEnvStatus converts a string to an EnvStatus.
// Returns an error if the string does not match any valid status.
func ParseEnvStatus(s string) (EnvStatus, error) {
	status := EnvStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid environment status: %q (valid: pending, passed, failed, skipped, error, interrupted)", s)
	}
	return status, nil
}

// ExecMode represents where an environment's commands execute.
type ExecMode string

const (
	// ModeHost runs commands directly as child processes of envmatrix.
	ModeHost ExecMode = "host"

	// ModeContainer runs commands inside a container created from the
	// environment's configured image, with the workspace bind-mounted.
	// This is how a matrix axis over interpreter or toolchain versions
	// is realized without installing each version on the host.
	ModeContainer ExecMode = "container"
)

// String returns the string representation of ExecMode.
func (m ExecMode) String() string {
	return string(m)
}

// IsValid checks whether the ExecMode value is one of the
// predefined valid modes.
func (m ExecMode) IsValid() bool {
	switch m {
	case ModeHost, ModeContainer:
		return true
	default:
		return false
	}
}

// ParseExecMode converts a string to an ExecMode.
// Returns an error if the string does not match any valid mode.
func ParseExecMode(s string) (ExecMode, error) {
	mode := ExecMode(strings.ToLower(s))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid execution mode: %q (valid: host, container)", s)
	}
	return mode, nil
}

// nameRegex validates environment names: alphanumeric plus hyphens,
// underscores, and dots in the interior, starting and ending alphanumeric.
// Dots and underscores are allowed so conventional matrix names like
// "py3.7" or "build_docs" work unchanged.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid environment name.
// Valid names contain only alphanumeric characters, hyphens, underscores,
// and dots, and must start/end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid environment name %q: must contain only alphanumeric characters, hyphens, underscores, and dots, and start/end with alphanumeric", name)
	}
	return nil
}

// CommandResult records the outcome of one external command invocation
// within an environment. Argv is the exact argument vector that was (or
// would have been) executed. Commands never pass through a shell, so
// Argv is the complete contract with the invoked tool.
type CommandResult struct {
	// Argv is the program name followed by its arguments, after
	// placeholder substitution.
	Argv []string `json:"argv"`

	// ExitCode is the command's exit status. Zero means success. -1 means
	// the command never ran or was killed by a signal; Err explains why.
	ExitCode int `json:"exitCode"`

	// Duration is the wall-clock time the command took.
	Duration time.Duration `json:"-"`

	// Output is the combined stdout and stderr of the command when the
	// runner captured it (parallel runs, container runs). Empty when
	// output was streamed directly to the terminal.
	Output string `json:"output,omitempty"`

	// Err is a human-readable description of an abnormal termination
	// (executable not found, run cancelled). Empty for commands that ran
	// to completion, even with a non-zero exit code.
	Err string `json:"error,omitempty"`
}

// String returns the command line as it would appear in a shell, for
// display only. Execution always uses Argv directly.
func (c *CommandResult) String() string {
	return strings.Join(c.Argv, " ")
}

// OK reports whether the command ran to completion and exited zero.
func (c *CommandResult) OK() bool {
	return c.Err == "" && c.ExitCode == 0
}

// EnvResult aggregates the outcome of one environment: its final status,
// the ordered results of the commands that ran, and any workspace
// modifications detected by the check-only guard. Execution stops at the
// first failing command, so Commands may be shorter than the declaration.
type EnvResult struct {
	// Name is the environment's name as declared in the matrix.
	Name string `json:"name"`

	// Mode records where the commands executed (host or container).
	Mode ExecMode `json:"mode"`

	// Status is the final outcome. See EnvStatus for the meaning of
	// each state.
	Status EnvStatus `json:"status"`

	// Duration is the wall-clock time for the whole environment,
	// including check-only guard snapshots.
	Duration time.Duration `json:"-"`

	// Commands holds one entry per command that was started, in
	// declaration order.
	Commands []CommandResult `json:"commands,omitempty"`

	// Reason is a human-readable explanation for skipped, error, and
	// interrupted statuses. Empty for passed and plain command failures.
	Reason string `json:"reason,omitempty"`

	// Changes lists workspace paths that a check-only environment added,
	// modified, or deleted. A non-empty Changes forces StatusFailed even
	// when every command exited zero.
	Changes []string `json:"changes,omitempty"`

	// Containers names the run containers this environment left on the
	// host: kept failures, --keep survivors, interruption leftovers.
	Containers []string `json:"containers,omitempty"`
}

// Failed reports whether the environment counts against the run:
// failed, error, and interrupted statuses all do.
func (r *EnvResult) Failed() bool {
	switch r.Status {
	case StatusFailed, StatusError, StatusInterrupted:
		return true
	default:
		return false
	}
}

// CheckViolation reports whether this result is a pure check-only
// violation: the workspace changed but every executed command exited
// zero. Pure violations get their own exit code so callers can
// distinguish "the formatter wanted to rewrite files" from "the tests
// failed".
func (r *EnvResult) CheckViolation() bool {
	if r.Status != StatusFailed || len(r.Changes) == 0 {
		return false
	}
	for i := range r.Commands {
		if !r.Commands[i].OK() {
			return false
		}
	}
	return true
}

// ExitCode defines the process exit codes reported by the envmatrix CLI.
// These codes allow scripts and CI systems to programmatically determine
// the outcome of a run.
type ExitCode int

const (
	// ExitSuccess indicates every selected environment passed.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred, or an
	// environment ended in the error status.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the matrix configuration file was not
	// found or is invalid.
	ExitConfigError ExitCode = 2

	// ExitDockerUnavailable indicates a container-backed environment was
	// selected but the Docker daemon is not accessible.
	ExitDockerUnavailable ExitCode = 3

	// ExitEnvNotFound indicates a requested environment name is not
	// declared in the matrix.
	ExitEnvNotFound ExitCode = 4

	// ExitCommandFailed indicates at least one environment command
	// exited non-zero.
	ExitCommandFailed ExitCode = 5

	// ExitCheckViolation indicates the only failures were check-only
	// environments that modified the workspace.
	ExitCheckViolation ExitCode = 6

	// ExitInterrupted indicates the run was cancelled before completion.
	ExitInterrupted ExitCode = 7
)

// OverallExitCode folds a set of environment results into the single
// process exit code, applying a fixed precedence so the same mix of
// outcomes always reports the same code:
//
//	interrupted > error > command failure > check-only violation > success
//
// The ladder ranks "envmatrix could not do its job" above "the invoked
// tools reported problems", and real command failures above pure
// check-only violations.
func OverallExitCode(results []EnvResult) ExitCode {
	var sawError, sawFailure, sawViolation bool

	for i := range results {
		switch {
		case results[i].Status == StatusInterrupted:
			// Interruption wins immediately: the outcomes of the remaining
			// environments are unknowable.
			return ExitInterrupted
		case results[i].Status == StatusError:
			sawError = true
		case results[i].CheckViolation():
			sawViolation = true
		case results[i].Status == StatusFailed:
			sawFailure = true
		}
	}

	switch {
	case sawError:
		return ExitGeneralError
	case sawFailure:
		return ExitCommandFailed
	case sawViolation:
		return ExitCheckViolation
	default:
		return ExitSuccess
	}
}

// ContainerInfo holds runtime information about a Docker container
// created for an environment run. This data is fetched dynamically from
// the Docker API, not persisted by envmatrix itself.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier (SHA-256 hash prefix).
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name
	// (e.g., "envmatrix-py35").
	ContainerName string `json:"containerName"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// Status is the Docker container status (e.g., "running", "exited", "created").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container.
	// Includes envmatrix management labels (envmatrix.* prefix).
	Labels map[string]string `json:"labels,omitempty"`
}

// RunRecord is the metadata envmatrix stamps onto every container it
// creates, reconstructed from Docker labels when listing leftovers.
// A container carrying a RunRecord is self-describing: no state file is
// needed to know which environment and configuration produced it.
type RunRecord struct {
	// EnvName is the environment the container executed.
	EnvName string `json:"envName"`

	// ConfigPath is the absolute path of the matrix configuration file
	// that defined the environment.
	ConfigPath string `json:"configPath"`

	// Image is the configured container image reference.
	Image string `json:"image"`

	// StartedAt is the timestamp when the environment run began.
	StartedAt time.Time `json:"startedAt"`
}

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
// This follows Go's error wrapping convention introduced in Go 1.13.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
