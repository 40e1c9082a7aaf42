// Package model defines the domain types and value objects for the
// envmatrix CLI.
//
// This package contains pure data structures with no external dependencies.
// Result entities (EnvResult, CommandResult) are assembled by the runner
// and frozen once an environment finishes; container metadata (RunRecord)
// is a transient representation reconstructed from Docker container labels
// at runtime; there are no persistent state files.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
