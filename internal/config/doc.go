// Package config loads, validates, and resolves the environment matrix.
//
// The matrix is a declarative file (envmatrix.toml, envmatrix.yaml, or
// envmatrix.json) mapping environment names to ordered command lists plus
// execution metadata (container image, working directory, environment
// variables, check-only flag). It is read once at startup and never
// mutated at runtime.
//
// Resolution turns a declared environment into its exact runtime form:
// argv lists after placeholder substitution, the absolute working
// directory, and the hermetic child environment.
package config
