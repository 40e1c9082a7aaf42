package config

import (
	"testing"

	"github.com/kasugano/envmatrix/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validMatrix returns a minimal matrix that passes every check, for
// tests that break one field at a time.
func validMatrix() *Matrix {
	return &Matrix{
		Path:    "/project/envmatrix.toml",
		Default: []string{"py35"},
		Envs: map[string]EnvConfig{
			"py35":       {Commands: []string{"pytest src/gammafit/tests"}},
			"build_docs": {Commands: []string{"sphinx-build -b html . _build/html"}, ChangeDir: "docs"},
		},
	}
}

// TestValidateMatrix_Valid verifies that a well-formed matrix produces
// no validation errors.
func TestValidateMatrix_Valid(t *testing.T) {
	errs := ValidateMatrix(validMatrix())
	assert.Empty(t, errs)
}

// TestValidateMatrix_NoEnvs verifies that an empty matrix is rejected
// immediately.
func TestValidateMatrix_NoEnvs(t *testing.T) {
	m := &Matrix{Path: "/project/envmatrix.toml"}

	errs := ValidateMatrix(m)
	require.Len(t, errs, 1)
	assert.Equal(t, "env", errs[0].Field)
}

// TestValidateMatrix_FieldErrors checks each per-field rule in
// isolation: name rules, empty or blank commands, bad timeouts, and
// changedir escapes.
func TestValidateMatrix_FieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(m *Matrix)
		wantField string
	}{
		{
			name: "invalid environment name",
			mutate: func(m *Matrix) {
				m.Envs["-bad"] = EnvConfig{Commands: []string{"true"}}
			},
			wantField: "env.-bad",
		},
		{
			name: "no commands",
			mutate: func(m *Matrix) {
				m.Envs["empty"] = EnvConfig{}
			},
			wantField: "env.empty.commands",
		},
		{
			name: "blank command",
			mutate: func(m *Matrix) {
				m.Envs["blank"] = EnvConfig{Commands: []string{"flake8 src", "   "}}
			},
			wantField: "env.blank.commands[1]",
		},
		{
			name: "bad timeout",
			mutate: func(m *Matrix) {
				m.Envs["slow"] = EnvConfig{Commands: []string{"true"}, Timeout: "ten minutes"}
			},
			wantField: "env.slow.timeout",
		},
		{
			name: "absolute changedir",
			mutate: func(m *Matrix) {
				m.Envs["abs"] = EnvConfig{Commands: []string{"true"}, ChangeDir: "/etc"}
			},
			wantField: "env.abs.changedir",
		},
		{
			name: "changedir escapes workspace",
			mutate: func(m *Matrix) {
				m.Envs["escape"] = EnvConfig{Commands: []string{"true"}, ChangeDir: "docs/../../other"}
			},
			wantField: "env.escape.changedir",
		},
		{
			name: "default names undeclared env",
			mutate: func(m *Matrix) {
				m.Default = append(m.Default, "ghost")
			},
			wantField: "default[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMatrix()
			tt.mutate(m)

			errs := ValidateMatrix(m)
			require.NotEmpty(t, errs)

			fields := make([]string, 0, len(errs))
			for i := range errs {
				fields = append(fields, errs[i].Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

// TestValidateMatrix_CollectsAll verifies that validation reports every
// problem in one pass instead of stopping at the first.
func TestValidateMatrix_CollectsAll(t *testing.T) {
	m := validMatrix()
	m.Envs["empty"] = EnvConfig{}
	m.Envs["slow"] = EnvConfig{Commands: []string{"true"}, Timeout: "bogus"}
	m.Default = append(m.Default, "ghost")

	errs := ValidateMatrix(m)
	assert.GreaterOrEqual(t, len(errs), 3)
}

// TestValidationError_Error verifies the formatted message carries the
// field path.
func TestValidationError_Error(t *testing.T) {
	e := &ValidationError{Field: "env.py35.commands", Message: "at least one command is required"}
	assert.Contains(t, e.Error(), "env.py35.commands")
	assert.Contains(t, e.Error(), "at least one command is required")
}

// TestValidationErrorsToCLIError verifies folding a validation list into
// a single config-exit error, and the nil result for a clean list.
func TestValidationErrorsToCLIError(t *testing.T) {
	t.Run("empty list is nil", func(t *testing.T) {
		assert.Nil(t, ValidationErrorsToCLIError(nil, "/project/envmatrix.toml"))
	})

	t.Run("errors fold into one CLIError", func(t *testing.T) {
		errs := []ValidationError{
			{Field: "env.a.commands", Message: "at least one command is required"},
			{Field: "default[0]", Message: `environment "ghost" is not declared`},
		}

		cliErr := ValidationErrorsToCLIError(errs, "/project/envmatrix.toml")
		require.NotNil(t, cliErr)
		assert.Equal(t, model.ExitConfigError, cliErr.Code)
		assert.Contains(t, cliErr.Error(), "/project/envmatrix.toml")
		assert.Contains(t, cliErr.Error(), "env.a.commands")
		assert.Contains(t, cliErr.Error(), "default[0]")
	})
}
