// run_test.go contains unit tests for the pure argument-splitting and
// summary helpers used by the run command.
package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kasugano/envmatrix/internal/model"
)

// TestSplitPosargs verifies that arguments split into environment
// names and positional arguments at the index cobra reports for "--".
func TestSplitPosargs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		dashAt   int
		wantName []string
		wantPos  []string
	}{
		{
			name:     "no separator",
			args:     []string{"py35", "py36"},
			dashAt:   -1,
			wantName: []string{"py35", "py36"},
			wantPos:  nil,
		},
		{
			name:     "separator after names",
			args:     []string{"py35", "-k", "fast"},
			dashAt:   1,
			wantName: []string{"py35"},
			wantPos:  []string{"-k", "fast"},
		},
		{
			name:     "separator first",
			args:     []string{"-k", "fast"},
			dashAt:   0,
			wantName: []string{},
			wantPos:  []string{"-k", "fast"},
		},
		{
			name:     "separator last",
			args:     []string{"py35"},
			dashAt:   1,
			wantName: []string{"py35"},
			wantPos:  []string{},
		},
		{
			name:     "no arguments at all",
			args:     nil,
			dashAt:   -1,
			wantName: nil,
			wantPos:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, posargs := splitPosargs(tt.args, tt.dashAt)
			assert.Equal(t, tt.wantName, names)
			assert.Equal(t, tt.wantPos, posargs)
		})
	}
}

// TestSummarize verifies the one-line status roll-up: fixed status
// order, zero counts omitted.
func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		results []model.EnvResult
		want    string
	}{
		{
			name: "all passed",
			results: []model.EnvResult{
				{Status: model.StatusPassed},
				{Status: model.StatusPassed},
			},
			want: "2 passed",
		},
		{
			name: "mixed outcomes in fixed order",
			results: []model.EnvResult{
				{Status: model.StatusSkipped},
				{Status: model.StatusPassed},
				{Status: model.StatusFailed},
				{Status: model.StatusSkipped},
			},
			want: "1 passed, 1 failed, 2 skipped",
		},
		{
			name: "error and interrupted",
			results: []model.EnvResult{
				{Status: model.StatusError},
				{Status: model.StatusInterrupted},
			},
			want: "1 error, 1 interrupted",
		},
		{
			name:    "no results",
			results: nil,
			want:    "nothing ran",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(tt.results))
		})
	}
}

// TestFailedCount verifies that only failed, errored, and interrupted
// environments count against the run; skipped ones do not.
func TestFailedCount(t *testing.T) {
	results := []model.EnvResult{
		{Status: model.StatusPassed},
		{Status: model.StatusFailed},
		{Status: model.StatusSkipped},
		{Status: model.StatusError},
		{Status: model.StatusInterrupted},
	}

	assert.Equal(t, 3, failedCount(results))
	assert.Equal(t, 0, failedCount(nil))
}
