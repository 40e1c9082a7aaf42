package model

import "time"

// RunReport is the machine-readable summary of one envmatrix run,
// written as JSON by `envmatrix run --report`. It records what was
// attempted, what happened, and the exit code the process reported.
type RunReport struct {
	// Tool is always "envmatrix", so a report file identifies itself.
	Tool string `json:"tool"`

	// Version is the tool version that produced the report.
	Version string `json:"version"`

	// ConfigPath is the absolute path of the matrix configuration the
	// run was based on.
	ConfigPath string `json:"configPath"`

	// StartedAt is when the run began, in UTC.
	StartedAt time.Time `json:"startedAt"`

	// DurationSeconds is the wall-clock length of the whole run.
	DurationSeconds float64 `json:"durationSeconds"`

	// Results holds one entry per attempted environment, in execution
	// order. Environments after a run-aborting failure are absent.
	Results []ReportEnv `json:"results"`

	// ExitCode is the overall exit code folded from the results.
	ExitCode int `json:"exitCode"`
}

// ReportEnv is an EnvResult augmented with the serializable form of
// its duration.
type ReportEnv struct {
	EnvResult

	// DurationSeconds is the environment's wall-clock time.
	DurationSeconds float64 `json:"durationSeconds"`
}

// BuildRunReport assembles the report document from a finished run.
func BuildRunReport(version, configPath string, startedAt time.Time, duration time.Duration, results []EnvResult) *RunReport {
	report := &RunReport{
		Tool:            "envmatrix",
		Version:         version,
		ConfigPath:      configPath,
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Results:         make([]ReportEnv, 0, len(results)),
		ExitCode:        int(OverallExitCode(results)),
	}
	for _, res := range results {
		report.Results = append(report.Results, ReportEnv{
			EnvResult:       res,
			DurationSeconds: res.Duration.Seconds(),
		})
	}
	return report
}
