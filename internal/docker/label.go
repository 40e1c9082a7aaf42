package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/kasugano/envmatrix/internal/model"
)

// Label keys stamped onto every container envmatrix creates. The labels
// are the only persistence mechanism: a leftover container can be
// attributed to its environment and configuration from inspection
// alone, with no state file on disk.
//
// All keys share the "envmatrix." prefix so they never collide with
// labels set by other tooling on the same host.
const (
	// LabelPrefix is the common prefix for all envmatrix labels.
	LabelPrefix = "envmatrix."

	// LabelManagedBy marks containers created by envmatrix. It is the
	// filter key for listing and cleanup; its value is always
	// ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelEnv stores the environment name the container executed
	// (for example "py35").
	LabelEnv = LabelPrefix + "env"

	// LabelConfig stores the absolute path of the matrix configuration
	// file that declared the environment.
	LabelConfig = LabelPrefix + "config"

	// LabelImage stores the configured image reference the container
	// was created from.
	LabelImage = LabelPrefix + "image"

	// LabelStartedAt stores when the environment run began, formatted
	// as RFC 3339 in UTC.
	LabelStartedAt = LabelPrefix + "started-at"
)

// ManagedByValue is the constant value of the LabelManagedBy label.
const ManagedByValue = "envmatrix"

// BuildRunLabels constructs the Docker label map for one environment
// run. ParseRunLabels is its inverse.
func BuildRunLabels(rec *model.RunRecord) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelEnv:       rec.EnvName,
		LabelConfig:    rec.ConfigPath,
		LabelImage:     rec.Image,
		// UTC keeps the stored timestamp independent of the host's
		// timezone.
		LabelStartedAt: rec.StartedAt.UTC().Format(time.RFC3339),
	}
}

// ParseRunLabels reconstructs a RunRecord from a container's labels.
// Used by `envmatrix ps` and `envmatrix clean` to describe leftovers.
//
// All five envmatrix labels are required. Missing labels are collected
// and reported together so one error names everything wrong with the
// container.
func ParseRunLabels(labels map[string]string) (*model.RunRecord, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelEnv,
		LabelConfig,
		LabelImage,
		LabelStartedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	startedAt, err := time.Parse(time.RFC3339, labels[LabelStartedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelStartedAt, err)
	}

	return &model.RunRecord{
		EnvName:    labels[LabelEnv],
		ConfigPath: labels[LabelConfig],
		Image:      labels[LabelImage],
		StartedAt:  startedAt,
	}, nil
}

// IsManaged reports whether a label map carries the envmatrix
// management marker. Containers without it are never touched by
// cleanup, whatever their name.
func IsManaged(labels map[string]string) bool {
	return labels[LabelManagedBy] == ManagedByValue
}
