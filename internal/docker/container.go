// container.go covers the SDK side of run-container management:
// discovering containers left behind by previous runs and removing
// them. Creation goes through the docker CLI (run.go); everything that
// inspects or deletes goes through the SDK, filtered by the envmatrix
// management label.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"

	"github.com/kasugano/envmatrix/internal/model"
)

// ListRunContainers queries the Docker daemon for every container that
// carries the envmatrix management label, including stopped ones.
// Stopped containers matter most here: a kept failure container or an
// interrupted run's leftover is exactly what `envmatrix ps` and
// `envmatrix clean` exist to surface.
func ListRunContainers(ctx context.Context, cli *Client) ([]model.ContainerInfo, error) {
	// Filtering server-side on the label avoids pulling every container
	// on the host across the API.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}

	return result, nil
}

// containerToInfo converts a Docker API container struct to the domain
// ContainerInfo, decoupling the rest of the tool from SDK types.
//
// The API reports names with a leading "/" (an API artifact, not part
// of the name), which is stripped for display and name matching.
func containerToInfo(c types.Container) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Image:         c.Image,
		Status:        c.State,
		Labels:        c.Labels,
	}
}

// FilterByEnv returns the containers whose envmatrix.env label matches
// the given environment name. Backing `envmatrix clean <env>`.
func FilterByEnv(containers []model.ContainerInfo, envName string) []model.ContainerInfo {
	matched := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		if c.Labels[LabelEnv] == envName {
			matched = append(matched, c)
		}
	}
	return matched
}

// RemoveRunContainer removes a container by ID. With force true the
// daemon kills a still-running container first; without it removal of a
// running container fails, which `envmatrix clean` reports with a hint
// to pass --force.
func RemoveRunContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerUnavailable,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}

// ImageExists reports whether an image reference is present in the
// local daemon. The run preflight uses this to decide between running
// directly, pulling first, and skip-missing classification.
func ImageExists(ctx context.Context, cli *Client, ref string) (bool, error) {
	images, err := cli.Inner().ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, model.WrapCLIError(
			model.ExitDockerUnavailable,
			fmt.Sprintf("failed to inspect image %q", ref),
			err,
		)
	}
	return len(images) > 0, nil
}
