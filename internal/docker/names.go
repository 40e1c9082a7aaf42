package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"

	"github.com/kasugano/envmatrix/internal/model"
)

// namePrefix starts every container name this tool allocates.
const namePrefix = "envmatrix-"

// maxNameSuffix bounds the fallback scan: after the base name the
// candidates are base-2 through base-9. Hitting the bound means eight
// collisions with containers envmatrix cannot reclaim, which wants an
// `envmatrix clean` rather than a ninth container.
const maxNameSuffix = 9

// ContainerName returns the deterministic base container name for an
// environment. Environment names are already restricted to characters
// Docker accepts in container names, so no escaping is needed.
func ContainerName(envName string) string {
	return namePrefix + envName
}

// nameOwner describes the container currently holding a candidate name.
type nameOwner struct {
	// id is the container ID, used for removal when managed.
	id string

	// managed is true when the holder carries the envmatrix
	// management label.
	managed bool
}

// planName picks the container name for an environment given the names
// currently in use on the host.
//
// The base name is tried first, then base-2 through base-9 in order:
//   - a free candidate is taken as-is;
//   - a candidate held by a managed container is reclaimed when
//     reuseManaged is true: the leftover's ID joins the removal list
//     and the name is reused (recreate semantics);
//   - a candidate held by an unmanaged container is never touched; the
//     scan moves to the next suffix.
//
// With reuseManaged false (the --keep flow, where earlier containers
// must survive) managed holders are skipped like unmanaged ones.
//
// Returns the chosen name and the managed container IDs the caller must
// remove before creating the new container.
func planName(envName string, taken map[string]nameOwner, reuseManaged bool) (string, []string, error) {
	base := ContainerName(envName)

	for i := 1; i <= maxNameSuffix; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}

		owner, inUse := taken[candidate]
		if !inUse {
			return candidate, nil, nil
		}
		if owner.managed && reuseManaged {
			return candidate, []string{owner.id}, nil
		}
	}

	return "", nil, fmt.Errorf(
		"no free container name for environment %q: %s through %s-%d are all in use (try `envmatrix clean`)",
		envName, base, base, maxNameSuffix,
	)
}

// AllocateName reserves a container name for an environment run. It
// lists the containers on the host, plans a name with planName, and
// removes any managed leftover holding it.
//
// When reuseManaged is false no container is removed; the scan only
// looks for a free suffix.
func AllocateName(ctx context.Context, cli *Client, envName string, reuseManaged bool) (string, error) {
	taken, err := takenNames(ctx, cli)
	if err != nil {
		return "", err
	}

	name, removals, err := planName(envName, taken, reuseManaged)
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, "container name allocation failed", err)
	}

	// Force removal also covers leftovers still running, such as a
	// container orphaned by an interrupted run.
	for _, id := range removals {
		if err := RemoveRunContainer(ctx, cli, id, true); err != nil {
			return "", err
		}
	}

	return name, nil
}

// takenNames maps every container name on the host (running or not) to
// its owner classification.
func takenNames(ctx context.Context, cli *Client) (map[string]nameOwner, error) {
	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			"failed to list Docker containers",
			err,
		)
	}

	taken := make(map[string]nameOwner, len(containers))
	for _, c := range containers {
		info := containerToInfo(c)
		if info.ContainerName == "" {
			continue
		}
		taken[info.ContainerName] = nameOwner{
			id:      info.ContainerID,
			managed: IsManaged(info.Labels),
		}
	}

	return taken, nil
}
