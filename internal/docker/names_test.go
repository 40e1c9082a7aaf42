package docker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContainerName verifies the deterministic env-to-name mapping.
func TestContainerName(t *testing.T) {
	assert.Equal(t, "envmatrix-py35", ContainerName("py35"))
	assert.Equal(t, "envmatrix-build_docs", ContainerName("build_docs"))
}

// TestPlanName_BaseFree verifies that an unused base name is chosen
// with nothing to remove.
func TestPlanName_BaseFree(t *testing.T) {
	name, removals, err := planName("py35", map[string]nameOwner{}, true)

	require.NoError(t, err)
	assert.Equal(t, "envmatrix-py35", name)
	assert.Empty(t, removals, "nothing should be removed when the name is free")
}

// TestPlanName_ReclaimsManagedLeftover verifies recreate semantics:
// a managed container holding the base name is removed and the base
// name reused.
func TestPlanName_ReclaimsManagedLeftover(t *testing.T) {
	taken := map[string]nameOwner{
		"envmatrix-py35": {id: "aaa111", managed: true},
	}

	name, removals, err := planName("py35", taken, true)

	require.NoError(t, err)
	assert.Equal(t, "envmatrix-py35", name, "the base name should be reclaimed")
	assert.Equal(t, []string{"aaa111"}, removals, "the leftover should be scheduled for removal")
}

// TestPlanName_UnmanagedCollision verifies that a foreign container
// holding the base name is left alone and the scan falls back to the
// first suffixed candidate.
func TestPlanName_UnmanagedCollision(t *testing.T) {
	taken := map[string]nameOwner{
		"envmatrix-py35": {id: "bbb222", managed: false},
	}

	name, removals, err := planName("py35", taken, true)

	require.NoError(t, err)
	assert.Equal(t, "envmatrix-py35-2", name)
	assert.Empty(t, removals, "unmanaged containers must never be removed")
}

// TestPlanName_ScanReclaimsManagedSuffix verifies that the suffix scan
// applies the same reclaim rule as the base name: an unmanaged holder
// at the base, then a managed leftover at -2, yields -2 plus a removal.
func TestPlanName_ScanReclaimsManagedSuffix(t *testing.T) {
	taken := map[string]nameOwner{
		"envmatrix-py35":   {id: "bbb222", managed: false},
		"envmatrix-py35-2": {id: "ccc333", managed: true},
	}

	name, removals, err := planName("py35", taken, true)

	require.NoError(t, err)
	assert.Equal(t, "envmatrix-py35-2", name)
	assert.Equal(t, []string{"ccc333"}, removals)
}

// TestPlanName_KeepSkipsManaged verifies the --keep flow: with reuse
// disabled a managed holder is skipped like an unmanaged one, so the
// surviving container from the previous command is not destroyed.
func TestPlanName_KeepSkipsManaged(t *testing.T) {
	taken := map[string]nameOwner{
		"envmatrix-py35": {id: "aaa111", managed: true},
	}

	name, removals, err := planName("py35", taken, false)

	require.NoError(t, err)
	assert.Equal(t, "envmatrix-py35-2", name)
	assert.Empty(t, removals)
}

// TestPlanName_Exhausted verifies the bounded scan: when the base name
// and every suffixed candidate are held by unmanaged containers, the
// plan fails and points at `envmatrix clean`.
func TestPlanName_Exhausted(t *testing.T) {
	taken := map[string]nameOwner{
		"envmatrix-py35": {id: "x1", managed: false},
	}
	for i := 2; i <= maxNameSuffix; i++ {
		taken[fmt.Sprintf("envmatrix-py35-%d", i)] = nameOwner{id: "x", managed: false}
	}

	name, removals, err := planName("py35", taken, true)

	require.Error(t, err)
	assert.Empty(t, name)
	assert.Empty(t, removals)
	assert.Contains(t, err.Error(), "envmatrix clean",
		"the error should tell the operator how to free names")
}
