package pool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/flowreaper/pkg/fleet"
)

func pooledCluster(poolArgs []string, extra ...fleet.BootstrapAction) fleet.ClusterSnapshot {
	actions := []fleet.BootstrapAction{
		{Name: "install-deps", ScriptPath: "s3://scripts/install.sh", Args: []string{"--fast"}},
	}
	actions = append(actions, extra...)
	actions = append(actions, fleet.BootstrapAction{
		Name:       MarkerActionName,
		ScriptPath: "s3://scripts/pool.sh",
		Args:       poolArgs,
	})
	return fleet.ClusterSnapshot{ID: "j-1", BootstrapActions: actions}
}

func TestIdentify_UnpooledIsNil(t *testing.T) {
	c := fleet.ClusterSnapshot{
		ID: "j-1",
		BootstrapActions: []fleet.BootstrapAction{
			{Name: "install-deps", ScriptPath: "s3://scripts/install.sh"},
		},
	}
	require.Nil(t, Identify(&c))

	empty := fleet.ClusterSnapshot{ID: "j-2"}
	require.Nil(t, Identify(&empty))
}

func TestIdentify_NameFromMarkerArg(t *testing.T) {
	c := pooledCluster([]string{"analytics"})

	id := Identify(&c)
	require.NotNil(t, id)
	require.Equal(t, "analytics", id.Name)
	require.Len(t, id.Hash, 64)
}

func TestIdentify_NameFallsBackToTag(t *testing.T) {
	c := pooledCluster(nil)
	c.Tags = map[string]string{NameTag: "etl"}

	id := Identify(&c)
	require.NotNil(t, id)
	require.Equal(t, "etl", id.Name)
}

func TestIdentify_AnonymousPool(t *testing.T) {
	c := pooledCluster(nil)

	id := Identify(&c)
	require.NotNil(t, id)
	require.Empty(t, id.Name)
	require.Len(t, id.Hash, 64)
}

func TestIdentify_SameConfigHashesEqual(t *testing.T) {
	a := pooledCluster([]string{"analytics"})
	b := pooledCluster([]string{"analytics"})
	b.ID = "j-2"

	require.Equal(t, Identify(&a).Hash, Identify(&b).Hash)
}

func TestIdentify_PoolNameDoesNotAffectHash(t *testing.T) {
	a := pooledCluster([]string{"analytics"})
	b := pooledCluster([]string{"etl"})

	require.Equal(t, Identify(&a).Hash, Identify(&b).Hash)
}

func TestIdentify_DifferentConfigHashesDiffer(t *testing.T) {
	a := pooledCluster([]string{"analytics"})
	b := pooledCluster([]string{"analytics"},
		fleet.BootstrapAction{Name: "tune-jvm", ScriptPath: "s3://scripts/jvm.sh"})

	require.NotEqual(t, Identify(&a).Hash, Identify(&b).Hash)
}

func TestIdentify_ActionOrderAffectsHash(t *testing.T) {
	a := fleet.ClusterSnapshot{
		BootstrapActions: []fleet.BootstrapAction{
			{Name: "first", ScriptPath: "s3://scripts/a.sh"},
			{Name: "second", ScriptPath: "s3://scripts/b.sh"},
			{Name: MarkerActionName, ScriptPath: "s3://scripts/pool.sh"},
		},
	}
	b := fleet.ClusterSnapshot{
		BootstrapActions: []fleet.BootstrapAction{
			{Name: "second", ScriptPath: "s3://scripts/b.sh"},
			{Name: "first", ScriptPath: "s3://scripts/a.sh"},
			{Name: MarkerActionName, ScriptPath: "s3://scripts/pool.sh"},
		},
	}

	require.NotEqual(t, Identify(&a).Hash, Identify(&b).Hash)
}

func TestIdentify_MarkerPositionDoesNotAffectHash(t *testing.T) {
	a := fleet.ClusterSnapshot{
		BootstrapActions: []fleet.BootstrapAction{
			{Name: MarkerActionName, ScriptPath: "s3://scripts/pool.sh", Args: []string{"p"}},
			{Name: "install-deps", ScriptPath: "s3://scripts/install.sh"},
		},
	}
	b := fleet.ClusterSnapshot{
		BootstrapActions: []fleet.BootstrapAction{
			{Name: "install-deps", ScriptPath: "s3://scripts/install.sh"},
			{Name: MarkerActionName, ScriptPath: "s3://scripts/pool.sh", Args: []string{"p"}},
		},
	}

	require.Equal(t, Identify(&a).Hash, Identify(&b).Hash)
}
