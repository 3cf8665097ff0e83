package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutEnvironment(t *testing.T) {
	cfg := Load()
	require.Empty(t, cfg.GraphPath)
	require.Empty(t, cfg.SQLiteDSN)
	require.Equal(t, 100_000, cfg.AttrCacheEntries)
	require.Equal(t, 10_000, cfg.GeometryCacheEntries)
	require.Equal(t, "auto", cfg.RouterPreference)
	require.Equal(t, 5*time.Second, cfg.RouterTimeout)
	require.True(t, cfg.RouterFallback)
	require.Equal(t, 1024, cfg.PerfHistory)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_DataDirDerivesStorePaths(t *testing.T) {
	t.Setenv("PLANTGRAPH_DATA_DIR", "/var/lib/plantgraph")
	cfg := Load()
	require.Equal(t, "/var/lib/plantgraph/graph", cfg.GraphPath)
	require.Equal(t, "/var/lib/plantgraph/spatial", cfg.SpatialPath)
}

func TestLoad_ExplicitPathsOverrideDerived(t *testing.T) {
	t.Setenv("PLANTGRAPH_DATA_DIR", "/var/lib/plantgraph")
	t.Setenv("PLANTGRAPH_GRAPH_PATH", "/mnt/fast/graph")
	t.Setenv("PLANTGRAPH_ROUTER_PREFERENCE", "engine-b")
	t.Setenv("PLANTGRAPH_ROUTER_TIMEOUT", "30s")
	t.Setenv("PLANTGRAPH_ROUTER_FALLBACK", "off")

	cfg := Load()
	require.Equal(t, "/mnt/fast/graph", cfg.GraphPath)
	require.Equal(t, "/var/lib/plantgraph/spatial", cfg.SpatialPath)
	require.Equal(t, "engine-b", cfg.RouterPreference)
	require.Equal(t, 30*time.Second, cfg.RouterTimeout)
	require.False(t, cfg.RouterFallback)
}
