// Package config loads runtime configuration from PLANTGRAPH_* environment
// variables with sensible embedded-use defaults.
package config

import (
	"path/filepath"
	"time"

	"github.com/happyrust/plantgraph/pkg/envutil"
)

// Config is the runtime configuration for an embedded plantgraph instance.
type Config struct {
	// DataDir is the root for all persistent state.
	DataDir string

	// GraphPath is the badger directory for the primary graph engine.
	// Empty selects in-memory badger.
	GraphPath string
	// SQLiteDSN is the DSN for the secondary engine. Empty disables it.
	SQLiteDSN string
	// SpatialPath is the badger directory for the persistent AABB store.
	// Empty selects in-memory badger.
	SpatialPath string

	// AttrCacheEntries bounds the engine attribute cache.
	AttrCacheEntries int
	// GeometryCacheEntries bounds the LRU geometry cache.
	GeometryCacheEntries int

	// RouterPreference is "auto", "engine-a" or "engine-b".
	RouterPreference string
	// RouterTimeout bounds each engine attempt.
	RouterTimeout time.Duration
	// RouterFallback enables the one-shot retry on the other engine.
	RouterFallback bool
	// LogPerformance records per-query samples and debug logs.
	LogPerformance bool

	// PerfHistory bounds the performance monitor ring buffer.
	PerfHistory int

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string
}

// Load reads configuration from the environment, filling defaults for
// anything unset. Invalid values fall back silently, matching envutil
// semantics.
func Load() *Config {
	dataDir := envutil.Get("PLANTGRAPH_DATA_DIR", "")
	cfg := &Config{
		DataDir:              dataDir,
		GraphPath:            envutil.Get("PLANTGRAPH_GRAPH_PATH", subdir(dataDir, "graph")),
		SQLiteDSN:            envutil.Get("PLANTGRAPH_SQLITE_DSN", ""),
		SpatialPath:          envutil.Get("PLANTGRAPH_SPATIAL_PATH", subdir(dataDir, "spatial")),
		AttrCacheEntries:     envutil.GetInt("PLANTGRAPH_ATTR_CACHE_ENTRIES", 100_000),
		GeometryCacheEntries: envutil.GetInt("PLANTGRAPH_GEOMETRY_CACHE_ENTRIES", 10_000),
		RouterPreference:     envutil.Get("PLANTGRAPH_ROUTER_PREFERENCE", "auto"),
		RouterTimeout:        envutil.GetDuration("PLANTGRAPH_ROUTER_TIMEOUT", 5*time.Second),
		RouterFallback:       envutil.GetBoolLoose("PLANTGRAPH_ROUTER_FALLBACK", true),
		LogPerformance:       envutil.GetBoolLoose("PLANTGRAPH_LOG_PERFORMANCE", false),
		PerfHistory:          envutil.GetInt("PLANTGRAPH_PERF_HISTORY", 1024),
		LogLevel:             envutil.Get("PLANTGRAPH_LOG_LEVEL", "info"),
	}
	return cfg
}

// Default returns the built-in defaults without consulting the environment.
func Default() *Config {
	return &Config{
		AttrCacheEntries:     100_000,
		GeometryCacheEntries: 10_000,
		RouterPreference:     "auto",
		RouterTimeout:        5 * time.Second,
		RouterFallback:       true,
		PerfHistory:          1024,
		LogLevel:             "info",
	}
}

func subdir(dataDir, name string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, name)
}
