// Package plantgraph is the embedded facade: it wires the graph engines,
// the query router, the transform resolver, the hybrid spatial index and
// the geometry cache into one handle.
package plantgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/happyrust/plantgraph/pkg/config"
	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
	"github.com/happyrust/plantgraph/pkg/geomcache"
	"github.com/happyrust/plantgraph/pkg/graphstore"
	"github.com/happyrust/plantgraph/pkg/perfmon"
	"github.com/happyrust/plantgraph/pkg/router"
	"github.com/happyrust/plantgraph/pkg/spatial"
	"github.com/happyrust/plantgraph/pkg/transform"
)

// DB is an open plantgraph instance. All methods are safe for concurrent
// use. Close releases every underlying store.
type DB struct {
	cfg *config.Config
	log *slog.Logger

	engineA graphstore.Engine
	engineB graphstore.Engine

	router   *router.Router
	resolver *transform.Resolver
	index    *spatial.Index
	geoms    *geomcache.Cache
	monitor  *perfmon.Monitor

	// versions tracks a per-element geometry version, bumped on every
	// mutation so stale cache entries become unreachable.
	verMu    sync.Mutex
	versions map[element.RefNo]uint64

	closeOnce sync.Once
	closeErr  error
}

// Open creates (or reopens) a plantgraph instance. dataDir overrides
// cfg.DataDir; empty dataDir with empty cfg paths runs fully in memory.
// A nil cfg uses config.Default().
func Open(dataDir string, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
		if cfg.GraphPath == "" {
			cfg.GraphPath = dataDir + "/graph"
		}
		if cfg.SpatialPath == "" {
			cfg.SpatialPath = dataDir + "/spatial"
		}
	}

	log := slog.Default().With("component", "plantgraph")

	engineA, err := graphstore.OpenBadger(graphstore.BadgerOptions{
		Path:                cfg.GraphPath,
		AttrCacheMaxEntries: cfg.AttrCacheEntries,
		Logger:              log,
	})
	if err != nil {
		return nil, fmt.Errorf("open graph engine: %w", err)
	}

	var engineB graphstore.Engine
	if cfg.SQLiteDSN != "" {
		sq, err := graphstore.OpenSQLite(cfg.SQLiteDSN)
		if err != nil {
			engineA.Close()
			return nil, fmt.Errorf("open sqlite engine: %w", err)
		}
		engineB = sq
	}

	store, err := spatial.OpenBadgerStore(cfg.SpatialPath)
	if err != nil {
		engineA.Close()
		if engineB != nil {
			engineB.Close()
		}
		return nil, fmt.Errorf("open spatial store: %w", err)
	}

	mon := perfmon.NewMonitor(cfg.PerfHistory)
	rt := router.New(engineA, engineB, routerStrategy(cfg), mon)

	db := &DB{
		cfg:      cfg,
		log:      log,
		engineA:  engineA,
		engineB:  engineB,
		router:   rt,
		resolver: transform.NewResolver(rt, transform.NewRegistry(), log),
		index:    spatial.NewIndex(store, log),
		geoms:    geomcache.New(cfg.GeometryCacheEntries),
		monitor:  mon,
		versions: make(map[element.RefNo]uint64),
	}

	engineA.Subscribe(&invalidator{db: db})
	if engineB != nil {
		engineB.Subscribe(&invalidator{db: db})
	}

	if err := db.index.RebuildMemoryIndex(context.Background()); err != nil {
		log.Warn("initial spatial index build failed, starting cold", "error", err)
	}
	return db, nil
}

func routerStrategy(cfg *config.Config) router.Strategy {
	s := router.Strategy{
		Timeout:        cfg.RouterTimeout,
		Fallback:       cfg.RouterFallback,
		LogPerformance: cfg.LogPerformance,
	}
	switch cfg.RouterPreference {
	case "engine-a":
		s.Preference = router.PreferEngineA
	case "engine-b":
		s.Preference = router.PreferEngineB
	default:
		s.Preference = router.PreferAuto
	}
	return s
}

// invalidator drops derived state when an element mutates. It only touches
// in-process caches, never the engines.
type invalidator struct {
	db *DB
}

func (iv *invalidator) ElementCreated(ref element.RefNo) { iv.db.invalidate(ref) }
func (iv *invalidator) ElementUpdated(ref element.RefNo) { iv.db.invalidate(ref) }
func (iv *invalidator) ElementDeleted(ref element.RefNo) { iv.db.invalidate(ref) }

func (db *DB) invalidate(ref element.RefNo) {
	db.resolver.Invalidate(ref)
	db.geoms.Invalidate(ref)
	db.bumpVersion(ref)
}

// Router exposes the query router for direct use.
func (db *DB) Router() *router.Router { return db.router }

// Resolver exposes the transform resolver.
func (db *DB) Resolver() *transform.Resolver { return db.resolver }

// SpatialIndex exposes the hybrid spatial index.
func (db *DB) SpatialIndex() *spatial.Index { return db.index }

// Monitor exposes the performance monitor.
func (db *DB) Monitor() *perfmon.Monitor { return db.monitor }

// CreateElement writes a new element to the primary engine and mirrors it
// to the secondary engine when one is configured.
func (db *DB) CreateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if err := db.engineA.CreateElement(ctx, attrs); err != nil {
		return err
	}
	db.mirror(ctx, "create", attrs.Ref, func() error {
		return db.engineB.CreateElement(ctx, attrs)
	})
	db.invalidateSubtree(ctx, attrs.Ref)
	return nil
}

// UpdateElement upserts an element and invalidates its subtree's derived
// transforms. Moving an element invalidates every descendant's world
// placement as well.
func (db *DB) UpdateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if err := db.engineA.UpdateElement(ctx, attrs); err != nil {
		return err
	}
	db.mirror(ctx, "update", attrs.Ref, func() error {
		return db.engineB.UpdateElement(ctx, attrs)
	})
	db.invalidateSubtree(ctx, attrs.Ref)
	return nil
}

// DeleteElement removes an element and its derived state, including its
// spatial index entry.
func (db *DB) DeleteElement(ctx context.Context, ref element.RefNo) error {
	db.invalidateSubtree(ctx, ref)
	if err := db.engineA.DeleteElement(ctx, ref); err != nil {
		return err
	}
	db.mirror(ctx, "delete", ref, func() error {
		return db.engineB.DeleteElement(ctx, ref)
	})
	if err := db.index.Remove(ctx, ref); err != nil {
		db.log.Warn("spatial entry removal failed", "ref", ref, "error", err)
	}
	return nil
}

// mirror applies a write to the secondary engine, logging instead of
// failing: the router's consistency check surfaces lasting divergence.
func (db *DB) mirror(ctx context.Context, op string, ref element.RefNo, fn func() error) {
	if db.engineB == nil {
		return
	}
	if err := fn(); err != nil {
		db.log.Warn("secondary engine write failed",
			"op", op, "ref", ref, "engine", db.engineB.Name(), "error", err)
	}
}

// invalidateSubtree drops cached transforms and geometry for ref and every
// descendant. Enumeration failures degrade to invalidating ref alone.
func (db *DB) invalidateSubtree(ctx context.Context, ref element.RefNo) {
	refs, err := db.engineA.QuerySubtree(ctx, ref, 0)
	if err != nil {
		db.invalidate(ref)
		return
	}
	for _, r := range refs {
		db.invalidate(r)
	}
}

// WorldTransform returns the memoized world transform of ref, or
// (nil, nil) when no transform is derivable.
func (db *DB) WorldTransform(ctx context.Context, ref element.RefNo) (*geom.Mat4, error) {
	return db.resolver.WorldTransform(ctx, ref)
}

// ElementsAt returns the elements whose bounding box contains p.
func (db *DB) ElementsAt(ctx context.Context, p geom.Vec3) ([]element.RefNo, error) {
	return db.index.QueryPoint(ctx, p)
}

// Nearest returns up to k nearest elements to p by box distance.
func (db *DB) Nearest(ctx context.Context, p geom.Vec3, k int) ([]spatial.Neighbor, error) {
	return db.index.QueryKNN(ctx, p, k, 0, nil)
}

// SetBounds records or replaces the spatial bounds of an element.
func (db *DB) SetBounds(ctx context.Context, ref element.RefNo, box geom.AABB, typeTag string) error {
	return db.index.Insert(ctx, spatial.Entry{Ref: ref, Box: box, Tag: typeTag})
}

// GeometryVersion returns the current geometry cache version for ref.
func (db *DB) GeometryVersion(ref element.RefNo) uint64 {
	db.verMu.Lock()
	defer db.verMu.Unlock()
	return db.versions[ref]
}

func (db *DB) bumpVersion(ref element.RefNo) {
	db.verMu.Lock()
	db.versions[ref]++
	db.verMu.Unlock()
}

// CacheGeometry stores tessellated geometry for ref at its current version.
func (db *DB) CacheGeometry(ref element.RefNo, g geomcache.Geometry) {
	db.geoms.Put(geomcache.Key{Ref: ref, Version: db.GeometryVersion(ref)}, g)
}

// CachedGeometry returns the cached geometry for ref at its current
// version, if present.
func (db *DB) CachedGeometry(ref element.RefNo) (geomcache.Geometry, bool) {
	return db.geoms.Get(geomcache.Key{Ref: ref, Version: db.GeometryVersion(ref)})
}

// DBStats aggregates counters across the subsystems.
type DBStats struct {
	Engine          graphstore.Stats
	SecondaryEngine *graphstore.Stats
	ResolverHits    int64
	ResolverMisses  int64
	GeometryHits    int64
	GeometryMisses  int64
	Spatial         spatial.IndexStats
	Performance     perfmon.Report
	CollectedAt     time.Time
}

// Stats snapshots counters from every subsystem.
func (db *DB) Stats(ctx context.Context) DBStats {
	st := DBStats{
		Engine:      db.engineA.Stats(),
		Spatial:     db.index.Stats(ctx),
		Performance: db.monitor.GenerateReport(),
		CollectedAt: time.Now(),
	}
	if db.engineB != nil {
		s := db.engineB.Stats()
		st.SecondaryEngine = &s
	}
	st.ResolverHits, st.ResolverMisses = db.resolver.CacheStats()
	st.GeometryHits, st.GeometryMisses = db.geoms.Stats()
	return st
}

// Close shuts down every subsystem. Safe to call more than once.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		var firstErr error
		record := func(err error) {
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		record(db.index.Close())
		record(db.engineA.Close())
		if db.engineB != nil {
			record(db.engineB.Close())
		}
		db.resolver.Clear()
		db.geoms.Clear()
		db.closeErr = firstErr
	})
	return db.closeErr
}
