package spatial

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
)

// State is the lifecycle of the in-memory tier.
type State int32

const (
	// StateCold means no in-memory tree has been built yet.
	StateCold State = iota
	// StateWarm means the in-memory tree reflects the store as of the last
	// rebuild.
	StateWarm
	// StateStale means writes happened since the last rebuild; the tree is
	// still usable but may miss or misplace recent elements.
	StateStale
	// StateRebuilding means an exclusive rebuild is in progress; queries
	// route to the persistent store.
	StateRebuilding
)

// String renders the state for logs and stats.
func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateWarm:
		return "warm"
	case StateStale:
		return "stale"
	case StateRebuilding:
		return "rebuilding"
	}
	return "unknown"
}

// Neighbor is one KNN result.
type Neighbor struct {
	Ref      element.RefNo
	Box      geom.AABB
	Distance float64
	Tag      string
}

// IndexStats is a snapshot of index counters.
type IndexStats struct {
	State         string
	MemoryEntries int
	StoreEntries  int64
	MemoryBytes   int64
	MemoryHits    int64
	StoreHits     int64
	LastRebuild   time.Time
}

// Index is the hybrid spatial index. The persistent store is authoritative;
// the in-memory R-tree is a cold/warm acceleration tier rebuilt on demand.
// Readers never block on a rebuild: while one is in progress they fall
// through to the store.
type Index struct {
	store  Store
	logger *slog.Logger

	state atomic.Int32

	treeMu sync.RWMutex
	tree   *rtree

	rebuildMu sync.Mutex // serializes rebuilds

	memoryHits  atomic.Int64
	storeHits   atomic.Int64
	lastRebuild atomic.Int64 // unix nanos, 0 = never
}

// NewIndex builds a hybrid index over store. A nil logger uses
// slog.Default(). The index starts Cold; call RebuildMemoryIndex to warm it.
func NewIndex(store Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, logger: logger}
}

// CurrentState returns the lifecycle state.
func (x *Index) CurrentState() State {
	return State(x.state.Load())
}

// Insert writes the entry to the persistent store and marks the in-memory
// tier stale. The tree itself is immutable; staleness is resolved by the
// next rebuild.
func (x *Index) Insert(ctx context.Context, e Entry) error {
	if err := x.store.Put(ctx, e); err != nil {
		return err
	}
	x.markStale()
	return nil
}

// Remove deletes the entry from the persistent store and marks staleness.
func (x *Index) Remove(ctx context.Context, ref element.RefNo) error {
	if err := x.store.Delete(ctx, ref); err != nil {
		return err
	}
	x.markStale()
	return nil
}

func (x *Index) markStale() {
	// Only a warm tier can go stale; cold/rebuilding keep their state.
	x.state.CompareAndSwap(int32(StateWarm), int32(StateStale))
}

// QueryPoint returns all elements whose box contains p. The in-memory tier
// answers when available; otherwise the persistent store is scanned. An
// empty result is success; a store failure surfaces as ErrIndexUnavailable.
func (x *Index) QueryPoint(ctx context.Context, p geom.Vec3) ([]element.RefNo, error) {
	if !p.IsFinite() {
		return nil, fmt.Errorf("%w: point %v", ErrInvalidQuery, p)
	}

	if tree := x.memoryTree(); tree != nil {
		x.memoryHits.Add(1)
		entries := tree.searchPoint(p, nil)
		refs := make([]element.RefNo, 0, len(entries))
		for _, e := range entries {
			refs = append(refs, e.Ref)
		}
		return refs, nil
	}

	x.storeHits.Add(1)
	var refs []element.RefNo
	err := x.store.Scan(ctx, func(e Entry) bool {
		if e.Box.Contains(p) {
			refs = append(refs, e.Ref)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// memoryTree returns the current tree when the tier is usable (warm or
// stale), nil when queries must go to the store.
func (x *Index) memoryTree() *rtree {
	switch x.CurrentState() {
	case StateWarm, StateStale:
	default:
		return nil
	}
	x.treeMu.RLock()
	defer x.treeMu.RUnlock()
	return x.tree
}

// warmTree returns the tree only while it is current with the store. A stale
// tree may still serve point containment but never overlap queries, which
// must always reflect recent writes.
func (x *Index) warmTree() *rtree {
	if x.CurrentState() != StateWarm {
		return nil
	}
	x.treeMu.RLock()
	defer x.treeMu.RUnlock()
	return x.tree
}

// QueryOverlap returns entries whose box intersects q. A warm in-memory tree
// answers; otherwise the authoritative persistent store is scanned, so a
// stale tier never hides recent writes from overlap results. typeFilter
// narrows by tag when non-empty; exclude removes specific references; limit
// caps results (0 = unlimited).
func (x *Index) QueryOverlap(ctx context.Context, q geom.AABB, typeFilter []string, limit int, exclude map[element.RefNo]struct{}) ([]Entry, error) {
	if !q.IsValid() {
		return nil, fmt.Errorf("%w: box %+v", ErrInvalidQuery, q)
	}

	var want map[string]struct{}
	if len(typeFilter) > 0 {
		want = make(map[string]struct{}, len(typeFilter))
		for _, t := range typeFilter {
			want[t] = struct{}{}
		}
	}
	keep := func(e Entry) bool {
		if want != nil {
			if _, ok := want[e.Tag]; !ok {
				return false
			}
		}
		if exclude != nil {
			if _, skip := exclude[e.Ref]; skip {
				return false
			}
		}
		return true
	}

	if tree := x.warmTree(); tree != nil {
		x.memoryHits.Add(1)
		var out []Entry
		for _, e := range tree.searchOverlap(q, nil) {
			if !keep(e) {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return out, nil
	}

	x.storeHits.Add(1)
	var out []Entry
	err := x.store.Scan(ctx, func(e Entry) bool {
		if !e.Box.Intersects(q) || !keep(e) {
			return true
		}
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// knnMaxRounds bounds the radius-doubling search.
const knnMaxRounds = 10

// QueryKNN returns the k entries nearest to p, sorted ascending by
// point-to-box distance (zero when p is inside). The search expands a probe
// box by doubling its radius until k candidates are found or the round
// limit is reached; candidates are deduplicated across rounds.
func (x *Index) QueryKNN(ctx context.Context, p geom.Vec3, k int, initialRadius float64, typeFilter []string) ([]Neighbor, error) {
	if !p.IsFinite() {
		return nil, fmt.Errorf("%w: point %v", ErrInvalidQuery, p)
	}
	if k <= 0 {
		return nil, nil
	}
	radius := initialRadius
	if radius <= 0 {
		radius = 1000 // 1m default probe in millimetre coordinates
	}

	seen := make(map[element.RefNo]Neighbor)
	for round := 0; round < knnMaxRounds; round++ {
		probe := geom.AABB{Min: p, Max: p}.Expanded(radius)
		entries, err := x.QueryOverlap(ctx, probe, typeFilter, 0, nil)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if _, dup := seen[e.Ref]; dup {
				continue
			}
			seen[e.Ref] = Neighbor{
				Ref:      e.Ref,
				Box:      e.Box,
				Distance: e.Box.DistanceToPoint(p),
				Tag:      e.Tag,
			}
		}
		// Enough candidates strictly inside the probe radius guarantee the
		// true k nearest have been seen.
		if countWithin(seen, radius) >= k {
			break
		}
		radius *= 2
	}

	neighbors := make([]Neighbor, 0, len(seen))
	for _, n := range seen {
		neighbors = append(neighbors, n)
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Ref.Less(neighbors[j].Ref)
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func countWithin(seen map[element.RefNo]Neighbor, radius float64) int {
	n := 0
	for _, nb := range seen {
		if nb.Distance <= radius {
			n++
		}
	}
	return n
}

// RebuildMemoryIndex reloads the in-memory tree from the persistent store.
// The index stays queryable throughout: state moves to Rebuilding so point
// queries route to the store, then back to Warm on success.
func (x *Index) RebuildMemoryIndex(ctx context.Context) error {
	x.rebuildMu.Lock()
	defer x.rebuildMu.Unlock()

	prev := x.CurrentState()
	x.state.Store(int32(StateRebuilding))
	started := time.Now()

	var entries []Entry
	err := x.store.Scan(ctx, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		// Restore the previous state; a failed rebuild must not strand the
		// index in Rebuilding.
		x.state.Store(int32(prev))
		return fmt.Errorf("rebuild scan: %w", err)
	}

	tree := buildRTree(entries)
	x.treeMu.Lock()
	x.tree = tree
	x.treeMu.Unlock()

	x.lastRebuild.Store(time.Now().UnixNano())
	x.state.Store(int32(StateWarm))
	x.logger.Info("spatial index rebuilt",
		"entries", len(entries), "took", time.Since(started).String())
	return nil
}

// Stats returns a snapshot of index counters. StoreEntries is -1 when the
// store cannot be counted.
func (x *Index) Stats(ctx context.Context) IndexStats {
	stats := IndexStats{
		State:      x.CurrentState().String(),
		MemoryHits: x.memoryHits.Load(),
		StoreHits:  x.storeHits.Load(),
	}
	x.treeMu.RLock()
	if x.tree != nil {
		stats.MemoryEntries = x.tree.count
		// Rough estimate: entry payload plus tree overhead.
		stats.MemoryBytes = int64(x.tree.count) * 96
	}
	x.treeMu.RUnlock()

	if n, err := x.store.Count(ctx); err == nil {
		stats.StoreEntries = n
	} else {
		stats.StoreEntries = -1
	}
	if ns := x.lastRebuild.Load(); ns > 0 {
		stats.LastRebuild = time.Unix(0, ns)
	}
	return stats
}

// Close closes the underlying store.
func (x *Index) Close() error {
	return x.store.Close()
}
