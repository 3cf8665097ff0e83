package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
	"golang.org/x/sync/singleflight"
)

// ErrCyclicReference reports a cross-reference chain that loops back on
// itself, such as a joint whose cut-plane reference resolves through the
// joint again. Resolution fails fast; the result is never cached.
var ErrCyclicReference = errors.New("transform: cyclic reference chain")

// worldChainKey carries the set of elements whose world transforms are in
// progress further up the current call chain. Strategies that follow cross
// references re-enter WorldTransform; the chain set turns that re-entry into
// ErrCyclicReference instead of a wait on the chain's own flight key.
type worldChainKey struct{}

func worldChain(ctx context.Context) map[element.RefNo]struct{} {
	chain, _ := ctx.Value(worldChainKey{}).(map[element.RefNo]struct{})
	return chain
}

// localKey keys the local-transform cache. The owner is part of the key
// because the same element could in principle be queried under different
// assumed owners; in practice the owner is derived, but keying defensively
// costs nothing.
type localKey struct {
	ID    element.RefNo
	Owner element.RefNo
}

// cachedMat wraps a memoized result. A nil matrix is a successful "no
// transform" outcome and is cached like any other success; errors are never
// cached, so a transient store failure cannot poison the cache.
type cachedMat struct {
	m *geom.Mat4
}

// Resolver computes and memoizes local and world transforms.
//
// World resolution walks the ownership chain iteratively (root to leaf) from
// one batched Ancestors query, composing local transforms in order. If any
// link is unresolved the whole world transform is unresolved; identity is
// never silently substituted, since that would misplace geometry without
// warning.
type Resolver struct {
	source   Source
	registry *Registry
	logger   *slog.Logger

	locals sync.Map // localKey -> cachedMat
	worlds sync.Map // element.RefNo -> cachedMat

	// flight deduplicates concurrent computation per key. Concurrent callers
	// for the same key share one computation; after eviction the next caller
	// recomputes. Duplicate idempotent recomputation would be harmless, but
	// singleflight is cheaper than a mutex per key.
	flight singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResolver builds a resolver over source with the given registry.
// A nil registry uses NewRegistry(); a nil logger uses slog.Default().
func NewResolver(source Source, registry *Registry, logger *slog.Logger) *Resolver {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, registry: registry, logger: logger}
}

// Attributes implements Deps by delegating to the source.
func (r *Resolver) Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error) {
	return r.source.Attributes(ctx, ref)
}

// Children implements Deps by delegating to the source.
func (r *Resolver) Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	return r.source.Children(ctx, ref)
}

// Ancestors implements Deps by delegating to the source.
func (r *Resolver) Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	return r.source.Ancestors(ctx, ref)
}

// World implements Deps so strategies (cut-plane alignment) can resolve
// other elements' world transforms through the same cache.
func (r *Resolver) World(ctx context.Context, ref element.RefNo) (*geom.Mat4, error) {
	return r.WorldTransform(ctx, ref)
}

// LocalTransform returns the element's pose relative to ownerID, memoized by
// (id, ownerID). A nil matrix with nil error means the transform is
// unresolvable under current data.
func (r *Resolver) LocalTransform(ctx context.Context, id, ownerID element.RefNo) (*geom.Mat4, error) {
	key := localKey{ID: id, Owner: ownerID}
	if v, ok := r.locals.Load(key); ok {
		r.hits.Add(1)
		return v.(cachedMat).m, nil
	}
	r.misses.Add(1)

	if worldChain(ctx) != nil {
		// Nested resolution: the flight key may be held further up this same
		// chain, so joining it would never return. Recomputing a local
		// transform is idempotent.
		m, err := r.computeLocal(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		r.locals.Store(key, cachedMat{m: m})
		return m, nil
	}

	res, err, _ := r.flight.Do(flightKeyLocal(key), func() (any, error) {
		if v, ok := r.locals.Load(key); ok {
			return v.(cachedMat), nil
		}
		m, err := r.computeLocal(ctx, id, ownerID)
		if err != nil {
			return cachedMat{}, err
		}
		entry := cachedMat{m: m}
		r.locals.Store(key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(cachedMat).m, nil
}

func (r *Resolver) computeLocal(ctx context.Context, id, ownerID element.RefNo) (*geom.Mat4, error) {
	own, err := r.source.Attributes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", id, err)
	}

	var owner *element.AttributeMap
	if !ownerID.IsNil() && ownerID != id {
		owner, err = r.source.Attributes(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("attributes of owner %s: %w", ownerID, err)
		}
	}

	strategy := r.registry.Get(own.TypeTag())
	m, err := strategy.ComputeLocal(ctx, r, own, owner)
	if err != nil {
		return nil, err
	}
	if m != nil && !m.IsFinite() {
		// A strategy slipping NaN through is a bug, but it must surface as
		// "no transform", never enter the cache as garbage.
		r.logger.Warn("non-finite local transform discarded",
			"element", id.String(), "type", own.TypeTag())
		return nil, nil
	}
	return m, nil
}

// WorldTransform returns the element's world transform, memoized by id.
// A nil matrix with nil error means some link of the chain is unresolved.
func (r *Resolver) WorldTransform(ctx context.Context, id element.RefNo) (*geom.Mat4, error) {
	if v, ok := r.worlds.Load(id); ok {
		r.hits.Add(1)
		return v.(cachedMat).m, nil
	}
	r.misses.Add(1)

	chain := worldChain(ctx)
	if _, busy := chain[id]; busy {
		return nil, fmt.Errorf("%w: world of %s depends on itself", ErrCyclicReference, id)
	}
	if chain != nil {
		return r.resolveWorld(ctx, id, chain)
	}

	res, err, _ := r.flight.Do(flightKeyWorld(id), func() (any, error) {
		if v, ok := r.worlds.Load(id); ok {
			return v.(cachedMat), nil
		}
		m, err := r.resolveWorld(ctx, id, nil)
		if err != nil {
			return cachedMat{}, err
		}
		return cachedMat{m: m}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(cachedMat).m, nil
}

// resolveWorld computes and caches the world transform with id added to the
// in-progress chain, so nested lookups made by strategies detect loops.
func (r *Resolver) resolveWorld(ctx context.Context, id element.RefNo, chain map[element.RefNo]struct{}) (*geom.Mat4, error) {
	next := make(map[element.RefNo]struct{}, len(chain)+1)
	for ref := range chain {
		next[ref] = struct{}{}
	}
	next[id] = struct{}{}

	m, err := r.computeWorld(context.WithValue(ctx, worldChainKey{}, next), id)
	if err != nil {
		return nil, err
	}
	r.worlds.Store(id, cachedMat{m: m})
	return m, nil
}

func (r *Resolver) computeWorld(ctx context.Context, id element.RefNo) (*geom.Mat4, error) {
	chain, err := r.source.Ancestors(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ancestor chain of %s: %w", id, err)
	}

	// A self-owned root has a single-entry chain and sits at the origin.
	if len(chain) <= 1 {
		ident := geom.IdentityMat4()
		return &ident, nil
	}

	world := geom.IdentityMat4()
	for i := 1; i < len(chain); i++ {
		local, err := r.LocalTransform(ctx, chain[i], chain[i-1])
		if err != nil {
			return nil, err
		}
		if local == nil {
			return nil, nil // one unresolved link unresolves the whole chain
		}
		world = world.Mul(*local)
	}
	if !world.IsFinite() {
		return nil, nil
	}
	return &world, nil
}

// Invalidate drops cached transforms involving ref: its world transform and
// any local transform keyed by it as element or as owner. World transforms of
// descendants embed this element's local but cannot be detected cheaply here;
// callers invalidate per subtree (see the facade's change listener).
func (r *Resolver) Invalidate(ref element.RefNo) {
	r.worlds.Delete(ref)
	r.locals.Range(func(k, _ any) bool {
		lk := k.(localKey)
		if lk.ID == ref || lk.Owner == ref {
			r.locals.Delete(k)
		}
		return true
	})
}

// Clear drops all cached transforms.
func (r *Resolver) Clear() {
	r.locals.Range(func(k, _ any) bool { r.locals.Delete(k); return true })
	r.worlds.Range(func(k, _ any) bool { r.worlds.Delete(k); return true })
}

// CacheStats reports hit/miss counters for operational visibility.
func (r *Resolver) CacheStats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

func flightKeyLocal(k localKey) string {
	return "l:" + k.ID.String() + "|" + k.Owner.String()
}

func flightKeyWorld(ref element.RefNo) string {
	return "w:" + ref.String()
}
