// Package router dispatches read queries across two graph store engines.
// A hot-swappable strategy picks the engine per call; on failure the router
// can retry the other engine once before surfacing the error.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/graphstore"
	"github.com/happyrust/plantgraph/pkg/perfmon"
)

// EnginePreference selects which engine handles a query.
type EnginePreference int

const (
	// PreferAuto uses engine B when it is reachable, otherwise engine A.
	PreferAuto EnginePreference = iota
	// PreferEngineA pins queries to engine A.
	PreferEngineA
	// PreferEngineB pins queries to engine B.
	PreferEngineB
)

// String renders the preference.
func (p EnginePreference) String() string {
	switch p {
	case PreferAuto:
		return "auto"
	case PreferEngineA:
		return "engine-a"
	case PreferEngineB:
		return "engine-b"
	}
	return "unknown"
}

// Strategy is the routing policy read at the start of every call.
type Strategy struct {
	Preference EnginePreference
	// Timeout bounds each engine attempt. Zero disables the deadline.
	Timeout time.Duration
	// Fallback enables one retry on the other engine after a failure.
	Fallback bool
	// LogPerformance records per-query samples and emits debug logs.
	LogPerformance bool
}

// DefaultStrategy prefers engine B with fallback and a 5s timeout.
func DefaultStrategy() Strategy {
	return Strategy{
		Preference:     PreferAuto,
		Timeout:        5 * time.Second,
		Fallback:       true,
		LogPerformance: true,
	}
}

// batchParallelism bounds concurrent engine calls in batched variants.
const batchParallelism = 8

// Router dispatches queries per the current strategy. Safe for concurrent
// use; SetStrategy swaps the policy without blocking in-flight queries.
type Router struct {
	engineA graphstore.Engine
	engineB graphstore.Engine

	mu       sync.RWMutex
	strategy Strategy

	mon *perfmon.Monitor
	log *slog.Logger
}

// New creates a router over the two engines. engineB may be nil, in which
// case every preference resolves to engine A. mon may be nil to disable
// sample recording.
func New(engineA, engineB graphstore.Engine, strategy Strategy, mon *perfmon.Monitor) *Router {
	return &Router{
		engineA:  engineA,
		engineB:  engineB,
		strategy: strategy,
		mon:      mon,
		log:      slog.Default().With("component", "router"),
	}
}

// Strategy returns the current routing policy.
func (r *Router) Strategy() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetStrategy swaps the routing policy. Takes effect on the next call.
func (r *Router) SetStrategy(s Strategy) {
	r.mu.Lock()
	r.strategy = s
	r.mu.Unlock()
}

// pick resolves the primary and fallback engines for one call.
func (r *Router) pick(ctx context.Context, s Strategy) (primary, secondary graphstore.Engine) {
	switch s.Preference {
	case PreferEngineA:
		return r.engineA, r.engineB
	case PreferEngineB:
		if r.engineB != nil {
			return r.engineB, r.engineA
		}
		return r.engineA, nil
	default:
		if r.engineB != nil && r.engineB.Ping(ctx) == nil {
			return r.engineB, r.engineA
		}
		return r.engineA, r.engineB
	}
}

// run executes op against the primary engine, retrying once on the
// secondary when fallback is enabled. resultCount is for logging only.
func (r *Router) run(ctx context.Context, opName string, op func(ctx context.Context, eng graphstore.Engine) (int, error)) error {
	s := r.Strategy()
	primary, secondary := r.pick(ctx, s)

	traceID := ""
	if s.LogPerformance {
		traceID = uuid.NewString()
	}

	_, err := r.attempt(ctx, s, opName, traceID, primary, op)
	if err == nil {
		return nil
	}
	if !s.Fallback || secondary == nil || errors.Is(err, context.Canceled) {
		return err
	}

	r.log.Warn("query failed, falling back",
		"op", opName,
		"engine", primary.Name(),
		"fallback", secondary.Name(),
		"trace_id", traceID,
		"error", err)

	if _, ferr := r.attempt(ctx, s, opName, traceID, secondary, op); ferr != nil {
		return fmt.Errorf("%s: primary %s: %w (fallback %s: %v)",
			opName, primary.Name(), err, secondary.Name(), ferr)
	}
	return nil
}

func (r *Router) attempt(ctx context.Context, s Strategy, opName, traceID string, eng graphstore.Engine, op func(ctx context.Context, eng graphstore.Engine) (int, error)) (int, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if s.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	count, err := op(callCtx, eng)
	elapsed := time.Since(start)

	if r.mon != nil {
		r.mon.Record(perfmon.Sample{
			Operation:   opName,
			Engine:      eng.Name(),
			Elapsed:     elapsed,
			ResultCount: count,
			Err:         err != nil,
		})
	}
	if s.LogPerformance {
		r.log.Debug("query executed",
			"op", opName,
			"engine", eng.Name(),
			"trace_id", traceID,
			"elapsed", elapsed,
			"results", count,
			"ok", err == nil)
	}
	return count, err
}

// QueryByType returns elements matching one of typeTags, restricted to dbNum
// when dbNum > 0, optionally filtered.
func (r *Router) QueryByType(ctx context.Context, typeTags []string, dbNum int32, filter graphstore.TypeFilter) ([]element.RefNo, error) {
	var out []element.RefNo
	err := r.run(ctx, "query_by_type", func(ctx context.Context, eng graphstore.Engine) (int, error) {
		refs, err := eng.QueryByType(ctx, typeTags, dbNum, filter)
		out = refs
		return len(refs), err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Attributes returns one element's attribute snapshot.
func (r *Router) Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error) {
	var out *element.AttributeMap
	err := r.run(ctx, "attributes", func(ctx context.Context, eng graphstore.Engine) (int, error) {
		attrs, err := eng.Attributes(ctx, ref)
		out = attrs
		if attrs != nil {
			return 1, err
		}
		return 0, err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Children returns the direct children of ref.
func (r *Router) Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	var out []element.RefNo
	err := r.run(ctx, "children", func(ctx context.Context, eng graphstore.Engine) (int, error) {
		refs, err := eng.Children(ctx, ref)
		out = refs
		return len(refs), err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Descendants returns ref and its subtree down to maxDepth levels
// (maxDepth <= 0 means unlimited).
func (r *Router) Descendants(ctx context.Context, ref element.RefNo, maxDepth int) ([]element.RefNo, error) {
	var out []element.RefNo
	err := r.run(ctx, "descendants", func(ctx context.Context, eng graphstore.Engine) (int, error) {
		refs, err := eng.QuerySubtree(ctx, ref, maxDepth)
		out = refs
		return len(refs), err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ancestors returns the ownership chain of ref, root first, including ref.
func (r *Router) Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	var out []element.RefNo
	err := r.run(ctx, "ancestors", func(ctx context.Context, eng graphstore.Engine) (int, error) {
		refs, err := eng.Ancestors(ctx, ref)
		out = refs
		return len(refs), err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AttrResult is one element of a batched attribute lookup.
type AttrResult struct {
	Ref   element.RefNo
	Attrs *element.AttributeMap
	Err   error
}

// AttributesBatch fetches attributes for all refs concurrently. Results are
// returned in caller order with per-item errors; one missing element does
// not fail the batch.
func (r *Router) AttributesBatch(ctx context.Context, refs []element.RefNo) []AttrResult {
	out := make([]AttrResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, ref := range refs {
		i, ref := i, ref
		out[i].Ref = ref
		g.Go(func() error {
			attrs, err := r.Attributes(gctx, ref)
			out[i].Attrs = attrs
			out[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ChildrenResult is one element of a batched children lookup.
type ChildrenResult struct {
	Ref      element.RefNo
	Children []element.RefNo
	Err      error
}

// ChildrenBatch fetches children for all refs concurrently, caller order,
// per-item errors.
func (r *Router) ChildrenBatch(ctx context.Context, refs []element.RefNo) []ChildrenResult {
	out := make([]ChildrenResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, ref := range refs {
		i, ref := i, ref
		out[i].Ref = ref
		g.Go(func() error {
			children, err := r.Children(gctx, ref)
			out[i].Children = children
			out[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// VerifyConsistency runs the same type query against both engines and logs
// a warning when the result counts diverge. Advisory only.
func (r *Router) VerifyConsistency(ctx context.Context, typeTags []string, dbNum int32) {
	if r.engineB == nil {
		return
	}
	refsA, errA := r.engineA.QueryByType(ctx, typeTags, dbNum, nil)
	refsB, errB := r.engineB.QueryByType(ctx, typeTags, dbNum, nil)
	if errA != nil || errB != nil {
		return
	}
	if len(refsA) != len(refsB) {
		r.log.Warn("engine result divergence",
			"types", typeTags,
			"engine_a", r.engineA.Name(),
			"count_a", len(refsA),
			"engine_b", r.engineB.Name(),
			"count_b", len(refsB))
	}
}
