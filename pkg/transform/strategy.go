// Package transform derives element poses from plant attributes. Each node
// type has its own geometric construction rule (a Strategy); the Resolver
// walks the ownership chain, applies the matching strategy per level and
// memoizes both local and world transforms.
package transform

import (
	"context"
	"sync"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
)

// Source supplies attribute snapshots and hierarchy links. Satisfied by any
// graphstore.Engine and by the query router.
type Source interface {
	Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error)
	Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error)
	Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error)
}

// Deps is what a strategy may reach during computation: read-only attribute
// lookups and world transforms of other elements (needed by joint alignment,
// which follows CREF references).
type Deps interface {
	Source
	// World returns the world transform of ref, or nil when unresolvable.
	World(ctx context.Context, ref element.RefNo) (*geom.Mat4, error)
}

// Strategy derives one element's local transform relative to its owner.
//
// A nil matrix with a nil error means "no transform available for this
// element under current data" (missing or degenerate geometry). That is not
// an error; callers must treat the enclosing world transform as unresolved.
// A non-nil error is reserved for store/lookup failures.
type Strategy interface {
	ComputeLocal(ctx context.Context, deps Deps, own, owner *element.AttributeMap) (*geom.Mat4, error)
}

// Registry maps a node type tag to its Strategy. Unregistered types fall
// back to the position/orientation default.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	fallback   Strategy
}

// NewRegistry returns a registry pre-populated with the built-in per-type
// rules: spine-following for SPINE, cut-plane alignment for SJOI,
// section-distance placement for ENDATU and the position default for
// everything else. GENSEC is BANG-exempt (see bangExempt).
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		fallback:   &defaultStrategy{},
	}
	r.Register(element.TypeSpine, &spineFollowingStrategy{})
	r.Register(element.TypeSjoi, &cutPlaneStrategy{})
	r.Register(element.TypeEndatu, &sectionDistanceStrategy{})
	return r
}

// Register binds a strategy to a type tag, replacing any previous binding.
func (r *Registry) Register(typeTag string, s Strategy) {
	r.mu.Lock()
	r.strategies[typeTag] = s
	r.mu.Unlock()
}

// Get returns the strategy for typeTag, falling back to the default rule.
func (r *Registry) Get(typeTag string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[typeTag]; ok {
		return s
	}
	return r.fallback
}

// bangExempt lists node types that ignore the BANG bend-angle attribute even
// when it is present. The asymmetry is deliberate: generic sections carry
// BANG for downstream reporting but their own pose must not rotate by it.
var bangExempt = map[string]struct{}{
	element.TypeGensec: {},
}

// bangRotation returns the post-rotation about local Z for the element, or
// identity when BANG is absent, zero or type-gated off.
func bangRotation(own *element.AttributeMap) geom.Quat {
	if _, exempt := bangExempt[own.TypeTag()]; exempt {
		return geom.IdentityQuat()
	}
	v, ok := own.Get(element.AttrBang)
	if !ok {
		return geom.IdentityQuat()
	}
	deg, ok := v.AsFloat()
	if !ok || deg == 0 {
		return geom.IdentityQuat()
	}
	return geom.QuatFromAxisAngle(geom.Vec3{Z: 1}, deg)
}
