// Package graphstore provides the graph store capability consumed by the
// transform resolver and the query router, plus three engine implementations:
// an embedded Badger engine, a SQLite engine and an in-memory engine for
// tests and ephemeral use.
package graphstore

import (
	"context"

	"github.com/happyrust/plantgraph/pkg/element"
)

// TypeFilter optionally narrows a type query to elements whose attributes
// match. A nil filter matches everything.
type TypeFilter func(attrs *element.AttributeMap) bool

// Stats is an O(1) snapshot of engine-level counters.
type Stats struct {
	ElementCount int64
	CacheHits    int64
	CacheMisses  int64
}

// ChangeListener receives element mutation notifications. The facade
// registers listeners that invalidate transform caches and spatial index
// entries; listeners must be fast and must not call back into the engine.
type ChangeListener interface {
	ElementCreated(ref element.RefNo)
	ElementUpdated(ref element.RefNo)
	ElementDeleted(ref element.RefNo)
}

// Engine is the graph store capability: point lookup by reference, hierarchy
// traversal, type scans and transactional writes. The query router can hold
// several engines and switch between them at runtime.
//
// All read results are snapshots; mutating a returned AttributeMap never
// affects engine state.
type Engine interface {
	// Attributes returns the element's attribute snapshot.
	// Returns ErrNotFound when the element does not exist.
	Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error)

	// Children returns the direct children of ref in ascending RefNo order,
	// the same order every engine produces.
	Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error)

	// Ancestors returns the ownership chain of ref in root-first order,
	// including ref itself as the last entry. A self-owned element yields a
	// single-entry chain. Returns ErrCyclicOwnership when the chain revisits
	// an element.
	Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error)

	// QueryByType returns all elements whose type tag is one of typeTags,
	// restricted to database dbNum when dbNum > 0, optionally filtered.
	QueryByType(ctx context.Context, typeTags []string, dbNum int32, filter TypeFilter) ([]element.RefNo, error)

	// QuerySubtree returns ref and every descendant down to maxDepth levels
	// (maxDepth <= 0 means unlimited), in a deterministic pre-order.
	QuerySubtree(ctx context.Context, ref element.RefNo, maxDepth int) ([]element.RefNo, error)

	// CreateElement stores a new element record.
	CreateElement(ctx context.Context, attrs *element.AttributeMap) error

	// UpdateElement replaces an element record (upsert).
	UpdateElement(ctx context.Context, attrs *element.AttributeMap) error

	// DeleteElement removes an element record.
	DeleteElement(ctx context.Context, ref element.RefNo) error

	// Subscribe registers a mutation listener.
	Subscribe(l ChangeListener)

	// Name identifies the engine for logging and routing decisions.
	Name() string

	// Ping reports whether the engine is reachable and open.
	Ping(ctx context.Context) error

	// Stats returns engine counters.
	Stats() Stats

	// Close releases engine resources.
	Close() error
}

// notifier is the shared listener fan-out embedded by engine implementations.
type notifier struct {
	listeners []ChangeListener
}

func (n *notifier) Subscribe(l ChangeListener) {
	if l != nil {
		n.listeners = append(n.listeners, l)
	}
}

func (n *notifier) notifyCreated(ref element.RefNo) {
	for _, l := range n.listeners {
		l.ElementCreated(ref)
	}
}

func (n *notifier) notifyUpdated(ref element.RefNo) {
	for _, l := range n.listeners {
		l.ElementUpdated(ref)
	}
}

func (n *notifier) notifyDeleted(ref element.RefNo) {
	for _, l := range n.listeners {
		l.ElementDeleted(ref)
	}
}
