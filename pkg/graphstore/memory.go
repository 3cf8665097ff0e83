package graphstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/happyrust/plantgraph/pkg/element"
)

// MemoryEngine is a fully in-process Engine. It backs tests and ephemeral
// embedding; semantics match BadgerEngine exactly, minus durability.
type MemoryEngine struct {
	mu       sync.RWMutex
	elements map[element.RefNo]*element.AttributeMap
	children map[element.RefNo][]element.RefNo
	closed   bool

	elementCount atomic.Int64

	notifier
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		elements: make(map[element.RefNo]*element.AttributeMap),
		children: make(map[element.RefNo][]element.RefNo),
	}
}

// Name implements Engine.
func (m *MemoryEngine) Name() string { return "memory" }

// Ping implements Engine.
func (m *MemoryEngine) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStorageClosed
	}
	return nil
}

// Attributes implements Engine.
func (m *MemoryEngine) Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	attrs, ok := m.elements[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return attrs.Clone(), nil
}

// Children implements Engine.
func (m *MemoryEngine) Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	if _, ok := m.elements[ref]; !ok {
		return nil, ErrNotFound
	}
	kids := m.children[ref]
	out := make([]element.RefNo, len(kids))
	copy(out, kids)
	return out, nil
}

// Ancestors implements Engine. The whole chain is resolved under one read
// lock so it observes a consistent snapshot.
func (m *MemoryEngine) Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	return walkAncestors(ref, func(r element.RefNo) (element.RefNo, error) {
		attrs, ok := m.elements[r]
		if !ok {
			return element.NilRef, ErrNotFound
		}
		return attrs.Owner(), nil
	})
}

// QueryByType implements Engine.
func (m *MemoryEngine) QueryByType(ctx context.Context, typeTags []string, dbNum int32, filter TypeFilter) ([]element.RefNo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}

	want := make(map[string]struct{}, len(typeTags))
	for _, t := range typeTags {
		want[t] = struct{}{}
	}

	var out []element.RefNo
	for ref, attrs := range m.elements {
		if dbNum > 0 && ref.DB != dbNum {
			continue
		}
		if _, ok := want[attrs.TypeTag()]; !ok {
			continue
		}
		if filter != nil && !filter(attrs) {
			continue
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// QuerySubtree implements Engine.
func (m *MemoryEngine) QuerySubtree(ctx context.Context, ref element.RefNo, maxDepth int) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	if _, ok := m.elements[ref]; !ok {
		return nil, ErrNotFound
	}

	var out []element.RefNo
	var visit func(r element.RefNo, depth int)
	visit = func(r element.RefNo, depth int) {
		out = append(out, r)
		if maxDepth > 0 && depth >= maxDepth {
			return
		}
		for _, kid := range m.children[r] {
			visit(kid, depth+1)
		}
	}
	visit(ref, 0)
	return out, nil
}

// CreateElement implements Engine.
func (m *MemoryEngine) CreateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if attrs == nil {
		return ErrInvalidData
	}
	if attrs.Ref.IsNil() {
		return ErrInvalidRef
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStorageClosed
	}
	if _, exists := m.elements[attrs.Ref]; exists {
		m.mu.Unlock()
		return ErrAlreadyExists
	}
	m.elements[attrs.Ref] = attrs.Clone()
	m.linkOwnerLocked(attrs)
	m.mu.Unlock()

	m.elementCount.Add(1)
	m.notifyCreated(attrs.Ref)
	return nil
}

// UpdateElement implements Engine. Missing elements are created (upsert).
func (m *MemoryEngine) UpdateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if attrs == nil {
		return ErrInvalidData
	}
	if attrs.Ref.IsNil() {
		return ErrInvalidRef
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStorageClosed
	}
	old, existed := m.elements[attrs.Ref]
	if existed {
		m.unlinkOwnerLocked(old)
	}
	m.elements[attrs.Ref] = attrs.Clone()
	m.linkOwnerLocked(attrs)
	m.mu.Unlock()

	if existed {
		m.notifyUpdated(attrs.Ref)
	} else {
		m.elementCount.Add(1)
		m.notifyCreated(attrs.Ref)
	}
	return nil
}

// DeleteElement implements Engine.
func (m *MemoryEngine) DeleteElement(ctx context.Context, ref element.RefNo) error {
	if ref.IsNil() {
		return ErrInvalidRef
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStorageClosed
	}
	attrs, ok := m.elements[ref]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.unlinkOwnerLocked(attrs)
	delete(m.elements, ref)
	delete(m.children, ref)
	m.mu.Unlock()

	m.elementCount.Add(-1)
	m.notifyDeleted(ref)
	return nil
}

// Stats implements Engine.
func (m *MemoryEngine) Stats() Stats {
	return Stats{ElementCount: m.elementCount.Load()}
}

// Close implements Engine.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryEngine) linkOwnerLocked(attrs *element.AttributeMap) {
	owner := attrs.Owner()
	if owner.IsNil() || owner == attrs.Ref {
		return
	}
	for _, kid := range m.children[owner] {
		if kid == attrs.Ref {
			return
		}
	}
	m.children[owner] = append(m.children[owner], attrs.Ref)
}

func (m *MemoryEngine) unlinkOwnerLocked(attrs *element.AttributeMap) {
	owner := attrs.Owner()
	if owner.IsNil() || owner == attrs.Ref {
		return
	}
	kids := m.children[owner]
	for i, kid := range kids {
		if kid == attrs.Ref {
			m.children[owner] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}
