package element

import "github.com/happyrust/plantgraph/pkg/geom"

// Well-known attribute names. These mirror the source plant databases
// (uppercase PDMS naming) and are the only names the transform strategies
// interpret directly.
const (
	AttrType = "TYPE" // element node type tag, e.g. PIPE, GENSEC, SJOI
	AttrName = "NAME"
	AttrOwn  = "OWNER" // owning element reference; self-referential for roots
	AttrPos  = "POS"   // position relative to owner
	AttrOri  = "ORI"   // explicit orientation
	AttrBang = "BANG"  // bend angle in degrees, applied about local Z
	AttrCref = "CREF"  // connected/reference element
	AttrZdis = "ZDIS"  // signed distance along a section
	AttrYdir = "YDIR"  // Y-direction hint for basis construction
	AttrSpts = "SPTS"  // spine path points
	AttrNpos = "NPOS"  // named control-point table on joints
)

// Common node type tags.
const (
	TypePipe   = "PIPE"
	TypeSpine  = "SPINE"
	TypeGensec = "GENSEC"
	TypeSjoi   = "SJOI"
	TypeEndatu = "ENDATU"
)

// AttributeMap is the read-only attribute snapshot of exactly one element,
// fetched on demand from a graph store. The core never mutates it; mutations
// happen upstream and arrive as fresh snapshots.
type AttributeMap struct {
	Ref   RefNo            `msgpack:"ref"`
	Attrs map[string]Value `msgpack:"attrs"`
}

// NewAttributeMap builds a snapshot for ref with the given attributes.
func NewAttributeMap(ref RefNo, attrs map[string]Value) *AttributeMap {
	if attrs == nil {
		attrs = map[string]Value{}
	}
	return &AttributeMap{Ref: ref, Attrs: attrs}
}

// Get returns the named attribute.
func (a *AttributeMap) Get(name string) (Value, bool) {
	v, ok := a.Attrs[name]
	return v, ok
}

// TypeTag returns the element's node type, or "" when the snapshot is
// malformed.
func (a *AttributeMap) TypeTag() string {
	if v, ok := a.Attrs[AttrType]; ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return ""
}

// Owner returns the owning element reference. Roots own themselves.
func (a *AttributeMap) Owner() RefNo {
	if v, ok := a.Attrs[AttrOwn]; ok {
		if r, ok := v.AsRef(); ok {
			return r
		}
	}
	return NilRef
}

// IsRoot reports whether the element is its own owner.
func (a *AttributeMap) IsRoot() bool {
	owner := a.Owner()
	return owner.IsNil() || owner == a.Ref
}

// Position returns the POS attribute when present and finite.
func (a *AttributeMap) Position() (geom.Vec3, bool) {
	v, ok := a.Attrs[AttrPos]
	if !ok {
		return geom.Vec3{}, false
	}
	p, ok := v.AsVec3()
	if !ok || !p.IsFinite() {
		return geom.Vec3{}, false
	}
	return p, true
}

// Orientation returns the ORI attribute when present and finite.
func (a *AttributeMap) Orientation() (geom.Quat, bool) {
	v, ok := a.Attrs[AttrOri]
	if !ok {
		return geom.Quat{}, false
	}
	q, ok := v.AsQuat()
	if !ok || !q.IsFinite() {
		return geom.Quat{}, false
	}
	return q, true
}

// Clone returns a deep copy. Engines cache snapshots and hand out copies so
// callers cannot mutate cached state.
func (a *AttributeMap) Clone() *AttributeMap {
	attrs := make(map[string]Value, len(a.Attrs))
	for k, v := range a.Attrs {
		attrs[k] = cloneValue(v)
	}
	return &AttributeMap{Ref: a.Ref, Attrs: attrs}
}

func cloneValue(v Value) Value {
	if v.Kind == KindList && v.List != nil {
		list := make([]Value, len(v.List))
		for i, item := range v.List {
			list[i] = cloneValue(item)
		}
		v.List = list
	}
	return v
}
