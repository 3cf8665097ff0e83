package element

import (
	"fmt"

	"github.com/happyrust/plantgraph/pkg/geom"
)

// Kind discriminates the tagged Value union.
type Kind uint8

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindString
	KindVec3
	KindQuat
	KindRef
	KindList
)

// Value is one typed attribute value. Exactly one field matching Kind is
// meaningful; accessors return (zero, false) on kind mismatch so callers can
// treat malformed data as "attribute absent".
type Value struct {
	Kind   Kind      `msgpack:"k"`
	Int    int64     `msgpack:"i,omitempty"`
	Float  float64   `msgpack:"f,omitempty"`
	Str    string    `msgpack:"s,omitempty"`
	Vec    geom.Vec3 `msgpack:"v,omitempty"`
	Quat   geom.Quat `msgpack:"q,omitempty"`
	Ref    RefNo     `msgpack:"r,omitempty"`
	List   []Value   `msgpack:"l,omitempty"`
}

// IntValue wraps an integer attribute.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps a float attribute.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringValue wraps a string attribute.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// Vec3Value wraps a 3D vector attribute.
func Vec3Value(v geom.Vec3) Value { return Value{Kind: KindVec3, Vec: v} }

// QuatValue wraps an orientation attribute.
func QuatValue(q geom.Quat) Value { return Value{Kind: KindQuat, Quat: q} }

// RefValue wraps a foreign element reference.
func RefValue(r RefNo) Value { return Value{Kind: KindRef, Ref: r} }

// ListValue wraps a list attribute.
func ListValue(vs ...Value) Value { return Value{Kind: KindList, List: vs} }

// AsInt returns the integer value, accepting floats with integral semantics.
func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		return int64(v.Float), true
	}
	return 0, false
}

// AsFloat returns the numeric value as a float.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindInt:
		return float64(v.Int), true
	}
	return 0, false
}

// AsString returns the string value.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// AsVec3 returns the vector value.
func (v Value) AsVec3() (geom.Vec3, bool) {
	if v.Kind != KindVec3 {
		return geom.Vec3{}, false
	}
	return v.Vec, true
}

// AsQuat returns the orientation value.
func (v Value) AsQuat() (geom.Quat, bool) {
	if v.Kind != KindQuat {
		return geom.Quat{}, false
	}
	return v.Quat, true
}

// AsRef returns the foreign reference value.
func (v Value) AsRef() (RefNo, bool) {
	if v.Kind != KindRef {
		return NilRef, false
	}
	return v.Ref, true
}

// AsList returns the list value.
func (v Value) AsList() ([]Value, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	return v.List, true
}

// AsVec3List returns the list interpreted as a sequence of 3D points; false
// when the list is absent or contains a non-vector entry.
func (v Value) AsVec3List() ([]geom.Vec3, bool) {
	list, ok := v.AsList()
	if !ok {
		return nil, false
	}
	out := make([]geom.Vec3, 0, len(list))
	for _, item := range list {
		p, ok := item.AsVec3()
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

// String renders a debug form of the value.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindVec3:
		return fmt.Sprintf("(%g %g %g)", v.Vec.X, v.Vec.Y, v.Vec.Z)
	case KindQuat:
		return fmt.Sprintf("quat(%g %g %g %g)", v.Quat.W, v.Quat.X, v.Quat.Y, v.Quat.Z)
	case KindRef:
		return v.Ref.String()
	case KindList:
		return fmt.Sprintf("list[%d]", len(v.List))
	}
	return "unknown"
}
