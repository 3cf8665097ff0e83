// Package geom provides the 3D math primitives shared by the transform
// resolver and the spatial index: vectors, quaternions, 4x4 transforms and
// axis-aligned bounding boxes.
//
// All numeric tolerances used for degeneracy checks live in epsilon.go so
// strategies do not grow their own magic constants.
package geom

import "math"

// Vec3 is a 3D vector with millimetre semantics throughout the plant model.
type Vec3 struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the Euclidean length of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalized returns the unit vector in the direction of v.
// ok is false when v is too short to normalize safely; callers must treat
// that as "no direction" rather than dividing anyway.
func (v Vec3) Normalized() (Vec3, bool) {
	l := v.Length()
	if l < EpsDirection {
		return Vec3{}, false
	}
	return v.Scale(1 / l), true
}

// IsFinite reports whether all components are finite numbers.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// ApproxEqual reports component-wise equality within EpsPosition.
func (v Vec3) ApproxEqual(o Vec3) bool {
	return math.Abs(v.X-o.X) < EpsPosition &&
		math.Abs(v.Y-o.Y) < EpsPosition &&
		math.Abs(v.Z-o.Z) < EpsPosition
}

// Distance returns the Euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float64 {
	return v.Sub(o).Length()
}
