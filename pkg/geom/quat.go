package geom

import "math"

// Quat is a rotation quaternion (w + xi + yj + zk), kept normalized by
// construction.
type Quat struct {
	W float64 `msgpack:"w"`
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
}

// IdentityQuat returns the identity rotation.
func IdentityQuat() Quat {
	return Quat{W: 1}
}

// QuatFromAxisAngle builds a rotation of angleDeg degrees around axis.
// A degenerate axis yields the identity rotation.
func QuatFromAxisAngle(axis Vec3, angleDeg float64) Quat {
	u, ok := axis.Normalized()
	if !ok {
		return IdentityQuat()
	}
	half := angleDeg * math.Pi / 360
	s := math.Sin(half)
	return Quat{W: math.Cos(half), X: u.X * s, Y: u.Y * s, Z: u.Z * s}
}

// Mul returns the composition q * o (apply o first, then q).
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	// v' = v + 2*cross(q.xyz, cross(q.xyz, v) + q.w*v)
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Normalized returns the unit quaternion; identity when q is degenerate.
func (q Quat) Normalized() Quat {
	l := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if l < EpsDirection {
		return IdentityQuat()
	}
	return Quat{q.W / l, q.X / l, q.Y / l, q.Z / l}
}

// IsFinite reports whether all components are finite.
func (q Quat) IsFinite() bool {
	for _, c := range [4]float64{q.W, q.X, q.Y, q.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// QuatFromBasis builds the rotation that maps the world axes onto the given
// orthonormal basis (x, y, z as columns).
func QuatFromBasis(x, y, z Vec3) Quat {
	// Shepperd's method over the rotation matrix with columns x, y, z.
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	trace := m00 + m11 + m22
	var q Quat
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = Quat{W: s / 4, X: (m21 - m12) / s, Y: (m02 - m20) / s, Z: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = Quat{W: (m21 - m12) / s, X: s / 4, Y: (m01 + m10) / s, Z: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = Quat{W: (m02 - m20) / s, X: (m01 + m10) / s, Y: s / 4, Z: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = Quat{W: (m10 - m01) / s, X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: s / 4}
	}
	return q.Normalized()
}

// BasisFromZ constructs a stable orthonormal basis whose Z axis is dir.
// yHint, when non-nil and not parallel to dir, seeds the Y axis; otherwise a
// world axis least aligned with dir is used. ok is false when dir itself is
// degenerate.
func BasisFromZ(dir Vec3, yHint *Vec3) (x, y, z Vec3, ok bool) {
	z, ok = dir.Normalized()
	if !ok {
		return Vec3{}, Vec3{}, Vec3{}, false
	}

	var seed Vec3
	if yHint != nil {
		if h, hok := yHint.Normalized(); hok && math.Abs(h.Dot(z)) < EpsParallel {
			seed = h
		}
	}
	if seed == (Vec3{}) {
		// Pick the world axis least aligned with z for numeric stability.
		seed = Vec3{Z: 1}
		if math.Abs(z.Z) > 0.9 {
			seed = Vec3{Y: 1}
		}
	}

	x, ok = seed.Cross(z).Normalized()
	if !ok {
		return Vec3{}, Vec3{}, Vec3{}, false
	}
	y = z.Cross(x)
	return x, y, z, true
}
