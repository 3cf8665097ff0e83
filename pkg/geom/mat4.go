package geom

import "math"

// Mat4 is a column-major 4x4 transform. Local transforms are built from a
// rotation, a translation and an optional non-uniform scale; world transforms
// are products of locals along the ownership chain.
type Mat4 struct {
	// M[c][r] is column c, row r.
	M [4][4]float64 `msgpack:"m"`
}

// IdentityMat4 returns the identity transform.
func IdentityMat4() Mat4 {
	var m Mat4
	m.M[0][0], m.M[1][1], m.M[2][2], m.M[3][3] = 1, 1, 1, 1
	return m
}

// ComposeTRS builds rotation*scale with translation t.
func ComposeTRS(t Vec3, r Quat, s Vec3) Mat4 {
	q := r.Normalized()
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z

	var m Mat4
	m.M[0] = [4]float64{(1 - 2*(yy + zz)) * s.X, 2 * (xy + wz) * s.X, 2 * (xz - wy) * s.X, 0}
	m.M[1] = [4]float64{2 * (xy - wz) * s.Y, (1 - 2*(xx + zz)) * s.Y, 2 * (yz + wx) * s.Y, 0}
	m.M[2] = [4]float64{2 * (xz + wy) * s.Z, 2 * (yz - wx) * s.Z, (1 - 2*(xx + yy)) * s.Z, 0}
	m.M[3] = [4]float64{t.X, t.Y, t.Z, 1}
	return m
}

// ComposeTR builds a rigid transform from translation and rotation.
func ComposeTR(t Vec3, r Quat) Mat4 {
	return ComposeTRS(t, r, Vec3{1, 1, 1})
}

// Translation returns the translation column.
func (m Mat4) Translation() Vec3 {
	return Vec3{m.M[3][0], m.M[3][1], m.M[3][2]}
}

// Mul returns m * o (o applied first).
func (m Mat4) Mul(o Mat4) Mat4 {
	var r Mat4
	for c := 0; c < 4; c++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m.M[k][row] * o.M[c][k]
			}
			r.M[c][row] = sum
		}
	}
	return r
}

// TransformPoint applies the transform to a point (w = 1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		m.M[0][0]*p.X + m.M[1][0]*p.Y + m.M[2][0]*p.Z + m.M[3][0],
		m.M[0][1]*p.X + m.M[1][1]*p.Y + m.M[2][1]*p.Z + m.M[3][1],
		m.M[0][2]*p.X + m.M[1][2]*p.Y + m.M[2][2]*p.Z + m.M[3][2],
	}
}

// TransformDirection applies the transform to a direction (w = 0).
func (m Mat4) TransformDirection(d Vec3) Vec3 {
	return Vec3{
		m.M[0][0]*d.X + m.M[1][0]*d.Y + m.M[2][0]*d.Z,
		m.M[0][1]*d.X + m.M[1][1]*d.Y + m.M[2][1]*d.Z,
		m.M[0][2]*d.X + m.M[1][2]*d.Y + m.M[2][2]*d.Z,
	}
}

// InverseRigid inverts a rigid transform (orthonormal rotation plus
// translation). The rotation block is transposed and the translation is
// back-rotated; scaled transforms must not be passed here.
func (m Mat4) InverseRigid() Mat4 {
	var r Mat4
	for c := 0; c < 3; c++ {
		for row := 0; row < 3; row++ {
			r.M[c][row] = m.M[row][c]
		}
	}
	t := m.Translation()
	r.M[3][0] = -(r.M[0][0]*t.X + r.M[1][0]*t.Y + r.M[2][0]*t.Z)
	r.M[3][1] = -(r.M[0][1]*t.X + r.M[1][1]*t.Y + r.M[2][1]*t.Z)
	r.M[3][2] = -(r.M[0][2]*t.X + r.M[1][2]*t.Y + r.M[2][2]*t.Z)
	r.M[3][3] = 1
	return r
}

// IsFinite reports whether every component is a finite number. A transform
// with NaN/Inf components must propagate as "no transform", never be cached.
func (m Mat4) IsFinite() bool {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			if math.IsNaN(m.M[c][r]) || math.IsInf(m.M[c][r], 0) {
				return false
			}
		}
	}
	return true
}

// ApproxEqual reports component-wise equality within EpsPosition.
func (m Mat4) ApproxEqual(o Mat4) bool {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			if math.Abs(m.M[c][r]-o.M[c][r]) >= EpsPosition {
				return false
			}
		}
	}
	return true
}
