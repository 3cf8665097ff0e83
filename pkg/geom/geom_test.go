package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVec3_NormalizedRejectsDegenerate(t *testing.T) {
	_, ok := Vec3{}.Normalized()
	require.False(t, ok)

	_, ok = Vec3{X: 1e-12, Y: -1e-12}.Normalized()
	require.False(t, ok)

	n, ok := Vec3{X: 3, Y: 4}.Normalized()
	require.True(t, ok)
	require.InDelta(t, 1.0, n.Length(), 1e-12)
}

func TestVec3_IsFinite(t *testing.T) {
	require.True(t, Vec3{X: 1, Y: 2, Z: 3}.IsFinite())
	require.False(t, Vec3{X: math.NaN()}.IsFinite())
	require.False(t, Vec3{Z: math.Inf(1)}.IsFinite())
}

func TestQuat_RotateMatchesAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{Z: 1}, 90)
	got := q.Rotate(Vec3{X: 1})
	require.True(t, got.ApproxEqual(Vec3{Y: 1}), "got %+v", got)
}

func TestBasisFromZ_ProducesOrthonormalFrame(t *testing.T) {
	x, y, z, ok := BasisFromZ(Vec3{X: 0, Y: 0, Z: 2}, nil)
	require.True(t, ok)
	require.InDelta(t, 1.0, x.Length(), 1e-9)
	require.InDelta(t, 1.0, y.Length(), 1e-9)
	require.InDelta(t, 1.0, z.Length(), 1e-9)
	require.InDelta(t, 0.0, x.Dot(y), 1e-9)
	require.InDelta(t, 0.0, y.Dot(z), 1e-9)
	require.True(t, x.Cross(y).ApproxEqual(z))
}

func TestBasisFromZ_DegenerateDirection(t *testing.T) {
	_, _, _, ok := BasisFromZ(Vec3{}, nil)
	require.False(t, ok)
}

func TestBasisFromZ_ParallelHintFallsBack(t *testing.T) {
	hint := Vec3{Z: 1}
	x, y, z, ok := BasisFromZ(Vec3{Z: 1}, &hint)
	require.True(t, ok)
	require.InDelta(t, 0.0, x.Dot(y), 1e-9)
	require.True(t, z.ApproxEqual(Vec3{Z: 1}))
}

func TestMat4_ComposeAndTransform(t *testing.T) {
	m := ComposeTR(Vec3{X: 5}, QuatFromAxisAngle(Vec3{Z: 1}, 90))
	got := m.TransformPoint(Vec3{X: 1})
	require.True(t, got.ApproxEqual(Vec3{X: 5, Y: 1}), "got %+v", got)

	dir := m.TransformDirection(Vec3{X: 1})
	require.True(t, dir.ApproxEqual(Vec3{Y: 1}), "got %+v", dir)
}

func TestMat4_MulComposesLeftToRight(t *testing.T) {
	a := ComposeTR(Vec3{X: 1}, IdentityQuat())
	b := ComposeTR(Vec3{Y: 2}, IdentityQuat())
	got := a.Mul(b).TransformPoint(Vec3{})
	require.True(t, got.ApproxEqual(Vec3{X: 1, Y: 2}))
}

func TestMat4_InverseRigidRoundTrips(t *testing.T) {
	m := ComposeTR(Vec3{X: 2, Y: -3, Z: 7}, QuatFromAxisAngle(Vec3{X: 1, Y: 1}, 33))
	inv := m.InverseRigid()
	require.True(t, m.Mul(inv).ApproxEqual(IdentityMat4()))

	p := Vec3{X: 0.5, Y: 9, Z: -4}
	require.True(t, inv.TransformPoint(m.TransformPoint(p)).ApproxEqual(p))
}

func TestAABB_ContainsAndIntersects(t *testing.T) {
	b := NewAABB(Vec3{}, Vec3{X: 10, Y: 10, Z: 10})
	require.True(t, b.Contains(Vec3{X: 5, Y: 5, Z: 5}))
	require.True(t, b.Contains(Vec3{X: 10, Y: 10, Z: 10}))
	require.False(t, b.Contains(Vec3{X: 10.001}))

	o := NewAABB(Vec3{X: 9}, Vec3{X: 12, Y: 1, Z: 1})
	require.True(t, b.Intersects(o))
	require.False(t, b.Intersects(NewAABB(Vec3{X: 20}, Vec3{X: 21, Y: 1, Z: 1})))
}

func TestAABB_DistanceToPoint(t *testing.T) {
	b := NewAABB(Vec3{}, Vec3{X: 1, Y: 1, Z: 1})
	require.Equal(t, 0.0, b.DistanceToPoint(Vec3{X: 0.5, Y: 0.5, Z: 0.5}))
	require.InDelta(t, 3.0, b.DistanceToPoint(Vec3{X: 4, Y: 1, Z: 1}), 1e-12)
}

func TestAABB_TransformedByCoversRotatedCorners(t *testing.T) {
	b := NewAABB(Vec3{}, Vec3{X: 2, Y: 1, Z: 1})
	m := ComposeTR(Vec3{}, QuatFromAxisAngle(Vec3{Z: 1}, 90))
	got := b.TransformedBy(m)
	require.True(t, got.IsValid())
	require.True(t, got.Min.ApproxEqual(Vec3{X: -1}), "got %+v", got.Min)
	require.True(t, got.Max.ApproxEqual(Vec3{Y: 2, Z: 1}), "got %+v", got.Max)
}
