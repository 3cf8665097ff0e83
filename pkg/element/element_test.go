package element

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/happyrust/plantgraph/pkg/geom"
)

func TestRefNo_StringAndNil(t *testing.T) {
	require.Equal(t, "=17/203", RefNo{DB: 17, Seq: 203}.String())
	require.True(t, NilRef.IsNil())
	require.False(t, RefNo{DB: 1, Seq: 1}.IsNil())
}

func TestRefNo_LessOrdersByDBThenSeq(t *testing.T) {
	require.True(t, RefNo{DB: 1, Seq: 9}.Less(RefNo{DB: 2, Seq: 1}))
	require.True(t, RefNo{DB: 1, Seq: 1}.Less(RefNo{DB: 1, Seq: 2}))
	require.False(t, RefNo{DB: 1, Seq: 2}.Less(RefNo{DB: 1, Seq: 2}))
}

func TestValue_AccessorsAreKindStrict(t *testing.T) {
	v := IntValue(42)
	i, ok := v.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(42), i)
	_, ok = v.AsString()
	require.False(t, ok)

	f, ok := FloatValue(2.5).AsFloat()
	require.True(t, ok)
	require.Equal(t, 2.5, f)

	// Ints coerce to float for numeric attributes like ZDIS.
	f, ok = IntValue(3).AsFloat()
	require.True(t, ok)
	require.Equal(t, 3.0, f)
}

func TestValue_Vec3List(t *testing.T) {
	v := ListValue(
		Vec3Value(geom.Vec3{X: 1}),
		Vec3Value(geom.Vec3{Y: 2}),
	)
	pts, ok := v.AsVec3List()
	require.True(t, ok)
	require.Len(t, pts, 2)
	require.Equal(t, geom.Vec3{Y: 2}, pts[1])

	mixed := ListValue(Vec3Value(geom.Vec3{}), IntValue(1))
	_, ok = mixed.AsVec3List()
	require.False(t, ok)
}

func TestAttributeMap_OwnerAndRoot(t *testing.T) {
	root := NewAttributeMap(RefNo{DB: 1, Seq: 1}, map[string]Value{
		AttrType: StringValue("WORL"),
	})
	require.True(t, root.IsRoot())

	child := NewAttributeMap(RefNo{DB: 1, Seq: 2}, map[string]Value{
		AttrType: StringValue(TypePipe),
		AttrOwn:  RefValue(root.Ref),
	})
	require.False(t, child.IsRoot())
	require.Equal(t, root.Ref, child.Owner())
	require.Equal(t, TypePipe, child.TypeTag())
}

func TestAttributeMap_CloneIsDeep(t *testing.T) {
	orig := NewAttributeMap(RefNo{DB: 1, Seq: 5}, map[string]Value{
		AttrSpts: ListValue(Vec3Value(geom.Vec3{X: 1})),
	})
	cp := orig.Clone()
	cp.Attrs[AttrSpts].List[0] = Vec3Value(geom.Vec3{X: 99})

	pts, ok := orig.Attrs[AttrSpts].AsVec3List()
	require.True(t, ok)
	require.Equal(t, 1.0, pts[0].X)
}
