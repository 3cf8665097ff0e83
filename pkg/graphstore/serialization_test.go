package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
)

func TestSerialization_PreservesAttributeKinds(t *testing.T) {
	attrs := element.NewAttributeMap(element.RefNo{DB: 3, Seq: 77}, map[string]element.Value{
		element.AttrType: element.StringValue(element.TypeSjoi),
		element.AttrOwn:  element.RefValue(element.RefNo{DB: 3, Seq: 1}),
		element.AttrPos:  element.Vec3Value(geom.Vec3{X: 1.5, Y: -2, Z: 0.25}),
		element.AttrBang: element.FloatValue(45),
		element.AttrZdis: element.IntValue(2),
		element.AttrSpts: element.ListValue(
			element.Vec3Value(geom.Vec3{}),
			element.Vec3Value(geom.Vec3{Z: 100}),
		),
	})

	data, err := encodeAttributes(attrs)
	require.NoError(t, err)

	got, err := decodeAttributes(data)
	require.NoError(t, err)
	require.Equal(t, attrs.Ref, got.Ref)
	require.Equal(t, element.TypeSjoi, got.TypeTag())
	require.Equal(t, element.RefNo{DB: 3, Seq: 1}, got.Owner())

	pos, ok := got.Position()
	require.True(t, ok)
	require.Equal(t, geom.Vec3{X: 1.5, Y: -2, Z: 0.25}, pos)

	z, ok := got.Attrs[element.AttrZdis].AsInt()
	require.True(t, ok)
	require.Equal(t, int64(2), z)

	pts, ok := got.Attrs[element.AttrSpts].AsVec3List()
	require.True(t, ok)
	require.Len(t, pts, 2)
}

func TestSerialization_RejectsForeignAndTruncatedRecords(t *testing.T) {
	_, err := decodeAttributes([]byte("garbage"))
	require.ErrorIs(t, err, ErrInvalidData)

	_, err = decodeAttributes(nil)
	require.ErrorIs(t, err, ErrInvalidData)

	attrs := element.NewAttributeMap(element.RefNo{DB: 1, Seq: 1}, nil)
	data, err := encodeAttributes(attrs)
	require.NoError(t, err)

	// Flip the version byte.
	data[len(recordMagic)] = 99
	_, err = decodeAttributes(data)
	require.ErrorIs(t, err, ErrInvalidData)
}
