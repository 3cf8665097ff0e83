package plantgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
	"github.com/happyrust/plantgraph/pkg/geomcache"
	"github.com/happyrust/plantgraph/pkg/spatial"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createPipe(t *testing.T, db *DB, ref, owner element.RefNo, pos geom.Vec3) {
	t.Helper()
	attrs := map[string]element.Value{
		element.AttrType: element.StringValue(element.TypePipe),
		element.AttrPos:  element.Vec3Value(pos),
	}
	if !owner.IsNil() {
		attrs[element.AttrOwn] = element.RefValue(owner)
	}
	require.NoError(t, db.CreateElement(context.Background(), element.NewAttributeMap(ref, attrs)))
}

func TestDB_OpenInMemoryAndClose(t *testing.T) {
	db, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "close must be idempotent")
}

func TestDB_OpenPersistentReloadsElements(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ref := element.RefNo{DB: 1, Seq: 1}

	db, err := Open(dir, nil)
	require.NoError(t, err)
	createPipe(t, db, ref, element.NilRef, geom.Vec3{X: 1})
	require.NoError(t, db.Close())

	db2, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	attrs, err := db2.Router().Attributes(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, element.TypePipe, attrs.TypeTag())
}

func TestDB_RepositionRecomputesDescendantWorlds(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	root := element.RefNo{DB: 1, Seq: 1}
	a := element.RefNo{DB: 1, Seq: 2}
	b := element.RefNo{DB: 1, Seq: 3}
	createPipe(t, db, root, element.NilRef, geom.Vec3{})
	createPipe(t, db, a, root, geom.Vec3{})
	createPipe(t, db, b, a, geom.Vec3{X: 1})

	w, err := db.WorldTransform(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.True(t, w.Translation().ApproxEqual(geom.Vec3{X: 1}))

	require.NoError(t, db.UpdateElement(ctx, element.NewAttributeMap(a, map[string]element.Value{
		element.AttrType: element.StringValue(element.TypePipe),
		element.AttrOwn:  element.RefValue(root),
		element.AttrPos:  element.Vec3Value(geom.Vec3{X: 5}),
	})))

	w, err = db.WorldTransform(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.True(t, w.Translation().ApproxEqual(geom.Vec3{X: 6}), "got %+v", w.Translation())
}

func TestDB_SpatialQueriesThroughFacade(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	near := element.RefNo{DB: 1, Seq: 1}
	far := element.RefNo{DB: 1, Seq: 2}
	createPipe(t, db, near, element.NilRef, geom.Vec3{})
	createPipe(t, db, far, element.NilRef, geom.Vec3{})

	require.NoError(t, db.SetBounds(ctx, near,
		geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}), element.TypePipe))
	require.NoError(t, db.SetBounds(ctx, far,
		geom.NewAABB(geom.Vec3{X: 1000}, geom.Vec3{X: 1010, Y: 10, Z: 10}), element.TypePipe))
	require.NoError(t, db.SpatialIndex().RebuildMemoryIndex(ctx))

	refs, err := db.ElementsAt(ctx, geom.Vec3{X: 5, Y: 5, Z: 5})
	require.NoError(t, err)
	require.Equal(t, []element.RefNo{near}, refs)

	neighbors, err := db.Nearest(ctx, geom.Vec3{X: 20, Y: 5, Z: 5}, 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	require.Equal(t, near, neighbors[0].Ref)
	require.Equal(t, far, neighbors[1].Ref)
	require.Equal(t, spatial.StateWarm, db.SpatialIndex().CurrentState())
}

func TestDB_GeometryCacheVersioning(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	ref := element.RefNo{DB: 1, Seq: 1}
	createPipe(t, db, ref, element.NilRef, geom.Vec3{})

	g := geomcache.Geometry{Box: geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 1, Y: 1, Z: 1})}
	db.CacheGeometry(ref, g)

	got, ok := db.CachedGeometry(ref)
	require.True(t, ok)
	require.Equal(t, g.Box, got.Box)

	// A mutation bumps the version, so the old entry becomes unreachable.
	require.NoError(t, db.UpdateElement(ctx, element.NewAttributeMap(ref, map[string]element.Value{
		element.AttrType: element.StringValue(element.TypePipe),
		element.AttrPos:  element.Vec3Value(geom.Vec3{X: 2}),
	})))
	_, ok = db.CachedGeometry(ref)
	require.False(t, ok)
}

func TestDB_DeleteRemovesSpatialEntry(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	ref := element.RefNo{DB: 1, Seq: 1}
	createPipe(t, db, ref, element.NilRef, geom.Vec3{})
	require.NoError(t, db.SetBounds(ctx, ref,
		geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 1, Y: 1, Z: 1}), element.TypePipe))

	require.NoError(t, db.DeleteElement(ctx, ref))

	refs, err := db.ElementsAt(ctx, geom.Vec3{X: 0.5, Y: 0.5, Z: 0.5})
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestDB_StatsAggregatesSubsystems(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	ref := element.RefNo{DB: 1, Seq: 1}
	createPipe(t, db, ref, element.NilRef, geom.Vec3{})

	_, err := db.Router().Attributes(ctx, ref)
	require.NoError(t, err)
	_, err = db.WorldTransform(ctx, ref)
	require.NoError(t, err)

	stats := db.Stats(ctx)
	require.Equal(t, int64(1), stats.Engine.ElementCount)
	require.GreaterOrEqual(t, stats.Performance.TotalOps, int64(2))
	require.NotEmpty(t, stats.Spatial.State)
	require.Greater(t, stats.ResolverMisses, int64(0))
	require.False(t, stats.CollectedAt.IsZero())
}
