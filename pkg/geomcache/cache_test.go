package geomcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
)

func key(seq int32, version uint64) Key {
	return Key{Ref: element.RefNo{DB: 1, Seq: seq}, Version: version}
}

func TestCache_GetPutRoundTrip(t *testing.T) {
	c := New(4)
	g := Geometry{Box: geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 1, Y: 1, Z: 1})}
	c.Put(key(1, 0), g)

	got, ok := c.Get(key(1, 0))
	require.True(t, ok)
	require.Equal(t, g.Box, got.Box)

	_, ok = c.Get(key(2, 0))
	require.False(t, ok)
}

func TestCache_VersionBumpMakesEntryUnreachable(t *testing.T) {
	c := New(4)
	c.Put(key(1, 0), Geometry{})
	_, ok := c.Get(key(1, 1))
	require.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(3)
	c.Put(key(1, 0), Geometry{})
	c.Put(key(2, 0), Geometry{})
	c.Put(key(3, 0), Geometry{})

	// Touch 1 so 2 becomes the eviction victim.
	_, ok := c.Get(key(1, 0))
	require.True(t, ok)

	c.Put(key(4, 0), Geometry{})
	require.Equal(t, 3, c.Len())

	_, ok = c.Get(key(2, 0))
	require.False(t, ok)
	_, ok = c.Get(key(1, 0))
	require.True(t, ok)
	_, ok = c.Get(key(4, 0))
	require.True(t, ok)
}

func TestCache_InvalidateDropsAllVersionsOfRef(t *testing.T) {
	c := New(8)
	c.Put(key(1, 0), Geometry{})
	c.Put(key(1, 1), Geometry{})
	c.Put(key(2, 0), Geometry{})

	c.Invalidate(element.RefNo{DB: 1, Seq: 1})
	require.Equal(t, 1, c.Len())

	_, ok := c.Get(key(2, 0))
	require.True(t, ok)
}

func TestCache_StatsCountHitsAndMisses(t *testing.T) {
	c := New(2)
	c.Put(key(1, 0), Geometry{})
	c.Get(key(1, 0))
	c.Get(key(9, 0))

	hits, misses := c.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}
