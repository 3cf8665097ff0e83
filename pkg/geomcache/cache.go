// Package geomcache memoizes expensive per-element geometry results (world
// bounding boxes, computed points) keyed by element reference plus a data
// version, with a bounded LRU eviction policy.
package geomcache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
)

// Key identifies one cached geometry: the element plus the version of the
// source data it was computed from. Bumping the version on upstream change
// makes stale entries unreachable; eviction reclaims them.
type Key struct {
	Ref     element.RefNo
	Version uint64
}

// Geometry is the cached payload: the element's world bounds and any derived
// reference points.
type Geometry struct {
	Box    geom.AABB
	Points []geom.Vec3
}

// Cache is a bounded LRU cache safe for concurrent use. Writes are
// serialized by one mutex; the critical section is O(1).
type Cache struct {
	mu        sync.Mutex
	capacity  int
	items     map[Key]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   Key
	value Geometry
}

// DefaultCapacity bounds the cache when no explicit capacity is given.
const DefaultCapacity = 10_000

// New creates a cache holding at most capacity entries; capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached geometry for key.
func (c *Cache) Get(key Key) (Geometry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return Geometry{}, false
}

// Put stores geometry under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Put(key Key, g Geometry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*entry).value = g
		return
	}

	ent := c.evictList.PushFront(&entry{key: key, value: g})
	c.items[key] = ent

	if c.evictList.Len() > c.capacity {
		oldest := c.evictList.Back()
		if oldest != nil {
			c.evictList.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
}

// Invalidate removes every cached version of ref.
func (c *Cache) Invalidate(ref element.RefNo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ent := c.evictList.Front(); ent != nil; {
		next := ent.Next()
		if ent.Value.(*entry).key.Ref == ref {
			c.evictList.Remove(ent)
			delete(c.items, ent.Value.(*entry).key)
		}
		ent = next
	}
}

// Clear drops all entries. Used for cold-cache benchmarking and explicit
// invalidation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[Key]*list.Element)
	c.evictList.Init()
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats returns hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
