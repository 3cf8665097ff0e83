package spatial

import (
	"math"
	"sort"

	"github.com/happyrust/plantgraph/pkg/geom"
)

// rtree is the in-memory tier: an STR (sort-tile-recursive) bulk-loaded
// R-tree. It is immutable after construction; the hybrid index replaces it
// wholesale on rebuild rather than mutating it in place, which keeps readers
// lock-free against a rebuild in progress.
type rtree struct {
	root  *rtreeNode
	count int
}

type rtreeNode struct {
	box      geom.AABB
	children []*rtreeNode // nil at leaves
	entries  []Entry      // nil at inner nodes
}

const rtreeLeafCap = 16

// buildRTree bulk-loads entries into a packed tree. An empty input yields an
// empty tree that answers every query with nothing.
func buildRTree(entries []Entry) *rtree {
	if len(entries) == 0 {
		return &rtree{}
	}

	leaves := packLeaves(entries)
	nodes := leaves
	for len(nodes) > 1 {
		nodes = packNodes(nodes)
	}
	return &rtree{root: nodes[0], count: len(entries)}
}

// packLeaves tiles entries into leaf nodes: sort by X, slice into slabs,
// sort each slab by Y, slice again, then chunk runs (sorted by Z) into
// leaves of at most rtreeLeafCap entries.
func packLeaves(entries []Entry) []*rtreeNode {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	leafCount := (len(sorted) + rtreeLeafCap - 1) / rtreeLeafCap
	slabs := int(math.Ceil(math.Cbrt(float64(leafCount))))
	if slabs < 1 {
		slabs = 1
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Box.Center().X < sorted[j].Box.Center().X
	})

	var leaves []*rtreeNode
	slabSize := (len(sorted) + slabs - 1) / slabs
	for xs := 0; xs < len(sorted); xs += slabSize {
		xe := min(xs+slabSize, len(sorted))
		slab := sorted[xs:xe]
		sort.Slice(slab, func(i, j int) bool {
			return slab[i].Box.Center().Y < slab[j].Box.Center().Y
		})

		runSize := (len(slab) + slabs - 1) / slabs
		for ys := 0; ys < len(slab); ys += runSize {
			ye := min(ys+runSize, len(slab))
			run := slab[ys:ye]
			sort.Slice(run, func(i, j int) bool {
				return run[i].Box.Center().Z < run[j].Box.Center().Z
			})

			for zs := 0; zs < len(run); zs += rtreeLeafCap {
				ze := min(zs+rtreeLeafCap, len(run))
				leaf := &rtreeNode{entries: append([]Entry(nil), run[zs:ze]...)}
				leaf.box = leaf.entries[0].Box
				for _, e := range leaf.entries[1:] {
					leaf.box = leaf.box.Union(e.Box)
				}
				leaves = append(leaves, leaf)
			}
		}
	}
	return leaves
}

// packNodes groups child nodes (ordered by center X from the leaf pass) into
// parents of at most rtreeLeafCap children.
func packNodes(nodes []*rtreeNode) []*rtreeNode {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].box.Center().X < nodes[j].box.Center().X
	})

	var parents []*rtreeNode
	for i := 0; i < len(nodes); i += rtreeLeafCap {
		end := min(i+rtreeLeafCap, len(nodes))
		parent := &rtreeNode{children: append([]*rtreeNode(nil), nodes[i:end]...)}
		parent.box = parent.children[0].box
		for _, c := range parent.children[1:] {
			parent.box = parent.box.Union(c.box)
		}
		parents = append(parents, parent)
	}
	return parents
}

// searchPoint appends every entry whose box contains p.
func (t *rtree) searchPoint(p geom.Vec3, out []Entry) []Entry {
	if t.root == nil {
		return out
	}
	return t.root.searchPoint(p, out)
}

func (n *rtreeNode) searchPoint(p geom.Vec3, out []Entry) []Entry {
	if !n.box.Contains(p) {
		return out
	}
	if n.entries != nil {
		for _, e := range n.entries {
			if e.Box.Contains(p) {
				out = append(out, e)
			}
		}
		return out
	}
	for _, c := range n.children {
		out = c.searchPoint(p, out)
	}
	return out
}

// searchOverlap appends every entry whose box intersects q.
func (t *rtree) searchOverlap(q geom.AABB, out []Entry) []Entry {
	if t.root == nil {
		return out
	}
	return t.root.searchOverlap(q, out)
}

func (n *rtreeNode) searchOverlap(q geom.AABB, out []Entry) []Entry {
	if !n.box.Intersects(q) {
		return out
	}
	if n.entries != nil {
		for _, e := range n.entries {
			if e.Box.Intersects(q) {
				out = append(out, e)
			}
		}
		return out
	}
	for _, c := range n.children {
		out = c.searchOverlap(q, out)
	}
	return out
}
