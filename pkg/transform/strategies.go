package transform

import (
	"context"
	"fmt"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
	"golang.org/x/sync/errgroup"
)

// defaultStrategy is the position/orientation rule: translation from POS
// (zero when absent), rotation from ORI when present else identity, plus the
// type-gated BANG post-rotation.
type defaultStrategy struct{}

func (*defaultStrategy) ComputeLocal(ctx context.Context, deps Deps, own, owner *element.AttributeMap) (*geom.Mat4, error) {
	pos := geom.Vec3{}
	if v, ok := own.Get(element.AttrPos); ok {
		p, ok := v.AsVec3()
		if !ok || !p.IsFinite() {
			return nil, nil // malformed position: unresolvable, not an error
		}
		pos = p
	}

	rot := geom.IdentityQuat()
	if q, ok := own.Orientation(); ok {
		rot = q
	}
	rot = rot.Mul(bangRotation(own))

	m := geom.ComposeTR(pos, rot)
	if !m.IsFinite() {
		return nil, nil
	}
	return &m, nil
}

// spineFollowingStrategy places spine members along the owning generic
// section's path: the local Z axis follows the path tangent, optionally
// steered by a YDIR hint.
type spineFollowingStrategy struct{}

func (*spineFollowingStrategy) ComputeLocal(ctx context.Context, deps Deps, own, owner *element.AttributeMap) (*geom.Mat4, error) {
	if owner == nil {
		return nil, nil
	}

	pts, ok := spinePoints(owner)
	if !ok || len(pts) < 2 {
		return nil, nil // no usable path
	}

	pos := geom.Vec3{}
	if p, ok := own.Position(); ok {
		pos = p
	}

	// Tangent of the path segment nearest the element's position.
	seg := nearestSegment(pts, pos)
	dir := pts[seg+1].Sub(pts[seg])

	var yHint *geom.Vec3
	if v, ok := own.Get(element.AttrYdir); ok {
		if h, ok := v.AsVec3(); ok && h.IsFinite() {
			yHint = &h
		}
	}

	x, y, z, ok := geom.BasisFromZ(dir, yHint)
	if !ok {
		return nil, nil // degenerate direction must not produce garbage
	}

	rot := geom.QuatFromBasis(x, y, z).Mul(bangRotation(own))
	m := geom.ComposeTR(pos, rot)
	if !m.IsFinite() {
		return nil, nil
	}
	return &m, nil
}

func spinePoints(owner *element.AttributeMap) ([]geom.Vec3, bool) {
	v, ok := owner.Get(element.AttrSpts)
	if !ok {
		return nil, false
	}
	pts, ok := v.AsVec3List()
	if !ok {
		return nil, false
	}
	for _, p := range pts {
		if !p.IsFinite() {
			return nil, false
		}
	}
	return pts, true
}

func nearestSegment(pts []geom.Vec3, p geom.Vec3) int {
	best, bestDist := 0, -1.0
	for i := 0; i+1 < len(pts); i++ {
		mid := pts[i].Add(pts[i+1]).Scale(0.5)
		d := mid.Distance(p)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// cutPlaneStrategy aligns structural joints to the element referenced by
// CREF: the joint's pose is the referenced element's cut plane expressed in
// the joint owner's frame. The two world-transform lookups are independent
// and run concurrently.
type cutPlaneStrategy struct{}

func (*cutPlaneStrategy) ComputeLocal(ctx context.Context, deps Deps, own, owner *element.AttributeMap) (*geom.Mat4, error) {
	crefVal, ok := own.Get(element.AttrCref)
	if !ok {
		return nil, nil
	}
	cref, ok := crefVal.AsRef()
	if !ok || cref.IsNil() {
		return nil, nil
	}
	if owner == nil {
		return nil, nil
	}

	var refWorld, ownerWorld *geom.Mat4
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := deps.World(gctx, cref)
		if err != nil {
			return fmt.Errorf("cut plane reference %s: %w", cref, err)
		}
		refWorld = w
		return nil
	})
	g.Go(func() error {
		w, err := deps.World(gctx, owner.Ref)
		if err != nil {
			return fmt.Errorf("joint owner %s: %w", owner.Ref, err)
		}
		ownerWorld = w
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if refWorld == nil || ownerWorld == nil {
		return nil, nil // either side unresolved: joint pose is unresolved
	}

	offset := geom.Vec3{}
	if cp, ok := controlPoint(ctx, deps, cref, own); ok {
		offset = cp
	}

	// Cut plane in world space, then re-expressed relative to the owner.
	plane := refWorld.Mul(geom.ComposeTR(offset, geom.IdentityQuat()))
	local := ownerWorld.InverseRigid().Mul(plane)
	if !local.IsFinite() {
		return nil, nil
	}
	return &local, nil
}

// controlPoint picks the joint's control point from the referenced element's
// named control-point table. The joint's ZDIS selects the table row; row 0
// is the plane origin.
func controlPoint(ctx context.Context, deps Deps, cref element.RefNo, own *element.AttributeMap) (geom.Vec3, bool) {
	refAttrs, err := deps.Attributes(ctx, cref)
	if err != nil {
		return geom.Vec3{}, false
	}
	v, ok := refAttrs.Get(element.AttrNpos)
	if !ok {
		return geom.Vec3{}, false
	}
	table, ok := v.AsVec3List()
	if !ok || len(table) == 0 {
		return geom.Vec3{}, false
	}

	idx := 0
	if zv, ok := own.Get(element.AttrZdis); ok {
		if i, ok := zv.AsInt(); ok && i >= 0 && int(i) < len(table) {
			idx = int(i)
		}
	}
	p := table[idx]
	if !p.IsFinite() {
		return geom.Vec3{}, false
	}
	return p, true
}

// sectionDistanceStrategy places section attachments (ENDATU and friends) by
// a signed distance from one end of the owning section. Which end is the
// datum depends on the element's ordinal among same-type siblings: the first
// sibling measures from the section start, later ones from the end.
type sectionDistanceStrategy struct{}

func (*sectionDistanceStrategy) ComputeLocal(ctx context.Context, deps Deps, own, owner *element.AttributeMap) (*geom.Mat4, error) {
	if owner == nil {
		return nil, nil
	}
	zv, ok := own.Get(element.AttrZdis)
	if !ok {
		return nil, nil
	}
	zdis, ok := zv.AsFloat()
	if !ok {
		return nil, nil
	}

	fromStart, err := isFirstOfType(ctx, deps, own, owner.Ref)
	if err != nil {
		return nil, err
	}

	z := zdis
	if !fromStart {
		length, ok := sectionLength(owner)
		if !ok {
			return nil, nil // end-datum placement needs a section length
		}
		z = length + zdis
	}

	rot := geom.IdentityQuat()
	if q, ok := own.Orientation(); ok {
		rot = q
	}
	rot = rot.Mul(bangRotation(own))

	m := geom.ComposeTR(geom.Vec3{Z: z}, rot)
	if !m.IsFinite() {
		return nil, nil
	}
	return &m, nil
}

// isFirstOfType resolves the element's ordinal among same-type siblings
// under ownerRef. Sibling order comes from the store's child ordering.
func isFirstOfType(ctx context.Context, deps Deps, own *element.AttributeMap, ownerRef element.RefNo) (bool, error) {
	siblings, err := deps.Children(ctx, ownerRef)
	if err != nil {
		return false, fmt.Errorf("siblings of %s: %w", ownerRef, err)
	}
	tag := own.TypeTag()
	for _, sib := range siblings {
		if sib == own.Ref {
			return true, nil
		}
		attrs, err := deps.Attributes(ctx, sib)
		if err != nil {
			continue // skip unreadable siblings; ordering only needs types
		}
		if attrs.TypeTag() == tag {
			return false, nil // an earlier same-type sibling exists
		}
	}
	return true, nil
}

// sectionLength derives the owning section's length from its spine path,
// falling back to an explicit LEN attribute.
func sectionLength(owner *element.AttributeMap) (float64, bool) {
	if pts, ok := spinePoints(owner); ok && len(pts) >= 2 {
		var total float64
		for i := 0; i+1 < len(pts); i++ {
			total += pts[i].Distance(pts[i+1])
		}
		return total, true
	}
	if v, ok := owner.Get("LEN"); ok {
		if l, ok := v.AsFloat(); ok && l > 0 {
			return l, true
		}
	}
	return 0, false
}
