package model

import "fmt"

// FeatureTag names a feature geometry variant.
type FeatureTag string

const (
	TagAny   FeatureTag = "any"
	TagPoint FeatureTag = "point"
	TagLine  FeatureTag = "line"
	TagRect  FeatureTag = "rect"
)

// FeatureKind is the kind of publisher feature a reference expects.
// Interp is meaningful only for TagLine: the parametric position in [0,1]
// along the line the subscriber snapped to.
type FeatureKind struct {
	Tag    FeatureTag `json:"tag"`
	Interp float64    `json:"interp,omitempty"`
}

// AnyKind matches every geometry.
var AnyKind = FeatureKind{Tag: TagAny}

// PointKind matches point features.
var PointKind = FeatureKind{Tag: TagPoint}

// LineKind returns a line kind pinned at interp (clamped to [0,1]).
func LineKind(interp float64) FeatureKind {
	return FeatureKind{Tag: TagLine, Interp: clamp01(interp)}
}

// RectKind matches rect features.
var RectKind = FeatureKind{Tag: TagRect}

// Matches reports whether g has the tag this kind expects.
func (k FeatureKind) Matches(g Geometry) bool {
	if g == nil {
		return false
	}
	return k.Tag == TagAny || k.Tag == g.Tag()
}

// Resolve maps the publisher geometry to the point a subscriber feature
// should adopt. Returns nil when g is nil (publisher gone) or does not match.
//
//	point → the point itself
//	line  → the point at Interp along the line
//	rect  → snap projected onto the rectangle, or its first corner
//	any   → snap projected onto g, or g's first point
func (k FeatureKind) Resolve(g Geometry, snap *Point) *Point {
	if !k.Matches(g) {
		return nil
	}
	var p Point
	switch v := g.(type) {
	case PointGeom:
		p = v.P
	case LineGeom:
		if k.Tag == TagLine {
			p = v.P1.Lerp(v.P2, k.Interp)
		} else if snap != nil {
			p = v.Closest(*snap)
		} else {
			p = v.P1
		}
	case RectGeom:
		if snap != nil {
			p = v.Closest(*snap)
		} else {
			p = v.P1
		}
	default:
		return nil
	}
	return &p
}

// KindFor derives the kind a new reference to g should carry. Lines pin
// Interp at the projection of snap (0 without a snap point).
func KindFor(g Geometry, snap *Point) FeatureKind {
	switch v := g.(type) {
	case PointGeom:
		return PointKind
	case LineGeom:
		if snap == nil {
			return LineKind(0)
		}
		return LineKind(v.Project(*snap))
	case RectGeom:
		return RectKind
	default:
		return AnyKind
	}
}

// Reference states that the owner feature derives from the other feature:
// recompute owner whenever other changes.
type Reference struct {
	Owner FeatureID   `json:"owner"`
	Other FeatureID   `json:"other"`
	Kind  FeatureKind `json:"kind"`
	Snap  *Point      `json:"snap_pt,omitempty"`
}

// Clone returns a deep copy of r (nil-safe).
func (r *Reference) Clone() *Reference {
	if r == nil {
		return nil
	}
	c := *r
	if r.Snap != nil {
		s := *r.Snap
		c.Snap = &s
	}
	return &c
}

func (r Reference) String() string {
	return fmt.Sprintf("%s <- %s (%s)", r.Owner, r.Other, r.Kind.Tag)
}

// CloneReferences deep-copies a reference slot list.
func CloneReferences(refs []*Reference) []*Reference {
	if refs == nil {
		return nil
	}
	out := make([]*Reference, len(refs))
	for i, r := range refs {
		out[i] = r.Clone()
	}
	return out
}
