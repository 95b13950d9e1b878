package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a 3D point or vector.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pt is a shorthand constructor for Point.
func Pt(x, y, z float64) Point { return Point{X: x, Y: y, Z: z} }

func (p Point) Add(q Point) Point        { return Point{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }
func (p Point) Sub(q Point) Point        { return Point{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }
func (p Point) Scale(s float64) Point    { return Point{p.X * s, p.Y * s, p.Z * s} }
func (p Point) Dot(q Point) float64      { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }
func (p Point) Length() float64          { return math.Sqrt(p.Dot(p)) }
func (p Point) Distance(q Point) float64 { return p.Sub(q).Length() }

// Cross returns the cross product p × q.
func (p Point) Cross(q Point) Point {
	return Point{
		X: p.Y*q.Z - p.Z*q.Y,
		Y: p.Z*q.X - p.X*q.Z,
		Z: p.X*q.Y - p.Y*q.X,
	}
}

// Lerp returns the point at parameter t along p→q.
func (p Point) Lerp(q Point, t float64) Point {
	return p.Add(q.Sub(p).Scale(t))
}

// Unit returns p scaled to length 1, or the zero vector.
func (p Point) Unit() Point {
	l := p.Length()
	if l == 0 {
		return Point{}
	}
	return p.Scale(1 / l)
}

// Geometry is a sealed interface over feature shapes.
// Only PointGeom, LineGeom and RectGeom implement it.
type Geometry interface {
	geometry()
	// Tag names the geometry variant.
	Tag() FeatureTag
	// Closest returns the point of the geometry nearest to p.
	Closest(p Point) Point
	// Translate returns the geometry moved by delta.
	Translate(delta Point) Geometry
}

// PointGeom is a single point feature.
type PointGeom struct {
	P Point
}

// LineGeom is a directed segment P1→P2.
type LineGeom struct {
	P1, P2 Point
}

// RectGeom is an oriented rectangle given by three corners: P1 is the corner
// shared by the edges P1→P2 and P1→P3.
type RectGeom struct {
	P1, P2, P3 Point
}

func (PointGeom) geometry() {}
func (LineGeom) geometry()  {}
func (RectGeom) geometry()  {}

func (PointGeom) Tag() FeatureTag { return TagPoint }
func (LineGeom) Tag() FeatureTag  { return TagLine }
func (RectGeom) Tag() FeatureTag  { return TagRect }

func (g PointGeom) Closest(Point) Point { return g.P }

func (g LineGeom) Closest(p Point) Point {
	return g.P1.Lerp(g.P2, g.Project(p))
}

// Project returns the clamped parameter in [0,1] of the point on the segment
// nearest to p. A degenerate segment projects to 0.
func (g LineGeom) Project(p Point) float64 {
	d := g.P2.Sub(g.P1)
	den := d.Dot(d)
	if den == 0 {
		return 0
	}
	return clamp01(p.Sub(g.P1).Dot(d) / den)
}

// Closest projects p onto the rectangle plane and clamps it to the extent.
func (g RectGeom) Closest(p Point) Point {
	u := g.P2.Sub(g.P1)
	v := g.P3.Sub(g.P1)
	rel := p.Sub(g.P1)
	s, t := 0.0, 0.0
	if uu := u.Dot(u); uu != 0 {
		s = clamp01(rel.Dot(u) / uu)
	}
	if vv := v.Dot(v); vv != 0 {
		t = clamp01(rel.Dot(v) / vv)
	}
	return g.P1.Add(u.Scale(s)).Add(v.Scale(t))
}

func (g PointGeom) Translate(d Point) Geometry { return PointGeom{P: g.P.Add(d)} }
func (g LineGeom) Translate(d Point) Geometry  { return LineGeom{P1: g.P1.Add(d), P2: g.P2.Add(d)} }
func (g RectGeom) Translate(d Point) Geometry {
	return RectGeom{P1: g.P1.Add(d), P2: g.P2.Add(d), P3: g.P3.Add(d)}
}

func clamp01(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}

// geometryJSON is the tagged wire form of a Geometry.
type geometryJSON struct {
	Type   FeatureTag `json:"type"`
	Points []Point    `json:"points"`
}

// MarshalGeometry encodes a geometry as {"type": ..., "points": [...]}.
func MarshalGeometry(g Geometry) ([]byte, error) {
	switch v := g.(type) {
	case PointGeom:
		return json.Marshal(geometryJSON{Type: TagPoint, Points: []Point{v.P}})
	case LineGeom:
		return json.Marshal(geometryJSON{Type: TagLine, Points: []Point{v.P1, v.P2}})
	case RectGeom:
		return json.Marshal(geometryJSON{Type: TagRect, Points: []Point{v.P1, v.P2, v.P3}})
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown geometry type %T", g)
	}
}

// UnmarshalGeometry decodes the tagged wire form produced by MarshalGeometry.
func UnmarshalGeometry(data []byte) (Geometry, error) {
	var raw geometryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	want := map[FeatureTag]int{TagPoint: 1, TagLine: 2, TagRect: 3}[raw.Type]
	if want == 0 {
		return nil, fmt.Errorf("unknown geometry type %q", raw.Type)
	}
	if len(raw.Points) != want {
		return nil, fmt.Errorf("geometry %q needs %d points, got %d", raw.Type, want, len(raw.Points))
	}
	switch raw.Type {
	case TagPoint:
		return PointGeom{P: raw.Points[0]}, nil
	case TagLine:
		return LineGeom{P1: raw.Points[0], P2: raw.Points[1]}, nil
	default:
		return RectGeom{P1: raw.Points[0], P2: raw.Points[1], P3: raw.Points[2]}, nil
	}
}
