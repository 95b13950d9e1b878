package entity

import (
	"github.com/roach88/cadstore/internal/model"
)

// KindWall is the discriminator for Wall.
const KindWall = "wall"

// Wall feature indices.
const (
	WallStart = iota
	WallEnd
	WallCenterLine
	WallFace
	wallFeatureCount
)

const wallSlots = 2

// Wall is a straight wall segment extruded upwards. Slots 0 and 1 pin the
// start and end points.
type Wall struct {
	Id     model.ObjectID `json:"id"`
	Name   string         `json:"name,omitempty"`
	Start  model.Point    `json:"start"`
	End    model.Point    `json:"end"`
	Width  float64        `json:"width"`
	Height float64        `json:"height"`
	slots
}

// NewWall creates a wall from start to end with a fresh id.
func NewWall(start, end model.Point, width, height float64) *Wall {
	return &Wall{
		Id:     model.NewObjectID(),
		Start:  start,
		End:    end,
		Width:  width,
		Height: height,
		slots:  newSlots(wallSlots),
	}
}

func (w *Wall) ID() model.ObjectID { return w.Id }

func (w *Wall) SetID(id model.ObjectID) {
	w.Id = id
	w.rebind(id)
}

func (w *Wall) Kind() string { return KindWall }

// Length returns the centre line length.
func (w *Wall) Length() float64 { return w.Start.Distance(w.End) }

// Update renders the wall as a box mesh.
func (w *Wall) Update() (model.UpdateMessage, error) {
	return w.mesh(), nil
}

func (w *Wall) TempRepr() (model.UpdateMessage, error) {
	m := w.mesh()
	m.Metadata["temp"] = true
	return m, nil
}

func (w *Wall) mesh() model.MeshMsg {
	d := w.End.Sub(w.Start)
	n := model.Pt(-d.Y, d.X, 0).Unit().Scale(w.Width / 2)
	up := model.Pt(0, 0, w.Height)
	verts := []model.Point{
		w.Start.Sub(n), w.Start.Add(n), w.End.Add(n), w.End.Sub(n),
	}
	for i := 0; i < 4; i++ {
		verts = append(verts, verts[i].Add(up))
	}
	return model.NewMesh(w.Id, verts, boxIndices, map[string]any{
		"kind":   KindWall,
		"name":   w.Name,
		"length": w.Length(),
	})
}

// boxIndices triangulates 8 box vertices (bottom 0-3, top 4-7).
var boxIndices = []uint64{
	0, 2, 1, 0, 3, 2, // bottom
	4, 5, 6, 4, 6, 7, // top
	0, 1, 5, 0, 5, 4,
	1, 2, 6, 1, 6, 5,
	2, 3, 7, 2, 7, 6,
	3, 0, 4, 3, 4, 7,
}

func (w *Wall) Prop(name string) (any, error) {
	switch name {
	case "name":
		return w.Name, nil
	case "start":
		return w.Start, nil
	case "end":
		return w.End, nil
	case "width":
		return w.Width, nil
	case "height":
		return w.Height, nil
	case "length":
		return w.Length(), nil
	default:
		return nil, model.PropertyNotFound(KindWall, name)
	}
}

func (w *Wall) SetProps(props map[string]any) error {
	return applyProps(KindWall, props, map[string]setter{
		"name":   stringSetter(&w.Name),
		"start":  pointSetter(&w.Start),
		"end":    pointSetter(&w.End),
		"width":  floatSetter(&w.Width, true),
		"height": floatSetter(&w.Height, true),
	})
}

func (w *Wall) Clone() model.Entity {
	c := *w
	c.slots = w.slots.clone()
	return &c
}

func (w *Wall) FeatureCount() int { return wallFeatureCount }

func (w *Wall) Feature(i int) (model.Geometry, bool) {
	switch i {
	case WallStart:
		return model.PointGeom{P: w.Start}, true
	case WallEnd:
		return model.PointGeom{P: w.End}, true
	case WallCenterLine:
		return model.LineGeom{P1: w.Start, P2: w.End}, true
	case WallFace:
		return model.RectGeom{P1: w.Start, P2: w.End, P3: w.Start.Add(model.Pt(0, 0, w.Height))}, true
	default:
		return nil, false
	}
}

func (w *Wall) Features() []model.Geometry {
	out := make([]model.Geometry, wallFeatureCount)
	for i := range out {
		out[i], _ = w.Feature(i)
	}
	return out
}

func (w *Wall) SetReference(i int, geom model.Geometry, other model.FeatureID, snap *model.Point) error {
	return w.set(w.Id, wallSlots, i, geom, other, snap)
}

func (w *Wall) AddReference(geom model.Geometry, other model.FeatureID, snap *model.Point) (int, error) {
	i := w.firstFree(wallSlots)
	if i < 0 {
		return -1, model.Otherf("wall %s has no free reference slot", w.Id)
	}
	return i, w.set(w.Id, wallSlots, i, geom, other, snap)
}

func (w *Wall) AssociatedGeom(i int) (model.Geometry, bool) {
	if i != WallStart && i != WallEnd {
		return nil, false
	}
	return w.Feature(i)
}

func (w *Wall) SetAssociatedPoint(i int, p *model.Point) error {
	if i != WallStart && i != WallEnd {
		return model.Otherf("wall has no slot %d", i)
	}
	if p == nil {
		w.unbind(i)
		return nil
	}
	if i == WallStart {
		w.Start = *p
	} else {
		w.End = *p
	}
	return nil
}

func (w *Wall) Translate(delta model.Point) {
	w.Start = w.Start.Add(delta)
	w.End = w.End.Add(delta)
}
