package entity

import (
	"github.com/roach88/cadstore/internal/model"
)

// KindDoor is the discriminator for Door.
const KindDoor = "door"

// Door feature indices.
const (
	DoorPosition = iota
	DoorOpening
	doorFeatureCount
)

// Door is an opening hosted on a line, usually a wall centre line. Slot 0
// pins its position to the host at the reference's Interp.
type Door struct {
	Id       model.ObjectID `json:"id"`
	Position model.Point    `json:"position"`
	Dir      model.Point    `json:"dir"`
	Width    float64        `json:"width"`
	Height   float64        `json:"height"`
	slots
}

// NewDoor creates a door at position facing along dir with a fresh id.
func NewDoor(position, dir model.Point, width, height float64) *Door {
	return &Door{
		Id:       model.NewObjectID(),
		Position: position,
		Dir:      dir,
		Width:    width,
		Height:   height,
		slots:    newSlots(1),
	}
}

func (d *Door) ID() model.ObjectID { return d.Id }

func (d *Door) SetID(id model.ObjectID) {
	d.Id = id
	d.rebind(id)
}

func (d *Door) Kind() string { return KindDoor }

func (d *Door) dir() model.Point {
	if u := d.Dir.Unit(); u != (model.Point{}) {
		return u
	}
	return model.Pt(1, 0, 0)
}

func (d *Door) opening() model.LineGeom {
	half := d.dir().Scale(d.Width / 2)
	return model.LineGeom{P1: d.Position.Sub(half), P2: d.Position.Add(half)}
}

// Update renders the door leaf as a vertical quad.
func (d *Door) Update() (model.UpdateMessage, error) {
	o := d.opening()
	up := model.Pt(0, 0, d.Height)
	verts := []model.Point{o.P1, o.P2, o.P2.Add(up), o.P1.Add(up)}
	return model.NewMesh(d.Id, verts, []uint64{0, 1, 2, 0, 2, 3}, map[string]any{
		"kind":  KindDoor,
		"bound": len(d.Refs) > 0 && d.Refs[0] != nil,
	}), nil
}

func (d *Door) TempRepr() (model.UpdateMessage, error) {
	return d.Update()
}

func (d *Door) Prop(name string) (any, error) {
	switch name {
	case "position":
		return d.Position, nil
	case "width":
		return d.Width, nil
	case "height":
		return d.Height, nil
	default:
		return nil, model.PropertyNotFound(KindDoor, name)
	}
}

func (d *Door) SetProps(props map[string]any) error {
	return applyProps(KindDoor, props, map[string]setter{
		"position": pointSetter(&d.Position),
		"width":    floatSetter(&d.Width, true),
		"height":   floatSetter(&d.Height, true),
	})
}

func (d *Door) Clone() model.Entity {
	c := *d
	c.slots = d.slots.clone()
	return &c
}

func (d *Door) FeatureCount() int { return doorFeatureCount }

func (d *Door) Feature(i int) (model.Geometry, bool) {
	switch i {
	case DoorPosition:
		return model.PointGeom{P: d.Position}, true
	case DoorOpening:
		return d.opening(), true
	default:
		return nil, false
	}
}

func (d *Door) Features() []model.Geometry {
	return []model.Geometry{model.PointGeom{P: d.Position}, d.opening()}
}

// SetReference pins the door to a host. A line host also sets the facing.
func (d *Door) SetReference(i int, geom model.Geometry, other model.FeatureID, snap *model.Point) error {
	if err := d.set(d.Id, 1, i, geom, other, snap); err != nil {
		return err
	}
	if l, ok := geom.(model.LineGeom); ok {
		if dir := l.P2.Sub(l.P1).Unit(); dir != (model.Point{}) {
			d.Dir = dir
		}
	}
	return nil
}

func (d *Door) AddReference(geom model.Geometry, other model.FeatureID, snap *model.Point) (int, error) {
	if d.firstFree(1) < 0 {
		return -1, model.Otherf("door %s has no free reference slot", d.Id)
	}
	return 0, d.SetReference(0, geom, other, snap)
}

func (d *Door) AssociatedGeom(i int) (model.Geometry, bool) {
	if i != DoorPosition {
		return nil, false
	}
	return d.Feature(i)
}

func (d *Door) SetAssociatedPoint(i int, p *model.Point) error {
	if i != DoorPosition {
		return model.Otherf("door has no slot %d", i)
	}
	if p == nil {
		d.unbind(i)
		return nil
	}
	d.Position = *p
	return nil
}

func (d *Door) Translate(delta model.Point) {
	d.Position = d.Position.Add(delta)
}
