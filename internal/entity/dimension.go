package entity

import (
	"github.com/roach88/cadstore/internal/model"
)

// KindDimension is the discriminator for Dimension.
const KindDimension = "dimension"

const dimensionSlots = 2

// Dimension measures the distance between two points, usually referenced
// from other entities. It renders as free-form data, not a mesh.
type Dimension struct {
	Id     model.ObjectID `json:"id"`
	P1     model.Point    `json:"p1"`
	P2     model.Point    `json:"p2"`
	Offset float64        `json:"offset"`
	slots
}

// NewDimension creates a dimension between p1 and p2 with a fresh id.
func NewDimension(p1, p2 model.Point, offset float64) *Dimension {
	return &Dimension{Id: model.NewObjectID(), P1: p1, P2: p2, Offset: offset, slots: newSlots(dimensionSlots)}
}

func (d *Dimension) ID() model.ObjectID { return d.Id }

func (d *Dimension) SetID(id model.ObjectID) {
	d.Id = id
	d.rebind(id)
}

func (d *Dimension) Kind() string { return KindDimension }

func (d *Dimension) Update() (model.UpdateMessage, error) {
	return model.OtherMsg{Data: map[string]any{
		"id":     d.Id,
		"kind":   KindDimension,
		"p1":     d.P1,
		"p2":     d.P2,
		"offset": d.Offset,
		"length": d.P1.Distance(d.P2),
	}}, nil
}

func (d *Dimension) TempRepr() (model.UpdateMessage, error) {
	return d.Update()
}

func (d *Dimension) Prop(name string) (any, error) {
	switch name {
	case "offset":
		return d.Offset, nil
	case "length":
		return d.P1.Distance(d.P2), nil
	default:
		return nil, model.PropertyNotFound(KindDimension, name)
	}
}

func (d *Dimension) SetProps(props map[string]any) error {
	return applyProps(KindDimension, props, map[string]setter{
		"offset": floatSetter(&d.Offset, false),
	})
}

func (d *Dimension) Clone() model.Entity {
	c := *d
	c.slots = d.slots.clone()
	return &c
}

func (d *Dimension) FeatureCount() int { return 2 }

func (d *Dimension) Feature(i int) (model.Geometry, bool) {
	switch i {
	case 0:
		return model.PointGeom{P: d.P1}, true
	case 1:
		return model.PointGeom{P: d.P2}, true
	default:
		return nil, false
	}
}

func (d *Dimension) Features() []model.Geometry {
	return []model.Geometry{model.PointGeom{P: d.P1}, model.PointGeom{P: d.P2}}
}

func (d *Dimension) SetReference(i int, geom model.Geometry, other model.FeatureID, snap *model.Point) error {
	return d.set(d.Id, dimensionSlots, i, geom, other, snap)
}

func (d *Dimension) AddReference(geom model.Geometry, other model.FeatureID, snap *model.Point) (int, error) {
	i := d.firstFree(dimensionSlots)
	if i < 0 {
		return -1, model.Otherf("dimension %s has no free reference slot", d.Id)
	}
	return i, d.set(d.Id, dimensionSlots, i, geom, other, snap)
}

func (d *Dimension) AssociatedGeom(i int) (model.Geometry, bool) {
	return d.Feature(i)
}

func (d *Dimension) SetAssociatedPoint(i int, p *model.Point) error {
	if i != 0 && i != 1 {
		return model.Otherf("dimension has no slot %d", i)
	}
	if p == nil {
		d.unbind(i)
		return nil
	}
	if i == 0 {
		d.P1 = *p
	} else {
		d.P2 = *p
	}
	return nil
}
