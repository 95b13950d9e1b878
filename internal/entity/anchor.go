package entity

import (
	"github.com/roach88/cadstore/internal/model"
)

// KindAnchor is the discriminator for Anchor.
const KindAnchor = "anchor"

// Anchor is a named construction point. Feature 0 is its position; slot 0
// may pin it to another entity's feature.
type Anchor struct {
	Id       model.ObjectID `json:"id"`
	Name     string         `json:"name,omitempty"`
	Position model.Point    `json:"position"`
	slots
}

// NewAnchor creates an anchor at p with a fresh id.
func NewAnchor(p model.Point) *Anchor {
	return &Anchor{Id: model.NewObjectID(), Position: p, slots: newSlots(1)}
}

func (a *Anchor) ID() model.ObjectID { return a.Id }

func (a *Anchor) SetID(id model.ObjectID) {
	a.Id = id
	a.rebind(id)
}

func (a *Anchor) Kind() string { return KindAnchor }

func (a *Anchor) Update() (model.UpdateMessage, error) {
	return model.OtherMsg{Data: map[string]any{
		"id":       a.Id,
		"kind":     KindAnchor,
		"name":     a.Name,
		"position": a.Position,
	}}, nil
}

func (a *Anchor) TempRepr() (model.UpdateMessage, error) {
	return a.Update()
}

func (a *Anchor) Prop(name string) (any, error) {
	switch name {
	case "name":
		return a.Name, nil
	case "position":
		return a.Position, nil
	default:
		return nil, model.PropertyNotFound(KindAnchor, name)
	}
}

func (a *Anchor) SetProps(props map[string]any) error {
	return applyProps(KindAnchor, props, map[string]setter{
		"name":     stringSetter(&a.Name),
		"position": pointSetter(&a.Position),
	})
}

func (a *Anchor) Clone() model.Entity {
	c := *a
	c.slots = a.slots.clone()
	return &c
}

func (a *Anchor) FeatureCount() int { return 1 }

func (a *Anchor) Feature(i int) (model.Geometry, bool) {
	if i != 0 {
		return nil, false
	}
	return model.PointGeom{P: a.Position}, true
}

func (a *Anchor) Features() []model.Geometry {
	return []model.Geometry{model.PointGeom{P: a.Position}}
}

func (a *Anchor) SetReference(i int, geom model.Geometry, other model.FeatureID, snap *model.Point) error {
	return a.set(a.Id, 1, i, geom, other, snap)
}

// AddReference fills the single slot if it is empty.
func (a *Anchor) AddReference(geom model.Geometry, other model.FeatureID, snap *model.Point) (int, error) {
	i := a.firstFree(1)
	if i < 0 {
		return -1, model.Otherf("anchor %s has no free reference slot", a.Id)
	}
	return i, a.set(a.Id, 1, i, geom, other, snap)
}

func (a *Anchor) AssociatedGeom(i int) (model.Geometry, bool) {
	return a.Feature(i)
}

func (a *Anchor) SetAssociatedPoint(i int, p *model.Point) error {
	if i != 0 {
		return model.Otherf("anchor has no slot %d", i)
	}
	if p == nil {
		a.unbind(0)
		return nil
	}
	a.Position = *p
	return nil
}

func (a *Anchor) Translate(delta model.Point) {
	a.Position = a.Position.Add(delta)
}
