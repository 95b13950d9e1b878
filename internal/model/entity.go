package model

// Entity is the base contract every stored object satisfies
// (Identified, Renderable, Serializable).
//
// Serializable is expressed through encoding/json: an entity's exported
// state must round-trip through json.Marshal/json.Unmarshal, and Kind names
// the discriminator used to pick the concrete type on load.
type Entity interface {
	// ID returns the entity's identifier.
	ID() ObjectID
	// SetID replaces the entity's identifier.
	SetID(id ObjectID)
	// Kind returns the polymorphic discriminator (e.g. "wall").
	Kind() string

	// Update renders the entity for clients. It may read only the entity's
	// own state and must not call back into the store.
	Update() (UpdateMessage, error)
	// TempRepr renders a preview. It must never mutate the entity.
	TempRepr() (UpdateMessage, error)
	// Prop returns a named property or a PropertyNotFound error.
	Prop(name string) (any, error)
	// SetProps applies every recognised key of props. Returns
	// PropertyNotFound if no key is recognised.
	SetProps(props map[string]any) error

	// Clone returns a deep copy suitable for snapshotting.
	Clone() Entity
}

// Referenceable entities expose geometric features other entities may
// reference.
type Referenceable interface {
	FeatureCount() int
	// Feature returns feature i, or false when i is out of range.
	Feature(i int) (Geometry, bool)
	Features() []Geometry
}

// Refers entities hold references to other entities' features.
//
// Slot convention: References()[i] is the slot whose owner feature index
// is i; a nil entry is an empty reference.
type Refers interface {
	References() []*Reference
	// SetReference fills slot i with a reference to other, whose current
	// geometry is geom; snap is where the user snapped.
	SetReference(i int, geom Geometry, other FeatureID, snap *Point) error
	// AddReference appends a slot and returns its index.
	AddReference(geom Geometry, other FeatureID, snap *Point) (int, error)
	DeleteReference(i int) error
	ClearReferences()
	// AssociatedGeom returns the entity's own geometry controlled by slot i.
	AssociatedGeom(i int) (Geometry, bool)
	// SetAssociatedPoint moves the geometry controlled by slot i to p.
	// A nil p means the publisher is gone: the slot becomes unbound.
	SetAssociatedPoint(i int, p *Point) error
}

// Movable entities can be translated.
type Movable interface {
	Translate(delta Point)
}

// AsReferenceable returns the Referenceable capability of e, if any.
func AsReferenceable(e Entity) (Referenceable, bool) {
	r, ok := e.(Referenceable)
	return r, ok
}

// AsRefers returns the Refers capability of e, if any.
func AsRefers(e Entity) (Refers, bool) {
	r, ok := e.(Refers)
	return r, ok
}

// AsMovable returns the Movable capability of e, if any.
func AsMovable(e Entity) (Movable, bool) {
	m, ok := e.(Movable)
	return m, ok
}

// LiveReferences returns the non-empty references of e, or nil if e does
// not implement Refers.
func LiveReferences(e Entity) []Reference {
	r, ok := AsRefers(e)
	if !ok {
		return nil
	}
	var out []Reference
	for _, ref := range r.References() {
		if ref != nil && !ref.Other.IsNil() {
			out = append(out, *ref)
		}
	}
	return out
}
