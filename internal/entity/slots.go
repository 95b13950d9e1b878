package entity

import (
	"fmt"

	"github.com/roach88/cadstore/internal/model"
)

// slots stores an entity's reference slots.
type slots struct {
	Refs []*model.Reference `json:"refs"`
}

func newSlots(n int) slots {
	return slots{Refs: make([]*model.Reference, n)}
}

func (s *slots) References() []*model.Reference {
	return s.Refs
}

func (s *slots) DeleteReference(i int) error {
	if i < 0 || i >= len(s.Refs) {
		return fmt.Errorf("reference slot %d out of range [0,%d)", i, len(s.Refs))
	}
	s.Refs[i] = nil
	return nil
}

func (s *slots) ClearReferences() {
	for i := range s.Refs {
		s.Refs[i] = nil
	}
}

// grow pads the slot list to n entries. Decoded entities may carry fewer
// slots than their kind defines.
func (s *slots) grow(n int) {
	for len(s.Refs) < n {
		s.Refs = append(s.Refs, nil)
	}
}

// set fills slot i of an entity with n slots; the reference is owned by
// owner's feature i.
func (s *slots) set(owner model.ObjectID, n, i int, geom model.Geometry, other model.FeatureID, snap *model.Point) error {
	s.grow(n)
	if i < 0 || i >= len(s.Refs) {
		return fmt.Errorf("reference slot %d out of range [0,%d)", i, len(s.Refs))
	}
	if other.Object == owner {
		return fmt.Errorf("slot %d: object %s cannot reference itself", i, owner)
	}
	ref := &model.Reference{
		Owner: model.FeatureID{Object: owner, Index: i},
		Other: other,
		Kind:  model.KindFor(geom, snap),
	}
	if snap != nil {
		p := *snap
		ref.Snap = &p
	}
	s.Refs[i] = ref
	return nil
}

// firstFree returns the first empty slot of n, or -1.
func (s *slots) firstFree(n int) int {
	s.grow(n)
	for i, r := range s.Refs {
		if r == nil {
			return i
		}
	}
	return -1
}

// rebind rewrites slot owners after an id change.
func (s *slots) rebind(owner model.ObjectID) {
	for i, r := range s.Refs {
		if r != nil {
			r.Owner = model.FeatureID{Object: owner, Index: i}
		}
	}
}

func (s slots) clone() slots {
	return slots{Refs: model.CloneReferences(s.Refs)}
}

// unbind clears slot i if it exists.
func (s *slots) unbind(i int) {
	if i >= 0 && i < len(s.Refs) {
		s.Refs[i] = nil
	}
}
