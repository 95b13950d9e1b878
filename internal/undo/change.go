package undo

import (
	"fmt"
	"time"

	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
)

// ChangeKind tags a Change.
type ChangeKind int

const (
	// ChangeAdd records an insert of ID.
	ChangeAdd ChangeKind = iota + 1
	// ChangeModify records a mutation; Image is the pre-image.
	ChangeModify
	// ChangeDelete records a removal; Image is the removed value.
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is one journaled mutation.
type Change struct {
	Kind  ChangeKind
	ID    model.ObjectID
	Image model.Entity
}

// Event is a group of changes undone and redone as a unit.
type Event struct {
	ID          model.EventID
	User        model.UserID
	Description string
	// Seq and At are stamped at commit.
	Seq     int64
	At      time.Time
	Changes []Change

	nested    int
	suspended int
}

// Summary describes a committed event without its images.
type Summary struct {
	ID          model.EventID `json:"id"`
	User        model.UserID  `json:"user"`
	Description string        `json:"description"`
	Seq         int64         `json:"seq"`
	At          time.Time     `json:"at"`
	Changes     int           `json:"changes"`
}

func (e *Event) summary() Summary {
	return Summary{
		ID:          e.ID,
		User:        e.User,
		Description: e.Description,
		Seq:         e.Seq,
		At:          e.At,
		Changes:     len(e.Changes),
	}
}

// invert applies the inverse of c to st and returns the change describing
// what was just done.
func invert(st *store.Store, c Change) (Change, error) {
	switch c.Kind {
	case ChangeAdd:
		removed, err := st.Remove(c.ID)
		if err != nil {
			return Change{}, err
		}
		return Change{Kind: ChangeDelete, ID: c.ID, Image: removed}, nil
	case ChangeModify:
		cur, err := st.Swap(c.ID, c.Image.Clone())
		if err != nil {
			return Change{}, err
		}
		return Change{Kind: ChangeModify, ID: c.ID, Image: cur}, nil
	case ChangeDelete:
		if err := st.Add(c.Image.Clone()); err != nil {
			return Change{}, err
		}
		return Change{Kind: ChangeAdd, ID: c.ID}, nil
	default:
		return Change{}, model.Otherf("unknown change kind %s", c.Kind)
	}
}

// preflight checks that the changes can be inverted in reverse order
// against the current store contents.
func preflight(st *store.Store, changes []Change) error {
	present := make(map[model.ObjectID]bool)
	has := func(id model.ObjectID) bool {
		if p, ok := present[id]; ok {
			return p
		}
		return st.Contains(id)
	}
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		switch c.Kind {
		case ChangeAdd:
			if !has(c.ID) {
				return model.ObjectNotFound(c.ID)
			}
			present[c.ID] = false
		case ChangeModify:
			if !has(c.ID) {
				return model.ObjectNotFound(c.ID)
			}
		case ChangeDelete:
			if has(c.ID) {
				return model.Overwrite(c.ID)
			}
			present[c.ID] = true
		}
	}
	return nil
}

// apply inverts changes in reverse order. It returns the applied inverse
// changes in application order, which form the changes of the opposite
// event. On failure the store is rolled back and the error returned.
func apply(st *store.Store, changes []Change) ([]Change, error) {
	if err := preflight(st, changes); err != nil {
		return nil, err
	}
	done := make([]Change, 0, len(changes))
	for i := len(changes) - 1; i >= 0; i-- {
		inv, err := invert(st, changes[i])
		if err != nil {
			rollback(st, done)
			return nil, fmt.Errorf("invert %s %s: %w", changes[i].Kind, changes[i].ID, err)
		}
		done = append(done, inv)
	}
	return done, nil
}

func rollback(st *store.Store, done []Change) {
	for i := len(done) - 1; i >= 0; i-- {
		// Best effort: these steps just succeeded in the other direction.
		_, _ = invert(st, done[i])
	}
}

// affected lists the distinct ids touched by changes, in first-seen order.
func affected(changes []Change) []model.ObjectID {
	seen := make(map[model.ObjectID]struct{}, len(changes))
	out := make([]model.ObjectID, 0, len(changes))
	for _, c := range changes {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c.ID)
	}
	return out
}
