package undo

import (
	"sync"

	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
)

// Stack holds the committed undo and redo events of one file. Every user
// shares the lists; undo and redo pick the latest event of the asking user.
type Stack struct {
	mu   sync.Mutex
	undo []*Event
	redo []*Event
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// commit pushes a new user event and clears that user's redo list.
func (s *Stack) commit(e *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = append(s.undo, e)
	kept := s.redo[:0]
	for _, r := range s.redo {
		if r.User != e.User {
			kept = append(kept, r)
		}
	}
	clear(s.redo[len(kept):])
	s.redo = kept
}

// UndoLatest inverts the latest event committed by user and moves it to the
// redo list. It returns the ids the inversion touched.
func (s *Stack) UndoLatest(user model.UserID, st *store.Store) ([]model.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shift(user, st, &s.undo, &s.redo, "undo")
}

// RedoLatest re-applies the latest event undone by user.
func (s *Stack) RedoLatest(user model.UserID, st *store.Store) ([]model.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shift(user, st, &s.redo, &s.undo, "redo")
}

// shift inverts the latest event of user in from and pushes the opposite
// event onto to. The caller holds s.mu.
func (s *Stack) shift(user model.UserID, st *store.Store, from, to *[]*Event, verb string) ([]model.ObjectID, error) {
	idx := -1
	for i := len(*from) - 1; i >= 0; i-- {
		if (*from)[i].User == user {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, model.NoUndoEvent("nothing to %s for user %s", verb, user)
	}
	ev := (*from)[idx]
	inverse, err := apply(st, ev.Changes)
	if err != nil {
		return nil, err
	}
	*from = append((*from)[:idx], (*from)[idx+1:]...)
	*to = append(*to, &Event{
		ID:          ev.ID,
		User:        ev.User,
		Description: ev.Description,
		Seq:         ev.Seq,
		At:          ev.At,
		Changes:     inverse,
	})
	return affected(ev.Changes), nil
}

// History lists the undoable events of user, oldest first. A nil user lists
// every user's events.
func (s *Stack) History(user model.UserID) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return list(s.undo, user)
}

// RedoHistory lists the redoable events of user, oldest first.
func (s *Stack) RedoHistory(user model.UserID) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return list(s.redo, user)
}

// list summarises events of user. The caller holds the stack's lock.
func list(events []*Event, user model.UserID) []Summary {
	var out []Summary
	for _, e := range events {
		if user.IsNil() || e.User == user {
			out = append(out, e.summary())
		}
	}
	return out
}
