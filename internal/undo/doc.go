// Package undo records store mutations as grouped events and inverts them.
//
// A Journal holds pending events keyed by event id. Mutations made through
// the journal are applied to a store.Store and, unless the event is
// suspended, appended to the event's change list. Ending an event commits
// it to the Stack, where it becomes undoable by its user.
//
// Inversion rules:
//
//	Add{id}          -> remove id        -> Delete{removed value}
//	Modify{pre}      -> swap pre in      -> Modify{value that was stored}
//	Delete{pre}      -> insert pre       -> Add{id}
//
// Applying an event is all-or-nothing. The changes are checked against the
// store first; if a step still fails (a concurrent writer won the race) the
// steps already applied are rolled back and the event is left in place.
//
// Events with no recorded changes are discarded when they end rather than
// committed, so undo never lands on an empty event.
package undo
