package undo

import (
	"slices"
	"sync"
	"time"

	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
)

// Journal tracks pending events and records mutations made under them.
type Journal struct {
	mu      sync.Mutex
	pending map[model.EventID]*Event
	stack   *Stack
	clock   *Clock
	now     func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock stamps committed events from c.
func WithClock(c *Clock) Option {
	return func(j *Journal) { j.clock = c }
}

// WithNow sets the wall-clock source for commit timestamps.
func WithNow(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// NewJournal returns a journal committing into stack.
func NewJournal(stack *Stack, opts ...Option) *Journal {
	j := &Journal{
		pending: make(map[model.EventID]*Event),
		stack:   stack,
		clock:   NewClock(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Stack returns the stack events commit into.
func (j *Journal) Stack() *Stack { return j.stack }

// BeginEvent opens event id for user. Beginning an already pending id nests
// it: the matching EndEvent only closes the nesting level.
func (j *Journal) BeginEvent(user model.UserID, id model.EventID, desc string) error {
	if user.IsNil() {
		return model.UserNotFound(user)
	}
	if id.IsNil() {
		return model.NoUndoEvent("nil event id")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if ev, ok := j.pending[id]; ok {
		ev.nested++
		return nil
	}
	j.pending[id] = &Event{ID: id, User: user, Description: desc}
	return nil
}

// EndEvent closes one nesting level of id, committing the event when the
// outermost level closes. It reports whether an event was committed; events
// without changes are dropped.
func (j *Journal) EndEvent(id model.EventID) (bool, error) {
	j.mu.Lock()
	ev, ok := j.pending[id]
	if !ok {
		j.mu.Unlock()
		return false, model.NoUndoEvent("event %s is not pending", id)
	}
	if ev.nested > 0 {
		ev.nested--
		j.mu.Unlock()
		return false, nil
	}
	delete(j.pending, id)
	j.mu.Unlock()

	if len(ev.Changes) == 0 {
		return false, nil
	}
	ev.Seq = j.clock.Next()
	ev.At = j.now()
	j.stack.commit(ev)
	return true, nil
}

// SuspendEvent stops recording for id until a matching ResumeEvent.
func (j *Journal) SuspendEvent(id model.EventID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	ev, ok := j.pending[id]
	if !ok {
		return model.NoUndoEvent("event %s is not pending", id)
	}
	ev.suspended++
	return nil
}

// ResumeEvent undoes one SuspendEvent.
func (j *Journal) ResumeEvent(id model.EventID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	ev, ok := j.pending[id]
	if !ok {
		return model.NoUndoEvent("event %s is not pending", id)
	}
	if ev.suspended == 0 {
		return model.Otherf("event %s is not suspended", id)
	}
	ev.suspended--
	return nil
}

// CancelEvent drops pending event id and rolls its changes back in st. It
// returns the ids the rollback touched. If the rollback fails the event
// stays pending.
func (j *Journal) CancelEvent(id model.EventID, st *store.Store) ([]model.ObjectID, error) {
	j.mu.Lock()
	ev, ok := j.pending[id]
	if !ok {
		j.mu.Unlock()
		return nil, model.NoUndoEvent("event %s is not pending", id)
	}
	delete(j.pending, id)
	j.mu.Unlock()

	if _, err := apply(st, ev.Changes); err != nil {
		j.mu.Lock()
		j.pending[id] = ev
		j.mu.Unlock()
		return nil, err
	}
	return affected(ev.Changes), nil
}

// record appends c to event id unless it is suspended.
func (j *Journal) record(id model.EventID, c Change) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	ev, ok := j.pending[id]
	if !ok {
		return model.NoUndoEvent("event %s is not pending", id)
	}
	if ev.suspended == 0 {
		ev.Changes = append(ev.Changes, c)
	}
	return nil
}

func (j *Journal) check(id model.EventID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.pending[id]; !ok {
		return model.NoUndoEvent("event %s is not pending", id)
	}
	return nil
}

// AddObj inserts e into st under event id.
func (j *Journal) AddObj(id model.EventID, st *store.Store, e model.Entity) error {
	if err := j.check(id); err != nil {
		return err
	}
	if err := st.Add(e); err != nil {
		return err
	}
	return j.record(id, Change{Kind: ChangeAdd, ID: e.ID()})
}

// DeleteObj removes obj from st under event id and returns it.
func (j *Journal) DeleteObj(id model.EventID, st *store.Store, obj model.ObjectID) (model.Entity, error) {
	if err := j.check(id); err != nil {
		return nil, err
	}
	removed, err := st.Remove(obj)
	if err != nil {
		return nil, err
	}
	return removed, j.record(id, Change{Kind: ChangeDelete, ID: obj, Image: removed.Clone()})
}

// GetMutObj runs fn on obj under the store's exclusive lock, journaling
// the pre-image first.
func (j *Journal) GetMutObj(id model.EventID, st *store.Store, obj model.ObjectID, fn func(model.Entity) error) error {
	if err := j.check(id); err != nil {
		return err
	}
	return st.GetMut(obj, func(e model.Entity) error {
		if err := j.record(id, Change{Kind: ChangeModify, ID: obj, Image: e.Clone()}); err != nil {
			return err
		}
		return fn(e)
	})
}

// TakeSnapshot journals the current state of obj under event id without
// mutating it.
func (j *Journal) TakeSnapshot(id model.EventID, st *store.Store, obj model.ObjectID) error {
	if err := j.check(id); err != nil {
		return err
	}
	pre, err := store.Read(st, obj, func(e model.Entity) (model.Entity, error) {
		return e.Clone(), nil
	})
	if err != nil {
		return err
	}
	return j.record(id, Change{Kind: ChangeModify, ID: obj, Image: pre})
}

// Pending lists pending event ids in ascending order.
func (j *Journal) Pending() []model.EventID {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.EventID, 0, len(j.pending))
	for id := range j.pending {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b model.EventID) int {
		return slices.Compare(a[:], b[:])
	})
	return out
}

// PendingUser returns the user of pending event id.
func (j *Journal) PendingUser(id model.EventID) (model.UserID, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ev, ok := j.pending[id]
	if !ok {
		return model.NilUser, false
	}
	return ev.User, true
}

// UndoLatest undoes user's latest committed event in st.
func (j *Journal) UndoLatest(user model.UserID, st *store.Store) ([]model.ObjectID, error) {
	return j.stack.UndoLatest(user, st)
}

// RedoLatest redoes user's latest undone event in st.
func (j *Journal) RedoLatest(user model.UserID, st *store.Store) ([]model.ObjectID, error) {
	return j.stack.RedoLatest(user, st)
}
