package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/deps"
	"github.com/roach88/cadstore/internal/entity"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
	"github.com/roach88/cadstore/internal/undo"
)

// Broadcaster delivers update messages to the users of a file.
// Implemented by outbox.Group (production) and testutil.Recorder (tests).
type Broadcaster interface {
	Send(user model.UserID, msg model.UpdateMessage) error
	SendAll(msg model.UpdateMessage)
}

// Observer receives operation timings and propagation sizes.
type Observer interface {
	Operation(name string, d time.Duration, err error)
	Propagated(subscribers, changed int)
}

type nopObserver struct{}

func (nopObserver) Operation(string, time.Duration, error) {}
func (nopObserver) Propagated(int, int)                    {}

// DefaultWorkers bounds propagation parallelism when no option is given.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// Engine is the operation manager of one open file.
//
// Thread-safety: every method is safe for concurrent use. Run must be
// called from at most one goroutine.
type Engine struct {
	store    *store.Store
	graph    *deps.Graph
	journal  *undo.Journal
	out      Broadcaster
	registry *codec.Registry
	ids      IDGenerator
	log      *slog.Logger
	observer Observer
	workers  int
	queue    *jobQueue

	storeOpts   []store.Option
	graphShards int
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore uses s instead of a fresh store.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithStoreOptions configures the fresh store built when WithStore is
// not given. Safe to share across engines.
func WithStoreOptions(opts ...store.Option) Option {
	return func(e *Engine) { e.storeOpts = append(e.storeOpts, opts...) }
}

// WithGraphShards sizes the fresh dependency graph.
func WithGraphShards(n int) Option {
	return func(e *Engine) { e.graphShards = n }
}

// WithGraph uses g instead of a fresh dependency graph.
func WithGraph(g *deps.Graph) Option {
	return func(e *Engine) { e.graph = g }
}

// WithJournal uses j instead of a fresh journal.
func WithJournal(j *undo.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithRegistry decodes documents with r.
func WithRegistry(r *codec.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithIDs issues copy ids from g.
func WithIDs(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithObserver reports timings to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithWorkers bounds propagation parallelism.
//
// Default: GOMAXPROCS. Use WithWorkers(1) for deterministic emission order.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an engine broadcasting to out.
func New(out Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		out:      out,
		ids:      UUIDv7Generator{},
		log:      slog.Default(),
		observer: nopObserver{},
		workers:  DefaultWorkers,
		queue:    newJobQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = store.New(e.storeOpts...)
	}
	if e.graph == nil {
		e.graph = deps.New(e.graphShards)
	}
	if e.journal == nil {
		e.journal = undo.NewJournal(undo.NewStack())
	}
	if e.registry == nil {
		e.registry = entity.Registry()
	}
	return e
}

// Store returns the object store.
func (e *Engine) Store() *store.Store { return e.store }

// Graph returns the dependency graph.
func (e *Engine) Graph() *deps.Graph { return e.graph }

// Journal returns the undo journal.
func (e *Engine) Journal() *undo.Journal { return e.journal }

// SetBroadcaster replaces the broadcaster.
func (e *Engine) SetBroadcaster(out Broadcaster) { e.out = out }

// observe records an operation; use as defer e.observe(name, time.Now(), &err).
func (e *Engine) observe(name string, start time.Time, err *error) {
	e.observer.Operation(name, time.Since(start), *err)
	if *err != nil {
		e.log.Debug("operation failed", "op", name, "error", *err)
	}
}

// BeginUndoEvent opens event ev for user.
func (e *Engine) BeginUndoEvent(ctx context.Context, user model.UserID, ev model.EventID, desc string) (err error) {
	defer e.observe("begin_undo_event", time.Now(), &err)
	if err := e.journal.BeginEvent(user, ev, desc); err != nil {
		return err
	}
	e.log.Debug("event begun", "event", ev, "user", user, "desc", desc)
	return nil
}

// CheckEventOwner fails with NO_UNDO_EVENT when ev is pending for a user
// other than user. Unknown events pass; the operation itself rejects them.
func (e *Engine) CheckEventOwner(ev model.EventID, user model.UserID) error {
	owner, ok := e.journal.PendingUser(ev)
	if ok && owner != user {
		return model.NoUndoEvent("event %s belongs to another user", ev)
	}
	return nil
}

// EndUndoEvent closes event ev.
func (e *Engine) EndUndoEvent(ctx context.Context, ev model.EventID) (err error) {
	defer e.observe("end_undo_event", time.Now(), &err)
	committed, err := e.journal.EndEvent(ev)
	if err != nil {
		return err
	}
	e.log.Debug("event ended", "event", ev, "committed", committed)
	return nil
}

// SuspendEvent stops journaling for ev.
func (e *Engine) SuspendEvent(ctx context.Context, ev model.EventID) (err error) {
	defer e.observe("suspend_event", time.Now(), &err)
	return e.journal.SuspendEvent(ev)
}

// ResumeEvent resumes journaling for ev.
func (e *Engine) ResumeEvent(ctx context.Context, ev model.EventID) (err error) {
	defer e.observe("resume_event", time.Now(), &err)
	return e.journal.ResumeEvent(ev)
}

// CancelEvent rolls back pending event ev and refreshes what it touched.
func (e *Engine) CancelEvent(ctx context.Context, ev model.EventID) (err error) {
	defer e.observe("cancel_event", time.Now(), &err)
	ids, err := e.journal.CancelEvent(ev, e.store)
	if err != nil {
		return err
	}
	e.log.Info("event cancelled", "event", ev, "objects", len(ids))
	return e.refresh(ctx, ids)
}

// TakeUndoSnapshot journals the current state of id under ev.
func (e *Engine) TakeUndoSnapshot(ctx context.Context, ev model.EventID, id model.ObjectID) (err error) {
	defer e.observe("take_undo_snapshot", time.Now(), &err)
	return e.journal.TakeSnapshot(ev, e.store, id)
}

// UndoLatest undoes user's latest event.
func (e *Engine) UndoLatest(ctx context.Context, user model.UserID) (err error) {
	defer e.observe("undo_latest", time.Now(), &err)
	ids, err := e.journal.UndoLatest(user, e.store)
	if err != nil {
		return err
	}
	e.log.Info("undo", "user", user, "objects", len(ids))
	return e.refresh(ctx, ids)
}

// RedoLatest redoes user's latest undone event.
func (e *Engine) RedoLatest(ctx context.Context, user model.UserID) (err error) {
	defer e.observe("redo_latest", time.Now(), &err)
	ids, err := e.journal.RedoLatest(user, e.store)
	if err != nil {
		return err
	}
	e.log.Info("redo", "user", user, "objects", len(ids))
	return e.refresh(ctx, ids)
}

// refresh re-indexes the references of ids from entity state and
// propagates from them.
func (e *Engine) refresh(ctx context.Context, ids []model.ObjectID) error {
	e.reindex(ids)
	return e.UpdateAllDeps(ctx, ids)
}

// reindex replaces the subscriber edges of ids with the entities' current
// references.
func (e *Engine) reindex(ids []model.ObjectID) {
	for _, id := range ids {
		e.graph.UnregisterObject(id)
		refs, err := store.Read(e.store, id, func(ent model.Entity) ([]model.Reference, error) {
			return model.LiveReferences(ent), nil
		})
		if err != nil {
			continue
		}
		e.graph.RegisterReferences(refs)
	}
}

// AddObject inserts ent under ev, indexes its references and broadcasts it.
func (e *Engine) AddObject(ctx context.Context, ev model.EventID, ent model.Entity) (err error) {
	defer e.observe("add_object", time.Now(), &err)
	refs := model.LiveReferences(ent)
	msg, err := ent.Update()
	if err != nil {
		return fmt.Errorf("render %s: %w", ent.ID(), err)
	}
	if err := e.journal.AddObj(ev, e.store, ent); err != nil {
		return err
	}
	e.graph.RegisterReferences(refs)
	e.out.SendAll(msg)
	e.log.Debug("object added", "event", ev, "id", ent.ID(), "kind", ent.Kind(), "refs", len(refs))
	return nil
}

// ModifyObj runs fn on id under ev, then renders and broadcasts the entity
// while still holding its lock.
func (e *Engine) ModifyObj(ctx context.Context, ev model.EventID, id model.ObjectID, fn func(model.Entity) error) (err error) {
	defer e.observe("modify_obj", time.Now(), &err)
	return e.modify(ev, id, fn)
}

func (e *Engine) modify(ev model.EventID, id model.ObjectID, fn func(model.Entity) error) error {
	return e.journal.GetMutObj(ev, e.store, id, func(ent model.Entity) error {
		if err := fn(ent); err != nil {
			return err
		}
		msg, err := ent.Update()
		if err != nil {
			return fmt.Errorf("render %s: %w", id, err)
		}
		e.out.SendAll(msg)
		return nil
	})
}

// DeleteObj removes id under ev, broadcasts Delete, refreshes its
// dependents and drops it from the graph. A missing id still broadcasts
// Delete and is not an error.
func (e *Engine) DeleteObj(ctx context.Context, ev model.EventID, id model.ObjectID) (removed model.Entity, err error) {
	defer e.observe("delete_obj", time.Now(), &err)
	removed, err = e.journal.DeleteObj(ev, e.store, id)
	if errors.Is(err, model.ErrObjectNotFound) {
		e.out.SendAll(model.DeleteMsg{ID: id})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.out.SendAll(model.DeleteMsg{ID: id})
	if err := e.snapshotSubscribers(ev, id); err != nil {
		return removed, err
	}
	if err := e.propagate(ctx, []model.ObjectID{id}, false); err != nil {
		return removed, err
	}
	e.graph.UnregisterObject(id)
	e.log.Debug("object deleted", "event", ev, "id", id, "kind", removed.Kind())
	return removed, nil
}

// snapshotSubscribers journals every object subscribed to a feature of id
// under ev, so undoing the delete also restores the slots it unbinds.
func (e *Engine) snapshotSubscribers(ev model.EventID, id model.ObjectID) error {
	var objs []model.ObjectID
	for _, sub := range e.graph.AllSubscribersOf(e.graph.PublishedBy(id)) {
		if sub.Object != id {
			objs = append(objs, sub.Object)
		}
	}
	for _, obj := range dedupe(objs) {
		err := e.journal.TakeSnapshot(ev, e.store, obj)
		if errors.Is(err, model.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// CopyObj duplicates id under ev with its references cleared and returns
// the copy's id.
func (e *Engine) CopyObj(ctx context.Context, ev model.EventID, id model.ObjectID) (model.ObjectID, error) {
	ids, err := e.CopyObjs(ctx, ev, []model.ObjectID{id}, model.Point{})
	if err != nil {
		return model.NilObject, err
	}
	return ids[0], nil
}

// CopyObjs duplicates ids under ev, clears the copies' references and
// moves them by delta. Copies of non-movable entities are not moved.
func (e *Engine) CopyObjs(ctx context.Context, ev model.EventID, ids []model.ObjectID, delta model.Point) (out []model.ObjectID, err error) {
	defer e.observe("copy_objects", time.Now(), &err)
	out = make([]model.ObjectID, 0, len(ids))
	for _, id := range ids {
		dup, err := e.store.Duplicate(id)
		if err != nil {
			return out, err
		}
		dup.SetID(e.ids.NewObjectID())
		if r, ok := model.AsRefers(dup); ok {
			r.ClearReferences()
		}
		if m, ok := model.AsMovable(dup); ok && delta != (model.Point{}) {
			m.Translate(delta)
		}
		if err := e.AddObject(ctx, ev, dup); err != nil {
			return out, err
		}
		out = append(out, dup.ID())
	}
	return out, nil
}
