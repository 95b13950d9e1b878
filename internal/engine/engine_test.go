package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadstore/internal/entity"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
	"github.com/roach88/cadstore/internal/testutil"
)

var (
	userU = testutil.UserID(1)
	userV = testutil.UserID(2)
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testutil.Recorder) {
	t.Helper()
	rec := testutil.NewRecorder(userU, userV)
	return New(rec, append([]Option{WithWorkers(1)}, opts...)...), rec
}

// inEvent runs fn inside a fresh event for user and ends it.
func inEvent(t *testing.T, e *Engine, user model.UserID, desc string, fn func(ev model.EventID)) {
	t.Helper()
	ctx := context.Background()
	ev := model.NewEventID()
	require.NoError(t, e.BeginUndoEvent(ctx, user, ev, desc))
	fn(ev)
	require.NoError(t, e.EndUndoEvent(ctx, ev))
}

func addAnchor(t *testing.T, e *Engine, user model.UserID, p model.Point) model.ObjectID {
	t.Helper()
	a := entity.NewAnchor(p)
	inEvent(t, e, user, "add", func(ev model.EventID) {
		require.NoError(t, e.AddObject(context.Background(), ev, a))
	})
	return a.ID()
}

// addFollower adds an anchor whose slot 0 references pub's feature 0.
func addFollower(t *testing.T, e *Engine, user model.UserID, pub model.ObjectID) model.ObjectID {
	t.Helper()
	b := entity.NewAnchor(model.Point{})
	geom, err := e.feature(model.FeatureID{Object: pub})
	require.NoError(t, err)
	_, err = b.AddReference(geom, model.FeatureID{Object: pub}, nil)
	require.NoError(t, err)
	inEvent(t, e, user, "add follower", func(ev model.EventID) {
		require.NoError(t, e.AddObject(context.Background(), ev, b))
	})
	return b.ID()
}

func point0(t *testing.T, e *Engine, id model.ObjectID) model.Point {
	t.Helper()
	geom, err := e.feature(model.FeatureID{Object: id})
	require.NoError(t, err)
	require.NotNil(t, geom, "object %s has no feature 0", id)
	return geom.(model.PointGeom).P
}

func TestEngine_New(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NotNil(t, e.Store())
	assert.NotNil(t, e.Graph())
	assert.NotNil(t, e.Journal())
	assert.Equal(t, 1, e.workers)
}

func TestEngine_AddModifyUndoRedo(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 1, 2))
	inEvent(t, e, userU, "mod", func(ev model.EventID) {
		require.NoError(t, e.MoveObj(ctx, ev, a, model.Pt(3, 2, 1)))
	})
	assert.Equal(t, model.Pt(3, 3, 3), point0(t, e, a))

	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.Equal(t, model.Pt(0, 1, 2), point0(t, e, a))

	require.NoError(t, e.RedoLatest(ctx, userU))
	assert.Equal(t, model.Pt(3, 3, 3), point0(t, e, a))
}

func TestEngine_ReferencePropagation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 1, 2))
	b := addFollower(t, e, userU, a)
	require.NoError(t, e.UpdateAllDeps(ctx, []model.ObjectID{a, b}))
	assert.Equal(t, model.Pt(0, 1, 2), point0(t, e, b))

	inEvent(t, e, userU, "move a", func(ev model.EventID) {
		require.NoError(t, e.ModifyObj(ctx, ev, a, func(ent model.Entity) error {
			ent.(*entity.Anchor).Position = model.Pt(10, 10, 10)
			return nil
		}))
	})
	require.NoError(t, e.UpdateAllDeps(ctx, []model.ObjectID{a}))
	assert.Equal(t, model.Pt(10, 10, 10), point0(t, e, b))
}

func TestEngine_DeleteCascade(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 1, 2))
	b := addFollower(t, e, userU, a)
	require.NoError(t, e.UpdateAllDeps(ctx, []model.ObjectID{a, b}))
	rec.Reset()

	inEvent(t, e, userU, "delete", func(ev model.EventID) {
		removed, err := e.DeleteObj(ctx, ev, a)
		require.NoError(t, err)
		assert.Equal(t, a, removed.ID())
	})

	assert.Equal(t, []model.ObjectID{a}, rec.Deleted(), "exactly one Delete")
	assert.Equal(t, model.Pt(0, 1, 2), point0(t, e, b), "unbound slot keeps its last value")
	assert.Empty(t, model.LiveReferences(mustGet(t, e, b)))
	assert.Equal(t, 0, e.Graph().Len())
	assert.NoError(t, e.UpdateAllDeps(ctx, []model.ObjectID{b}))
}

func TestEngine_DeleteMissingBroadcastsDelete(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)
	ghost := testutil.ObjectID(99)

	inEvent(t, e, userU, "delete", func(ev model.EventID) {
		removed, err := e.DeleteObj(ctx, ev, ghost)
		require.NoError(t, err)
		assert.Nil(t, removed)
	})
	assert.Equal(t, []model.ObjectID{ghost}, rec.Deleted())
}

func TestEngine_SuspendedMutationIsNotUndone(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := addAnchor(t, e, userV, model.Pt(0, 0, 0))

	ev := model.NewEventID()
	require.NoError(t, e.BeginUndoEvent(ctx, userU, ev, "suspended"))
	require.NoError(t, e.SuspendEvent(ctx, ev))
	require.NoError(t, e.MoveObj(ctx, ev, a, model.Pt(1, 1, 1)))
	require.NoError(t, e.EndUndoEvent(ctx, ev))

	err := e.UndoLatest(ctx, userU)
	assert.ErrorIs(t, err, model.ErrNoUndoEvent)
	assert.Equal(t, model.Pt(1, 1, 1), point0(t, e, a))
}

func TestEngine_CopyClearsReferences(t *testing.T) {
	ctx := context.Background()
	ids := testutil.ObjectIDs(100, 1)
	e, _ := newTestEngine(t, WithIDs(NewFixedGenerator(ids...)))

	b := addAnchor(t, e, userU, model.Pt(1, 0, 0))
	a := addFollower(t, e, userU, b)

	var cp model.ObjectID
	inEvent(t, e, userU, "copy", func(ev model.EventID) {
		var err error
		cp, err = e.CopyObj(ctx, ev, a)
		require.NoError(t, err)
	})
	assert.Equal(t, ids[0], cp)
	assert.Empty(t, model.LiveReferences(mustGet(t, e, cp)))
	assert.NotEmpty(t, model.LiveReferences(mustGet(t, e, a)), "original keeps its reference")
	assert.Equal(t, 1, e.Graph().Len())
}

func TestEngine_CopyObjsTranslates(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := addAnchor(t, e, userU, model.Pt(1, 1, 0))

	inEvent(t, e, userU, "copy", func(ev model.EventID) {
		out, err := e.CopyObjs(ctx, ev, []model.ObjectID{a}, model.Pt(0, 0, 5))
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, model.Pt(1, 1, 5), point0(t, e, out[0]))
	})
	assert.Equal(t, model.Pt(1, 1, 0), point0(t, e, a))

	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.Equal(t, 1, e.Store().Len())
}

func TestEngine_PropagationIsOneStep(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	b := addFollower(t, e, userU, a)
	c := addFollower(t, e, userU, b)
	rec.Reset()

	inEvent(t, e, userU, "move", func(ev model.EventID) {
		require.NoError(t, e.MoveObj(ctx, ev, a, model.Pt(5, 0, 0)))
	})

	assert.Equal(t, model.Pt(5, 0, 0), point0(t, e, b))
	assert.Equal(t, model.Pt(0, 0, 0), point0(t, e, c), "transitive dependents are not re-evaluated")
	assert.Equal(t, 1, rec.Rendered(a))
	assert.Equal(t, 1, rec.Rendered(b))
	assert.Equal(t, 0, rec.Rendered(c))

	require.NoError(t, e.UpdateAllDeps(ctx, e.Closure([]model.ObjectID{a})))
	assert.Equal(t, model.Pt(5, 0, 0), point0(t, e, c))
}

func TestEngine_UndoMoveRepropagates(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	b := addFollower(t, e, userU, a)
	inEvent(t, e, userU, "move", func(ev model.EventID) {
		require.NoError(t, e.MoveObj(ctx, ev, a, model.Pt(2, 0, 0)))
	})
	require.Equal(t, model.Pt(2, 0, 0), point0(t, e, b))

	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.Equal(t, model.Pt(0, 0, 0), point0(t, e, b))
}

func TestEngine_UndoDeleteRestoresPublisher(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	b := addFollower(t, e, userU, a)
	inEvent(t, e, userU, "delete", func(ev model.EventID) {
		_, err := e.DeleteObj(ctx, ev, b)
		require.NoError(t, err)
	})
	require.Equal(t, 0, e.Graph().Len())
	rec.Reset()

	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.True(t, e.Store().Contains(b))
	assert.Equal(t, 1, e.Graph().Len(), "restored subscriber is re-indexed")
	assert.Equal(t, 1, rec.Rendered(b))
}

func TestEngine_UndoPublisherDeleteRebindsSubscriber(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 1, 2))
	b := addFollower(t, e, userU, a)
	require.NoError(t, e.UpdateAllDeps(ctx, []model.ObjectID{a, b}))

	inEvent(t, e, userU, "delete", func(ev model.EventID) {
		_, err := e.DeleteObj(ctx, ev, a)
		require.NoError(t, err)
	})
	require.Empty(t, model.LiveReferences(mustGet(t, e, b)))
	require.Equal(t, 0, e.Graph().Len())

	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.True(t, e.Store().Contains(a))
	assert.Len(t, model.LiveReferences(mustGet(t, e, b)), 1)
	assert.Equal(t, 1, e.Graph().Len())

	inEvent(t, e, userU, "move", func(ev model.EventID) {
		require.NoError(t, e.MoveObj(ctx, ev, a, model.Pt(10, 10, 10)))
	})
	assert.Equal(t, model.Pt(10, 11, 12), point0(t, e, a))
	assert.Equal(t, model.Pt(10, 11, 12), point0(t, e, b), "subscriber follows the restored publisher")
}

func TestEngine_RedoPublisherDeleteUnbindsAgain(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 1, 2))
	b := addFollower(t, e, userU, a)
	require.NoError(t, e.UpdateAllDeps(ctx, []model.ObjectID{a, b}))
	inEvent(t, e, userU, "delete", func(ev model.EventID) {
		_, err := e.DeleteObj(ctx, ev, a)
		require.NoError(t, err)
	})
	require.NoError(t, e.UndoLatest(ctx, userU))
	rec.Reset()

	require.NoError(t, e.RedoLatest(ctx, userU))
	assert.False(t, e.Store().Contains(a))
	assert.Empty(t, model.LiveReferences(mustGet(t, e, b)))
	assert.Equal(t, 0, e.Graph().Len())
	assert.Equal(t, model.Pt(0, 1, 2), point0(t, e, b))

	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.Len(t, model.LiveReferences(mustGet(t, e, b)), 1)
	assert.Equal(t, 1, e.Graph().Len())
}

func TestEngine_CancelPublisherDeleteRebindsSubscriber(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 1, 2))
	b := addFollower(t, e, userU, a)
	require.NoError(t, e.UpdateAllDeps(ctx, []model.ObjectID{a, b}))

	ev := model.NewEventID()
	require.NoError(t, e.BeginUndoEvent(ctx, userU, ev, "delete"))
	_, err := e.DeleteObj(ctx, ev, a)
	require.NoError(t, err)
	require.Empty(t, model.LiveReferences(mustGet(t, e, b)))

	require.NoError(t, e.CancelEvent(ctx, ev))
	assert.True(t, e.Store().Contains(a))
	assert.Len(t, model.LiveReferences(mustGet(t, e, b)), 1)
	assert.Equal(t, 1, e.Graph().Len())

	inEvent(t, e, userU, "move", func(ev model.EventID) {
		require.NoError(t, e.MoveObj(ctx, ev, a, model.Pt(1, 0, 0)))
	})
	assert.Equal(t, model.Pt(1, 1, 2), point0(t, e, b))
}

func TestEngine_DeleteWithSuspendedEventSkipsSubscriberSnapshots(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	addFollower(t, e, userU, a)

	ev := model.NewEventID()
	require.NoError(t, e.BeginUndoEvent(ctx, userU, ev, "delete"))
	require.NoError(t, e.SuspendEvent(ctx, ev))
	_, err := e.DeleteObj(ctx, ev, a)
	require.NoError(t, err)
	require.NoError(t, e.ResumeEvent(ctx, ev))
	require.NoError(t, e.EndUndoEvent(ctx, ev))

	assert.Len(t, e.Journal().Stack().History(userU), 2, "the empty delete event is discarded")
}

func TestEngine_CrossUserUndoIsolation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	b := addAnchor(t, e, userV, model.Pt(0, 0, 0))
	inEvent(t, e, userV, "move b", func(ev model.EventID) {
		require.NoError(t, e.MoveObj(ctx, ev, b, model.Pt(1, 0, 0)))
	})

	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.False(t, e.Store().Contains(a))
	assert.Equal(t, model.Pt(1, 0, 0), point0(t, e, b))
}

func TestEngine_CheckEventOwner(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	ev := model.NewEventID()
	require.NoError(t, e.BeginUndoEvent(ctx, userU, ev, "draft"))
	assert.NoError(t, e.CheckEventOwner(ev, userU))
	assert.ErrorIs(t, e.CheckEventOwner(ev, userV), model.ErrNoUndoEvent)
	assert.NoError(t, e.CheckEventOwner(model.NewEventID(), userV))
}

func TestEngine_CancelEvent(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	ev := model.NewEventID()
	require.NoError(t, e.BeginUndoEvent(ctx, userU, ev, "draft"))
	a := entity.NewAnchor(model.Point{})
	require.NoError(t, e.AddObject(ctx, ev, a))
	require.NoError(t, e.CancelEvent(ctx, ev))

	assert.False(t, e.Store().Contains(a.ID()))
	assert.Equal(t, []model.ObjectID{a.ID()}, rec.Deleted())
	assert.ErrorIs(t, e.EndUndoEvent(ctx, ev), model.ErrNoUndoEvent)
}

func TestEngine_TakeUndoSnapshot(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := addAnchor(t, e, userV, model.Pt(0, 0, 0))

	inEvent(t, e, userU, "external edit", func(ev model.EventID) {
		require.NoError(t, e.TakeUndoSnapshot(ctx, ev, a))
		require.NoError(t, e.Store().GetMut(a, func(ent model.Entity) error {
			ent.(*entity.Anchor).Position = model.Pt(9, 9, 9)
			return nil
		}))
	})
	require.NoError(t, e.UndoLatest(ctx, userU))
	assert.Equal(t, model.Pt(0, 0, 0), point0(t, e, a))
}

func TestEngine_MoveLacksCapability(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	d := entity.NewDimension(model.Point{}, model.Pt(1, 0, 0), 0.5)
	inEvent(t, e, userU, "add", func(ev model.EventID) {
		require.NoError(t, e.AddObject(ctx, ev, d))
		err := e.MoveObj(ctx, ev, d.ID(), model.Pt(1, 0, 0))
		assert.ErrorIs(t, err, model.ErrLacksCapability)
	})
}

func TestEngine_SnapToLine(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	w := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	d := entity.NewDoor(model.Pt(7, 7, 0), model.Pt(0, 1, 0), 0.9, 2.1)
	inEvent(t, e, userU, "door", func(ev model.EventID) {
		require.NoError(t, e.AddObject(ctx, ev, w))
		require.NoError(t, e.AddObject(ctx, ev, d))
		sub := model.FeatureID{Object: d.ID(), Index: entity.DoorPosition}
		require.NoError(t, e.SnapToLine(ctx, ev, sub, w.ID(), model.Pt(1, 0.3, 0)))
	})
	assert.InDelta(t, 1.0, point0(t, e, d.ID()).X, 1e-9)
	assert.InDelta(t, 0.0, point0(t, e, d.ID()).Y, 1e-9)
	assert.Equal(t, model.Pt(1, 0, 0), mustGet(t, e, d.ID()).(*entity.Door).Dir)

	inEvent(t, e, userU, "move wall", func(ev model.EventID) {
		require.NoError(t, e.MoveObj(ctx, ev, w.ID(), model.Pt(0, 2, 0)))
	})
	p := point0(t, e, d.ID())
	assert.InDelta(t, 1.0, p.X, 1e-9)
	assert.InDelta(t, 2.0, p.Y, 1e-9)
}

func TestEngine_JoinAtPoints(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	w1 := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	w2 := entity.NewWall(model.Pt(4.1, 0.2, 0), model.Pt(4, 3, 0), 0.2, 2.5)
	inEvent(t, e, userU, "join", func(ev model.EventID) {
		require.NoError(t, e.AddObject(ctx, ev, w1))
		require.NoError(t, e.AddObject(ctx, ev, w2))
		err := e.JoinAtPoints(ctx, ev,
			model.FeatureID{Object: w2.ID(), Index: entity.WallStart},
			model.FeatureID{Object: w1.ID(), Index: entity.WallEnd})
		require.NoError(t, err)
	})
	assert.Equal(t, model.Pt(4, 0, 0), point0(t, e, w2.ID()))

	err := e.JoinAtPoints(ctx, model.NewEventID(),
		model.FeatureID{Object: w2.ID(), Index: entity.WallCenterLine},
		model.FeatureID{Object: w1.ID(), Index: entity.WallEnd})
	assert.ErrorIs(t, err, model.ErrOther, "centre line is not a point")
}

func TestEngine_SnapToPoint(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	w := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	a := entity.NewAnchor(model.Pt(3.5, 1, 0))
	inEvent(t, e, userU, "snap", func(ev model.EventID) {
		require.NoError(t, e.AddObject(ctx, ev, w))
		require.NoError(t, e.AddObject(ctx, ev, a))
		require.NoError(t, e.SnapToPoint(ctx, ev, model.FeatureID{Object: a.ID()}, w.ID(), a.Position))
	})
	assert.Equal(t, model.Pt(4, 0, 0), point0(t, e, a.ID()))
	assert.Equal(t, []model.FeatureID{{Object: w.ID(), Index: entity.WallEnd}}, e.Graph().PublishedBy(w.ID()))
}

func TestEngine_SetRefReplacesEdge(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	p1 := addAnchor(t, e, userU, model.Pt(1, 0, 0))
	p2 := addAnchor(t, e, userU, model.Pt(2, 0, 0))
	s := addFollower(t, e, userU, p1)

	inEvent(t, e, userU, "rewire", func(ev model.EventID) {
		require.NoError(t, e.SetRef(ctx, ev, model.FeatureID{Object: s}, model.FeatureID{Object: p2}, nil))
	})
	assert.Empty(t, e.Graph().PublishedBy(p1))
	assert.Equal(t, []model.FeatureID{{Object: s}}, e.Graph().SubscribersOf(model.FeatureID{Object: p2}))

	err := e.SetRef(ctx, model.NewEventID(), model.FeatureID{Object: s}, model.FeatureID{Object: testutil.ObjectID(404)}, nil)
	assert.ErrorIs(t, err, model.ErrObjectNotFound)
}

func TestEngine_AddRef(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	p := addAnchor(t, e, userU, model.Pt(1, 0, 0))
	s := addAnchor(t, e, userU, model.Pt(0, 0, 0))

	inEvent(t, e, userU, "ref", func(ev model.EventID) {
		slot, err := e.AddRef(ctx, ev, s, model.FeatureID{Object: p}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, slot)
	})
	assert.Equal(t, model.Pt(0, 0, 0), point0(t, e, s), "wiring does not propagate")
	assert.Equal(t, 1, e.Graph().Len())
}

func TestEngine_ObjectData(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	b := addFollower(t, e, userU, a)
	inEvent(t, e, userU, "props", func(ev model.EventID) {
		require.NoError(t, e.SetObjectData(ctx, ev, a, map[string]any{"position": []any{1.0, 2.0, 3.0}}))
		err := e.SetObjectData(ctx, ev, a, map[string]any{"colour": "red"})
		assert.ErrorIs(t, err, model.ErrPropertyNotFound)
	})
	assert.Equal(t, model.Pt(1, 2, 3), point0(t, e, b))

	rec.Reset()
	q := testutil.QueryID(1)
	data, err := e.GetObjectData(ctx, userV, q, a, "position")
	require.NoError(t, err)
	assert.Equal(t, model.Pt(1, 2, 3), data)
	sent := rec.All()
	require.Len(t, sent, 1)
	assert.Equal(t, userV, sent[0].User)
	assert.Equal(t, model.ReadMsg{Query: q, User: userV, Data: model.Pt(1, 2, 3)}, sent[0].Message)
}

func TestEngine_TempReprGoesToOneUser(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)
	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	rec.Reset()

	require.NoError(t, e.TempRepr(ctx, userV, a))
	sent := rec.All()
	require.Len(t, sent, 1)
	assert.Equal(t, userV, sent[0].User)
	assert.ErrorIs(t, e.TempRepr(ctx, testutil.UserID(3), a), model.ErrUserNotFound)
}

func TestEngine_GetClosestPoint(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	w := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	inEvent(t, e, userU, "add", func(ev model.EventID) {
		require.NoError(t, e.AddObject(ctx, ev, w))
	})

	got, err := e.GetClosestPoint(ctx, w.ID(), model.Pt(2, -1, 0))
	require.NoError(t, err)
	assert.Equal(t, model.FeatureID{Object: w.ID(), Index: entity.WallCenterLine}, got.Feature)
	assert.Equal(t, model.Pt(2, 0, 0), got.Point)
	assert.InDelta(t, 1.0, got.Distance, 1e-9)

	_, err = e.GetClosestPoint(ctx, testutil.ObjectID(7), model.Point{})
	assert.ErrorIs(t, err, model.ErrObjectNotFound)
}

func TestEngine_UpdateAll(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)
	addAnchor(t, e, userU, model.Point{})
	addAnchor(t, e, userU, model.Point{})
	rec.Reset()

	require.NoError(t, e.UpdateAll(ctx, userV))
	for _, s := range rec.All() {
		assert.Equal(t, userV, s.User)
	}
	assert.Len(t, rec.All(), 2)
}

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memStorage) Load(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, model.FileNotFound(path)
	}
	return data, nil
}

func (m *memStorage) Save(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	return nil
}

func TestEngine_SaveOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	st := &memStorage{files: make(map[string][]byte)}

	a := addAnchor(t, e, userU, model.Pt(0, 1, 2))
	addFollower(t, e, userU, a)
	w := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	inEvent(t, e, userU, "wall", func(ev model.EventID) {
		require.NoError(t, e.AddObject(ctx, ev, w))
	})
	require.NoError(t, e.Save(ctx, st, "p.json"))

	rec := testutil.NewRecorder(userU)
	opened, err := Open(ctx, st, "p.json", userU, rec)
	require.NoError(t, err)

	want, err := e.Document()
	require.NoError(t, err)
	got, err := opened.Document()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.Equal(t, e.Graph().Edges(), opened.Graph().Edges())
	assert.Len(t, rec.All(), 3, "every entity rendered to the opening user")

	_, err = Open(ctx, st, "missing.json", userU, rec)
	assert.ErrorIs(t, err, model.ErrFileNotFound)
}

func TestEngine_LoadDocumentIsAtomic(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAnchor(t, e, userU, model.Point{})
	doc, err := e.Document()
	require.NoError(t, err)

	err = e.LoadDocument(doc)
	assert.ErrorIs(t, err, model.ErrOverwrite)
	assert.Equal(t, 1, e.Store().Len())

	fresh, _ := newTestEngine(t)
	assert.Error(t, fresh.LoadDocument([]byte(`[{"kind":"nope","entity":{}}]`)))
	assert.Equal(t, 0, fresh.Store().Len())
	require.NoError(t, fresh.LoadDocument(doc))
	assert.True(t, fresh.Store().Contains(a))
}

func TestEngine_CyclesAndDangling(t *testing.T) {
	e, _ := newTestEngine(t)
	a, b, c := testutil.ObjectID(1), testutil.ObjectID(2), testutil.ObjectID(3)
	g := e.Graph()
	g.Register(model.FeatureID{Object: a}, model.FeatureID{Object: b})
	g.Register(model.FeatureID{Object: a}, model.FeatureID{Object: c})
	g.Register(model.FeatureID{Object: c}, model.FeatureID{Object: b})
	g.Register(model.FeatureID{Object: b}, model.FeatureID{Object: a})

	assert.Equal(t, []model.ObjectID{a, b, c}, e.Cycles())
	assert.Equal(t, []model.ObjectID{a, b, c}, e.Closure([]model.ObjectID{c}))
	assert.Len(t, e.Dangling(), 4)

	g.Clear()
	g.Register(model.FeatureID{Object: a}, model.FeatureID{Object: b})
	assert.Empty(t, e.Cycles())
}

func TestEngine_ScheduleRun(t *testing.T) {
	e, _ := newTestEngine(t)
	a := addAnchor(t, e, userU, model.Pt(0, 0, 0))
	b := addFollower(t, e, userU, a)
	require.NoError(t, e.Store().GetMut(a, func(ent model.Entity) error {
		ent.(*entity.Anchor).Position = model.Pt(3, 0, 0)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx) }()

	select {
	case err := <-e.Schedule([]model.ObjectID{a}):
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("scheduled propagation did not finish")
	}
	assert.Equal(t, model.Pt(3, 0, 0), point0(t, e, b))

	e.Stop()
	require.NoError(t, <-runErr)
	assert.ErrorIs(t, <-e.Schedule([]model.ObjectID{a}), ErrStopped)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
}

func TestEngine_DisjointWritersNeverTimeOut(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.WithLockTimeout(time.Second))
	e, _ := newTestEngine(t, WithStore(st), WithWorkers(4))

	const workers = 16
	ids := make([]model.ObjectID, workers)
	for i := range ids {
		ids[i] = addAnchor(t, e, userU, model.Pt(float64(i), 0, 0))
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := model.NewEventID()
			if err := e.BeginUndoEvent(ctx, userV, ev, fmt.Sprintf("move %d", i)); err != nil {
				errs <- err
				return
			}
			for range 20 {
				if err := e.MoveObj(ctx, ev, id, model.Pt(0, 1, 0)); err != nil {
					errs <- err
					return
				}
			}
			errs <- e.EndUndoEvent(ctx, ev)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for i, id := range ids {
		assert.Equal(t, model.Pt(float64(i), 20, 0), point0(t, e, id))
	}
}

func mustGet(t *testing.T, e *Engine, id model.ObjectID) model.Entity {
	t.Helper()
	ent, err := store.Read(e.Store(), id, func(ent model.Entity) (model.Entity, error) {
		return ent.Clone(), nil
	})
	require.NoError(t, err)
	return ent
}
