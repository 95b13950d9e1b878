package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/entity"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/outbox"
	"github.com/roach88/cadstore/internal/persist"
	"github.com/roach88/cadstore/internal/registry"
	"github.com/roach88/cadstore/internal/testutil"
)

var alice = testutil.UserID(1)

type fixture struct {
	d   *Dispatcher
	reg *registry.Registry
	out *outbox.Outbox
	mem *persist.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	out := outbox.New(64)
	out.Register(alice)
	mem := persist.NewMemory()
	reg := registry.New(out, mem, registry.WithEngineOptions(engine.WithWorkers(1)))
	t.Cleanup(reg.Close)
	return &fixture{d: New(reg), reg: reg, out: out, mem: mem}
}

func request(t *testing.T, method string, args ...any) Request {
	t.Helper()
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		require.NoError(t, err)
		raw[i] = b
	}
	return Request{ID: method, User: alice, Method: method, Args: raw}
}

func (f *fixture) do(t *testing.T, method string, args ...any) any {
	t.Helper()
	res, err := f.d.Dispatch(context.Background(), request(t, method, args...))
	require.NoError(t, err, method)
	return res
}

func (f *fixture) engine(t *testing.T) *engine.Engine {
	t.Helper()
	_, e, err := f.reg.Current(alice)
	require.NoError(t, err)
	return e
}

func envelope(t *testing.T, e model.Entity) json.RawMessage {
	t.Helper()
	b, err := codec.MarshalEntity(e)
	require.NoError(t, err)
	return b
}

func TestDispatch_Session(t *testing.T) {
	f := newFixture(t)
	a := entity.NewAnchor(model.Pt(0, 1, 2))
	ev1, ev2 := testutil.EventID(1), testutil.EventID(2)

	f.do(t, "init_file", "mem://house")
	f.do(t, "begin_undo_event", ev1, "add")
	assert.Equal(t, a.ID(), f.do(t, "add_object", ev1, envelope(t, a)))
	f.do(t, "end_undo_event", ev1)

	f.do(t, "begin_undo_event", ev2, "mod")
	f.do(t, "move_object", ev2, a.ID(), model.Pt(3, 2, 1))
	f.do(t, "end_undo_event", ev2)
	assert.Equal(t, model.Pt(3, 3, 3), f.do(t, "get_object_data", a.ID(), "position"))

	f.do(t, "undo_latest")
	assert.Equal(t, model.Pt(0, 1, 2), f.do(t, "get_object_data", a.ID(), "position", testutil.QueryID(7)))
	f.do(t, "redo_latest")

	f.do(t, "save_file")
	f.do(t, "close_file")
	assert.Empty(t, f.reg.Files())

	f.do(t, "open_file", "mem://house")
	assert.Equal(t, model.Pt(3, 3, 3), f.do(t, "get_object_data", a.ID(), "position"))

	f.do(t, "save_as_file", "mem://house-v2")
	assert.Equal(t, []string{"mem://house", "mem://house-v2"}, f.mem.Paths())
}

func TestDispatch_ReadMessageGoesToCaller(t *testing.T) {
	f := newFixture(t)
	a := entity.NewAnchor(model.Pt(1, 1, 1))
	ev := testutil.EventID(1)
	f.do(t, "init_file", "mem://p")
	f.do(t, "begin_undo_event", ev, "add")
	f.do(t, "add_object", ev, envelope(t, a))

	box, err := f.out.Mailbox(alice)
	require.NoError(t, err)
	box.Drain()

	q := testutil.QueryID(3)
	f.do(t, "get_object_data", a.ID(), "position", q)
	got := box.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, model.ReadMsg{Query: q, User: alice, Data: model.Pt(1, 1, 1)}, got[0].Message)
}

func TestDispatch_Editing(t *testing.T) {
	f := newFixture(t)
	ev := testutil.EventID(1)
	w := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	d := entity.NewDoor(model.Pt(9, 9, 0), model.Pt(1, 0, 0), 0.9, 2.1)
	a := entity.NewAnchor(model.Pt(3.8, 0.5, 0))

	f.do(t, "init_file", "mem://p")
	f.do(t, "begin_undo_event", ev, "edit")
	for _, ent := range []model.Entity{w, d, a} {
		f.do(t, "add_object", ev, envelope(t, ent))
	}

	f.do(t, "snap_to_line", ev, model.FeatureID{Object: d.ID()}, w.ID(), model.Pt(2, 1, 0))
	f.do(t, "snap_to_point", ev, model.FeatureID{Object: a.ID()}, w.ID(), model.Pt(3.8, 0.5, 0))
	f.do(t, "move_objects", ev, []model.ObjectID{w.ID()}, model.Pt(0, 1, 0))
	assert.Equal(t, model.Pt(2, 1, 0), f.do(t, "get_object_data", d.ID(), "position"))
	assert.Equal(t, model.Pt(4, 1, 0), f.do(t, "get_object_data", a.ID(), "position"))

	closest := f.do(t, "get_closest_point", w.ID(), model.Pt(0, 0, 0)).(engine.ClosestPoint)
	assert.Equal(t, model.FeatureID{Object: w.ID(), Index: entity.WallStart}, closest.Feature)

	copies := f.do(t, "copy_objects", ev, []model.ObjectID{a.ID()}, model.Pt(0, 0, 1)).([]model.ObjectID)
	require.Len(t, copies, 1)
	assert.Equal(t, model.Pt(4, 1, 1), f.do(t, "get_object_data", copies[0], "position"))

	f.do(t, "set_object_data", ev, w.ID(), map[string]any{"height": 3.0})
	assert.Equal(t, 3.0, f.do(t, "get_object_data", w.ID(), "height"))

	f.do(t, "delete_object", ev, copies[0])
	f.do(t, "temp_repr", w.ID())
	f.do(t, "update_all_deps", []model.ObjectID{w.ID()})
	f.do(t, "end_undo_event", ev)
	assert.Equal(t, 3, f.engine(t).Store().Len())
}

func TestDispatch_JoinAndSnapshot(t *testing.T) {
	f := newFixture(t)
	ev := testutil.EventID(1)
	w1 := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	w2 := entity.NewWall(model.Pt(5, 0, 0), model.Pt(5, 3, 0), 0.2, 2.5)

	f.do(t, "init_file", "mem://p")
	f.do(t, "begin_undo_event", ev, "join")
	f.do(t, "add_object", ev, envelope(t, w1))
	f.do(t, "add_object", ev, envelope(t, w2))
	f.do(t, "join_at_points", ev,
		model.FeatureID{Object: w2.ID(), Index: entity.WallStart},
		model.FeatureID{Object: w1.ID(), Index: entity.WallEnd})
	assert.Equal(t, model.Pt(4, 0, 0), f.do(t, "get_object_data", w2.ID(), "start"))
	f.do(t, "take_undo_snapshot", ev, w1.ID())
	f.do(t, "suspend_event", ev)
	f.do(t, "resume_event", ev)
	f.do(t, "cancel_event", ev)
	assert.Equal(t, 0, f.engine(t).Store().Len())
}

func TestHandle_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		code model.ErrorCode
	}{
		{"unknown method", request(t, "fly"), model.CodeOther},
		{"no current file", request(t, "undo_latest"), model.CodeUserNotFound},
		{"wrong arity", request(t, "init_file"), model.CodeOther},
		{"bad argument", request(t, "init_file", 42), model.CodeOther},
		{"missing file", request(t, "open_file", "mem://nothing"), model.CodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.d.Handle(ctx, tt.req)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.req.ID, resp.ID)
			assert.Nil(t, resp.Result)
		})
	}

	f.do(t, "init_file", "mem://p")
	resp := f.d.Handle(ctx, request(t, "end_undo_event", testutil.EventID(5)))
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.CodeNoUndoEvent, resp.Error.Code)

	resp = f.d.Handle(ctx, request(t, "get_object_data", testutil.ObjectID(1), "position"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.CodeObjectNotFound, resp.Error.Code)
}

func TestMethods_CoverProtocol(t *testing.T) {
	d := New(nil)
	for _, m := range []string{
		"init_file", "open_file", "save_file", "save_as_file", "close_file",
		"begin_undo_event", "end_undo_event", "suspend_event", "resume_event",
		"cancel_event", "take_undo_snapshot", "undo_latest", "redo_latest",
		"add_object", "delete_object", "move_object", "move_objects", "copy_objects",
		"get_object_data", "set_object_data", "join_at_points", "snap_to_line",
		"snap_to_point", "get_closest_point",
	} {
		assert.Contains(t, d.Methods(), m)
	}
}

func TestDispatch_EventsBelongToTheirOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := testutil.UserID(2)
	f.out.Register(bob)
	a := entity.NewAnchor(model.Pt(0, 0, 0))
	ev := testutil.EventID(1)

	f.do(t, "init_file", "mem://p")
	f.do(t, "save_file")
	open := request(t, "open_file", "mem://p")
	open.User = bob
	_, err := f.d.Dispatch(ctx, open)
	require.NoError(t, err)

	f.do(t, "begin_undo_event", ev, "add")
	f.do(t, "add_object", ev, envelope(t, a))

	for _, req := range []Request{
		request(t, "take_undo_snapshot", ev, a.ID()),
		request(t, "suspend_event", ev),
		request(t, "resume_event", ev),
		request(t, "cancel_event", ev),
		request(t, "end_undo_event", ev),
	} {
		req.User = bob
		resp := f.d.Handle(ctx, req)
		require.NotNil(t, resp.Error, req.Method)
		assert.Equal(t, model.CodeNoUndoEvent, resp.Error.Code, req.Method)
	}
	assert.Equal(t, 1, f.engine(t).Store().Len())

	f.do(t, "end_undo_event", ev)
	f.do(t, "undo_latest")
	assert.Equal(t, 0, f.engine(t).Store().Len())
}
