package command

import (
	"context"

	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/model"
)

// Result of commands that only acknowledge.
type ack struct {
	OK bool `json:"ok"`
}

var acked = ack{OK: true}

func (d *Dispatcher) routes() map[string]handler {
	return map[string]handler{
		"init_file":    initFile,
		"open_file":    openFile,
		"save_file":    saveFile,
		"save_as_file": saveAsFile,
		"close_file":   closeFile,

		"begin_undo_event":   beginUndoEvent,
		"end_undo_event":     eventOp((*engine.Engine).EndUndoEvent),
		"suspend_event":      eventOp((*engine.Engine).SuspendEvent),
		"resume_event":       eventOp((*engine.Engine).ResumeEvent),
		"cancel_event":       eventOp((*engine.Engine).CancelEvent),
		"take_undo_snapshot": takeUndoSnapshot,
		"undo_latest":        userOp((*engine.Engine).UndoLatest),
		"redo_latest":        userOp((*engine.Engine).RedoLatest),

		"add_object":      addObject,
		"delete_object":   deleteObject,
		"move_object":     moveObject,
		"move_objects":    moveObjects,
		"copy_objects":    copyObjects,
		"get_object_data": getObjectData,
		"set_object_data": setObjectData,
		"temp_repr":       tempRepr,
		"update_all_deps": updateAllDeps,

		"join_at_points":    joinAtPoints,
		"snap_to_line":      snapToLine,
		"snap_to_point":     snapToPoint,
		"get_closest_point": getClosestPoint,
	}
}

func initFile(ctx context.Context, c *call) (any, error) {
	var path string
	if err := c.decode(&path); err != nil {
		return nil, err
	}
	return acked, c.d.registry.InitFile(ctx, path, c.user)
}

func openFile(ctx context.Context, c *call) (any, error) {
	var path string
	if err := c.decode(&path); err != nil {
		return nil, err
	}
	return acked, c.d.registry.OpenFile(ctx, path, c.user)
}

func saveFile(ctx context.Context, c *call) (any, error) {
	if err := c.want(0); err != nil {
		return nil, err
	}
	path, err := c.file()
	if err != nil {
		return nil, err
	}
	return acked, c.d.registry.SaveFile(ctx, path)
}

func saveAsFile(ctx context.Context, c *call) (any, error) {
	var newPath string
	if err := c.decode(&newPath); err != nil {
		return nil, err
	}
	path, err := c.file()
	if err != nil {
		return nil, err
	}
	return acked, c.d.registry.SaveAsFile(ctx, path, newPath)
}

func closeFile(ctx context.Context, c *call) (any, error) {
	if err := c.want(0); err != nil {
		return nil, err
	}
	path, err := c.file()
	if err != nil {
		return nil, err
	}
	return acked, c.d.registry.CloseFile(ctx, path, c.user)
}

func beginUndoEvent(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var desc string
	if err := c.decode(&ev, &desc); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.BeginUndoEvent(ctx, c.user, ev, desc)
}

// eventOp adapts an engine method taking only an event id. Only the
// event's owner may act on it.
func eventOp(fn func(*engine.Engine, context.Context, model.EventID) error) handler {
	return func(ctx context.Context, c *call) (any, error) {
		var ev model.EventID
		if err := c.decode(&ev); err != nil {
			return nil, err
		}
		e, err := c.engine()
		if err != nil {
			return nil, err
		}
		if err := e.CheckEventOwner(ev, c.user); err != nil {
			return nil, err
		}
		return acked, fn(e, ctx, ev)
	}
}

// userOp adapts an engine method acting on the caller.
func userOp(fn func(*engine.Engine, context.Context, model.UserID) error) handler {
	return func(ctx context.Context, c *call) (any, error) {
		if err := c.want(0); err != nil {
			return nil, err
		}
		e, err := c.engine()
		if err != nil {
			return nil, err
		}
		return acked, fn(e, ctx, c.user)
	}
}

func takeUndoSnapshot(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var id model.ObjectID
	if err := c.decode(&ev, &id); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	if err := e.CheckEventOwner(ev, c.user); err != nil {
		return nil, err
	}
	return acked, e.TakeUndoSnapshot(ctx, ev, id)
}
