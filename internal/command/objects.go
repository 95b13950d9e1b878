package command

import (
	"context"
	"encoding/json"

	"github.com/roach88/cadstore/internal/model"
)

func addObject(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var raw json.RawMessage
	if err := c.decode(&ev, &raw); err != nil {
		return nil, err
	}
	ent, err := c.d.codec.UnmarshalEntity(raw)
	if err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	if err := e.AddObject(ctx, ev, ent); err != nil {
		return nil, err
	}
	return ent.ID(), nil
}

func deleteObject(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var id model.ObjectID
	if err := c.decode(&ev, &id); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	_, err = e.DeleteObj(ctx, ev, id)
	return acked, err
}

func moveObject(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var id model.ObjectID
	var delta model.Point
	if err := c.decode(&ev, &id, &delta); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.MoveObj(ctx, ev, id, delta)
}

func moveObjects(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var ids []model.ObjectID
	var delta model.Point
	if err := c.decode(&ev, &ids, &delta); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.MoveObjs(ctx, ev, ids, delta)
}

func copyObjects(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var ids []model.ObjectID
	var delta model.Point
	if err := c.decode(&ev, &ids, &delta); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return e.CopyObjs(ctx, ev, ids, delta)
}

// get_object_data takes [object_id, prop] or [object_id, prop, query_id].
func getObjectData(ctx context.Context, c *call) (any, error) {
	var id model.ObjectID
	var prop string
	query := model.NewQueryID()
	var err error
	if len(c.args) == 3 {
		err = c.decode(&id, &prop, &query)
	} else {
		err = c.decode(&id, &prop)
	}
	if err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return e.GetObjectData(ctx, c.user, query, id, prop)
}

func setObjectData(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var id model.ObjectID
	var props map[string]any
	if err := c.decode(&ev, &id, &props); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.SetObjectData(ctx, ev, id, props)
}

func tempRepr(ctx context.Context, c *call) (any, error) {
	var id model.ObjectID
	if err := c.decode(&id); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.TempRepr(ctx, c.user, id)
}

// update_all_deps runs on the engine's background queue and waits for it.
func updateAllDeps(ctx context.Context, c *call) (any, error) {
	var ids []model.ObjectID
	if err := c.decode(&ids); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	select {
	case err := <-e.Schedule(ids):
		return acked, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func joinAtPoints(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var sub, pub model.FeatureID
	if err := c.decode(&ev, &sub, &pub); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.JoinAtPoints(ctx, ev, sub, pub)
}

func snapToLine(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var sub model.FeatureID
	var pub model.ObjectID
	var at model.Point
	if err := c.decode(&ev, &sub, &pub, &at); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.SnapToLine(ctx, ev, sub, pub, at)
}

func snapToPoint(ctx context.Context, c *call) (any, error) {
	var ev model.EventID
	var sub model.FeatureID
	var pub model.ObjectID
	var at model.Point
	if err := c.decode(&ev, &sub, &pub, &at); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return acked, e.SnapToPoint(ctx, ev, sub, pub, at)
}

func getClosestPoint(ctx context.Context, c *call) (any, error) {
	var id model.ObjectID
	var at model.Point
	if err := c.decode(&id, &at); err != nil {
		return nil, err
	}
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	return e.GetClosestPoint(ctx, id, at)
}
