package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
)

// MoveObj translates id by delta under ev and propagates.
func (e *Engine) MoveObj(ctx context.Context, ev model.EventID, id model.ObjectID, delta model.Point) error {
	return e.MoveObjs(ctx, ev, []model.ObjectID{id}, delta)
}

// MoveObjs translates every id by delta under ev, then propagates once
// over the whole set. Fails with LacksCapability on the first id that is
// not movable; ids moved before it stay moved.
func (e *Engine) MoveObjs(ctx context.Context, ev model.EventID, ids []model.ObjectID, delta model.Point) (err error) {
	defer e.observe("move_objects", time.Now(), &err)
	for _, id := range ids {
		err := e.journal.GetMutObj(ev, e.store, id, func(ent model.Entity) error {
			m, ok := model.AsMovable(ent)
			if !ok {
				return model.LacksCapability(id, "movable")
			}
			m.Translate(delta)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return e.propagate(ctx, ids, true)
}

// SetObjectData applies props to id under ev and propagates.
func (e *Engine) SetObjectData(ctx context.Context, ev model.EventID, id model.ObjectID, props map[string]any) (err error) {
	defer e.observe("set_object_data", time.Now(), &err)
	err = e.journal.GetMutObj(ev, e.store, id, func(ent model.Entity) error {
		return ent.SetProps(props)
	})
	if err != nil {
		return err
	}
	return e.propagate(ctx, []model.ObjectID{id}, true)
}

// GetObjectData reads property prop of id and answers user with a Read
// message tagged with query.
func (e *Engine) GetObjectData(ctx context.Context, user model.UserID, query model.QueryID, id model.ObjectID, prop string) (data any, err error) {
	defer e.observe("get_object_data", time.Now(), &err)
	data, err = store.Read(e.store, id, func(ent model.Entity) (any, error) {
		return ent.Prop(prop)
	})
	if err != nil {
		return nil, err
	}
	if err := e.out.Send(user, model.ReadMsg{Query: query, User: user, Data: data}); err != nil {
		return nil, err
	}
	return data, nil
}

// TempRepr sends a preview of id to user only.
func (e *Engine) TempRepr(ctx context.Context, user model.UserID, id model.ObjectID) (err error) {
	defer e.observe("temp_repr", time.Now(), &err)
	msg, err := store.Read(e.store, id, func(ent model.Entity) (model.UpdateMessage, error) {
		return ent.TempRepr()
	})
	if err != nil {
		return err
	}
	return e.out.Send(user, msg)
}

// ClosestPoint is the result of GetClosestPoint.
type ClosestPoint struct {
	Feature  model.FeatureID `json:"feature"`
	Point    model.Point     `json:"point"`
	Distance float64         `json:"distance"`
}

// GetClosestPoint returns the feature of id nearest to p and the point on
// it closest to p.
func (e *Engine) GetClosestPoint(ctx context.Context, id model.ObjectID, p model.Point) (ClosestPoint, error) {
	return store.Read(e.store, id, func(ent model.Entity) (ClosestPoint, error) {
		r, ok := model.AsReferenceable(ent)
		if !ok {
			return ClosestPoint{}, model.LacksCapability(id, "referenceable")
		}
		best := ClosestPoint{Distance: math.Inf(1)}
		for i, g := range r.Features() {
			q := g.Closest(p)
			if d := q.Distance(p); d < best.Distance {
				best = ClosestPoint{Feature: model.FeatureID{Object: id, Index: i}, Point: q, Distance: d}
			}
		}
		if math.IsInf(best.Distance, 1) {
			return ClosestPoint{}, model.Otherf("object %s has no features", id)
		}
		return best, nil
	})
}

// closestOfTag returns the feature of id with tag nearest to p.
func (e *Engine) closestOfTag(id model.ObjectID, tag model.FeatureTag, p model.Point) (model.FeatureID, error) {
	return store.Read(e.store, id, func(ent model.Entity) (model.FeatureID, error) {
		r, ok := model.AsReferenceable(ent)
		if !ok {
			return model.FeatureID{}, model.LacksCapability(id, "referenceable")
		}
		best, dist := -1, math.Inf(1)
		for i, g := range r.Features() {
			if g.Tag() != tag {
				continue
			}
			if d := g.Closest(p).Distance(p); d < dist {
				best, dist = i, d
			}
		}
		if best < 0 {
			return model.FeatureID{}, model.Otherf("object %s has no %s feature", id, tag)
		}
		return model.FeatureID{Object: id, Index: best}, nil
	})
}

// UpdateAll broadcasts every entity's rendering to onlyTo, or to all users
// when onlyTo is nil.
func (e *Engine) UpdateAll(ctx context.Context, onlyTo model.UserID) (err error) {
	defer e.observe("update_all", time.Now(), &err)
	return e.store.Iterate(func(ent model.Entity) error {
		msg, err := ent.Update()
		if err != nil {
			return fmt.Errorf("render %s: %w", ent.ID(), err)
		}
		if onlyTo.IsNil() {
			e.out.SendAll(msg)
			return nil
		}
		return e.out.Send(onlyTo, msg)
	})
}
