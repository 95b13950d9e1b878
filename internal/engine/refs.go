package engine

import (
	"context"
	"time"

	"github.com/roach88/cadstore/internal/model"
)

// publisherGeometry returns the current geometry of pub, failing when its
// object is gone or does not expose it.
func (e *Engine) publisherGeometry(pub model.FeatureID) (model.Geometry, error) {
	geom, err := e.feature(pub)
	if err != nil {
		return nil, err
	}
	if geom == nil {
		if !e.store.Contains(pub.Object) {
			return nil, model.ObjectNotFound(pub.Object)
		}
		return nil, model.Otherf("object %s has no feature %d", pub.Object, pub.Index)
	}
	return geom, nil
}

// SetRef points slot sub.Index of sub.Object at pub under ev, replacing
// whatever the slot held. It does not propagate.
func (e *Engine) SetRef(ctx context.Context, ev model.EventID, sub, pub model.FeatureID, snap *model.Point) (err error) {
	defer e.observe("set_ref", time.Now(), &err)
	geom, err := e.publisherGeometry(pub)
	if err != nil {
		return err
	}
	var old *model.Reference
	err = e.modify(ev, sub.Object, func(ent model.Entity) error {
		r, ok := model.AsRefers(ent)
		if !ok {
			return model.LacksCapability(sub.Object, "referencing")
		}
		if refs := r.References(); sub.Index >= 0 && sub.Index < len(refs) {
			old = refs[sub.Index].Clone()
		}
		return r.SetReference(sub.Index, geom, pub, snap)
	})
	if err != nil {
		return err
	}
	if old != nil {
		e.graph.Unregister(old.Other, old.Owner)
	}
	e.graph.Register(pub, sub)
	e.log.Debug("reference set", "event", ev, "subscriber", sub, "publisher", pub)
	return nil
}

// AddRef appends a reference from sub to pub under ev and returns the
// slot the entity chose. It does not propagate.
func (e *Engine) AddRef(ctx context.Context, ev model.EventID, sub model.ObjectID, pub model.FeatureID, snap *model.Point) (slot int, err error) {
	defer e.observe("add_ref", time.Now(), &err)
	geom, err := e.publisherGeometry(pub)
	if err != nil {
		return -1, err
	}
	err = e.modify(ev, sub, func(ent model.Entity) error {
		r, ok := model.AsRefers(ent)
		if !ok {
			return model.LacksCapability(sub, "referencing")
		}
		slot, err = r.AddReference(geom, pub, snap)
		return err
	})
	if err != nil {
		return -1, err
	}
	e.graph.Register(pub, model.FeatureID{Object: sub, Index: slot})
	e.log.Debug("reference added", "event", ev, "subscriber", sub, "slot", slot, "publisher", pub)
	return slot, nil
}

// JoinAtPoints binds point feature sub to point feature pub under ev and
// propagates from pub so sub moves onto it.
func (e *Engine) JoinAtPoints(ctx context.Context, ev model.EventID, sub, pub model.FeatureID) error {
	for _, f := range []model.FeatureID{sub, pub} {
		geom, err := e.publisherGeometry(f)
		if err != nil {
			return err
		}
		if geom.Tag() != model.TagPoint {
			return model.Otherf("feature %s is a %s, not a point", f, geom.Tag())
		}
	}
	return e.snap(ctx, ev, sub, pub, nil)
}

// SnapToPoint binds sub to the point feature of pub nearest to at.
func (e *Engine) SnapToPoint(ctx context.Context, ev model.EventID, sub model.FeatureID, pub model.ObjectID, at model.Point) error {
	target, err := e.closestOfTag(pub, model.TagPoint, at)
	if err != nil {
		return err
	}
	return e.snap(ctx, ev, sub, target, nil)
}

// SnapToLine binds sub to the line feature of pub nearest to at, pinned at
// the projection of at onto that line.
func (e *Engine) SnapToLine(ctx context.Context, ev model.EventID, sub model.FeatureID, pub model.ObjectID, at model.Point) error {
	target, err := e.closestOfTag(pub, model.TagLine, at)
	if err != nil {
		return err
	}
	return e.snap(ctx, ev, sub, target, &at)
}

func (e *Engine) snap(ctx context.Context, ev model.EventID, sub, pub model.FeatureID, at *model.Point) error {
	if err := e.SetRef(ctx, ev, sub, pub, at); err != nil {
		return err
	}
	return e.UpdateAllDeps(ctx, []model.ObjectID{pub.Object})
}
