package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/store"
)

// UpdateDeps propagates from a single object.
func (e *Engine) UpdateDeps(ctx context.Context, id model.ObjectID) error {
	return e.UpdateAllDeps(ctx, []model.ObjectID{id})
}

// UpdateAllDeps refreshes every subscriber of a feature of ids, then
// broadcasts ids themselves. Propagation is one step: subscribers of the
// refreshed subscribers are not visited.
func (e *Engine) UpdateAllDeps(ctx context.Context, ids []model.ObjectID) error {
	return e.propagate(ctx, ids, true)
}

// propagate runs a propagation batch. emitChanged controls the final
// broadcast of ids; DeleteObj has already broadcast its Delete.
func (e *Engine) propagate(ctx context.Context, ids []model.ObjectID, emitChanged bool) error {
	changed := dedupe(ids)

	var pubs []model.FeatureID
	var removed []model.FeatureID
	for _, id := range changed {
		published := e.graph.PublishedBy(id)
		pubs = append(pubs, published...)
		if !e.store.Contains(id) {
			removed = append(removed, published...)
		}
	}
	subs := e.graph.AllSubscribersOf(pubs)
	for _, pub := range removed {
		e.graph.UnregisterPublisher(pub)
	}

	byObject := make(map[model.ObjectID][]int)
	var order []model.ObjectID
	for _, s := range subs {
		if _, ok := byObject[s.Object]; !ok {
			order = append(order, s.Object)
		}
		byObject[s.Object] = append(byObject[s.Object], s.Index)
	}

	var mu sync.Mutex
	emitted := make(map[model.ObjectID]bool, len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, obj := range order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := e.refreshSubscriber(obj, byObject[obj])
			if errors.Is(err, model.ErrObjectNotFound) {
				e.log.Debug("stale subscriber", "id", obj)
				return nil
			}
			if err != nil {
				return fmt.Errorf("refresh %s: %w", obj, err)
			}
			if ok {
				mu.Lock()
				emitted[obj] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Error("propagation failed", "changed", len(changed), "error", err)
		return err
	}

	if emitChanged {
		for _, id := range changed {
			if emitted[id] {
				continue
			}
			if err := e.emit(id); err != nil {
				return err
			}
		}
	}
	e.observer.Propagated(len(order), len(changed))
	e.log.Debug("propagated", "changed", len(changed), "publishers", len(pubs), "subscribers", len(order))
	return nil
}

// emit broadcasts id's current rendering, or Delete when it is gone.
func (e *Engine) emit(id model.ObjectID) error {
	err := e.store.Get(id, func(ent model.Entity) error {
		msg, err := ent.Update()
		if err != nil {
			return fmt.Errorf("render %s: %w", id, err)
		}
		e.out.SendAll(msg)
		return nil
	})
	if errors.Is(err, model.ErrObjectNotFound) {
		e.out.SendAll(model.DeleteMsg{ID: id})
		return nil
	}
	return err
}

type binding struct {
	index int
	ref   model.Reference
	geom  model.Geometry
}

// refreshSubscriber re-evaluates the given slots of obj. Publisher
// geometry is read first without holding obj's lock, then obj is locked
// once and every slot still bound to the same publisher adopts its
// resolved point. Reports whether obj was rendered.
func (e *Engine) refreshSubscriber(obj model.ObjectID, slots []int) (bool, error) {
	bindings, err := store.Read(e.store, obj, func(ent model.Entity) ([]binding, error) {
		r, ok := model.AsRefers(ent)
		if !ok {
			return nil, nil
		}
		refs := r.References()
		var out []binding
		for _, i := range slots {
			if i < 0 || i >= len(refs) || refs[i] == nil {
				continue
			}
			out = append(out, binding{index: i, ref: *refs[i].Clone()})
		}
		return out, nil
	})
	if err != nil {
		return false, err
	}
	if len(bindings) == 0 {
		return false, nil
	}
	for i := range bindings {
		geom, err := e.feature(bindings[i].ref.Other)
		if err != nil {
			return false, err
		}
		bindings[i].geom = geom
	}

	rendered := false
	err = e.store.GetMut(obj, func(ent model.Entity) error {
		r, ok := model.AsRefers(ent)
		if !ok {
			return nil
		}
		refs := r.References()
		for _, b := range bindings {
			if b.index >= len(refs) || refs[b.index] == nil || refs[b.index].Other != b.ref.Other {
				continue
			}
			if err := r.SetAssociatedPoint(b.index, b.ref.Kind.Resolve(b.geom, b.ref.Snap)); err != nil {
				return err
			}
		}
		msg, err := ent.Update()
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		e.out.SendAll(msg)
		rendered = true
		return nil
	})
	return rendered, err
}

// feature returns the current geometry of f, or nil when its object is
// gone or no longer exposes it.
func (e *Engine) feature(f model.FeatureID) (model.Geometry, error) {
	geom, err := store.Read(e.store, f.Object, func(ent model.Entity) (model.Geometry, error) {
		r, ok := model.AsReferenceable(ent)
		if !ok {
			return nil, nil
		}
		g, ok := r.Feature(f.Index)
		if !ok {
			return nil, nil
		}
		return g, nil
	})
	if errors.Is(err, model.ErrObjectNotFound) {
		return nil, nil
	}
	return geom, err
}

func dedupe(ids []model.ObjectID) []model.ObjectID {
	seen := make(map[model.ObjectID]struct{}, len(ids))
	out := make([]model.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsNil() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sortedIDs returns a sorted copy of ids.
func sortedIDs(ids []model.ObjectID) []model.ObjectID {
	out := slices.Clone(ids)
	slices.SortFunc(out, model.ObjectID.Compare)
	return out
}
