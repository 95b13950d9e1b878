package engine

import (
	"context"
	"time"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/model"
)

// Storage reads and writes whole project documents by path.
type Storage interface {
	Load(ctx context.Context, path string) ([]byte, error)
	Save(ctx context.Context, path string, data []byte) error
}

// Document serializes every entity as a canonical JSON array sorted by id.
func (e *Engine) Document() ([]byte, error) {
	ents, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return codec.EncodeDocument(ents)
}

// Save writes the document to path in st.
func (e *Engine) Save(ctx context.Context, st Storage, path string) (err error) {
	defer e.observe("save", time.Now(), &err)
	data, err := e.Document()
	if err != nil {
		return err
	}
	if err := st.Save(ctx, path, data); err != nil {
		return err
	}
	e.log.Info("project saved", "path", path, "objects", e.store.Len(), "hash", codec.Hash(data))
	return nil
}

// LoadDocument inserts every entity of data into the store and rebuilds
// the dependency graph. Nothing is inserted if data does not decode. The
// load is not journaled.
func (e *Engine) LoadDocument(data []byte) error {
	ents, err := e.registry.DecodeDocument(data)
	if err != nil {
		return err
	}
	for _, ent := range ents {
		if e.store.Contains(ent.ID()) {
			return model.Overwrite(ent.ID())
		}
	}
	for i, ent := range ents {
		if err := e.store.Add(ent); err != nil {
			for _, added := range ents[:i] {
				_, _ = e.store.Remove(added.ID())
			}
			return err
		}
	}
	e.Rebuild()
	return nil
}

// Open loads path from st into a fresh engine and renders every entity
// to user.
func Open(ctx context.Context, st Storage, path string, user model.UserID, out Broadcaster, opts ...Option) (*Engine, error) {
	data, err := st.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	e := New(out, opts...)
	if err := e.LoadDocument(data); err != nil {
		return nil, err
	}
	e.log.Info("project opened", "path", path, "objects", e.store.Len(), "edges", e.graph.Len())
	if err := e.UpdateAll(ctx, user); err != nil {
		return nil, err
	}
	return e, nil
}

// Rebuild replaces the dependency graph with the references every entity
// currently holds.
func (e *Engine) Rebuild() {
	e.graph.Clear()
	_ = e.store.Iterate(func(ent model.Entity) error {
		e.graph.RegisterReferences(model.LiveReferences(ent))
		return nil
	})
}
