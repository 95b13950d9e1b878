package engine

import (
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// IDGenerator issues ids for objects the engine creates itself (copies).
type IDGenerator interface {
	NewObjectID() model.ObjectID
}

// UUIDv7Generator issues time-sortable UUIDv7 ids.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewObjectID returns a fresh UUIDv7 object id.
func (UUIDv7Generator) NewObjectID() model.ObjectID {
	return model.NewObjectID()
}

// FixedGenerator returns predetermined ids in order, for tests and
// reproducible scenarios.
//
// Safe for concurrent use.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []model.ObjectID
	idx int
}

// NewFixedGenerator creates a generator returning ids in order.
func NewFixedGenerator(ids ...model.ObjectID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewObjectID returns the next predetermined id.
//
// Panics once every id has been consumed, to catch a scenario that creates
// more objects than it declared.
func (g *FixedGenerator) NewObjectID() model.ObjectID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
