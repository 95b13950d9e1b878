package codec

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// Factory returns a zero entity of one kind, ready to be decoded into.
type Factory func() model.Entity

// Registry maps kind discriminators to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a kind. Registering a kind twice is an error.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// New returns a zero entity of kind.
func (r *Registry) New(kind string) (model.Entity, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, model.Otherf("unknown entity kind %q", kind)
	}
	return f(), nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
