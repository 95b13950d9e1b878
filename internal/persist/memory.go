package persist

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// Memory keeps documents in process memory. Useful for tests and
// scenarios; contents vanish with the process.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory returns an empty memory backend.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[path]
	if !ok {
		return nil, model.FileNotFound(path)
	}
	return slices.Clone(data), nil
}

func (m *Memory) Save(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = slices.Clone(data)
	return nil
}

// Paths lists stored paths in order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for p := range m.docs {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
