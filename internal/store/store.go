package store

import (
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/cadstore/internal/model"
)

type entry struct {
	mu      sync.RWMutex
	e       model.Entity
	removed bool
}

type shard struct {
	mu sync.RWMutex
	m  map[model.ObjectID]*entry
}

// Store is a sharded concurrent map of entities with per-entry locks.
type Store struct {
	shards []*shard
	opts   options
}

// New returns an empty store.
func New(opts ...Option) *Store {
	o := options{
		lockTimeout:  DefaultLockTimeout,
		retryBackoff: DefaultRetryBackoff,
		shards:       DefaultShards,
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{shards: make([]*shard, o.shards), opts: o}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[model.ObjectID]*entry)}
	}
	return s
}

func (s *Store) shardFor(id model.ObjectID) *shard {
	return s.shards[xxhash.Sum64(id[:])%uint64(len(s.shards))]
}

func (s *Store) lookup(id model.ObjectID) (*entry, error) {
	if id.IsNil() {
		return nil, model.ObjectNotFound(id)
	}
	sh := s.shardFor(id)
	sh.mu.RLock()
	ent, ok := sh.m[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, model.ObjectNotFound(id)
	}
	return ent, nil
}

// acquire takes ent's lock without blocking, retrying every backoff until
// the lock timeout.
func (s *Store) acquire(id model.ObjectID, ent *entry, exclusive bool) error {
	try := ent.mu.TryRLock
	if exclusive {
		try = ent.mu.TryLock
	}
	if try() {
		return nil
	}
	start := time.Now()
	deadline := start.Add(s.opts.lockTimeout)
	for {
		time.Sleep(s.opts.retryBackoff)
		if try() {
			s.opts.observer.LockWaited(time.Since(start))
			return nil
		}
		if !time.Now().Before(deadline) {
			s.opts.observer.LockTimedOut()
			return model.TimedOut(id)
		}
	}
}

// Add inserts e. It fails with OVERWRITE if the id is already present.
func (s *Store) Add(e model.Entity) error {
	id := e.ID()
	if id.IsNil() {
		return model.Otherf("add %s: nil id", e.Kind())
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[id]; ok {
		return model.Overwrite(id)
	}
	sh.m[id] = &entry{e: e}
	return nil
}

// Get runs fn under a shared lock on id.
func (s *Store) Get(id model.ObjectID, fn func(model.Entity) error) error {
	ent, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := s.acquire(id, ent, false); err != nil {
		return err
	}
	defer ent.mu.RUnlock()
	if ent.removed {
		return model.ObjectNotFound(id)
	}
	return fn(ent.e)
}

// GetMut runs fn under an exclusive lock on id.
func (s *Store) GetMut(id model.ObjectID, fn func(model.Entity) error) error {
	ent, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := s.acquire(id, ent, true); err != nil {
		return err
	}
	defer ent.mu.Unlock()
	if ent.removed {
		return model.ObjectNotFound(id)
	}
	return fn(ent.e)
}

// Read runs fn under a shared lock on id and returns its result.
func Read[T any](s *Store, id model.ObjectID, fn func(model.Entity) (T, error)) (T, error) {
	var out T
	err := s.Get(id, func(e model.Entity) error {
		var err error
		out, err = fn(e)
		return err
	})
	return out, err
}

// Remove unlinks id and returns the removed entity.
func (s *Store) Remove(id model.ObjectID) (model.Entity, error) {
	ent, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(id, ent, true); err != nil {
		return nil, err
	}
	defer ent.mu.Unlock()
	if ent.removed {
		return nil, model.ObjectNotFound(id)
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	if sh.m[id] == ent {
		delete(sh.m, id)
	}
	sh.mu.Unlock()
	ent.removed = true
	return ent.e, nil
}

// Swap replaces the stored entity for id with e and returns the previous
// value. e must carry the same id.
func (s *Store) Swap(id model.ObjectID, e model.Entity) (model.Entity, error) {
	if e.ID() != id {
		return nil, model.Otherf("swap %s: replacement has id %s", id, e.ID())
	}
	ent, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(id, ent, true); err != nil {
		return nil, err
	}
	defer ent.mu.Unlock()
	if ent.removed {
		return nil, model.ObjectNotFound(id)
	}
	prev := ent.e
	ent.e = e
	return prev, nil
}

// Duplicate returns a deep clone of id carrying a fresh id. The clone is
// not inserted.
func (s *Store) Duplicate(id model.ObjectID) (model.Entity, error) {
	return Read(s, id, func(e model.Entity) (model.Entity, error) {
		c := e.Clone()
		c.SetID(model.NewObjectID())
		return c, nil
	})
}

// Contains reports whether id is present.
func (s *Store) Contains(id model.ObjectID) bool {
	_, err := s.lookup(id)
	return err == nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

type keyed struct {
	id  model.ObjectID
	ent *entry
}

// entries lists live entries sorted by id.
func (s *Store) entries() []keyed {
	var out []keyed
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, ent := range sh.m {
			out = append(out, keyed{id: id, ent: ent})
		}
		sh.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b keyed) int { return a.id.Compare(b.id) })
	return out
}

// IDs returns every id in ascending order.
func (s *Store) IDs() []model.ObjectID {
	entries := s.entries()
	out := make([]model.ObjectID, len(entries))
	for i, k := range entries {
		out[i] = k.id
	}
	return out
}

// Iterate calls fn for every entry in id order under that entry's shared
// lock. Entries removed during iteration are skipped. The first error from
// fn stops the walk.
func (s *Store) Iterate(fn func(model.Entity) error) error {
	return s.walk(false, fn)
}

// IterateMut is Iterate under exclusive locks.
func (s *Store) IterateMut(fn func(model.Entity) error) error {
	return s.walk(true, fn)
}

func (s *Store) walk(exclusive bool, fn func(model.Entity) error) error {
	for _, k := range s.entries() {
		if err := s.acquire(k.id, k.ent, exclusive); err != nil {
			return err
		}
		var err error
		if !k.ent.removed {
			err = fn(k.ent.e)
		}
		if exclusive {
			k.ent.mu.Unlock()
		} else {
			k.ent.mu.RUnlock()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns clones of every entity in id order.
func (s *Store) Snapshot() ([]model.Entity, error) {
	var out []model.Entity
	err := s.Iterate(func(e model.Entity) error {
		out = append(out, e.Clone())
		return nil
	})
	return out, err
}
