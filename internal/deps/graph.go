package deps

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/cadstore/internal/model"
)

// DefaultShards is the shard count used when New is given n <= 0.
const DefaultShards = 16

type set map[model.FeatureID]struct{}

type shard struct {
	mu   sync.RWMutex
	subs map[model.FeatureID]set
}

// Edge is one publisher → subscriber link.
type Edge struct {
	Publisher  model.FeatureID `json:"publisher"`
	Subscriber model.FeatureID `json:"subscriber"`
}

// Graph is a concurrent publisher → subscribers index.
type Graph struct {
	shards []*shard
}

// New returns an empty graph with n shards.
func New(n int) *Graph {
	if n <= 0 {
		n = DefaultShards
	}
	g := &Graph{shards: make([]*shard, n)}
	for i := range g.shards {
		g.shards[i] = &shard{subs: make(map[model.FeatureID]set)}
	}
	return g
}

func (g *Graph) shardFor(pub model.FeatureID) *shard {
	return g.shards[xxhash.Sum64(pub.Object[:])%uint64(len(g.shards))]
}

// Register adds pub → sub. Nil features are ignored.
func (g *Graph) Register(pub, sub model.FeatureID) {
	if pub.IsNil() || sub.IsNil() {
		return
	}
	sh := g.shardFor(pub)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.subs[pub]
	if !ok {
		s = make(set)
		sh.subs[pub] = s
	}
	s[sub] = struct{}{}
}

// RegisterReferences adds an edge for every live reference in refs.
func (g *Graph) RegisterReferences(refs []model.Reference) {
	for _, r := range refs {
		g.Register(r.Other, r.Owner)
	}
}

// Unregister removes pub → sub.
func (g *Graph) Unregister(pub, sub model.FeatureID) {
	sh := g.shardFor(pub)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.subs[pub]; ok {
		delete(s, sub)
		if len(s) == 0 {
			delete(sh.subs, pub)
		}
	}
}

// UnregisterPublisher removes pub's subscriber set and every edge in which
// pub appears as a subscriber.
func (g *Graph) UnregisterPublisher(pub model.FeatureID) {
	sh := g.shardFor(pub)
	sh.mu.Lock()
	delete(sh.subs, pub)
	sh.mu.Unlock()
	g.purge(func(f model.FeatureID) bool { return f == pub })
}

// UnregisterObject removes every edge whose subscriber belongs to obj.
// Edges published by obj are kept.
func (g *Graph) UnregisterObject(obj model.ObjectID) {
	g.purge(func(f model.FeatureID) bool { return f.Object == obj })
}

func (g *Graph) purge(match func(model.FeatureID) bool) {
	for _, sh := range g.shards {
		sh.mu.Lock()
		for pub, s := range sh.subs {
			for sub := range s {
				if match(sub) {
					delete(s, sub)
				}
			}
			if len(s) == 0 {
				delete(sh.subs, pub)
			}
		}
		sh.mu.Unlock()
	}
}

// SubscribersOf returns the subscribers of pub in sorted order.
func (g *Graph) SubscribersOf(pub model.FeatureID) []model.FeatureID {
	sh := g.shardFor(pub)
	sh.mu.RLock()
	out := make([]model.FeatureID, 0, len(sh.subs[pub]))
	for sub := range sh.subs[pub] {
		out = append(out, sub)
	}
	sh.mu.RUnlock()
	slices.SortFunc(out, model.FeatureID.Compare)
	return out
}

// AllSubscribersOf returns the union of the subscribers of pubs, sorted.
func (g *Graph) AllSubscribersOf(pubs []model.FeatureID) []model.FeatureID {
	seen := make(set)
	for _, pub := range pubs {
		sh := g.shardFor(pub)
		sh.mu.RLock()
		for sub := range sh.subs[pub] {
			seen[sub] = struct{}{}
		}
		sh.mu.RUnlock()
	}
	out := make([]model.FeatureID, 0, len(seen))
	for sub := range seen {
		out = append(out, sub)
	}
	slices.SortFunc(out, model.FeatureID.Compare)
	return out
}

// PublishedBy returns the features of obj that have subscribers, sorted.
func (g *Graph) PublishedBy(obj model.ObjectID) []model.FeatureID {
	sh := g.shardFor(model.FeatureID{Object: obj})
	sh.mu.RLock()
	var out []model.FeatureID
	for pub := range sh.subs {
		if pub.Object == obj {
			out = append(out, pub)
		}
	}
	sh.mu.RUnlock()
	slices.SortFunc(out, model.FeatureID.Compare)
	return out
}

// PublishersOf returns the edges whose subscriber belongs to obj.
func (g *Graph) PublishersOf(obj model.ObjectID) []Edge {
	return g.collect(func(e Edge) bool { return e.Subscriber.Object == obj })
}

// Edges returns every edge sorted by publisher, then subscriber.
func (g *Graph) Edges() []Edge {
	return g.collect(func(Edge) bool { return true })
}

func (g *Graph) collect(keep func(Edge) bool) []Edge {
	var out []Edge
	for _, sh := range g.shards {
		sh.mu.RLock()
		for pub, s := range sh.subs {
			for sub := range s {
				if e := (Edge{Publisher: pub, Subscriber: sub}); keep(e) {
					out = append(out, e)
				}
			}
		}
		sh.mu.RUnlock()
	}
	slices.SortFunc(out, compareEdges)
	return out
}

func compareEdges(a, b Edge) int {
	if c := a.Publisher.Compare(b.Publisher); c != 0 {
		return c
	}
	return a.Subscriber.Compare(b.Subscriber)
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	n := 0
	for _, sh := range g.shards {
		sh.mu.RLock()
		for _, s := range sh.subs {
			n += len(s)
		}
		sh.mu.RUnlock()
	}
	return n
}

// Clear removes every edge.
func (g *Graph) Clear() {
	for _, sh := range g.shards {
		sh.mu.Lock()
		clear(sh.subs)
		sh.mu.Unlock()
	}
}
