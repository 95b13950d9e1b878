package engine

import (
	"maps"
	"slices"

	"github.com/roach88/cadstore/internal/deps"
	"github.com/roach88/cadstore/internal/model"
)

// Closure returns ids plus every object that transitively subscribes to a
// feature of them, sorted. Callers that need multi-step propagation pass
// the result to UpdateAllDeps. Reference cycles are visited once.
func (e *Engine) Closure(ids []model.ObjectID) []model.ObjectID {
	seen := make(map[model.ObjectID]bool)
	queue := dedupe(ids)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, sub := range e.graph.AllSubscribersOf(e.graph.PublishedBy(id)) {
			if !seen[sub.Object] {
				queue = append(queue, sub.Object)
			}
		}
	}
	out := make([]model.ObjectID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return sortedIDs(out)
}

// Cycles returns the objects that lie on a reference cycle, sorted.
func (e *Engine) Cycles() []model.ObjectID {
	adj := make(map[model.ObjectID][]model.ObjectID)
	for _, edge := range e.graph.Edges() {
		adj[edge.Publisher.Object] = append(adj[edge.Publisher.Object], edge.Subscriber.Object)
	}
	return onCycle(adj)
}

// Dangling returns the edges whose publisher object is not in the store.
func (e *Engine) Dangling() []deps.Edge {
	var out []deps.Edge
	for _, edge := range e.graph.Edges() {
		if !e.store.Contains(edge.Publisher.Object) {
			out = append(out, edge)
		}
	}
	return out
}

// onCycle returns the nodes of every strongly connected component with
// more than one node, plus self-loops (Tarjan).
func onCycle(adj map[model.ObjectID][]model.ObjectID) []model.ObjectID {
	var (
		index   = make(map[model.ObjectID]int)
		low     = make(map[model.ObjectID]int)
		onStack = make(map[model.ObjectID]bool)
		stack   []model.ObjectID
		next    int
		out     []model.ObjectID
	)
	var visit func(v model.ObjectID)
	visit = func(v model.ObjectID) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range adj[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		var comp []model.ObjectID
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		if len(comp) > 1 || slices.Contains(adj[v], v) {
			out = append(out, comp...)
		}
	}
	for _, v := range sortedIDs(slices.Collect(maps.Keys(adj))) {
		if _, seen := index[v]; !seen {
			visit(v)
		}
	}
	return sortedIDs(out)
}
