// Package deps indexes feature references as a publisher → subscribers graph.
//
// An edge (p → s) exists when the entity owning feature s holds a reference
// whose Other is p and whose Owner is s. Entities are the source of truth;
// the graph is rebuilt from them on load and re-indexed after undo, so it
// may briefly lag entity state. Readers must tolerate stale edges.
//
// The graph is sharded by publisher object id, so all features of one
// publisher live in the same shard.
package deps
