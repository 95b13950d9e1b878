// Package engine implements the operation manager of one open file.
//
// An Engine composes the object store, the undo journal and the dependency
// graph, and reports every visible change to a Broadcaster. It is the only
// component that touches all three together.
//
// ARCHITECTURE:
//
// No global lock. Operations on disjoint objects run in parallel; operations
// on the same object serialize on the store's per-entry lock and fail with
// TIMED_OUT rather than deadlock.
//
// Mutation flow:
//  1. The client begins an undo event for a user
//  2. Writes go through the journal, which records pre-images
//  3. Writers render the entity and broadcast the result
//  4. Propagation recomputes the subscribers of the changed objects
//  5. Ending the event commits it to the user's undo stack
//
// Propagation is one step: subscribers of subscribers are not revisited.
// Callers that need the transitive set use Closure.
//
// Propagation never nests entry locks. Publisher geometry is read under
// shared locks first; each subscriber is then written under its own
// exclusive lock. Propagation writes are not journaled.
//
// Propagation may run inline (UpdateAllDeps) or on the background queue
// drained by Run (Schedule).
package engine
