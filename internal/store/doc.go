// Package store provides the concurrent in-memory object store.
//
// The store maps model.ObjectID to model.Entity. It is sharded by an xxhash
// of the id; each shard has a structure lock held only long enough to find
// or insert an entry, and each entry has its own reader/writer lock held for
// the duration of a caller's closure.
//
// # Lock acquisition
//
// Entry locks are never waited on directly. Get and GetMut try the lock
// without blocking; on contention they sleep a fixed backoff and retry until
// the lock timeout elapses, then fail with a TIMED_OUT error. Closures may
// therefore read or write other entries freely. A closure that re-enters its
// own entry in a conflicting mode times out instead of deadlocking.
//
// # Removal
//
// Remove takes the entry's exclusive lock before unlinking it and marks the
// entry removed. A caller that found the entry before removal and acquires
// its lock afterwards observes OBJECT_NOT_FOUND.
package store
