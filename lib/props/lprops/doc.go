// Package lprops implements a local, in-memory, single-node property store
// based on the props.IPropertyStore interface. Data is kept in a concurrent
// map and is not persisted between process restarts.
//
// The store implements props.IConditionalStore: SetIfUnset is backed by the
// map's atomic LoadOrStore, so lock acquisition against a local store is a
// real compare-and-set instead of the write-then-verify fallback.
//
// Usage Example:
//
//	store := lprops.NewLocalStore()
//	_ = store.Set("LOCK_project_42", record)
//	value, found, err := store.Get("LOCK_project_42")
//
// Suitable Use Cases:
//
//   - Single-node deployments of the coordinator
//   - Tests and development environments
//
// For multi-node deployments use dprops (RAFT) or pgprops (PostgreSQL).
package lprops
