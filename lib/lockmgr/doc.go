// Package lockmgr implements granular advisory locks on top of a shared
// property store (props.IPropertyStore). A lock protects one resource, named by
// a ResourceKey made of a closed ResourceKind and an opaque id.
//
// The lockmgr only ever stores in the provided property store and has no other
// internal state. Therefore it is safe to create it multiple times on the same
// store, even once per request. As long as the same store is used, all locks
// work as expected.
//
// Core Functionality:
//   - Polling acquisition with exponential backoff and a caller supplied timeout
//   - Reclamation of stale locks (older than Options.StaleAfter) by any caller
//   - Owner checked release
//   - A maintenance sweep that removes stale and corrupt lock records
//
// Implementation Approach:
//
//	Every lock is a JSON encoded LockRecord stored under the key
//	"LOCK_<kind>_<escaped id>". Kinds never contain an underscore and ids are
//	path escaped, so two different ResourceKeys never map to the same store key.
//
//	- Conditional stores: if the store implements props.IConditionalStore the
//	  record is written with SetIfUnset. Exactly one concurrent caller wins.
//
//	- Plain stores: the record is written with Set and read back. The caller
//	  only holds the lock if the stored value equals what it wrote. This check
//	  narrows but does not close the race between two callers that both saw the
//	  key absent; the loser of that race may still believe it holds the lock if
//	  its write lands last and its read-back happens before the winner's. Use a
//	  conditional store where mutual exclusion has to be strict.
//
//	- Staleness: a record whose age exceeds StaleAfter (or that cannot be
//	  decoded) is deleted by the next caller that observes it, who then retries
//	  immediately within the same TryAcquire call.
//
//	- Release: the record is removed only if the stored owner equals the caller.
//	  A record that cannot be decoded is removed anyway.
//
// Failure semantics:
//
//	A timeout is a normal outcome and is reported as (false, nil). Errors from
//	the store are returned as-is and must be treated as fatal by the caller.
//
// Usage Example:
//
//	mgr := lockmgr.NewLockManager(store, lockmgr.DefaultOptions())
//	key := lockmgr.ResourceKey{Kind: lockmgr.KindProject, ID: "p-42"}
//
//	ok, err := mgr.TryAcquire("alice", key, 5*time.Second)
//	if err != nil {
//	    // store failure
//	}
//	if !ok {
//	    // busy, retry later
//	}
//	defer mgr.Release("alice", key)
package lockmgr
