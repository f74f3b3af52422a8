package lockmgr

import "time"

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// TryAcquire polls until the lock for key is held by owner or the timeout elapses.
	// A timeout returns (false, nil). Errors are only returned for store failures or invalid keys.
	// Locks are not reentrant: an owner that already holds key waits like any other caller.
	TryAcquire(owner string, key ResourceKey, timeout time.Duration) (ok bool, err error)

	// Release deletes the lock for key if it is held by owner.
	// It returns false if no lock exists or the lock belongs to someone else.
	Release(owner string, key ResourceKey) (released bool, err error)

	// IsLocked reports whether a live (decodable, not stale) lock exists for key.
	IsLocked(key ResourceKey) (locked bool, err error)

	// Inspect returns the live lock record for key, if there is one.
	Inspect(key ResourceKey) (record LockRecord, found bool, err error)

	// CleanExpiredLocks removes all stale or corrupt lock records and returns their number.
	CleanExpiredLocks() (removed int, err error)
}

// ITokenLockManager is implemented by lock managers that can hand out the token
// of the record they wrote. Releasing by token only removes that exact record,
// so a holder whose lock was reclaimed cannot delete the lock of its successor,
// even if both use the same owner identity.
type ITokenLockManager interface {
	ILockManager

	// AcquireToken behaves like TryAcquire and also returns the token of the new record.
	AcquireToken(owner string, key ResourceKey, timeout time.Duration) (token string, ok bool, err error)

	// ReleaseToken deletes the lock for key only if its record carries token.
	ReleaseToken(key ResourceKey, token string) (released bool, err error)
}
