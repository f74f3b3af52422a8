package client

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/rpc/common"
)

// NewRemoteLockMgr creates a lockmgr.ILockManager backed by the lock endpoints of a dCoord server.
// The owner passed to TryAcquire and Release is sent as the caller identity.
func NewRemoteLockMgr(config common.ClientConfig) (lockmgr.ILockManager, error) {
	a, err := newHTTPAdapter(config)
	if err != nil {
		return nil, err
	}
	return &remoteLockMgr{a}, nil
}

type remoteLockMgr struct {
	*httpAdapter
}

func lockPath(key lockmgr.ResourceKey) string {
	return "/locks/" + escape(string(key.Kind)) + "/" + escape(key.ID)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

func (l *remoteLockMgr) TryAcquire(owner string, key lockmgr.ResourceKey, timeout time.Duration) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	q := url.Values{"timeoutMs": {strconv.FormatInt(timeout.Milliseconds(), 10)}}
	var out common.AcquirePayload
	err := l.invokeAs(owner, http.MethodPost, lockPath(key)+"/acquire", q, nil, &out)
	if errors.Is(err, coord.ErrBusy) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Acquired, nil
}

func (l *remoteLockMgr) Release(owner string, key lockmgr.ResourceKey) (bool, error) {
	var out common.ReleasePayload
	if err := l.invokeAs(owner, http.MethodPost, lockPath(key)+"/release", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Released, nil
}

func (l *remoteLockMgr) IsLocked(key lockmgr.ResourceKey) (bool, error) {
	_, locked, err := l.Inspect(key)
	return locked, err
}

func (l *remoteLockMgr) Inspect(key lockmgr.ResourceKey) (lockmgr.LockRecord, bool, error) {
	var out common.LockPayload
	if err := l.invoke(http.MethodGet, lockPath(key), nil, nil, &out); err != nil {
		return lockmgr.LockRecord{}, false, err
	}
	if !out.Locked {
		return lockmgr.LockRecord{}, false, nil
	}
	rec := lockmgr.LockRecord{Kind: out.Kind, ID: out.ID, Owner: out.Owner}
	if out.AcquiredAt != nil {
		rec.AcquiredAtMs = out.AcquiredAt.UnixMilli()
	}
	return rec, true, nil
}

func (l *remoteLockMgr) CleanExpiredLocks() (int, error) {
	var out common.SweepPayload
	if err := l.invoke(http.MethodPost, "/locks/sweep", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}
