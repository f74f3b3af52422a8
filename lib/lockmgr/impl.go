package lockmgr

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dCoord/lib/clock"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

// Options configures a lock manager. The zero value of any field selects its default.
type Options struct {
	Clock          clock.Clock
	StaleAfter     time.Duration // default 120s
	InitialBackoff time.Duration // default 200ms
	BackoffFactor  float64       // default 1.5
	MaxBackoff     time.Duration // default 1s
}

// DefaultOptions returns the default lock manager settings.
func DefaultOptions() Options {
	return Options{
		Clock:          clock.Real(),
		StaleAfter:     120 * time.Second,
		InitialBackoff: 200 * time.Millisecond,
		BackoffFactor:  1.5,
		MaxBackoff:     time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = d.StaleAfter
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = d.BackoffFactor
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	return o
}

type lockMgrImpl struct {
	store props.IPropertyStore
	cas   props.IConditionalStore // nil if the store has no conditional write
	opts  Options

	// test hooks around the record write
	beforeWrite func(key ResourceKey)
	afterWrite  func(key ResourceKey)
}

// NewLockManager creates a lock manager on store. The returned value also
// implements ITokenLockManager.
func NewLockManager(store props.IPropertyStore, opts Options) ILockManager {
	return newLockManager(store, opts)
}

func newLockManager(store props.IPropertyStore, opts Options) *lockMgrImpl {
	cas, _ := props.AsConditional(store)
	return &lockMgrImpl{
		store: store,
		cas:   cas,
		opts:  opts.withDefaults(),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see interface.go)
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) TryAcquire(owner string, key ResourceKey, timeout time.Duration) (bool, error) {
	_, ok, err := lm.AcquireToken(owner, key, timeout)
	return ok, err
}

func (lm *lockMgrImpl) AcquireToken(owner string, key ResourceKey, timeout time.Duration) (string, bool, error) {
	if err := key.Validate(); err != nil {
		return "", false, err
	}
	if owner == "" {
		return "", false, fmt.Errorf("%w: empty owner", ErrInvalidKey)
	}

	start := lm.opts.Clock.Now()
	deadline := start.Add(timeout)
	backoff := lm.opts.InitialBackoff

	for {
		token, ok, err := lm.attempt(owner, key)
		if err != nil {
			countAcquire(key, "error")
			return "", false, err
		}
		if ok {
			countAcquire(key, "acquired")
			observeWait(key, lm.opts.Clock.Now().Sub(start))
			log.Debugf("lock %s acquired by %s", key, owner)
			return token, true, nil
		}

		remaining := deadline.Sub(lm.opts.Clock.Now())
		if remaining <= 0 {
			countAcquire(key, "timeout")
			log.Debugf("lock %s: %s gave up after %s", key, owner, timeout)
			return "", false, nil
		}

		lm.opts.Clock.Sleep(min(backoff, remaining))
		backoff = nextBackoff(backoff, lm.opts.BackoffFactor, lm.opts.MaxBackoff)
	}
}

func (lm *lockMgrImpl) Release(owner string, key ResourceKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	sk := key.StoreKey()

	raw, found, err := lm.store.Get(sk)
	if err != nil {
		return false, err
	}
	if !found {
		log.Debugf("release %s by %s: no lock present", key, owner)
		return false, nil
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		log.Warningf("release %s by %s: removing undecodable record: %v", key, owner, err)
		if err := lm.store.Delete(sk); err != nil {
			return false, err
		}
		countRelease(key, "corrupt")
		return true, nil
	}

	if rec.Owner != owner {
		log.Warningf("release %s by %s refused: lock is held by %s", key, owner, rec.Owner)
		countRelease(key, "not_owner")
		return false, nil
	}

	if err := lm.store.Delete(sk); err != nil {
		return false, err
	}
	countRelease(key, "released")
	log.Debugf("lock %s released by %s", key, owner)
	return true, nil
}

func (lm *lockMgrImpl) ReleaseToken(key ResourceKey, token string) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	if token == "" {
		return false, fmt.Errorf("%w: empty token", ErrInvalidKey)
	}
	sk := key.StoreKey()

	raw, found, err := lm.store.Get(sk)
	if err != nil || !found {
		return false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil || rec.Token != token {
		log.Warningf("release %s refused: record does not carry the holder's token", key)
		countRelease(key, "not_owner")
		return false, nil
	}

	if err := lm.store.Delete(sk); err != nil {
		return false, err
	}
	countRelease(key, "released")
	log.Debugf("lock %s released by %s", key, rec.Owner)
	return true, nil
}

func (lm *lockMgrImpl) IsLocked(key ResourceKey) (bool, error) {
	_, found, err := lm.Inspect(key)
	return found, err
}

func (lm *lockMgrImpl) Inspect(key ResourceKey) (LockRecord, bool, error) {
	if err := key.Validate(); err != nil {
		return LockRecord{}, false, err
	}
	raw, found, err := lm.store.Get(key.StoreKey())
	if err != nil || !found {
		return LockRecord{}, false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil || lm.isStale(rec) {
		return LockRecord{}, false, nil
	}
	return rec, true, nil
}

func (lm *lockMgrImpl) CleanExpiredLocks() (int, error) {
	keys, err := props.ListKeysWithPrefix(lm.store, KeyPrefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, sk := range keys {
		raw, found, err := lm.store.Get(sk)
		if err != nil {
			return removed, err
		}
		if !found {
			continue
		}
		rec, decErr := decodeRecord(raw)
		if decErr == nil && !lm.isStale(rec) {
			continue
		}
		if err := lm.store.Delete(sk); err != nil {
			return removed, err
		}
		removed++
		if decErr != nil {
			log.Infof("sweep removed corrupt lock record %s", sk)
		} else {
			log.Infof("sweep removed stale lock %s held by %s", sk, rec.Owner)
		}
	}
	if removed > 0 {
		metrics.GetOrCreateCounter(`dcoord_lock_swept_total`).Add(removed)
	}
	return removed, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// attempt makes one acquisition attempt. Stale or corrupt records are
// reclaimed and the attempt is repeated right away.
func (lm *lockMgrImpl) attempt(owner string, key ResourceKey) (string, bool, error) {
	sk := key.StoreKey()

	for {
		raw, found, err := lm.store.Get(sk)
		if err != nil {
			return "", false, err
		}
		if !found {
			break
		}

		rec, decErr := decodeRecord(raw)
		if decErr == nil && !lm.isStale(rec) {
			return "", false, nil
		}

		reclaimed, err := lm.reclaim(sk, raw)
		if err != nil {
			return "", false, err
		}
		if decErr != nil {
			log.Warningf("lock %s: reclaiming undecodable record", key)
		} else {
			log.Infof("lock %s: reclaiming stale lock of %s (age %s)", key, rec.Owner, rec.Age(lm.opts.Clock.Now()))
		}
		if reclaimed {
			metrics.GetOrCreateCounter(fmt.Sprintf(`dcoord_lock_reclaimed_total{kind=%q}`, key.Kind)).Inc()
		}
	}

	if lm.beforeWrite != nil {
		lm.beforeWrite(key)
	}

	rec := LockRecord{
		Kind:         key.Kind,
		ID:           key.ID,
		Owner:        owner,
		AcquiredAtMs: clock.EpochMs(lm.opts.Clock.Now()),
		Token:        newToken(),
	}
	value, err := rec.encode()
	if err != nil {
		return "", false, err
	}

	if lm.cas != nil {
		stored, err := lm.cas.SetIfUnset(sk, value)
		if err != nil || !stored {
			return "", false, err
		}
		return rec.Token, true, nil
	}

	if err := lm.store.Set(sk, value); err != nil {
		return "", false, err
	}
	if lm.afterWrite != nil {
		lm.afterWrite(key)
	}
	// read back to detect a concurrent writer
	stored, found, err := lm.store.Get(sk)
	if err != nil {
		return "", false, err
	}
	if !found || stored != value {
		return "", false, nil
	}
	return rec.Token, true, nil
}

// reclaim deletes the record at sk if it still holds raw.
// The comparison and the delete are not atomic.
func (lm *lockMgrImpl) reclaim(sk, raw string) (bool, error) {
	cur, found, err := lm.store.Get(sk)
	if err != nil {
		return false, err
	}
	if !found || cur != raw {
		return false, nil
	}
	if err := lm.store.Delete(sk); err != nil {
		return false, err
	}
	return true, nil
}

func (lm *lockMgrImpl) isStale(rec LockRecord) bool {
	return rec.Age(lm.opts.Clock.Now()) > lm.opts.StaleAfter
}

func countAcquire(key ResourceKey, result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dcoord_lock_acquire_total{kind=%q,result=%q}`, key.Kind, result)).Inc()
}

func countRelease(key ResourceKey, result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dcoord_lock_release_total{kind=%q,result=%q}`, key.Kind, result)).Inc()
}

func observeWait(key ResourceKey, d time.Duration) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dcoord_lock_wait_seconds{kind=%q}`, key.Kind)).Update(d.Seconds())
}
