package lockmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// KeyPrefix is the namespace of all lock records in the property store.
const KeyPrefix = "LOCK_"

var (
	// ErrInvalidKey is returned for resource keys with an unknown kind or an empty id.
	ErrInvalidKey = errors.New("invalid lock key")
	// ErrCorruptRecord is returned when a stored lock record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt lock record")
)

// ResourceKind is the closed set of lockable resource types.
type ResourceKind string

const (
	KindProject    ResourceKind = "project"
	KindTask       ResourceKind = "task"
	KindAssignment ResourceKind = "assignment"
	// KindGlobal is the coarse lock used as a fallback around whole operations.
	KindGlobal ResourceKind = "global"
)

// GlobalKey is the single coarse lock.
var GlobalKey = ResourceKey{Kind: KindGlobal, ID: "*"}

var kinds = map[ResourceKind]struct{}{
	KindProject:    {},
	KindTask:       {},
	KindAssignment: {},
	KindGlobal:     {},
}

// ParseResourceKind converts s into a known ResourceKind.
func ParseResourceKind(s string) (ResourceKind, error) {
	k := ResourceKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("%w: unknown resource kind %q", ErrInvalidKey, s)
	}
	return k, nil
}

// ResourceKey identifies a lockable resource.
type ResourceKey struct {
	Kind ResourceKind
	ID   string
}

func (k ResourceKey) String() string {
	return string(k.Kind) + "/" + k.ID
}

// Validate checks that the kind is known and the id is not empty.
func (k ResourceKey) Validate() error {
	if _, ok := kinds[k.Kind]; !ok {
		return fmt.Errorf("%w: unknown resource kind %q", ErrInvalidKey, k.Kind)
	}
	if k.ID == "" {
		return fmt.Errorf("%w: empty resource id", ErrInvalidKey)
	}
	return nil
}

// StoreKey returns the property store key for k.
func (k ResourceKey) StoreKey() string {
	return KeyPrefix + string(k.Kind) + "_" + url.PathEscape(k.ID)
}

// ParseStoreKey is the inverse of ResourceKey.StoreKey.
func ParseStoreKey(s string) (ResourceKey, error) {
	rest, ok := strings.CutPrefix(s, KeyPrefix)
	if !ok {
		return ResourceKey{}, fmt.Errorf("%w: missing prefix in %q", ErrInvalidKey, s)
	}
	kind, escaped, ok := strings.Cut(rest, "_")
	if !ok {
		return ResourceKey{}, fmt.Errorf("%w: missing id in %q", ErrInvalidKey, s)
	}
	id, err := url.PathUnescape(escaped)
	if err != nil {
		return ResourceKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key := ResourceKey{Kind: ResourceKind(kind), ID: id}
	return key, key.Validate()
}

// LockRecord is the value stored for a held lock.
type LockRecord struct {
	Kind         ResourceKind `json:"kind"`
	ID           string       `json:"id"`
	Owner        string       `json:"owner"`
	AcquiredAtMs int64        `json:"acquiredAtMs"`
	// Token is unique per acquisition, so two records of the same owner never compare equal.
	Token string `json:"token"`
}

// AcquiredAt returns the acquisition time.
func (r LockRecord) AcquiredAt() time.Time {
	return time.UnixMilli(r.AcquiredAtMs)
}

// Age returns how long the lock has been held at now.
func (r LockRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt())
}

func (r LockRecord) encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRecord(raw string) (LockRecord, error) {
	var r LockRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return LockRecord{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if r.Owner == "" || r.AcquiredAtMs <= 0 {
		return LockRecord{}, fmt.Errorf("%w: missing owner or timestamp", ErrCorruptRecord)
	}
	return r, nil
}
