package occ

import (
	"errors"
	"fmt"
	"time"
)

// DefaultTolerance absorbs clock and serialization rounding.
const DefaultTolerance = time.Second

// ErrConflict is matched by every *ConflictError.
var ErrConflict = errors.New("concurrent modification")

// ConflictError reports that a record changed since the caller last read it.
type ConflictError struct {
	Resource  string
	ID        string
	Persisted Timestamp
	Known     Timestamp
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified at %s, but the request is based on %s; reload and retry",
		e.Resource, e.ID, e.Persisted, e.Known)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// CheckConflict reports whether a write based on known must be rejected because
// the persisted version differs by more than tolerance. An absent timestamp on
// either side never conflicts.
func CheckConflict(persisted, known Timestamp, tolerance time.Duration) bool {
	if !persisted.Valid || !known.Valid {
		return false
	}
	diff := persisted.Ms - known.Ms
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance.Milliseconds()
}

// Guard applies CheckConflict with a fixed tolerance.
type Guard struct {
	Tolerance time.Duration
}

// NewGuard returns a guard with DefaultTolerance.
func NewGuard() Guard {
	return Guard{Tolerance: DefaultTolerance}
}

// Check returns a *ConflictError if the write must be rejected.
func (g Guard) Check(resource, id string, persisted, known Timestamp) error {
	if CheckConflict(persisted, known, g.Tolerance) {
		return &ConflictError{Resource: resource, ID: id, Persisted: persisted, Known: known}
	}
	return nil
}
