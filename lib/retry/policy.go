package retry

import (
	"errors"
	"strings"
	"time"
)

// Policy configures one retry loop.
type Policy struct {
	// Name is used in logs and metrics.
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// IsRetryable decides whether a failed attempt may be repeated. Nil retries everything.
	IsRetryable func(error) bool
}

// Delay returns the sleep after the given failed attempt (1-based).
func (p Policy) Delay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	d += jitter
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if p.IsRetryable == nil {
		return true
	}
	return p.IsRetryable(err)
}

// --------------------------------------------------------------------------
// Presets
// --------------------------------------------------------------------------

var fileStoreTerms = []string{
	"rate limit", "ratelimit", "too many requests", "quota",
	"timeout", "timed out", "deadline exceeded",
	"unavailable", "temporarily", "try again",
	"connection reset", "connection refused", "broken pipe",
	"backend error", "service error", "internal error",
}

var tableStoreTerms = []string{
	"timeout", "timed out", "unavailable", "rate limit", "service error", "try again",
}

// FileStorePolicy is tuned for the hierarchical file store: many attempts, long backoff
// and a wide set of transient error classes.
func FileStorePolicy() Policy {
	return Policy{
		Name:        "files",
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    16 * time.Second,
		IsRetryable: Classifier(fileStoreTerms...),
	}
}

// TableStorePolicy is tuned for the tabular store: fewer attempts, shorter backoff
// and only timeouts and unavailability are retried.
func TableStorePolicy() Policy {
	return Policy{
		Name:        "tables",
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		IsRetryable: Classifier(tableStoreTerms...),
	}
}

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

type permanent interface{ Permanent() bool }

type temporary interface{ Temporary() bool }

// Classifier builds an IsRetryable function.
// Errors that declare themselves permanent are never retried, errors that declare
// themselves temporary follow that declaration, and all other errors are retried
// if their message contains one of terms (case-insensitive).
func Classifier(terms ...string) func(error) bool {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		var p permanent
		if errors.As(err, &p) && p.Permanent() {
			return false
		}
		var t temporary
		if errors.As(err, &t) {
			return t.Temporary()
		}
		msg := strings.ToLower(err.Error())
		for _, term := range lowered {
			if strings.Contains(msg, term) {
				return true
			}
		}
		return false
	}
}
