package lockmgr

import (
	"time"

	"github.com/google/uuid"
)

// newToken creates a unique acquisition token.
func newToken() string {
	return uuid.NewString()
}

// nextBackoff grows the polling delay by factor, capped at max.
func nextBackoff(cur time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(cur) * factor)
	if next > max {
		return max
	}
	return next
}
