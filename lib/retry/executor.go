package retry

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ValentinKolb/dCoord/lib/clock"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("retry")

// MaxJitter is the exclusive upper bound of the random delay added to every backoff.
const MaxJitter = 200 * time.Millisecond

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Policy   string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Policy, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Executor runs operations under a Policy.
type Executor struct {
	clock  clock.Clock
	jitter func() time.Duration
}

// NewExecutor creates an executor that sleeps on c.
func NewExecutor(c clock.Clock) *Executor {
	if c == nil {
		c = clock.Real()
	}
	return &Executor{
		clock:  c,
		jitter: func() time.Duration { return rand.N(MaxJitter) },
	}
}

// WithJitter replaces the jitter source. f must return values in [0, MaxJitter).
func (e *Executor) WithJitter(f func() time.Duration) *Executor {
	e.jitter = f
	return e
}

// Do runs op under p.
func (e *Executor) Do(p Policy, op func() error) error {
	_, err := Execute(e, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Execute runs op under p and returns its first successful result.
func Execute[T any](e *Executor, p Policy, op func() (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	for attempt := 1; ; attempt++ {
		res, err := op()
		if err == nil {
			if attempt > 1 {
				log.Debugf("%s: succeeded on attempt %d", p.Name, attempt)
			}
			return res, nil
		}

		if !p.retryable(err) {
			return zero, err
		}
		if attempt >= maxAttempts {
			metrics.GetOrCreateCounter(fmt.Sprintf(`dcoord_retry_exhausted_total{policy=%q}`, p.Name)).Inc()
			log.Warningf("%s: all %d attempts failed, last error: %v", p.Name, maxAttempts, err)
			return zero, &ExhaustedError{Policy: p.Name, Attempts: attempt, Last: err}
		}

		delay := p.Delay(attempt, e.jitter())
		metrics.GetOrCreateCounter(fmt.Sprintf(`dcoord_retry_attempts_total{policy=%q}`, p.Name)).Inc()
		log.Infof("%s: attempt %d/%d failed (%v), retrying in %s", p.Name, attempt, maxAttempts, err, delay)
		e.clock.Sleep(delay)
	}
}
