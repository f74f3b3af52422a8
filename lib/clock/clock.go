// Package clock abstracts wall-clock reads and sleeps so that the polling and
// backoff loops of the lock manager and the retry executor can be driven by
// virtual time in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and a way to suspend the calling goroutine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Sleep suspends the caller for d. Non-positive durations return immediately.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// EpochMs returns t as milliseconds since the unix epoch.
func EpochMs(t time.Time) int64 {
	return t.UnixMilli()
}

// --------------------------------------------------------------------------
// Fake clock
// --------------------------------------------------------------------------

// Fake is a deterministic Clock. Sleep does not block, it advances the
// virtual time by the requested duration and records it.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

// NewFake creates a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	hook := f.onSleep
	f.mu.Unlock()

	if hook != nil {
		hook(d)
	}
}

// Advance moves the virtual time forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Sleeps returns a copy of all durations passed to Sleep so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// OnSleep registers a hook that runs after every Sleep (outside the lock).
// Tests use it to interleave a second caller while the first one backs off.
func (f *Fake) OnSleep(hook func(d time.Duration)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSleep = hook
}
