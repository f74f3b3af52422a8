package coord

import (
	"fmt"
	"sort"
	"time"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// TimerStats is a snapshot of one operation timer.
type TimerStats struct {
	Count  int64   `json:"count"`
	MeanMs float64 `json:"meanMs"`
	P50Ms  float64 `json:"p50Ms"`
	P99Ms  float64 `json:"p99Ms"`
	MaxMs  float64 `json:"maxMs"`
}

// Stats keeps in-process timers for every coordinator operation.
type Stats struct {
	registry gometrics.Registry
}

func newStats() *Stats {
	return &Stats{registry: gometrics.NewRegistry()}
}

func (s *Stats) observe(op string, outcome Outcome, start time.Time) {
	gometrics.GetOrRegisterTimer(op, s.registry).UpdateSince(start)
	metrics.GetOrCreateCounter(fmt.Sprintf(`dcoord_coord_operations_total{op=%q,outcome=%q}`, op, outcome)).Inc()
}

// Snapshot returns the timers by operation name.
func (s *Stats) Snapshot() map[string]TimerStats {
	out := make(map[string]TimerStats)
	s.registry.Each(func(name string, m interface{}) {
		t, ok := m.(gometrics.Timer)
		if !ok {
			return
		}
		snap := t.Snapshot()
		ps := snap.Percentiles([]float64{0.5, 0.99})
		out[name] = TimerStats{
			Count:  snap.Count(),
			MeanMs: snap.Mean() / float64(time.Millisecond),
			P50Ms:  ps[0] / float64(time.Millisecond),
			P99Ms:  ps[1] / float64(time.Millisecond),
			MaxMs:  float64(snap.Max()) / float64(time.Millisecond),
		}
	})
	return out
}

// Operations returns the names of all operations observed so far.
func (s *Stats) Operations() []string {
	names := make([]string, 0)
	s.registry.Each(func(name string, _ interface{}) {
		names = append(names, name)
	})
	sort.Strings(names)
	return names
}
