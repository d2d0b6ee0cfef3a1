// Package metrics implements the C6 component: the pipeline's counters plus
// the reporter backends that periodically drain them (spec.md §4.6).
package metrics

import (
	"context"
	"sync/atomic"
	"time"
)

// Counters holds the pipeline's three required counters and one latency
// gauge, all accessed via atomic increments per spec.md §5 "Counters are
// shared mutable state accessed via atomic increments." No third-party
// metrics-storage library covers "a handful of atomic counters with no
// transport attached" as its own concern; that concern only exists paired
// with a reporter backend, handled by the Reporter implementations below —
// this struct itself is the documented stdlib exception.
type Counters struct {
	rawCount  uint64
	goodCount uint64
	badCount  uint64

	latencySum   int64
	latencyCount int64
}

// IncRaw records one raw record pulled from the source.
func (c *Counters) IncRaw() { atomic.AddUint64(&c.rawCount, 1) }

// IncGood records one successfully enriched event.
func (c *Counters) IncGood() { atomic.AddUint64(&c.goodCount, 1) }

// IncBad records one bad row.
func (c *Counters) IncBad() { atomic.AddUint64(&c.badCount, 1) }

// ObserveLatency records one enrich latency sample (spec.md §4.4 step 7:
// "latency = now - collector_timestamp if collector timestamp is present").
func (c *Counters) ObserveLatency(d time.Duration) {
	atomic.AddInt64(&c.latencySum, int64(d/time.Millisecond))
	atomic.AddInt64(&c.latencyCount, 1)
}

// Snapshot is a point-in-time read of every counter plus the mean enrich
// latency since the pipeline started (nullable: zero samples => nil).
type Snapshot struct {
	RawCount          uint64
	GoodCount         uint64
	BadCount          uint64
	EnrichLatencyMs   *float64
}

// Snapshot reads the current counter values without resetting them.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		RawCount:  atomic.LoadUint64(&c.rawCount),
		GoodCount: atomic.LoadUint64(&c.goodCount),
		BadCount:  atomic.LoadUint64(&c.badCount),
	}
	count := atomic.LoadInt64(&c.latencyCount)
	if count > 0 {
		mean := float64(atomic.LoadInt64(&c.latencySum)) / float64(count)
		s.EnrichLatencyMs = &mean
	}
	return s
}

// Reporter periodically drains a Counters snapshot to a backend. Any number
// of reporters can run against the same Counters (spec.md §4.6: "Three
// reporter back-ends, any subset enabled").
type Reporter interface {
	Report(s Snapshot)
}

// ExceptionReporter forwards non-fatal runtime exceptions and fatal errors,
// once, immediately (spec.md §4.6). Distinct from Reporter: exceptions are
// not periodic deltas.
type ExceptionReporter interface {
	Report(err error)
}

// RunReporters starts a ticker that periodically snapshots counters and
// fans the result out to every configured Reporter, until ctx is cancelled.
// Grounded on ai-infra/internal/runner.RunWorker's poll-loop shape.
func RunReporters(ctx context.Context, counters *Counters, period time.Duration, reporters []Reporter) {
	if period <= 0 {
		period = 10 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := counters.Snapshot()
			for _, r := range reporters {
				r.Report(snap)
			}
		}
	}
}
