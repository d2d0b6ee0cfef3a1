// Package pipeline implements the Pipeline Runtime (spec.md §4.5, component
// C5): the composition of the enrich stream, the asset-update stream, and
// the reporting stream into one running process, plus the shutdown
// choreography that brings all three down cleanly.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowlattice/enrich/internal/assets"
	"github.com/flowlattice/enrich/internal/enrichment"
	"github.com/flowlattice/enrich/internal/metrics"
	"github.com/flowlattice/enrich/internal/model"
	"github.com/flowlattice/enrich/internal/pausegate"
	"github.com/flowlattice/enrich/internal/sink"
	"github.com/flowlattice/enrich/internal/source"
)

// Config bounds the enrich stream's concurrency and ordering mode (spec.md
// §4.4 "Configuration options the dispatcher respects", §4.5 "Parallelism
// semantics").
type Config struct {
	Concurrency     int
	Ordered         bool
	ReportPeriod    time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 64
	}
	if c.ReportPeriod <= 0 {
		c.ReportPeriod = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Runtime is the C5 component: it owns no state of its own beyond wiring —
// every collaborator (source, sinks, asset manager, dispatcher, counters,
// reporters) is injected by internal/environment.
type Runtime struct {
	Source       source.Source
	Gate         *pausegate.Gate
	Dispatcher   *enrichment.Dispatcher
	AssetManager *assets.Manager

	GoodSink sink.Sink
	PIISink  sink.Sink // nil when no PII sink is configured
	BadSink  sink.Sink

	Counters   *metrics.Counters
	Reporters  []metrics.Reporter
	Exceptions metrics.ExceptionReporter

	Cfg Config

	inFlight sync.WaitGroup
}

// DrainInFlight implements assets.Drainer: it blocks until every enrich task
// started before this call returns, or ctx is done. New enrich tasks are not
// started while the asset manager holds the pause gate asserted, so this is
// sufficient to make the registry swap safe (spec.md §4.3).
func (r *Runtime) DrainInFlight(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Run starts all three concurrent streams and blocks until the enrich
// stream's source is exhausted or ctx is cancelled, then executes the
// five-step shutdown choreography (spec.md §4.5). Any fatal error is
// forwarded to the exception reporter before Run returns it.
func (r *Runtime) Run(ctx context.Context) error {
	cfg := r.Cfg.normalized()
	r.AssetManager.SetDrainer(r)

	sideCtx, cancelSides := context.WithCancel(ctx)
	var sideWG sync.WaitGroup
	sideWG.Add(2)
	go func() {
		defer sideWG.Done()
		r.AssetManager.Run(sideCtx)
	}()
	go func() {
		defer sideWG.Done()
		metrics.RunReporters(sideCtx, r.Counters, cfg.ReportPeriod, r.Reporters)
	}()

	err := r.runEnrichStream(ctx, cfg)

	// Step 5: release the side streams (registry unload / metrics) now that
	// the enrich stream and its sinks are fully drained.
	cancelSides()
	sideWG.Wait()

	if err != nil && r.Exceptions != nil {
		r.Exceptions.Report(err)
	}
	return err
}

func (r *Runtime) runEnrichStream(ctx context.Context, cfg Config) error {
	// runCtx is ours to cancel: a fatal sink-publish failure (see
	// reportFatal below) cancels it so the source stops yielding new
	// records and any in-flight retry loop blocked on ctx.Done unwinds,
	// instead of the pipeline limping along past a lost record.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, err := r.Source.Stream(runCtx, r.Gate)
	if err != nil {
		return fmt.Errorf("start source stream: %w", err)
	}

	sem := make(chan struct{}, cfg.Concurrency)
	rb := newReorderBuffer()
	var seq uint64
	var taskWG sync.WaitGroup

	var fatalMu sync.Mutex
	var fatalErr error
	reportFatal := func(err error) {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		if fatalErr == nil {
			fatalErr = err
			cancel()
		}
	}

	// Step 1 (implicit): the source itself stops yielding new records once
	// runCtx is cancelled; this loop simply stops pulling when out closes.
	for rec := range out {
		r.Counters.IncRaw()
		mySeq := seq
		seq++

		sem <- struct{}{}
		r.inFlight.Add(1)
		taskWG.Add(1)
		go func(rec model.RawRecord, seq uint64) {
			defer func() {
				r.inFlight.Done()
				taskWG.Done()
			}()
			result := r.Dispatcher.Dispatch(runCtx, rec.Payload)
			emit := func() {
				// The concurrency slot is held until this record is
				// published, so ordered mode buffers at most Concurrency
				// results.
				defer func() { <-sem }()
				if err := r.publishAndAck(runCtx, rec, result); err != nil {
					reportFatal(err)
				}
			}
			if cfg.Ordered {
				rb.Complete(seq, emit)
			} else {
				emit()
			}
		}(rec, mySeq)
	}

	// Step 2: let every in-flight enrich call complete.
	taskWG.Wait()

	// Step 3 & 4: flush all sinks. Every ack has already been issued by
	// publishAndAck, but Publish returns once a record is buffered, so the
	// records still held in the sinks' internal buffers are flushed by Close.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	r.closeSinks(shutdownCtx)

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatalErr
}

// publishAndAck fans a Dispatch result's good/pii/bad outcomes out to their
// sinks in parallel, waits for all publishes to complete, then acks the
// originating raw record — the only point where an ack happens (spec.md
// §4.5 "Sink fan-out"). A publish failure on any sink — bad rows above all
// (spec.md §3: "a failure to sink a bad row is itself fatal") — is returned
// instead of acked past, so the caller can abort the pipeline rather than
// silently advance the checkpoint over a lost record.
func (r *Runtime) publishAndAck(ctx context.Context, rec model.RawRecord, result model.Result) error {
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error
	publish := func(s sink.Sink, data []byte, attrs map[string]string) {
		defer wg.Done()
		if s == nil {
			return
		}
		if err := s.Publish(ctx, sink.Record{Data: data, Attributes: attrs}); err != nil {
			wrapped := fmt.Errorf("sink publish: %w", err)
			if r.Exceptions != nil {
				r.Exceptions.Report(wrapped)
			}
			errMu.Lock()
			if firstErr == nil {
				firstErr = wrapped
			}
			errMu.Unlock()
		}
	}

	for _, e := range result.Good() {
		wg.Add(1)
		go publish(r.GoodSink, e.Serialize(), e.PartitionAttributes())
		r.Counters.IncGood()
	}
	for _, e := range result.PII() {
		wg.Add(1)
		go publish(r.PIISink, e.Serialize(), e.PartitionAttributes())
	}
	for _, b := range result.Bad() {
		wg.Add(1)
		blob, err := b.MarshalCompactJSON()
		if err != nil && r.Exceptions != nil {
			r.Exceptions.Report(fmt.Errorf("marshal bad row: %w", err))
		}
		go publish(r.BadSink, blob, nil)
		r.Counters.IncBad()
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	// Acks per-record as soon as that record's own outputs are published; no
	// additional per-partition barrier is enforced even under ordered mode.
	rec.Ack.Ack()
	return nil
}

func (r *Runtime) closeSinks(ctx context.Context) {
	for _, s := range []sink.Sink{r.GoodSink, r.PIISink, r.BadSink} {
		if s == nil {
			continue
		}
		if err := s.Close(ctx); err != nil && r.Exceptions != nil {
			r.Exceptions.Report(fmt.Errorf("close sink: %w", err))
		}
	}
}
