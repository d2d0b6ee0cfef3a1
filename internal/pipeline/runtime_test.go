package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flowlattice/enrich/internal/assets"
	"github.com/flowlattice/enrich/internal/enrichment"
	"github.com/flowlattice/enrich/internal/metrics"
	"github.com/flowlattice/enrich/internal/model"
	"github.com/flowlattice/enrich/internal/pausegate"
	"github.com/flowlattice/enrich/internal/registry"
	"github.com/flowlattice/enrich/internal/sink"
	"github.com/flowlattice/enrich/internal/source"
)

type fakeSource struct {
	records []model.RawRecord
}

func (f *fakeSource) Stream(ctx context.Context, gate *pausegate.Gate) (<-chan model.RawRecord, error) {
	out := make(chan model.RawRecord)
	go func() {
		defer close(out)
		for _, rec := range f.records {
			gate.Wait(ctx.Done())
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type countingAck struct {
	mu     *sync.Mutex
	counts *int
}

func (a countingAck) Ack() {
	a.mu.Lock()
	defer a.mu.Unlock()
	*a.counts++
}

type fakeSink struct {
	mu        sync.Mutex
	published [][]byte
	attrs     []map[string]string
	closed    bool
}

func (f *fakeSink) Publish(ctx context.Context, rec sink.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, rec.Data)
	f.attrs = append(f.attrs, rec.Attributes)
	return nil
}

func (f *fakeSink) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeSink) attrsAt(i int) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs[i]
}

// errSink always fails to publish, modelling an unrecoverable broker outage
// after the batcher's retry budget has already been exhausted by the caller.
type errSink struct {
	mu        sync.Mutex
	publishes int
	err       error
}

func (s *errSink) Publish(ctx context.Context, rec sink.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishes++
	return s.err
}

func (s *errSink) Close(ctx context.Context) error { return nil }

type fakeDecoder struct{}

func (fakeDecoder) Decode(raw []byte) (*model.CollectorPayload, error) {
	return &model.CollectorPayload{
		Events: []model.RawEvent{{Fields: map[string]string{"app_id": string(raw)}}},
	}, nil
}

// eventIDDecoder decodes the raw payload straight into the event_id field,
// so tests can assert on the partition-key attribute it produces.
type eventIDDecoder struct{}

func (eventIDDecoder) Decode(raw []byte) (*model.CollectorPayload, error) {
	return &model.CollectorPayload{
		Events: []model.RawEvent{{Fields: map[string]string{"event_id": string(raw)}}},
	}, nil
}

// failDecoder always fails, so every record becomes a bad row.
type failDecoder struct{}

func (failDecoder) Decode(raw []byte) (*model.CollectorPayload, error) {
	return nil, fmt.Errorf("malformed payload")
}

func newTestRuntime(t *testing.T, recs []model.RawRecord) (*Runtime, *fakeSink, *fakeSink, *fakeSink) {
	t.Helper()
	gate := pausegate.New()

	mgr, err := assets.NewManager(nil, assets.Config{
		Build: func(paths map[string]string) *registry.Registry {
			return registry.New(nil, paths)
		},
		Gate:   gate,
		Period: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if err := mgr.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad error: %v", err)
	}

	good, pii, bad := &fakeSink{}, &fakeSink{}, &fakeSink{}
	rt := &Runtime{
		Source: &fakeSource{records: recs},
		Gate:   gate,
		Dispatcher: &enrichment.Dispatcher{
			Decoder:  fakeDecoder{},
			Registry: mgr,
		},
		AssetManager: mgr,
		GoodSink:     good,
		PIISink:      pii,
		BadSink:      bad,
		Counters:     &metrics.Counters{},
		Cfg:          Config{Concurrency: 4, ReportPeriod: time.Hour, ShutdownTimeout: time.Second},
	}
	return rt, good, pii, bad
}

func TestRuntimePublishesAndAcksEachRecord(t *testing.T) {
	var mu sync.Mutex
	acked := 0
	recs := []model.RawRecord{
		{Payload: []byte("app-a"), Ack: countingAck{mu: &mu, counts: &acked}},
		{Payload: []byte("app-b"), Ack: countingAck{mu: &mu, counts: &acked}},
	}
	rt, good, _, _ := newTestRuntime(t, recs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if good.count() != 2 {
		t.Fatalf("expected 2 good records published, got %d", good.count())
	}
	if acked != 2 {
		t.Fatalf("expected 2 acks, got %d", acked)
	}
	if !good.closed {
		t.Fatal("expected good sink to be closed on shutdown")
	}
}

func TestRuntimeCountersReflectThroughput(t *testing.T) {
	var mu sync.Mutex
	acked := 0
	recs := []model.RawRecord{
		{Payload: []byte("app-a"), Ack: countingAck{mu: &mu, counts: &acked}},
	}
	rt, _, _, _ := newTestRuntime(t, recs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	snap := rt.Counters.Snapshot()
	if snap.RawCount != 1 || snap.GoodCount != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestRuntimeDrainInFlightBlocksUntilTasksFinish(t *testing.T) {
	rt, _, _, _ := newTestRuntime(t, nil)
	rt.inFlight.Add(1)

	done := make(chan struct{})
	go func() {
		rt.DrainInFlight(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected DrainInFlight to block while a task is in flight")
	case <-time.After(30 * time.Millisecond):
	}

	rt.inFlight.Done()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected DrainInFlight to return once the in-flight task finished")
	}
}

func TestRuntimePopulatesPartitionAttributesFromEnrichedEvent(t *testing.T) {
	var mu sync.Mutex
	acked := 0
	recs := []model.RawRecord{
		{Payload: []byte("evt-123"), Ack: countingAck{mu: &mu, counts: &acked}},
	}
	rt, good, _, _ := newTestRuntime(t, recs)
	rt.Dispatcher = &enrichment.Dispatcher{Decoder: eventIDDecoder{}, Registry: rt.AssetManager}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if got := good.attrsAt(0)["event_id"]; got != "evt-123" {
		t.Fatalf("expected event_id attribute %q, got %q", "evt-123", got)
	}
}

func TestRuntimeAbortsWhenBadSinkPublishFails(t *testing.T) {
	var mu sync.Mutex
	acked := 0
	recs := []model.RawRecord{
		{Payload: []byte("app-a"), Ack: countingAck{mu: &mu, counts: &acked}},
	}
	rt, _, _, _ := newTestRuntime(t, recs)
	rt.Dispatcher = &enrichment.Dispatcher{Decoder: failDecoder{}, Registry: rt.AssetManager}
	rt.BadSink = &errSink{err: fmt.Errorf("broker unreachable")}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rt.Run(ctx); err == nil {
		t.Fatal("expected Run to return a fatal error when the bad sink fails to publish")
	}
	if acked != 0 {
		t.Fatalf("expected the record not to be acked after a failed bad-row publish, got %d acks", acked)
	}
}
