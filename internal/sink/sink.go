// Package sink implements the C1 component: a bounded batch buffer in front
// of a downstream publisher, with capped exponential backoff retry on
// publish failure (spec.md §4.1).
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Record is one message queued for publish: a byte payload plus an optional
// attribute map the partition key is derived from (spec.md §4.1's
// "partitionKey" attribute lookup).
type Record struct {
	Data       []byte
	Attributes map[string]string
}

// Sink accepts records for eventual delivery to a downstream stream or
// object store. Publish blocks under back-pressure (spec.md §5
// "Timeouts": "sink publish has no timeout, back-pressure instead").
type Sink interface {
	Publish(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}

// Publisher is the narrow seam a concrete Sink implementation drives to
// actually ship one batch downstream (Kafka, Kinesis, ...).
type Publisher interface {
	PublishBatch(ctx context.Context, batch []Record) error
}

// BackoffPolicy bounds the capped exponential retry loop around one batch
// publish attempt (spec.md §6 "backoffPolicy.{minBackoff,maxBackoff}").
type BackoffPolicy struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.MinBackoff <= 0 {
		p.MinBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	return p
}

// Config bounds a batcher's buffering behavior (spec.md §6: maxBatchSize,
// maxBatchBytes, delayThreshold).
type Config struct {
	MaxBatchSize   int
	MaxBatchBytes  int
	DelayThreshold time.Duration
	Backoff        BackoffPolicy
}

func (c Config) normalized() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 500
	}
	if c.MaxBatchBytes <= 0 {
		c.MaxBatchBytes = 5 * 1024 * 1024
	}
	if c.DelayThreshold <= 0 {
		c.DelayThreshold = 200 * time.Millisecond
	}
	c.Backoff = c.Backoff.normalized()
	return c
}

// batcher is the shared batch-buffer/backoff core every concrete Sink
// (Kafka, Kinesis) wraps. Grounded on kernel/internal/audit/kafka_producer.go's
// manual backoff loop, generalized from one-record-per-call to a buffered
// batch flushed on size, byte, or time thresholds.
type batcher struct {
	cfg       Config
	publisher Publisher

	mu      sync.Mutex
	pending []Record
	bytes   int
	timer   *time.Timer

	closeOnce sync.Once
	closed    bool
}

func newBatcher(cfg Config, publisher Publisher) *batcher {
	cfg = cfg.normalized()
	return &batcher{cfg: cfg, publisher: publisher}
}

// Publish enqueues rec and returns once it is buffered. When rec fills the
// batch (by count or bytes), Publish flushes it inline and returns that
// flush's result; otherwise the batch is flushed later by the delay timer.
func (b *batcher) Publish(ctx context.Context, rec Record) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("sink: publish after close")
	}
	b.pending = append(b.pending, rec)
	b.bytes += len(rec.Data)
	full := len(b.pending) >= b.cfg.MaxBatchSize || b.bytes >= b.cfg.MaxBatchBytes
	if b.timer == nil && !full {
		b.timer = time.AfterFunc(b.cfg.DelayThreshold, func() { b.flushTimer() })
	}
	b.mu.Unlock()

	if full {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flushTimer() {
	_ = b.flush(context.Background())
}

// flush publishes the current pending batch with capped exponential backoff
// retry (spec.md §4.1, §6). Called either because a size/byte threshold was
// crossed inline in Publish, or because the delay timer fired.
func (b *batcher) flush(ctx context.Context) error {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil
	b.bytes = 0
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return b.publishWithRetry(ctx, batch)
}

func (b *batcher) publishWithRetry(ctx context.Context, batch []Record) error {
	backoff := b.cfg.Backoff.MinBackoff
	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.publisher.PublishBatch(ctx, batch)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("sink: publish batch failed (last error: %w), aborted by context: %v", lastErr, ctx.Err())
		}
		backoff *= 2
		if backoff > b.cfg.Backoff.MaxBackoff {
			backoff = b.cfg.Backoff.MaxBackoff
		}
	}
}

// Close flushes any pending batch synchronously and marks the batcher
// closed to further Publish calls.
func (b *batcher) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		err = b.flush(ctx)
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
	})
	return err
}
