// Package model holds the data types that flow through the enrichment
// pipeline: raw records pulled from the source, the canonical enriched
// event, bad rows, and the per-record result list described in spec.md §3.
package model

// AckHandle commits progress up to one raw record. Ack is idempotent and
// fire-and-forget from the caller's perspective — the source implementation
// (Kinesis KCL checkpointer, Kafka consumer-group commit, ...) is responsible
// for turning it into an actual commit, possibly batched.
type AckHandle interface {
	Ack()
}

// NoopAckHandle is a no-op AckHandle, useful for tests and for sources that
// have no checkpoint of their own (e.g. replaying a local file).
type NoopAckHandle struct{}

// Ack implements AckHandle.
func (NoopAckHandle) Ack() {}

// RawRecord is one opaque payload pulled from the source, paired with the
// handle that commits it once all derived outputs have been published.
type RawRecord struct {
	Payload []byte
	Ack     AckHandle
}
