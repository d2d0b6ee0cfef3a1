package model

import "time"

// CollectorPayload is the decoded structured form of one raw record (spec.md
// §3 "Collector payload"): contextual metadata plus zero-or-more logical
// events. Produced by the external Decoder the dispatcher is handed at
// construction time.
type CollectorPayload struct {
	CollectorTimestamp time.Time
	SourceIP           string
	Headers            map[string]string
	Events             []RawEvent
}

// RawEvent is one logical event out of a (possibly batched) collector
// payload, still in the collector's raw field-name form, before any
// enrichment has touched it. Fields holds the flat key/value pairs the
// external decoder extracted (e.g. "e", "aid", "tv", "eid", ...); ContextsJSON
// and UnstructJSON carry the event's optional self-describing JSON envelopes
// verbatim, for schema validation before being folded into an EnrichedEvent.
type RawEvent struct {
	Fields       map[string]string
	ContextsJSON string
	UnstructJSON string
}
