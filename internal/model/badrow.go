package model

import (
	"encoding/base64"
	"time"

	"github.com/flowlattice/enrich/internal/canonical"
)

// BadRowKind tags why a record failed (spec.md §3, §7).
type BadRowKind string

const (
	KindCPFormatViolation  BadRowKind = "cpformat-violation"
	KindSchemaViolation    BadRowKind = "schema-violation"
	KindEnrichmentFailure  BadRowKind = "enrichment-failure"
	KindSizeViolation      BadRowKind = "size-violation"
	KindGenericError       BadRowKind = "generic-error"
)

// Processor identifies the enrichment build that produced a bad row.
type Processor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BadRow is a tagged failure record (spec.md §3). Payload is either the
// original bytes (base64-encoded) or a truncated serialized string,
// depending on Kind; Failures is always non-empty.
type BadRow struct {
	Kind      BadRowKind `json:"kind"`
	Payload   string     `json:"payload"`
	Processor Processor  `json:"processor"`
	Timestamp time.Time  `json:"timestamp"`
	Failures  []string   `json:"failures"`
}

// NewRawPayloadBadRow builds a bad row whose payload is the base64 encoding
// of the original raw bytes — used for cpformat-violation and generic-error,
// where the failure happened before (or entirely outside of) enrichment.
func NewRawPayloadBadRow(kind BadRowKind, raw []byte, proc Processor, failures ...string) BadRow {
	return BadRow{
		Kind:      kind,
		Payload:   base64.StdEncoding.EncodeToString(raw),
		Processor: proc,
		Timestamp: time.Now().UTC(),
		Failures:  failures,
	}
}

// NewTruncatedPayloadBadRow builds a size-violation bad row whose payload is
// the first ceiling/10 characters of the serialized event (spec.md §4.4 step 5b).
func NewTruncatedPayloadBadRow(serialized []byte, ceiling int, proc Processor, failures ...string) BadRow {
	limit := ceiling / 10
	s := string(serialized)
	if len(s) > limit {
		s = s[:limit]
	}
	return BadRow{
		Kind:      KindSizeViolation,
		Payload:   s,
		Processor: proc,
		Timestamp: time.Now().UTC(),
		Failures:  failures,
	}
}

// NewEnrichmentFailureBadRow aggregates every failure message for one event
// into a single bad row (spec.md §4.4 step 4: "a single failure for one
// event aggregates all that event's failures into one enrichment-failure bad
// row").
func NewEnrichmentFailureBadRow(payload string, proc Processor, failures []string) BadRow {
	return BadRow{
		Kind:      KindEnrichmentFailure,
		Payload:   payload,
		Processor: proc,
		Timestamp: time.Now().UTC(),
		Failures:  failures,
	}
}

// NewSchemaViolationBadRow builds a bad row for a collector-attached context
// or unstructured event envelope that failed schema validation (spec.md §7
// taxonomy: "schema-violation" | validator | bad sink).
func NewSchemaViolationBadRow(payload string, proc Processor, failures []string) BadRow {
	return BadRow{
		Kind:      KindSchemaViolation,
		Payload:   payload,
		Processor: proc,
		Timestamp: time.Now().UTC(),
		Failures:  failures,
	}
}

// MarshalCompactJSON renders the bad row as a single-line compact JSON
// document (spec.md §3, §6), with deterministic key ordering.
func (b BadRow) MarshalCompactJSON() ([]byte, error) {
	doc := map[string]interface{}{
		"kind":    string(b.Kind),
		"payload": b.Payload,
		"processor": map[string]interface{}{
			"name":    b.Processor.Name,
			"version": b.Processor.Version,
		},
		"timestamp": b.Timestamp.Format(time.RFC3339Nano),
		"failures":  toInterfaceSlice(b.Failures),
	}
	return canonical.Marshal(doc)
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
