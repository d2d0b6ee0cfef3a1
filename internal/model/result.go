package model

// Outcome is one element of a Result: exactly one of Event or Bad is set. PII
// distinguishes a good outcome's derived PII event (spec.md §4.4 step 6)
// from the plain enriched event it was split from — both share the Event
// field, since they're the same shape, just routed to different sinks.
type Outcome struct {
	Event *EnrichedEvent
	PII   bool
	Bad   *BadRow
}

// IsGood reports whether this outcome is a successfully enriched event.
func (o Outcome) IsGood() bool { return o.Event != nil }

// Result is the ordered list of outcomes produced for one raw record
// (spec.md §3). A single raw record may expand into many outcomes because a
// batched collector payload carries many logical events.
type Result struct {
	Outcomes []Outcome
}

// Good returns every plain (non-PII) enriched event in the result, in order.
func (r Result) Good() []*EnrichedEvent {
	var out []*EnrichedEvent
	for _, o := range r.Outcomes {
		if o.Event != nil && !o.PII {
			out = append(out, o.Event)
		}
	}
	return out
}

// PII returns every derived PII event in the result, in order.
func (r Result) PII() []*EnrichedEvent {
	var out []*EnrichedEvent
	for _, o := range r.Outcomes {
		if o.Event != nil && o.PII {
			out = append(out, o.Event)
		}
	}
	return out
}

// Bad returns every bad row in the result, in order.
func (r Result) Bad() []*BadRow {
	var out []*BadRow
	for _, o := range r.Outcomes {
		if o.Bad != nil {
			out = append(out, o.Bad)
		}
	}
	return out
}
