// Package enrichment implements the Enrichment Dispatcher (spec.md §4.4,
// component C4): decode -> validate -> per-event enrichment chain ->
// serialize -> size-ceiling demotion -> PII derivation, for one raw payload
// at a time. The dispatcher never throws to its caller; any unexpected panic
// inside an enrichment is converted to a generic-error bad row and forwarded
// to the exception reporter.
package enrichment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowlattice/enrich/internal/metrics"
	"github.com/flowlattice/enrich/internal/model"
	"github.com/flowlattice/enrich/internal/registry"
)

// DefaultSizeCeiling is the per-record payload ceiling targeting a 10 MB
// broker record limit after base64 expansion and PutRecords overhead (spec.md
// §6 "Size limits": "≈ 6.9 MB"). Sinks with a different broker limit can
// override it per Dispatcher.
const DefaultSizeCeiling = 6_900_000

// Decoder turns one raw payload byte buffer into a CollectorPayload. An
// external collaborator per spec.md §1 ("the collector payload binary
// decoder" is deliberately out of scope); the dispatcher only depends on this
// interface.
type Decoder interface {
	Decode(raw []byte) (*model.CollectorPayload, error)
}

// SchemaClient validates a self-describing JSON envelope's data against its
// declared schema. An external collaborator per spec.md §1/§6
// ("SchemaClient.validate(json, schemaKey)").
type SchemaClient interface {
	Validate(schemaKey string, data interface{}) error
}

// PIIExtractor derives a PII event from a fully enriched event, or reports
// none found. The exact extraction rule is an external collaborator's
// contract (spec.md §9 Open Question): callers must supply the canonical
// implementation, not reinvent one here.
type PIIExtractor interface {
	ExtractPII(event model.EnrichedEvent) (model.EnrichedEvent, bool)
}

// ExceptionReporter forwards best-effort exception reports (spec.md §6
// "ExceptionSink.report(throwable)").
type ExceptionReporter interface {
	Report(err error)
}

// RegistrySource hands the dispatcher the current enrichment registry
// snapshot. assets.Manager satisfies this directly; the dispatcher takes a
// single read per Dispatch call so one call never observes a torn registry
// (spec.md §4.4 step 3).
type RegistrySource interface {
	Registry() *registry.Registry
}

// Dispatcher is the C4 component. All fields besides Ceiling and Processor
// are external collaborators, injected by internal/environment.
type Dispatcher struct {
	Decoder      Decoder
	SchemaClient SchemaClient
	PII          PIIExtractor
	Reporter     ExceptionReporter
	Registry     RegistrySource
	Counters     *metrics.Counters
	Ceiling      int
	Processor    model.Processor
}

const (
	contextsSchemaKey = "contexts"
	unstructSchemaKey = "unstruct_event"
)

type jsonEnvelope struct {
	Schema string          `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

// Dispatch implements spec.md §4.4's algorithm for one raw record. It never
// returns an error: every failure mode is represented as a bad row in the
// returned Result.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (result model.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in enrichment dispatch: %v", r)
			d.report(err)
			result = model.Result{Outcomes: []model.Outcome{
				{Bad: rawPayloadBadRow(model.KindGenericError, raw, d.Processor, err.Error())},
			}}
		}
	}()

	payload, err := d.Decoder.Decode(raw)
	if err != nil {
		bad := rawPayloadBadRow(model.KindCPFormatViolation, raw, d.Processor, err.Error())
		return model.Result{Outcomes: []model.Outcome{{Bad: bad}}}
	}

	reg := d.Registry.Registry()
	ceiling := d.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultSizeCeiling
	}

	outcomes := make([]model.Outcome, 0, len(payload.Events))
	for _, re := range payload.Events {
		outcomes = append(outcomes, d.dispatchOne(ctx, payload, re, reg, ceiling)...)
	}
	return model.Result{Outcomes: outcomes}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, payload *model.CollectorPayload, re model.RawEvent, reg *registry.Registry, ceiling int) []model.Outcome {
	event := model.NewEnrichedEvent(re.Fields)
	if !payload.CollectorTimestamp.IsZero() {
		event.CollectorTstamp = payload.CollectorTimestamp.UTC().Format(time.RFC3339Nano)
		if d.Counters != nil {
			d.Counters.ObserveLatency(time.Since(payload.CollectorTimestamp))
		}
	}
	if event.UserIpaddress == "" {
		event.UserIpaddress = payload.SourceIP
	}
	event.EtlTstamp = time.Now().UTC().Format(time.RFC3339Nano)

	if failures := d.validateContexts(event, re); len(failures) > 0 {
		return []model.Outcome{{Bad: schemaViolationBadRow(re, d.Processor, failures)}}
	}

	var failures []string
	for _, e := range reg.Enrichments() {
		contexts, enrichFailures := e.Apply(ctx, reg, event)
		if len(enrichFailures) > 0 {
			tagged := make([]string, len(enrichFailures))
			for i, f := range enrichFailures {
				tagged[i] = fmt.Sprintf("%s: %s", e.Name(), f)
			}
			failures = append(failures, tagged...)
			continue
		}
		event.DerivedContexts = append(event.DerivedContexts, contexts...)
	}
	if len(failures) > 0 {
		return []model.Outcome{{Bad: enrichmentFailureBadRow(event.Serialize(), d.Processor, failures)}}
	}

	serialized := event.Serialize()
	if len(serialized) > ceiling {
		return []model.Outcome{{Bad: sizePayloadBadRow(serialized, ceiling, d.Processor)}}
	}

	outcomes := []model.Outcome{{Event: event}}
	if d.PII != nil {
		if pii, ok := d.PII.ExtractPII(*event); ok {
			outcomes = append(outcomes, model.Outcome{Event: &pii, PII: true})
		}
	}
	return outcomes
}

// validateContexts parses and schema-validates the collector-attached
// contexts and unstructured event envelopes, populating event.ContextsIn /
// event.UnstructEvent on success (spec.md §6
// "SchemaClient.validate(json, schemaKey)").
func (d *Dispatcher) validateContexts(event *model.EnrichedEvent, re model.RawEvent) []string {
	var failures []string

	if re.ContextsJSON != "" {
		ctxs, err := d.parseAndValidateContexts(re.ContextsJSON)
		if err != nil {
			failures = append(failures, fmt.Sprintf("contexts: %s", err))
		} else {
			event.ContextsIn = ctxs
		}
	}

	if re.UnstructJSON != "" {
		sdj, err := d.parseAndValidateUnstruct(re.UnstructJSON)
		if err != nil {
			failures = append(failures, fmt.Sprintf("unstruct_event: %s", err))
		} else {
			event.UnstructEvent = sdj
			event.EventFormat = "unstruct"
		}
	}

	return failures
}

func (d *Dispatcher) parseAndValidateContexts(raw string) ([]model.SelfDescribingJSON, error) {
	var env jsonEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("malformed contexts envelope: %w", err)
	}
	var sdjs []model.SelfDescribingJSON
	if err := json.Unmarshal(env.Data, &sdjs); err != nil {
		return nil, fmt.Errorf("malformed contexts data: %w", err)
	}
	if d.SchemaClient != nil {
		for _, sdj := range sdjs {
			if err := d.SchemaClient.Validate(sdj.Schema, sdj.Data); err != nil {
				return nil, err
			}
		}
	}
	return sdjs, nil
}

func (d *Dispatcher) parseAndValidateUnstruct(raw string) (*model.SelfDescribingJSON, error) {
	var env jsonEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("malformed unstruct_event envelope: %w", err)
	}
	var sdj model.SelfDescribingJSON
	if err := json.Unmarshal(env.Data, &sdj); err != nil {
		return nil, fmt.Errorf("malformed unstruct_event data: %w", err)
	}
	if d.SchemaClient != nil {
		if err := d.SchemaClient.Validate(sdj.Schema, sdj.Data); err != nil {
			return nil, err
		}
	}
	return &sdj, nil
}

func (d *Dispatcher) report(err error) {
	if d.Reporter != nil {
		d.Reporter.Report(err)
	}
}

func rawPayloadBadRow(kind model.BadRowKind, raw []byte, proc model.Processor, failures ...string) model.BadRow {
	return model.NewRawPayloadBadRow(kind, raw, proc, failures...)
}

func schemaViolationBadRow(re model.RawEvent, proc model.Processor, failures []string) model.BadRow {
	payload, _ := json.Marshal(re.Fields)
	return model.NewSchemaViolationBadRow(string(payload), proc, failures)
}

func enrichmentFailureBadRow(serialized []byte, proc model.Processor, failures []string) model.BadRow {
	return model.NewEnrichmentFailureBadRow(base64.StdEncoding.EncodeToString(serialized), proc, failures)
}

func sizePayloadBadRow(serialized []byte, ceiling int, proc model.Processor) model.BadRow {
	return model.NewTruncatedPayloadBadRow(serialized, ceiling, proc, "event serialized size exceeds ceiling")
}
