package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowlattice/enrich/internal/model"
)

// jsonLineDecoder is the default Decoder wired by this binary. The real
// collector-payload binary codec is an external collaborator per spec.md §1
// ("the collector payload binary decoder" is deliberately out of scope) —
// deployments with a real collector feed bring their own Decoder
// implementation and wire it through environment.Options instead of this
// one. This decoder exists so the binary is runnable end to end out of the
// box: it expects each raw record to already be a JSON document shaped like
// wireCollectorPayload below.
type jsonLineDecoder struct{}

type wireEvent struct {
	Fields       map[string]string `json:"fields"`
	ContextsJSON string            `json:"contextsJson"`
	UnstructJSON string            `json:"unstructJson"`
}

type wireCollectorPayload struct {
	CollectorTimestamp time.Time         `json:"collectorTimestamp"`
	SourceIP           string            `json:"sourceIp"`
	Headers            map[string]string `json:"headers"`
	Events             []wireEvent       `json:"events"`
}

func (jsonLineDecoder) Decode(raw []byte) (*model.CollectorPayload, error) {
	var wire wireCollectorPayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode collector payload: %w", err)
	}
	events := make([]model.RawEvent, 0, len(wire.Events))
	for _, e := range wire.Events {
		events = append(events, model.RawEvent{
			Fields:       e.Fields,
			ContextsJSON: e.ContextsJSON,
			UnstructJSON: e.UnstructJSON,
		})
	}
	return &model.CollectorPayload{
		CollectorTimestamp: wire.CollectorTimestamp,
		SourceIP:           wire.SourceIP,
		Headers:            wire.Headers,
		Events:             events,
	}, nil
}

// passthroughSchemaClient accepts every schema without validation. The real
// schema registry client is an external collaborator per spec.md §1/§6
// ("SchemaClient.validate(json, schemaKey)"); deployments that need real
// schema enforcement inject their own implementation the same way.
type passthroughSchemaClient struct{}

func (passthroughSchemaClient) Validate(schemaKey string, data interface{}) error {
	return nil
}

// noopPIIExtractor reports no PII on every event. The real extraction rule
// is an external collaborator's contract per spec.md §9's Open Question;
// deployments with a PII policy inject their own implementation.
type noopPIIExtractor struct{}

func (noopPIIExtractor) ExtractPII(event model.EnrichedEvent) (model.EnrichedEvent, bool) {
	return model.EnrichedEvent{}, false
}
