package enrichment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flowlattice/enrich/internal/metrics"
	"github.com/flowlattice/enrich/internal/model"
	"github.com/flowlattice/enrich/internal/registry"
)

type fakeDecoder struct {
	payload *model.CollectorPayload
	err     error
}

func (f *fakeDecoder) Decode(raw []byte) (*model.CollectorPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type fakeRegistrySource struct {
	reg *registry.Registry
}

func (f *fakeRegistrySource) Registry() *registry.Registry { return f.reg }

type fakeEnrichment struct {
	name    string
	fail    string
	context *model.SelfDescribingJSON
	mutate  func(*model.EnrichedEvent)
}

func (f *fakeEnrichment) Name() string       { return f.name }
func (f *fakeEnrichment) AssetURIs() []string { return nil }
func (f *fakeEnrichment) Apply(_ context.Context, _ *registry.Registry, event *model.EnrichedEvent) ([]model.SelfDescribingJSON, []string) {
	if f.fail != "" {
		return nil, []string{f.fail}
	}
	if f.mutate != nil {
		f.mutate(event)
	}
	if f.context != nil {
		return []model.SelfDescribingJSON{*f.context}, nil
	}
	return nil, nil
}

type fakePII struct {
	ok bool
}

func (f *fakePII) ExtractPII(event model.EnrichedEvent) (model.EnrichedEvent, bool) {
	if !f.ok {
		return model.EnrichedEvent{}, false
	}
	pii := event
	pii.Extra = map[string]string{"pii": "true"}
	return pii, true
}

type fakeReporter struct {
	reports []error
}

func (f *fakeReporter) Report(err error) { f.reports = append(f.reports, err) }

func singleEventPayload(fields map[string]string) *model.CollectorPayload {
	return &model.CollectorPayload{
		CollectorTimestamp: time.Now(),
		SourceIP:            "1.2.3.4",
		Events: []model.RawEvent{
			{Fields: fields},
		},
	}
}

func TestDispatchPlainPayloadProducesOneGoodRow(t *testing.T) {
	d := &Dispatcher{
		Decoder:  &fakeDecoder{payload: singleEventPayload(map[string]string{"app_id": "app1", "event": "pv"})},
		Registry: &fakeRegistrySource{reg: registry.New(nil, nil)},
	}
	result := d.Dispatch(context.Background(), []byte("raw"))
	if len(result.Outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(result.Outcomes))
	}
	if !result.Outcomes[0].IsGood() {
		t.Fatal("expected a good outcome")
	}
	if result.Outcomes[0].Event.AppID != "app1" {
		t.Fatalf("expected app_id to be preserved, got %q", result.Outcomes[0].Event.AppID)
	}
}

func TestDispatchObservesEnrichLatencyWhenCollectorTimestampIsSet(t *testing.T) {
	counters := &metrics.Counters{}
	d := &Dispatcher{
		Decoder:  &fakeDecoder{payload: singleEventPayload(map[string]string{"app_id": "app1"})},
		Registry: &fakeRegistrySource{reg: registry.New(nil, nil)},
		Counters: counters,
	}
	d.Dispatch(context.Background(), []byte("raw"))

	snap := counters.Snapshot()
	if snap.EnrichLatencyMs == nil {
		t.Fatal("expected enrichLatency to be observed when collector timestamp is set")
	}
}

func TestDispatchSkipsLatencyWhenCollectorTimestampIsZero(t *testing.T) {
	counters := &metrics.Counters{}
	d := &Dispatcher{
		Decoder: &fakeDecoder{payload: &model.CollectorPayload{
			Events: []model.RawEvent{{Fields: map[string]string{"app_id": "app1"}}},
		}},
		Registry: &fakeRegistrySource{reg: registry.New(nil, nil)},
		Counters: counters,
	}
	d.Dispatch(context.Background(), []byte("raw"))

	snap := counters.Snapshot()
	if snap.EnrichLatencyMs != nil {
		t.Fatalf("expected no latency sample without a collector timestamp, got %v", *snap.EnrichLatencyMs)
	}
}

func TestDispatchDecodeFailureProducesCPFormatViolation(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x02}
	d := &Dispatcher{
		Decoder:  &fakeDecoder{err: errors.New("bad magic bytes")},
		Registry: &fakeRegistrySource{reg: registry.New(nil, nil)},
	}
	result := d.Dispatch(context.Background(), raw)
	if len(result.Outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(result.Outcomes))
	}
	bad := result.Outcomes[0].Bad
	if bad == nil || bad.Kind != model.KindCPFormatViolation {
		t.Fatalf("expected cpformat-violation, got %+v", bad)
	}
	want := base64.StdEncoding.EncodeToString(raw)
	if bad.Payload != want {
		t.Fatalf("expected base64 payload %q, got %q", want, bad.Payload)
	}
}

func TestDispatchBatchedPayloadOneFailsEnrichment(t *testing.T) {
	payload := &model.CollectorPayload{
		Events: []model.RawEvent{
			{Fields: map[string]string{"app_id": "ok"}},
			{Fields: map[string]string{"app_id": "bad"}},
		},
	}
	failing := &fakeEnrichment{name: "geoip", fail: "no db loaded"}
	reg := registry.New([]registry.Enrichment{&conditionalEnrichment{inner: failing}}, nil)
	d := &Dispatcher{
		Decoder:  &fakeDecoder{payload: payload},
		Registry: &fakeRegistrySource{reg: reg},
	}
	result := d.Dispatch(context.Background(), []byte("raw"))
	if len(result.Good()) != 1 {
		t.Fatalf("expected 1 good event, got %d", len(result.Good()))
	}
	if len(result.Bad()) != 1 {
		t.Fatalf("expected 1 bad row, got %d", len(result.Bad()))
	}
	if result.Bad()[0].Kind != model.KindEnrichmentFailure {
		t.Fatalf("expected enrichment-failure, got %s", result.Bad()[0].Kind)
	}
}

// conditionalEnrichment only fails for events whose AppID is "bad", so the
// batched-payload test above can exercise a mixed good/bad outcome from one
// raw record.
type conditionalEnrichment struct {
	inner *fakeEnrichment
}

func (c *conditionalEnrichment) Name() string        { return c.inner.name }
func (c *conditionalEnrichment) AssetURIs() []string { return nil }
func (c *conditionalEnrichment) Apply(ctx context.Context, reg *registry.Registry, event *model.EnrichedEvent) ([]model.SelfDescribingJSON, []string) {
	if event.AppID == "bad" {
		return nil, []string{c.inner.fail}
	}
	return nil, nil
}

func TestDispatchSizeViolationDemotesToBad(t *testing.T) {
	huge := make([]byte, 0)
	for i := 0; i < 1000; i++ {
		huge = append(huge, []byte("xxxxxxxxxx")...)
	}
	d := &Dispatcher{
		Decoder:  &fakeDecoder{payload: singleEventPayload(map[string]string{"page_referrer": string(huge)})},
		Registry: &fakeRegistrySource{reg: registry.New(nil, nil)},
		Ceiling:  100,
	}
	result := d.Dispatch(context.Background(), []byte("raw"))
	if len(result.Outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(result.Outcomes))
	}
	bad := result.Outcomes[0].Bad
	if bad == nil || bad.Kind != model.KindSizeViolation {
		t.Fatalf("expected size-violation, got %+v", bad)
	}
	if len(bad.Payload) > 10 {
		t.Fatalf("expected payload truncated to ceiling/10=10 chars, got %d", len(bad.Payload))
	}
}

func TestDispatchDerivesPIIEventWhenExtractorReportsOne(t *testing.T) {
	d := &Dispatcher{
		Decoder:  &fakeDecoder{payload: singleEventPayload(map[string]string{"app_id": "app1"})},
		Registry: &fakeRegistrySource{reg: registry.New(nil, nil)},
		PII:      &fakePII{ok: true},
	}
	result := d.Dispatch(context.Background(), []byte("raw"))
	if len(result.Good()) != 1 {
		t.Fatalf("expected 1 good event, got %d", len(result.Good()))
	}
	if len(result.PII()) != 1 {
		t.Fatalf("expected 1 derived pii event, got %d", len(result.PII()))
	}
}

func TestDispatchNoPIIWhenExtractorReportsNone(t *testing.T) {
	d := &Dispatcher{
		Decoder:  &fakeDecoder{payload: singleEventPayload(map[string]string{"app_id": "app1"})},
		Registry: &fakeRegistrySource{reg: registry.New(nil, nil)},
		PII:      &fakePII{ok: false},
	}
	result := d.Dispatch(context.Background(), []byte("raw"))
	if len(result.Good()) != 1 {
		t.Fatalf("expected exactly 1 good event, got %d", len(result.Good()))
	}
}

type panickingEnrichment struct{}

func (panickingEnrichment) Name() string        { return "boom" }
func (panickingEnrichment) AssetURIs() []string { return nil }
func (panickingEnrichment) Apply(context.Context, *registry.Registry, *model.EnrichedEvent) ([]model.SelfDescribingJSON, []string) {
	panic("unexpected nil pointer")
}

func TestDispatchRecoversPanicAsGenericError(t *testing.T) {
	reporter := &fakeReporter{}
	reg := registry.New([]registry.Enrichment{panickingEnrichment{}}, nil)
	d := &Dispatcher{
		Decoder:  &fakeDecoder{payload: singleEventPayload(map[string]string{"app_id": "app1"})},
		Registry: &fakeRegistrySource{reg: reg},
		Reporter: reporter,
	}
	result := d.Dispatch(context.Background(), []byte("raw"))
	if len(result.Outcomes) != 1 || result.Outcomes[0].Bad == nil {
		t.Fatalf("expected a single generic-error bad row, got %+v", result.Outcomes)
	}
	if result.Outcomes[0].Bad.Kind != model.KindGenericError {
		t.Fatalf("expected generic-error, got %s", result.Outcomes[0].Bad.Kind)
	}
	if len(reporter.reports) != 1 {
		t.Fatalf("expected the panic to be forwarded to the exception reporter, got %d reports", len(reporter.reports))
	}
}

type failingSchemaClient struct{}

func (failingSchemaClient) Validate(schemaKey string, data interface{}) error {
	return errors.New("schema not found in registry")
}

func TestDispatchSchemaViolationOnContextValidationFailure(t *testing.T) {
	env := struct {
		Schema string        `json:"schema"`
		Data   []interface{} `json:"data"`
	}{
		Schema: "schema:contexts/jsonschema/1-0-0",
		Data: []interface{}{
			map[string]interface{}{"schema": "schema:unknown/jsonschema/1-0-0", "data": map[string]interface{}{}},
		},
	}
	b, _ := json.Marshal(env)

	payload := &model.CollectorPayload{
		Events: []model.RawEvent{
			{Fields: map[string]string{"app_id": "app1"}, ContextsJSON: string(b)},
		},
	}
	d := &Dispatcher{
		Decoder:      &fakeDecoder{payload: payload},
		Registry:     &fakeRegistrySource{reg: registry.New(nil, nil)},
		SchemaClient: failingSchemaClient{},
	}
	result := d.Dispatch(context.Background(), []byte("raw"))
	if len(result.Outcomes) != 1 || result.Outcomes[0].Bad == nil {
		t.Fatalf("expected a single bad row, got %+v", result.Outcomes)
	}
	if result.Outcomes[0].Bad.Kind != model.KindSchemaViolation {
		t.Fatalf("expected schema-violation, got %s", result.Outcomes[0].Bad.Kind)
	}
}
