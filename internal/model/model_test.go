package model_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/flowlattice/enrich/internal/model"
)

func TestSerializeIsTabSeparatedAndStable(t *testing.T) {
	e := &model.EnrichedEvent{AppID: "app-1", Platform: "web", EventID: "abc"}
	line := string(e.Serialize())
	if !strings.Contains(line, "app-1\tweb") {
		t.Fatalf("expected app_id/platform columns in order, got: %s", line)
	}
	if strings.Count(line, "\t") != len(model.FieldOrder)-1 {
		t.Fatalf("expected %d tabs, got %d in %q", len(model.FieldOrder)-1, strings.Count(line, "\t"), line)
	}
}

func TestSerializeEscapesEmbeddedTabsAndNewlines(t *testing.T) {
	e := &model.EnrichedEvent{PageTitle: "a\tb\nc"}
	line := string(e.Serialize())
	if strings.Contains(line, "a\tb\nc") {
		t.Fatalf("expected embedded tab/newline to be escaped, got: %s", line)
	}
}

func TestNewRawPayloadBadRowBase64Encodes(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x02}
	br := model.NewRawPayloadBadRow(model.KindCPFormatViolation, raw, model.Processor{Name: "enrich", Version: "1.0.0"}, "could not decode")
	want := base64.StdEncoding.EncodeToString(raw)
	if br.Payload != want {
		t.Fatalf("payload = %q, want %q", br.Payload, want)
	}
	if br.Kind != model.KindCPFormatViolation {
		t.Fatalf("kind = %q", br.Kind)
	}
}

func TestNewTruncatedPayloadBadRowRespectsCeilingDivTen(t *testing.T) {
	serialized := make([]byte, 1000)
	for i := range serialized {
		serialized[i] = 'x'
	}
	br := model.NewTruncatedPayloadBadRow(serialized, 100, model.Processor{Name: "enrich", Version: "1.0.0"}, "too large")
	if len(br.Payload) != 10 {
		t.Fatalf("expected truncated payload of length 10, got %d", len(br.Payload))
	}
}

func TestMarshalCompactJSONIsSingleLine(t *testing.T) {
	br := model.NewRawPayloadBadRow(model.KindGenericError, []byte("x"), model.Processor{Name: "enrich", Version: "1.0.0"}, "boom")
	b, err := br.MarshalCompactJSON()
	if err != nil {
		t.Fatalf("MarshalCompactJSON error: %v", err)
	}
	if strings.Contains(string(b), "\n") {
		t.Fatalf("expected single-line JSON, got: %s", b)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out["kind"] != string(model.KindGenericError) {
		t.Fatalf("kind mismatch: %v", out["kind"])
	}
}

func TestPartitionAttributesUsesPriorityFieldNames(t *testing.T) {
	e := &model.EnrichedEvent{EventID: "evt-1", DomainUserid: "du-1"}
	attrs := e.PartitionAttributes()
	if attrs["event_id"] != "evt-1" {
		t.Fatalf("expected event_id attribute, got %v", attrs)
	}
	if attrs["domain_userid"] != "du-1" {
		t.Fatalf("expected domain_userid attribute, got %v", attrs)
	}
}

func TestPartitionAttributesOmitsEmptyFields(t *testing.T) {
	e := &model.EnrichedEvent{EventID: "evt-1"}
	attrs := e.PartitionAttributes()
	if _, ok := attrs["network_userid"]; ok {
		t.Fatalf("expected empty network_userid to be omitted, got %v", attrs)
	}
	if len(attrs) != 1 {
		t.Fatalf("expected exactly 1 attribute, got %v", attrs)
	}
}

func TestResultGoodAndBadSplit(t *testing.T) {
	ev := &model.EnrichedEvent{AppID: "a"}
	br := &model.BadRow{Kind: model.KindEnrichmentFailure}
	r := model.Result{Outcomes: []model.Outcome{{Event: ev}, {Bad: br}}}
	if len(r.Good()) != 1 || len(r.Bad()) != 1 {
		t.Fatalf("expected 1 good and 1 bad, got %d/%d", len(r.Good()), len(r.Bad()))
	}
}
