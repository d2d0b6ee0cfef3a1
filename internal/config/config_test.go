package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesNestedDocument(t *testing.T) {
	path := writeTemp(t, `
input:
  type: kinesis
  streamName: raw-events
  region: us-east-1
  appName: enrich-app
  initialPosition: TRIM_HORIZON
  retrievalMode:
    type: Polling
    maxRecords: 1000
output:
  good:
    type: kinesis
    streamName: good-events
    region: us-east-1
  pii:
    type: kinesis
    streamName: pii-events
    region: us-east-1
  bad:
    type: kinesis
    streamName: bad-events
    region: us-east-1
monitoring:
  metrics:
    stdout: {}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Input.Type != "kinesis" || cfg.Input.StreamName != "raw-events" {
		t.Fatalf("unexpected input: %+v", cfg.Input)
	}
	if cfg.Input.RetrievalMode.MaxRecords != 1000 {
		t.Fatalf("expected maxRecords 1000, got %d", cfg.Input.RetrievalMode.MaxRecords)
	}
	if cfg.Output.PII == nil || cfg.Output.PII.StreamName != "pii-events" {
		t.Fatalf("expected pii sink to be parsed, got %+v", cfg.Output.PII)
	}
	if cfg.Monitoring.Metrics.Stdout == nil {
		t.Fatal("expected stdout reporter to be enabled")
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_STREAM_NAME", "from-env")
	path := writeTemp(t, `
input:
  type: kafka
  topic: raw
  brokers: ["broker:9092"]
output:
  good:
    type: kinesis
    streamName: ${TEST_STREAM_NAME}
    region: us-east-1
  bad:
    type: kinesis
    streamName: bad-events
    region: us-east-1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Output.Good.StreamName != "from-env" {
		t.Fatalf("expected env substitution, got %q", cfg.Output.Good.StreamName)
	}
}

func TestLoadLeavesUnresolvedEnvRefUntouched(t *testing.T) {
	path := writeTemp(t, `
input:
  type: kafka
  topic: raw
output:
  good:
    type: kafka
    topic: ${UNSET_VAR_XYZ}
  bad:
    type: kafka
    topic: bad
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Output.Good.Topic != "${UNSET_VAR_XYZ}" {
		t.Fatalf("expected unresolved ref left as-is, got %q", cfg.Output.Good.Topic)
	}
}

func TestLoadMissingInputTypeFails(t *testing.T) {
	path := writeTemp(t, `
output:
  good:
    type: kafka
    topic: good
  bad:
    type: kafka
    topic: bad
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing input.type")
	}
}

func TestLoadInvalidSinkTypeFails(t *testing.T) {
	path := writeTemp(t, `
input:
  type: kafka
  topic: raw
output:
  good:
    type: rabbitmq
    topic: good
  bad:
    type: kafka
    topic: bad
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid output.good.type")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseDurationDefaults(t *testing.T) {
	d, err := ParseDuration("", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 5 {
		t.Fatalf("expected default returned, got %v", d)
	}
}

func TestParseDurationInvalid(t *testing.T) {
	if _, err := ParseDuration("not-a-duration", 0); err == nil {
		t.Fatal("expected error for invalid duration string")
	}
}
