// Package config parses the hierarchical configuration document described in
// spec.md §6: input, output.{good,pii?,bad}, assetsUpdatePeriod?,
// monitoring.{sentry?, metrics.{statsd?,stdout?,cloudwatch?}}. The document
// shape is too nested for the teacher's flat env-var structs
// (ai-infra/internal/config.Load, kernel/internal/config.LoadFromEnv), so this
// package parses YAML via gopkg.in/yaml.v3 instead, while keeping the
// teacher's env-var-override convention for secrets and its fatal,
// descriptive-error-on-missing-required-field behavior.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level document.
type Config struct {
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	AssetsUpdatePeriod string   `yaml:"assetsUpdatePeriod"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Admin       AdminConfig     `yaml:"admin"`
	Concurrency int             `yaml:"concurrency"`
	Ordered     bool            `yaml:"ordered"`
}

// AdminConfig configures the operational admin/health HTTP surface (spec.md
// §7 admin surface addition, not present in the original document shape).
type AdminConfig struct {
	Addr          string `yaml:"addr"`
	RequireAuth   bool   `yaml:"requireAuth"`
	BearerSecret  string `yaml:"bearerSecret"`
}

// InputConfig describes the source side (spec.md §6 "Input-side Kinesis
// options").
type InputConfig struct {
	Type            string `yaml:"type"` // "kinesis" or "kafka"
	StreamName      string `yaml:"streamName"`
	Topic           string `yaml:"topic"`
	Brokers         []string `yaml:"brokers"`
	GroupID         string `yaml:"groupId"`
	Region          string `yaml:"region"`
	AppName         string `yaml:"appName"`
	InitialPosition string `yaml:"initialPosition"`
	RetrievalMode   RetrievalMode `yaml:"retrievalMode"`
	CheckpointSettings CheckpointSettings `yaml:"checkpointSettings"`
}

// RetrievalMode is the Kinesis retrieval mode (spec.md §6: "FanOut or
// {type: Polling, maxRecords}").
type RetrievalMode struct {
	Type       string `yaml:"type"`
	MaxRecords int32  `yaml:"maxRecords"`
}

// CheckpointSettings bounds Kinesis checkpoint commit batching.
type CheckpointSettings struct {
	MaxBatchSize int    `yaml:"maxBatchSize"`
	MaxBatchWait string `yaml:"maxBatchWait"`
}

// OutputConfig describes the three sinks (spec.md §6).
type OutputConfig struct {
	Good SinkConfig  `yaml:"good"`
	PII  *SinkConfig `yaml:"pii"`
	Bad  SinkConfig  `yaml:"bad"`
}

// SinkConfig describes one sink (spec.md §6 "Per-sink options").
type SinkConfig struct {
	Type           string        `yaml:"type"` // "kinesis" or "kafka"
	StreamName     string        `yaml:"streamName"`
	Topic          string        `yaml:"topic"`
	Brokers        []string      `yaml:"brokers"`
	Region         string        `yaml:"region"`
	PartitionKey   string        `yaml:"partitionKey"`
	DelayThreshold string        `yaml:"delayThreshold"`
	MaxBatchSize   int           `yaml:"maxBatchSize"`
	MaxBatchBytes  int           `yaml:"maxBatchBytes"`
	BackoffPolicy  BackoffPolicy `yaml:"backoffPolicy"`
}

// BackoffPolicy bounds the sink's retry backoff (spec.md §6).
type BackoffPolicy struct {
	MinBackoff string `yaml:"minBackoff"`
	MaxBackoff string `yaml:"maxBackoff"`
}

// MonitoringConfig describes the optional exception sink and metrics
// reporters (spec.md §6).
type MonitoringConfig struct {
	Sentry  *SentryConfig  `yaml:"sentry"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// SentryConfig configures the exception reporter.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// MetricsConfig enables any subset of the three reporter backends (spec.md
// §4.6).
type MetricsConfig struct {
	Period     string            `yaml:"period"`
	StatsD     *StatsDConfig     `yaml:"statsd"`
	Stdout     *StdoutConfig     `yaml:"stdout"`
	CloudWatch *CloudWatchConfig `yaml:"cloudwatch"`
}

// StatsDConfig configures the StatsD reporter.
type StatsDConfig struct {
	Address string   `yaml:"address"`
	Tags    []string `yaml:"tags"`
}

// StdoutConfig enables the stdout reporter; present/absent is the only
// option it takes today.
type StdoutConfig struct{}

// CloudWatchConfig configures the CloudWatch reporter (spec.md §4.6:
// "enabled by default when Kinesis sink is used; may be disabled").
type CloudWatchConfig struct {
	Namespace string `yaml:"namespace"`
	Region    string `yaml:"region"`
	Disabled  bool   `yaml:"disabled"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses the YAML document at path, substituting
// ${ENV_VAR}-style references against the process environment (the
// teacher's getEnv convention, generalized from whole-value env lookups to
// inline substitution since this document is hierarchical, not flat), and
// validates the required fields.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	substituted := envRef.ReplaceAllStringFunc(string(raw), func(match string) string {
		name := envRef.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Input.Type == "" {
		return fmt.Errorf("input.type is required")
	}
	if c.Input.Type != "kinesis" && c.Input.Type != "kafka" {
		return fmt.Errorf("input.type must be \"kinesis\" or \"kafka\", got %q", c.Input.Type)
	}
	if err := c.Output.Good.validate("output.good"); err != nil {
		return err
	}
	if c.Output.PII != nil {
		if err := c.Output.PII.validate("output.pii"); err != nil {
			return err
		}
	}
	if err := c.Output.Bad.validate("output.bad"); err != nil {
		return err
	}
	return nil
}

func (s SinkConfig) validate(field string) error {
	if s.Type == "" {
		return fmt.Errorf("%s.type is required", field)
	}
	if s.Type != "kinesis" && s.Type != "kafka" {
		return fmt.Errorf("%s.type must be \"kinesis\" or \"kafka\", got %q", field, s.Type)
	}
	return nil
}

// ParseDuration parses a Go duration string, returning def if s is empty.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
