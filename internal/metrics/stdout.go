package metrics

import (
	"log"
	"os"
)

// StdoutReporter prints a human-readable snapshot line on every period,
// grounded on ai-infra/internal/runner.RunWorker's default *log.Logger setup.
type StdoutReporter struct {
	logger *log.Logger
}

// NewStdoutReporter constructs a StdoutReporter.
func NewStdoutReporter() *StdoutReporter {
	return &StdoutReporter{logger: log.New(os.Stdout, "[metrics] ", log.LstdFlags)}
}

// Report implements Reporter.
func (r *StdoutReporter) Report(s Snapshot) {
	if s.EnrichLatencyMs != nil {
		r.logger.Printf("raw=%d good=%d bad=%d enrichLatencyMs=%.1f", s.RawCount, s.GoodCount, s.BadCount, *s.EnrichLatencyMs)
		return
	}
	r.logger.Printf("raw=%d good=%d bad=%d enrichLatencyMs=n/a", s.RawCount, s.GoodCount, s.BadCount)
}
