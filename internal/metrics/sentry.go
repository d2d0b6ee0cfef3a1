package metrics

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter forwards non-fatal runtime exceptions and fatal errors
// immediately and best-effort (spec.md §4.6 "Exception forwarding is
// separate ... receives non-fatal runtime exceptions and fatal errors once,
// immediately"). Not grounded on any file in the example pack — named per
// the out-of-pack-deps rule.
type SentryReporter struct {
	flushTimeout time.Duration
}

// NewSentryReporter initializes the Sentry SDK against dsn.
func NewSentryReporter(dsn, environment string) (*SentryReporter, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return nil, err
	}
	return &SentryReporter{flushTimeout: 2 * time.Second}, nil
}

// Report implements ExceptionReporter.
func (r *SentryReporter) Report(err error) {
	sentry.CaptureException(err)
	sentry.Flush(r.flushTimeout)
}
