package port

import "time"

// RunMetricsPublisher exports collection telemetry to an external metrics
// backend. Implementations may buffer; Flush drains before shutdown.
type RunMetricsPublisher interface {
	RecordRun(summary RunSummaryEvent, duration time.Duration)
	RecordOrganizationFetch(organizationID string, attempts int, ok bool, duration time.Duration)
	Flush() error
}
