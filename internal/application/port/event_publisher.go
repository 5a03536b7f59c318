package port

import "context"

// EventPublisher pushes collection and alert events onto the message bus for
// downstream consumers.
type EventPublisher interface {
	// PublishAlertTransition emits one alert lifecycle event
	// (new, reopened, resolved).
	PublishAlertTransition(ctx context.Context, transition AlertTransitionEvent) error

	// PublishRunSummary emits the outcome of one collection run.
	PublishRunSummary(ctx context.Context, summary RunSummaryEvent) error

	Close() error
}

// AlertTransitionEvent is the bus payload for an alert lifecycle change.
type AlertTransitionEvent struct {
	AlertID        string  `json:"alert_id"`
	OrganizationID string  `json:"organization_id"`
	DataSourceID   string  `json:"data_source_id,omitempty"`
	Kind           string  `json:"kind"`
	Severity       string  `json:"severity"`
	Transition     string  `json:"transition"`
	Message        string  `json:"message"`
	MetricBefore   float64 `json:"metric_before,omitempty"`
	MetricAfter    float64 `json:"metric_after,omitempty"`
	OccurredAt     string  `json:"occurred_at"`
}

// RunSummaryEvent is the bus payload for a finished collection run.
type RunSummaryEvent struct {
	RunID          string `json:"run_id"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
	Organizations  int    `json:"organizations"`
	Succeeded      int    `json:"succeeded"`
	Partial        int    `json:"partial"`
	Failed         int    `json:"failed"`
	AlertsOpened   int    `json:"alerts_opened"`
	AlertsResolved int    `json:"alerts_resolved"`
	Aborted        bool   `json:"aborted,omitempty"`
	AbortReason    string `json:"abort_reason,omitempty"`
}
