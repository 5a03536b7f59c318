package entity

import (
	"fmt"
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
	"github.com/google/uuid"
)

// Alert is an operator-facing alert record (Aggregate Root). Its lifecycle is
// Closed -> Open -> Resolved, driven exclusively by the alert engine: at most
// one open alert exists per (kind, organization, data source) at a time.
type Alert struct {
	id             string
	organizationID string
	dataSourceID   string // empty for organization-level alerts
	kind           valueobject.AlertKind
	severity       valueobject.Severity
	message        string
	triggeredAt    time.Time
	metricBefore   float64
	metricAfter    float64
	resolvedAt     *time.Time
}

// NewAlert opens a new alert (Factory Method).
func NewAlert(
	organizationID, dataSourceID string,
	kind valueobject.AlertKind,
	severity valueobject.Severity,
	message string,
	triggeredAt time.Time,
	metricBefore, metricAfter float64,
) (*Alert, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if err := severity.Validate(); err != nil {
		return nil, err
	}
	if triggeredAt.IsZero() {
		triggeredAt = time.Now().UTC()
	}

	return &Alert{
		id:             uuid.New().String(),
		organizationID: organizationID,
		dataSourceID:   dataSourceID,
		kind:           kind,
		severity:       severity,
		message:        message,
		triggeredAt:    triggeredAt.UTC(),
		metricBefore:   metricBefore,
		metricAfter:    metricAfter,
	}, nil
}

// ReconstructAlert restores an alert from storage (for Repository use).
func ReconstructAlert(
	id, organizationID, dataSourceID string,
	kind valueobject.AlertKind,
	severity valueobject.Severity,
	message string,
	triggeredAt time.Time,
	metricBefore, metricAfter float64,
	resolvedAt *time.Time,
) *Alert {
	var resolved *time.Time
	if resolvedAt != nil {
		t := resolvedAt.UTC()
		resolved = &t
	}

	return &Alert{
		id:             id,
		organizationID: organizationID,
		dataSourceID:   dataSourceID,
		kind:           kind,
		severity:       severity,
		message:        message,
		triggeredAt:    triggeredAt.UTC(),
		metricBefore:   metricBefore,
		metricAfter:    metricAfter,
		resolvedAt:     resolved,
	}
}

func (a *Alert) ID() string                      { return a.id }
func (a *Alert) OrganizationID() string          { return a.organizationID }
func (a *Alert) DataSourceID() string            { return a.dataSourceID }
func (a *Alert) Kind() valueobject.AlertKind     { return a.kind }
func (a *Alert) Severity() valueobject.Severity  { return a.severity }
func (a *Alert) Message() string                 { return a.message }
func (a *Alert) TriggeredAt() time.Time          { return a.triggeredAt }
func (a *Alert) MetricBefore() float64           { return a.metricBefore }
func (a *Alert) MetricAfter() float64            { return a.metricAfter }

// ResolvedAt returns the resolution time, nil while the alert is open.
func (a *Alert) ResolvedAt() *time.Time {
	if a.resolvedAt == nil {
		return nil
	}
	t := *a.resolvedAt
	return &t
}

func (a *Alert) IsOpen() bool {
	return a.resolvedAt == nil
}

// Resolve closes the alert. Resolving an already resolved alert is an error:
// resolved records are immutable.
func (a *Alert) Resolve(at time.Time) error {
	if a.resolvedAt != nil {
		return fmt.Errorf("alert %s already resolved", a.id)
	}
	t := at.UTC()
	a.resolvedAt = &t
	return nil
}

// Extend updates an open alert when the triggering condition worsens or
// recurs before resolution. Severity only escalates, never downgrades.
func (a *Alert) Extend(severity valueobject.Severity, message string, metricAfter float64) error {
	if a.resolvedAt != nil {
		return fmt.Errorf("alert %s is resolved and cannot be extended", a.id)
	}
	if severity == valueobject.SeverityCritical {
		a.severity = severity
	}
	a.message = message
	a.metricAfter = metricAfter
	return nil
}
