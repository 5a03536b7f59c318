package valueobject

import "fmt"

// AlertKind identifies which rule raised an alert.
type AlertKind string

const (
	KindPublicationDrop   AlertKind = "publication_drop"
	KindStaleData         AlertKind = "stale_data"
	KindDataFreshness     AlertKind = "data_freshness"
	KindSourceUnavailable AlertKind = "source_unavailable"
)

func (k AlertKind) Validate() error {
	switch k {
	case KindPublicationDrop, KindStaleData, KindDataFreshness, KindSourceUnavailable:
		return nil
	default:
		return fmt.Errorf("invalid alert kind: %q", string(k))
	}
}

func (k AlertKind) String() string {
	return string(k)
}

// Severity ranks how urgent an alert is for operators.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Validate() error {
	switch s {
	case SeverityWarning, SeverityCritical:
		return nil
	default:
		return fmt.Errorf("invalid severity: %q", string(s))
	}
}

func (s Severity) String() string {
	return string(s)
}

// TransitionType classifies a discrete alert lifecycle event produced by an
// evaluation pass.
type TransitionType string

const (
	TransitionNew      TransitionType = "new"
	TransitionReopened TransitionType = "reopened"
	TransitionResolved TransitionType = "resolved"
)
