package service

import (
	"fmt"
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

// Thresholds holds the tunable limits of the alert rules.
type Thresholds struct {
	DropPercent         float64       // publication drop that opens an alert
	CriticalDropPercent float64       // drop at which severity becomes critical
	StaleDays           int           // days without publication growth
	FreshnessDays       int           // max age of a data source update
	FreshnessCritical   int           // age in days at which freshness is critical
	UnavailableAfter    time.Duration // silence before source_unavailable fires
	RecoveryPercent     float64       // count within this % of baseline resolves a drop
	RecoverySnapshots   int           // consecutive non-declining snapshots that resolve a drop
}

// Finding is a rule violation detected for the current evaluation cycle. The
// alert lifecycle (open, extend, resolve) is reconciled by the caller.
type Finding struct {
	OrganizationID string
	DataSourceID   string // empty for organization-level findings
	Kind           valueobject.AlertKind
	Severity       valueobject.Severity
	Message        string
	MetricBefore   float64
	MetricAfter    float64
}

// Key identifies the open-alert slot a finding maps onto.
func (f Finding) Key() string {
	return f.OrganizationID + "/" + f.DataSourceID + "/" + f.Kind.String()
}

// RuleEvaluator applies the alert rules to snapshot history. It is stateless
// and safe for concurrent use.
type RuleEvaluator struct {
	thresholds Thresholds
}

func NewRuleEvaluator(t Thresholds) *RuleEvaluator {
	return &RuleEvaluator{thresholds: t}
}

// EvaluateOrganization runs the snapshot-based rules for one organization.
// history must be ordered newest first; failed snapshots are skipped so a
// collection outage never reads as a publication drop.
func (e *RuleEvaluator) EvaluateOrganization(orgID string, history []*entity.Snapshot) []Finding {
	usable := usableOnly(history)
	if len(usable) == 0 {
		return nil
	}

	var findings []Finding
	if f := e.checkPublicationDrop(orgID, usable); f != nil {
		findings = append(findings, *f)
	}
	if f := e.checkStaleData(orgID, usable); f != nil {
		findings = append(findings, *f)
	}
	findings = append(findings, e.checkDataFreshness(orgID, usable[0])...)
	return findings
}

// EvaluateAvailability checks the source_unavailable rule. lastSuccess is nil
// when the organization has never been collected successfully; firstAttempt is
// when collection for it started.
func (e *RuleEvaluator) EvaluateAvailability(orgID string, lastSuccess *time.Time, firstAttempt, now time.Time) *Finding {
	since := firstAttempt
	if lastSuccess != nil {
		since = *lastSuccess
	}
	silence := now.Sub(since)
	if silence < e.thresholds.UnavailableAfter {
		return nil
	}
	return &Finding{
		OrganizationID: orgID,
		Kind:           valueobject.KindSourceUnavailable,
		Severity:       valueobject.SeverityCritical,
		Message: fmt.Sprintf("no successful collection for %.1f hours (limit %.1f)",
			silence.Hours(), e.thresholds.UnavailableAfter.Hours()),
		MetricAfter: silence.Hours(),
	}
}

// ShouldResolve reports whether an open alert's condition has cleared given
// the organization's newest-first history. source_unavailable alerts are
// resolved by the caller on the next successful collection, not here.
func (e *RuleEvaluator) ShouldResolve(alert *entity.Alert, history []*entity.Snapshot, now time.Time) bool {
	usable := usableOnly(history)
	if len(usable) == 0 {
		return false
	}
	latest := usable[0]

	switch alert.Kind() {
	case valueobject.KindPublicationDrop:
		return e.dropRecovered(alert, usable)
	case valueobject.KindStaleData:
		older := snapshotAtLeastDaysOlder(usable, latest, e.thresholds.StaleDays)
		return older == nil || latest.TotalPublications() > older.TotalPublications()
	case valueobject.KindDataFreshness:
		ts, ok := latest.SourceUpdates()[alert.DataSourceID()]
		if !ok {
			// Source no longer reported; nothing left to watch.
			return true
		}
		if ts == nil {
			return false
		}
		age := int(latest.CollectedAt().Sub(*ts).Hours() / 24)
		return age <= e.thresholds.FreshnessDays
	default:
		return false
	}
}

func (e *RuleEvaluator) checkPublicationDrop(orgID string, usable []*entity.Snapshot) *Finding {
	if len(usable) < 2 {
		return nil
	}
	latest, baseline := usable[0], usable[1]
	if baseline.TotalPublications() <= 0 {
		return nil
	}
	drop := percentDrop(baseline.TotalPublications(), latest.TotalPublications())
	if drop < e.thresholds.DropPercent {
		return nil
	}
	severity := valueobject.SeverityWarning
	if drop >= e.thresholds.CriticalDropPercent {
		severity = valueobject.SeverityCritical
	}
	return &Finding{
		OrganizationID: orgID,
		Kind:           valueobject.KindPublicationDrop,
		Severity:       severity,
		Message: fmt.Sprintf("publication count dropped %.1f%%: %d to %d",
			drop, baseline.TotalPublications(), latest.TotalPublications()),
		MetricBefore: float64(baseline.TotalPublications()),
		MetricAfter:  float64(latest.TotalPublications()),
	}
}

func (e *RuleEvaluator) checkStaleData(orgID string, usable []*entity.Snapshot) *Finding {
	latest := usable[0]
	older := snapshotAtLeastDaysOlder(usable, latest, e.thresholds.StaleDays)
	if older == nil {
		// Not enough history to judge the window yet.
		return nil
	}
	if latest.TotalPublications() > older.TotalPublications() {
		return nil
	}
	return &Finding{
		OrganizationID: orgID,
		Kind:           valueobject.KindStaleData,
		Severity:       valueobject.SeverityWarning,
		Message: fmt.Sprintf("no publication growth in %d days (stuck at %d)",
			e.thresholds.StaleDays, latest.TotalPublications()),
		MetricBefore: float64(older.TotalPublications()),
		MetricAfter:  float64(latest.TotalPublications()),
	}
}

func (e *RuleEvaluator) checkDataFreshness(orgID string, latest *entity.Snapshot) []Finding {
	var findings []Finding
	for sourceID, ts := range latest.SourceUpdates() {
		if ts == nil {
			continue
		}
		age := int(latest.CollectedAt().Sub(*ts).Hours() / 24)
		if age <= e.thresholds.FreshnessDays {
			continue
		}
		severity := valueobject.SeverityWarning
		if age >= e.thresholds.FreshnessCritical {
			severity = valueobject.SeverityCritical
		}
		findings = append(findings, Finding{
			OrganizationID: orgID,
			DataSourceID:   sourceID,
			Kind:           valueobject.KindDataFreshness,
			Severity:       severity,
			Message:        fmt.Sprintf("data source not updated for %d days (limit %d)", age, e.thresholds.FreshnessDays),
			MetricAfter:    float64(age),
		})
	}
	return findings
}

// dropRecovered holds when the count is back within RecoveryPercent of the
// pre-drop baseline, or after RecoverySnapshots consecutive snapshots without
// a further decline.
func (e *RuleEvaluator) dropRecovered(alert *entity.Alert, usable []*entity.Snapshot) bool {
	latest := usable[0]
	baseline := alert.MetricBefore()
	if baseline > 0 {
		shortfall := percentDrop(int(baseline), latest.TotalPublications())
		if shortfall <= e.thresholds.RecoveryPercent {
			return true
		}
	}
	if len(usable) < e.thresholds.RecoverySnapshots+1 {
		return false
	}
	for i := 0; i < e.thresholds.RecoverySnapshots; i++ {
		if usable[i].TotalPublications() < usable[i+1].TotalPublications() {
			return false
		}
	}
	return true
}

func usableOnly(history []*entity.Snapshot) []*entity.Snapshot {
	out := make([]*entity.Snapshot, 0, len(history))
	for _, s := range history {
		if s != nil && s.Usable() {
			out = append(out, s)
		}
	}
	return out
}

// snapshotAtLeastDaysOlder returns the newest snapshot dated at least days
// before ref, or nil when history does not reach that far back.
func snapshotAtLeastDaysOlder(usable []*entity.Snapshot, ref *entity.Snapshot, days int) *entity.Snapshot {
	cutoff := ref.Date().AddDate(0, 0, -days)
	for _, s := range usable {
		if !s.Date().After(cutoff) {
			return s
		}
	}
	return nil
}

func percentDrop(before, after int) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}
