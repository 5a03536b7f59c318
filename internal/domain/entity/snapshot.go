package entity

import (
	"fmt"
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

// Snapshot holds one organization's collected metrics for one calendar date
// (Aggregate Root). At most one snapshot exists per (organization, date);
// re-collection replaces it.
type Snapshot struct {
	organizationID string
	date           time.Time // calendar date, UTC midnight
	totalPubs      int
	recentPubs     int
	sourceCount    int
	sourceUpdates  map[string]*time.Time // data source id -> last update, nil if unknown
	collectedAt    time.Time
	status         valueobject.CollectionStatus
}

// NewSnapshot creates a snapshot for a collection run (Factory Method).
func NewSnapshot(
	organizationID string,
	date time.Time,
	totalPubs, recentPubs, sourceCount int,
	sourceUpdates map[string]*time.Time,
	collectedAt time.Time,
	status valueobject.CollectionStatus,
) (*Snapshot, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	if err := status.Validate(); err != nil {
		return nil, err
	}
	if totalPubs < 0 || recentPubs < 0 || sourceCount < 0 {
		return nil, fmt.Errorf("metric counts must be non-negative")
	}
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}

	return &Snapshot{
		organizationID: organizationID,
		date:           valueobject.Day(date),
		totalPubs:      totalPubs,
		recentPubs:     recentPubs,
		sourceCount:    sourceCount,
		sourceUpdates:  copySourceUpdates(sourceUpdates),
		collectedAt:    collectedAt.UTC(),
		status:         status,
	}, nil
}

// ReconstructSnapshot restores a snapshot from storage (for Repository use).
func ReconstructSnapshot(
	organizationID string,
	date time.Time,
	totalPubs, recentPubs, sourceCount int,
	sourceUpdates map[string]*time.Time,
	collectedAt time.Time,
	status valueobject.CollectionStatus,
) *Snapshot {
	return &Snapshot{
		organizationID: organizationID,
		date:           valueobject.Day(date),
		totalPubs:      totalPubs,
		recentPubs:     recentPubs,
		sourceCount:    sourceCount,
		sourceUpdates:  copySourceUpdates(sourceUpdates),
		collectedAt:    collectedAt.UTC(),
		status:         status,
	}
}

func (s *Snapshot) OrganizationID() string { return s.organizationID }

// Date returns the calendar date this snapshot is keyed by (UTC midnight).
func (s *Snapshot) Date() time.Time { return s.date }

func (s *Snapshot) TotalPublications() int { return s.totalPubs }

// RecentPublications counts publications in the trailing 30-day window
// relative to collection time.
func (s *Snapshot) RecentPublications() int { return s.recentPubs }

func (s *Snapshot) DataSourceCount() int { return s.sourceCount }

// SourceUpdates returns a copy of the per-data-source last update map.
// A nil value means the source reported no update timestamp.
func (s *Snapshot) SourceUpdates() map[string]*time.Time {
	return copySourceUpdates(s.sourceUpdates)
}

func (s *Snapshot) CollectedAt() time.Time { return s.collectedAt }

func (s *Snapshot) Status() valueobject.CollectionStatus { return s.status }

// Usable reports whether this snapshot may serve as a comparison baseline.
func (s *Snapshot) Usable() bool {
	return s.status.Usable()
}

// FreshnessDays returns the age in days of the most recent data source
// update relative to collection time, and false when no source reported one.
func (s *Snapshot) FreshnessDays() (int, bool) {
	var newest *time.Time
	for _, ts := range s.sourceUpdates {
		if ts == nil {
			continue
		}
		if newest == nil || ts.After(*newest) {
			newest = ts
		}
	}
	if newest == nil {
		return 0, false
	}
	return int(s.collectedAt.Sub(*newest).Hours() / 24), true
}

// Health classifies repository freshness for the dashboard: healthy (<=7d),
// warning (<=30d), critical (>30d), unknown when no source reported updates.
func (s *Snapshot) Health() string {
	days, ok := s.FreshnessDays()
	switch {
	case !ok:
		return "unknown"
	case days <= 7:
		return "healthy"
	case days <= 30:
		return "warning"
	default:
		return "critical"
	}
}

func copySourceUpdates(in map[string]*time.Time) map[string]*time.Time {
	out := make(map[string]*time.Time, len(in))
	for id, ts := range in {
		if ts == nil {
			out[id] = nil
			continue
		}
		t := ts.UTC()
		out[id] = &t
	}
	return out
}
