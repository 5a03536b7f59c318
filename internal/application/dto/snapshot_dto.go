package dto

import (
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
)

// SnapshotDTO is the API representation of one daily snapshot.
type SnapshotDTO struct {
	OrganizationID     string                `json:"organization_id"`
	Date               string                `json:"date"`
	TotalPublications  int                   `json:"total_publications"`
	RecentPublications int                   `json:"recent_publications"`
	DataSourceCount    int                   `json:"data_source_count"`
	SourceUpdates      map[string]*time.Time `json:"source_updates,omitempty"`
	CollectedAt        time.Time             `json:"collected_at"`
	Status             string                `json:"status"`
	Health             string                `json:"health"`
}

func SnapshotFromEntity(s *entity.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		OrganizationID:     s.OrganizationID(),
		Date:               s.Date().Format("2006-01-02"),
		TotalPublications:  s.TotalPublications(),
		RecentPublications: s.RecentPublications(),
		DataSourceCount:    s.DataSourceCount(),
		SourceUpdates:      s.SourceUpdates(),
		CollectedAt:        s.CollectedAt(),
		Status:             s.Status().String(),
		Health:             s.Health(),
	}
}

func SnapshotsFromEntities(snapshots []*entity.Snapshot) []SnapshotDTO {
	out := make([]SnapshotDTO, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, SnapshotFromEntity(s))
	}
	return out
}
