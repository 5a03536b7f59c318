package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

// SnapshotDBModel represents one snapshot row.
type SnapshotDBModel struct {
	OrganizationID     string
	SnapshotDate       time.Time
	TotalPublications  int
	RecentPublications int
	DataSourceCount    int
	SourceUpdates      []byte // JSONB: data source id -> RFC3339 timestamp or null
	CollectedAt        time.Time
	Status             string
}

// SnapshotToDBModel converts a domain snapshot into its row form.
func SnapshotToDBModel(s *entity.Snapshot) (*SnapshotDBModel, error) {
	updates, err := json.Marshal(s.SourceUpdates())
	if err != nil {
		return nil, err
	}
	return &SnapshotDBModel{
		OrganizationID:     s.OrganizationID(),
		SnapshotDate:       s.Date(),
		TotalPublications:  s.TotalPublications(),
		RecentPublications: s.RecentPublications(),
		DataSourceCount:    s.DataSourceCount(),
		SourceUpdates:      updates,
		CollectedAt:        s.CollectedAt(),
		Status:             s.Status().String(),
	}, nil
}

// SnapshotToEntity restores a domain snapshot from its row form.
func SnapshotToEntity(model *SnapshotDBModel) (*entity.Snapshot, error) {
	var updates map[string]*time.Time
	if len(model.SourceUpdates) > 0 {
		if err := json.Unmarshal(model.SourceUpdates, &updates); err != nil {
			return nil, err
		}
	}
	return entity.ReconstructSnapshot(
		model.OrganizationID,
		model.SnapshotDate,
		model.TotalPublications,
		model.RecentPublications,
		model.DataSourceCount,
		updates,
		model.CollectedAt,
		valueobject.CollectionStatus(model.Status),
	), nil
}

// AlertDBModel represents one alert row.
type AlertDBModel struct {
	ID             string
	OrganizationID string
	DataSourceID   string
	Kind           string
	Severity       string
	Message        string
	TriggeredAt    time.Time
	MetricBefore   float64
	MetricAfter    float64
	ResolvedAt     sql.NullTime
}

// AlertToDBModel converts a domain alert into its row form.
func AlertToDBModel(a *entity.Alert) *AlertDBModel {
	model := &AlertDBModel{
		ID:             a.ID(),
		OrganizationID: a.OrganizationID(),
		DataSourceID:   a.DataSourceID(),
		Kind:           a.Kind().String(),
		Severity:       a.Severity().String(),
		Message:        a.Message(),
		TriggeredAt:    a.TriggeredAt(),
		MetricBefore:   a.MetricBefore(),
		MetricAfter:    a.MetricAfter(),
	}
	if resolved := a.ResolvedAt(); resolved != nil {
		model.ResolvedAt = sql.NullTime{Time: *resolved, Valid: true}
	}
	return model
}

// AlertToEntity restores a domain alert from its row form.
func AlertToEntity(model *AlertDBModel) *entity.Alert {
	var resolvedAt *time.Time
	if model.ResolvedAt.Valid {
		t := model.ResolvedAt.Time
		resolvedAt = &t
	}
	return entity.ReconstructAlert(
		model.ID,
		model.OrganizationID,
		model.DataSourceID,
		valueobject.AlertKind(model.Kind),
		valueobject.Severity(model.Severity),
		model.Message,
		model.TriggeredAt,
		model.MetricBefore,
		model.MetricAfter,
		resolvedAt,
	)
}
