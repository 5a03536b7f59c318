package dto

import (
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
)

// AlertDTO is the API representation of one alert record.
type AlertDTO struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	DataSourceID   string     `json:"data_source_id,omitempty"`
	Kind           string     `json:"kind"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	MetricBefore   float64    `json:"metric_before,omitempty"`
	MetricAfter    float64    `json:"metric_after,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

func AlertFromEntity(a *entity.Alert) AlertDTO {
	return AlertDTO{
		ID:             a.ID(),
		OrganizationID: a.OrganizationID(),
		DataSourceID:   a.DataSourceID(),
		Kind:           a.Kind().String(),
		Severity:       a.Severity().String(),
		Message:        a.Message(),
		TriggeredAt:    a.TriggeredAt(),
		MetricBefore:   a.MetricBefore(),
		MetricAfter:    a.MetricAfter(),
		ResolvedAt:     a.ResolvedAt(),
	}
}

func AlertsFromEntities(alerts []*entity.Alert) []AlertDTO {
	out := make([]AlertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, AlertFromEntity(a))
	}
	return out
}
