package repository

import (
	"context"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

// AlertRepository is the port for alert persistence.
type AlertRepository interface {
	// Save inserts a new alert or updates one already stored under its ID.
	Save(ctx context.Context, alert *entity.Alert) error

	// FindOpen returns all unresolved alerts, newest first.
	FindOpen(ctx context.Context) ([]*entity.Alert, error)

	// FindOpenByOrganization returns one organization's unresolved alerts,
	// newest first.
	FindOpenByOrganization(ctx context.Context, organizationID string) ([]*entity.Alert, error)

	// FindLatestByKey returns the most recent alert, open or resolved, for
	// one (organization, data source, kind) key, or nil when none exists.
	// dataSourceID is empty for organization-level alerts.
	FindLatestByKey(ctx context.Context, organizationID, dataSourceID string, kind valueobject.AlertKind) (*entity.Alert, error)

	// FindHistory returns alerts for one organization, newest first, limited
	// to n entries. organizationID may be empty to cover all organizations.
	FindHistory(ctx context.Context, organizationID string, n int) ([]*entity.Alert, error)
}
