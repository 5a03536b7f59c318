package repository

import (
	"context"
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

// SnapshotRepository is the port for the snapshot store. Implementations live
// in the infrastructure layer.
type SnapshotRepository interface {
	// Save writes a snapshot, atomically replacing any existing snapshot for
	// the same (organization, date) key.
	Save(ctx context.Context, snapshot *entity.Snapshot) error

	// FindLatest returns up to n snapshots for one organization, most recent
	// date first, ties broken by collected_at.
	FindLatest(ctx context.Context, organizationID string, n int) ([]*entity.Snapshot, error)

	// FindByDateRange returns an organization's snapshots within the range,
	// oldest first.
	FindByDateRange(ctx context.Context, organizationID string, dates valueobject.DateRange) ([]*entity.Snapshot, error)

	// FindLatestForAll returns the most recent snapshot of every organization
	// that has one.
	FindLatestForAll(ctx context.Context) (map[string]*entity.Snapshot, error)

	// FindByKey returns the snapshot for an exact (organization, date) key,
	// or nil when absent.
	FindByKey(ctx context.Context, organizationID string, date time.Time) (*entity.Snapshot, error)
}
