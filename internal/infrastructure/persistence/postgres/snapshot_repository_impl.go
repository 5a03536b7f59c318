package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dreschagin/research-monitor/internal/apperror"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

// PostgresSnapshotRepository implements repository.SnapshotRepository.
type PostgresSnapshotRepository struct {
	db *sql.DB
}

func NewPostgresSnapshotRepository(db *sql.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

// Save upserts the snapshot on its (organization_id, snapshot_date) key, so
// re-collecting a day atomically replaces the earlier row.
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot *entity.Snapshot) error {
	model, err := SnapshotToDBModel(snapshot)
	if err != nil {
		return &apperror.StorageError{Op: "encode snapshot", Cause: err}
	}

	query := `
		INSERT INTO snapshots (organization_id, snapshot_date, total_publications,
			recent_publications, data_source_count, source_updates, collected_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (organization_id, snapshot_date) DO UPDATE SET
			total_publications = EXCLUDED.total_publications,
			recent_publications = EXCLUDED.recent_publications,
			data_source_count = EXCLUDED.data_source_count,
			source_updates = EXCLUDED.source_updates,
			collected_at = EXCLUDED.collected_at,
			status = EXCLUDED.status
	`

	_, err = r.db.ExecContext(ctx, query,
		model.OrganizationID,
		model.SnapshotDate,
		model.TotalPublications,
		model.RecentPublications,
		model.DataSourceCount,
		model.SourceUpdates,
		model.CollectedAt,
		model.Status,
	)
	if err != nil {
		return &apperror.StorageError{Op: "save snapshot", Cause: err}
	}
	return nil
}

// FindLatest returns up to n snapshots of one organization, newest first.
func (r *PostgresSnapshotRepository) FindLatest(ctx context.Context, organizationID string, n int) ([]*entity.Snapshot, error) {
	query := `
		SELECT organization_id, snapshot_date, total_publications, recent_publications,
			data_source_count, source_updates, collected_at, status
		FROM snapshots
		WHERE organization_id = $1
		ORDER BY snapshot_date DESC, collected_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, n)
	if err != nil {
		return nil, &apperror.StorageError{Op: "query latest snapshots", Cause: err}
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// FindByDateRange returns one organization's snapshots within the range,
// oldest first.
func (r *PostgresSnapshotRepository) FindByDateRange(ctx context.Context, organizationID string, dates valueobject.DateRange) ([]*entity.Snapshot, error) {
	query := `
		SELECT organization_id, snapshot_date, total_publications, recent_publications,
			data_source_count, source_updates, collected_at, status
		FROM snapshots
		WHERE organization_id = $1 AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date ASC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, dates.Start(), dates.End())
	if err != nil {
		return nil, &apperror.StorageError{Op: "query snapshot range", Cause: err}
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// FindLatestForAll returns the newest snapshot per organization using
// DISTINCT ON, which beats a correlated subquery at this table size.
func (r *PostgresSnapshotRepository) FindLatestForAll(ctx context.Context) (map[string]*entity.Snapshot, error) {
	query := `
		SELECT DISTINCT ON (organization_id)
			organization_id, snapshot_date, total_publications, recent_publications,
			data_source_count, source_updates, collected_at, status
		FROM snapshots
		ORDER BY organization_id, snapshot_date DESC, collected_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &apperror.StorageError{Op: "query latest snapshots for all", Cause: err}
	}
	defer rows.Close()

	snapshots, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*entity.Snapshot, len(snapshots))
	for _, s := range snapshots {
		latest[s.OrganizationID()] = s
	}
	return latest, nil
}

// FindByKey returns the snapshot stored for an exact (organization, date)
// key, or nil when absent.
func (r *PostgresSnapshotRepository) FindByKey(ctx context.Context, organizationID string, date time.Time) (*entity.Snapshot, error) {
	query := `
		SELECT organization_id, snapshot_date, total_publications, recent_publications,
			data_source_count, source_updates, collected_at, status
		FROM snapshots
		WHERE organization_id = $1 AND snapshot_date = $2
	`

	row := r.db.QueryRowContext(ctx, query, organizationID, valueobject.Day(date))
	snapshot, err := scanSnapshotRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

type scanFunc func(dest ...interface{}) error

func scanSnapshotRow(scan scanFunc) (*entity.Snapshot, error) {
	var model SnapshotDBModel
	err := scan(
		&model.OrganizationID,
		&model.SnapshotDate,
		&model.TotalPublications,
		&model.RecentPublications,
		&model.DataSourceCount,
		&model.SourceUpdates,
		&model.CollectedAt,
		&model.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, &apperror.StorageError{Op: "scan snapshot row", Cause: err}
	}

	snapshot, err := SnapshotToEntity(&model)
	if err != nil {
		return nil, &apperror.StorageError{Op: "decode snapshot row", Cause: err}
	}
	return snapshot, nil
}

func scanSnapshots(rows *sql.Rows) ([]*entity.Snapshot, error) {
	var snapshots []*entity.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshotRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperror.StorageError{Op: "iterate snapshot rows", Cause: fmt.Errorf("rows: %w", err)}
	}
	return snapshots, nil
}
