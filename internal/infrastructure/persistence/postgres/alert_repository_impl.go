package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dreschagin/research-monitor/internal/apperror"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

const alertColumns = `id, organization_id, data_source_id, kind, severity, message,
	triggered_at, metric_before, metric_after, resolved_at`

// PostgresAlertRepository implements repository.AlertRepository. A partial
// unique index on (organization_id, data_source_id, kind) WHERE resolved_at
// IS NULL keeps at most one open alert per key even under races.
type PostgresAlertRepository struct {
	db *sql.DB
}

func NewPostgresAlertRepository(db *sql.DB) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db}
}

// Save inserts the alert or updates the row already stored under its id.
func (r *PostgresAlertRepository) Save(ctx context.Context, alert *entity.Alert) error {
	model := AlertToDBModel(alert)

	query := `
		INSERT INTO alerts (id, organization_id, data_source_id, kind, severity, message,
			triggered_at, metric_before, metric_after, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			message = EXCLUDED.message,
			metric_after = EXCLUDED.metric_after,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err := r.db.ExecContext(ctx, query,
		model.ID,
		model.OrganizationID,
		model.DataSourceID,
		model.Kind,
		model.Severity,
		model.Message,
		model.TriggeredAt,
		model.MetricBefore,
		model.MetricAfter,
		model.ResolvedAt,
	)
	if err != nil {
		return &apperror.StorageError{Op: "save alert", Cause: err}
	}
	return nil
}

// FindOpen returns all unresolved alerts, newest first.
func (r *PostgresAlertRepository) FindOpen(ctx context.Context) ([]*entity.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE resolved_at IS NULL
		ORDER BY triggered_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &apperror.StorageError{Op: "query open alerts", Cause: err}
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// FindOpenByOrganization returns one organization's unresolved alerts,
// newest first.
func (r *PostgresAlertRepository) FindOpenByOrganization(ctx context.Context, organizationID string) ([]*entity.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE resolved_at IS NULL AND organization_id = $1
		ORDER BY triggered_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, &apperror.StorageError{Op: "query open alerts by organization", Cause: err}
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// FindLatestByKey returns the most recent alert, open or resolved, for one
// alert key, or nil when none exists.
func (r *PostgresAlertRepository) FindLatestByKey(ctx context.Context, organizationID, dataSourceID string, kind valueobject.AlertKind) (*entity.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE organization_id = $1 AND data_source_id = $2 AND kind = $3
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, organizationID, dataSourceID, kind.String())
	alert, err := scanAlertRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// FindHistory returns alerts newest first, optionally filtered by
// organization.
func (r *PostgresAlertRepository) FindHistory(ctx context.Context, organizationID string, n int) ([]*entity.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE ($1 = '' OR organization_id = $1)
		ORDER BY triggered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, n)
	if err != nil {
		return nil, &apperror.StorageError{Op: "query alert history", Cause: err}
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func scanAlertRow(scan scanFunc) (*entity.Alert, error) {
	var model AlertDBModel
	err := scan(
		&model.ID,
		&model.OrganizationID,
		&model.DataSourceID,
		&model.Kind,
		&model.Severity,
		&model.Message,
		&model.TriggeredAt,
		&model.MetricBefore,
		&model.MetricAfter,
		&model.ResolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, &apperror.StorageError{Op: "scan alert row", Cause: err}
	}
	return AlertToEntity(&model), nil
}

func scanAlerts(rows *sql.Rows) ([]*entity.Alert, error) {
	var alerts []*entity.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperror.StorageError{Op: "iterate alert rows", Cause: err}
	}
	return alerts, nil
}
