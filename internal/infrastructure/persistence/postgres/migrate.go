package postgres

import (
	"context"
	"database/sql"

	"github.com/dreschagin/research-monitor/internal/apperror"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		organization_id     TEXT        NOT NULL,
		snapshot_date       DATE        NOT NULL,
		total_publications  INTEGER     NOT NULL,
		recent_publications INTEGER     NOT NULL,
		data_source_count   INTEGER     NOT NULL,
		source_updates      JSONB       NOT NULL DEFAULT '{}',
		collected_at        TIMESTAMPTZ NOT NULL,
		status              TEXT        NOT NULL,
		PRIMARY KEY (organization_id, snapshot_date)
	)`,
	`CREATE INDEX IF NOT EXISTS snapshots_date_idx ON snapshots (snapshot_date)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id              UUID             PRIMARY KEY,
		organization_id TEXT             NOT NULL,
		data_source_id  TEXT             NOT NULL DEFAULT '',
		kind            TEXT             NOT NULL,
		severity        TEXT             NOT NULL,
		message         TEXT             NOT NULL,
		triggered_at    TIMESTAMPTZ      NOT NULL,
		metric_before   DOUBLE PRECISION NOT NULL DEFAULT 0,
		metric_after    DOUBLE PRECISION NOT NULL DEFAULT 0,
		resolved_at     TIMESTAMPTZ
	)`,
	// At most one open alert per (organization, source, kind).
	`CREATE UNIQUE INDEX IF NOT EXISTS alerts_open_key_idx
		ON alerts (organization_id, data_source_id, kind)
		WHERE resolved_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS alerts_org_triggered_idx
		ON alerts (organization_id, triggered_at DESC)`,
}

// Migrate creates the schema when it does not exist yet. Statements are
// idempotent, so running at every startup is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &apperror.StorageError{Op: "apply schema", Cause: err}
		}
	}
	return nil
}
