package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dreschagin/research-monitor/internal/application/dto"
	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/domain/repository"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// ExportSnapshotsUseCase writes the latest snapshot of every organization to
// object storage as one dated JSON document.
type ExportSnapshotsUseCase struct {
	snapshots repository.SnapshotRepository
	storage   port.ExportStorage
	logger    *logger.Logger
}

func NewExportSnapshotsUseCase(
	snapshots repository.SnapshotRepository,
	storage port.ExportStorage,
	logger *logger.Logger,
) *ExportSnapshotsUseCase {
	return &ExportSnapshotsUseCase{snapshots: snapshots, storage: storage, logger: logger}
}

// exportDocument is the stored JSON layout.
type exportDocument struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Count       int               `json:"count"`
	Snapshots   []dto.SnapshotDTO `json:"snapshots"`
}

// Execute builds and uploads the export for the given date, returning the
// object key.
func (uc *ExportSnapshotsUseCase) Execute(ctx context.Context, date time.Time) (string, error) {
	latest, err := uc.snapshots.FindLatestForAll(ctx)
	if err != nil {
		return "", fmt.Errorf("load latest snapshots: %w", err)
	}

	doc := exportDocument{GeneratedAt: time.Now().UTC(), Count: len(latest)}
	for _, snap := range latest {
		doc.Snapshots = append(doc.Snapshots, dto.SnapshotFromEntity(snap))
	}
	sort.Slice(doc.Snapshots, func(i, j int) bool {
		return doc.Snapshots[i].OrganizationID < doc.Snapshots[j].OrganizationID
	})

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	key, err := uc.storage.StoreDailyExport(ctx, date, payload)
	if err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}
	uc.logger.Debug("Export uploaded", "key", key, "organizations", doc.Count)
	return key, nil
}
