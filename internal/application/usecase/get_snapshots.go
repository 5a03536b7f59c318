package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dreschagin/research-monitor/internal/application/dto"
	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/domain/repository"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

const snapshotCacheTTL = 5 * time.Minute

// GetSnapshotsUseCase serves snapshot read queries, fronted by a short-lived
// cache that collection runs invalidate.
type GetSnapshotsUseCase struct {
	snapshots repository.SnapshotRepository
	cache     port.Cache
	logger    *logger.Logger
}

func NewGetSnapshotsUseCase(
	snapshots repository.SnapshotRepository,
	cache port.Cache,
	logger *logger.Logger,
) *GetSnapshotsUseCase {
	return &GetSnapshotsUseCase{snapshots: snapshots, cache: cache, logger: logger}
}

// Latest returns every organization's most recent snapshot, sorted by
// organization id.
func (uc *GetSnapshotsUseCase) Latest(ctx context.Context) ([]dto.SnapshotDTO, error) {
	const cacheKey = "snapshots:latest"

	var cached []dto.SnapshotDTO
	if uc.tryCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	latest, err := uc.snapshots.FindLatestForAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshots: %w", err)
	}

	result := make([]dto.SnapshotDTO, 0, len(latest))
	for _, snap := range latest {
		result = append(result, dto.SnapshotFromEntity(snap))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OrganizationID < result[j].OrganizationID
	})

	uc.storeCache(ctx, cacheKey, result)
	return result, nil
}

// History returns one organization's snapshots within the date range, oldest
// first.
func (uc *GetSnapshotsUseCase) History(ctx context.Context, organizationID string, start, end time.Time) ([]dto.SnapshotDTO, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	dates, err := valueobject.NewDateRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("invalid date range: %w", err)
	}

	cacheKey := fmt.Sprintf("snapshots:history:%s:%s:%s",
		organizationID, dates.Start().Format("2006-01-02"), dates.End().Format("2006-01-02"))

	var cached []dto.SnapshotDTO
	if uc.tryCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	snapshots, err := uc.snapshots.FindByDateRange(ctx, organizationID, dates)
	if err != nil {
		return nil, fmt.Errorf("load snapshot history: %w", err)
	}

	result := dto.SnapshotsFromEntities(snapshots)
	uc.storeCache(ctx, cacheKey, result)
	return result, nil
}

func (uc *GetSnapshotsUseCase) tryCache(ctx context.Context, key string, dest interface{}) bool {
	if uc.cache == nil {
		return false
	}
	err := uc.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, port.ErrCacheMiss) {
		uc.logger.Warn("Cache read failed", "key", key, "error", err.Error())
	}
	return false
}

func (uc *GetSnapshotsUseCase) storeCache(ctx context.Context, key string, value interface{}) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, key, value, snapshotCacheTTL); err != nil {
		uc.logger.Warn("Cache write failed", "key", key, "error", err.Error())
	}
}
