package usecase

import (
	"context"
	"fmt"

	"github.com/dreschagin/research-monitor/internal/application/dto"
	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/repository"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

const defaultHistoryLimit = 100

// GetAlertsUseCase serves alert read queries.
type GetAlertsUseCase struct {
	alerts repository.AlertRepository
	cache  port.Cache
	logger *logger.Logger
}

func NewGetAlertsUseCase(
	alerts repository.AlertRepository,
	cache port.Cache,
	logger *logger.Logger,
) *GetAlertsUseCase {
	return &GetAlertsUseCase{alerts: alerts, cache: cache, logger: logger}
}

// Open returns currently unresolved alerts, newest first, optionally filtered
// to one organization.
func (uc *GetAlertsUseCase) Open(ctx context.Context, organizationID string) ([]dto.AlertDTO, error) {
	cacheKey := "alerts:open"
	if organizationID != "" {
		cacheKey += ":" + organizationID
	}

	var cached []dto.AlertDTO
	if uc.cache != nil && uc.cache.Get(ctx, cacheKey, &cached) == nil {
		return cached, nil
	}

	var open []*entity.Alert
	var err error
	if organizationID == "" {
		open, err = uc.alerts.FindOpen(ctx)
	} else {
		open, err = uc.alerts.FindOpenByOrganization(ctx, organizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("load open alerts: %w", err)
	}

	result := dto.AlertsFromEntities(open)
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, cacheKey, result, snapshotCacheTTL); err != nil {
			uc.logger.Warn("Cache write failed", "key", cacheKey, "error", err.Error())
		}
	}
	return result, nil
}

// History returns past and present alerts, newest first. organizationID may
// be empty; limit falls back to a sane default.
func (uc *GetAlertsUseCase) History(ctx context.Context, organizationID string, limit int) ([]dto.AlertDTO, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	alerts, err := uc.alerts.FindHistory(ctx, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("load alert history: %w", err)
	}
	return dto.AlertsFromEntities(alerts), nil
}
