package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/research-monitor/internal/apperror"
	"github.com/dreschagin/research-monitor/internal/application/dto"
	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/repository"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// RunCollectionUseCase drives one full collection cycle: fetch every
// registered organization, persist snapshots, evaluate alerts, then fan out
// the run summary.
type RunCollectionUseCase struct {
	registry    port.OrganizationRegistry
	client      port.GraphClient
	snapshots   repository.SnapshotRepository
	alerts      *EvaluateAlertsUseCase
	publisher   port.EventPublisher
	cache       port.Cache
	metrics     port.RunMetricsPublisher
	exporter    *ExportSnapshotsUseCase
	logger      *logger.Logger
	parallelism int
	now         func() time.Time
}

func NewRunCollectionUseCase(
	registry port.OrganizationRegistry,
	client port.GraphClient,
	snapshots repository.SnapshotRepository,
	alerts *EvaluateAlertsUseCase,
	publisher port.EventPublisher,
	cache port.Cache,
	metrics port.RunMetricsPublisher,
	exporter *ExportSnapshotsUseCase,
	logger *logger.Logger,
	parallelism int,
) *RunCollectionUseCase {
	if parallelism < 1 {
		parallelism = 1
	}
	return &RunCollectionUseCase{
		registry:    registry,
		client:      client,
		snapshots:   snapshots,
		alerts:      alerts,
		publisher:   publisher,
		cache:       cache,
		metrics:     metrics,
		exporter:    exporter,
		logger:      logger,
		parallelism: parallelism,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type orgResult struct {
	organizationID string
	status         valueobject.CollectionStatus
	attempts       int
	err            error
}

// Execute runs one collection cycle. A credential failure aborts the run
// early; any other per-organization failure is recorded and the run moves on.
func (uc *RunCollectionUseCase) Execute(ctx context.Context) (*dto.RunSummaryDTO, error) {
	started := uc.now()
	summary := &dto.RunSummaryDTO{
		RunID:     uuid.New().String(),
		StartedAt: started,
	}

	organizations := uc.registry.All()
	summary.Organizations = len(organizations)
	uc.logger.Info("Collection run started", "run_id", summary.RunID, "organizations", len(organizations))

	// 1. Preflight: fail fast on bad credentials instead of burning through
	// the whole roster.
	if err := uc.client.TestConnection(ctx); err != nil {
		uc.logger.Error("Connection preflight failed", err, "run_id", summary.RunID)
		uc.abort(summary, fmt.Sprintf("connection preflight failed: %v", err))
		uc.finish(ctx, summary)
		return summary, fmt.Errorf("connection preflight failed: %w", err)
	}

	// 2. Collect every organization, bounded by the parallelism limit.
	// A credential failure mid-run cancels the rest.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]orgResult, len(organizations))
	var (
		wg       sync.WaitGroup
		authOnce sync.Once
		authErr  error
	)
	sem := make(chan struct{}, uc.parallelism)
	for i, org := range organizations {
		if runCtx.Err() != nil {
			results[i] = orgResult{organizationID: org.ID, status: valueobject.StatusFailed, err: runCtx.Err()}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, org entity.Organization) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = uc.collectOne(runCtx, org)
			if apperror.IsAuth(results[i].err) {
				authOnce.Do(func() {
					authErr = results[i].err
					cancel()
				})
			}
		}(i, org)
	}
	wg.Wait()

	// 3. Tally outcomes and evaluate alerts per organization.
	for i := range results {
		res := &results[i]
		switch res.status {
		case valueobject.StatusSuccess:
			summary.Succeeded++
		case valueobject.StatusPartial:
			summary.Partial++
		default:
			summary.Failed++
			if res.err != nil {
				summary.Errors = append(summary.Errors, dto.RunErrorDTO{
					OrganizationID: res.organizationID,
					Attempts:       res.attempts,
					Error:          res.err.Error(),
				})
			}
		}

		if authErr != nil {
			continue // alert evaluation on a half-collected run would lie
		}
		opened, resolved, err := uc.alerts.ExecuteForOrganization(ctx, res.organizationID, uc.availabilityFor(ctx, res, started))
		if err != nil {
			uc.logger.Error("Alert evaluation failed", err, "organization", res.organizationID)
			continue
		}
		summary.AlertsOpened += opened
		summary.AlertsResolved += resolved
	}

	if authErr != nil {
		uc.abort(summary, fmt.Sprintf("authentication failed: %v", authErr))
	}

	uc.finish(ctx, summary)
	if authErr != nil {
		return summary, fmt.Errorf("collection aborted: %w", authErr)
	}
	return summary, nil
}

// collectOne fetches one organization and persists the resulting snapshot,
// including a failed marker when the fetch did not succeed.
func (uc *RunCollectionUseCase) collectOne(ctx context.Context, org entity.Organization) orgResult {
	fetchStart := uc.now()
	metrics, err := uc.client.FetchOrganization(ctx, org.RORID)
	attempts := attemptsFrom(err)

	if uc.metrics != nil {
		uc.metrics.RecordOrganizationFetch(org.ID, attempts, err == nil, uc.now().Sub(fetchStart))
	}

	if err != nil {
		uc.logger.Error("Organization collection failed", err, "organization", org.ID, "attempts", attempts)
		uc.saveFailedSnapshot(ctx, org.ID)
		return orgResult{organizationID: org.ID, status: valueobject.StatusFailed, attempts: attempts, err: err}
	}

	status := valueobject.StatusSuccess
	if metrics.Partial {
		status = valueobject.StatusPartial
	}

	updates := make(map[string]*time.Time, len(metrics.DataSources))
	for _, ds := range metrics.DataSources {
		updates[ds.ID] = ds.LastUpdated
	}

	now := uc.now()
	snapshot, err := entity.NewSnapshot(
		org.ID, now,
		metrics.TotalPublications, metrics.RecentPublications, len(metrics.DataSources),
		updates, now, status,
	)
	if err != nil {
		uc.logger.Error("Invalid snapshot from collected metrics", err, "organization", org.ID)
		return orgResult{organizationID: org.ID, status: valueobject.StatusFailed, attempts: attempts, err: err}
	}
	if err := uc.snapshots.Save(ctx, snapshot); err != nil {
		uc.logger.Error("Failed to save snapshot", err, "organization", org.ID)
		return orgResult{organizationID: org.ID, status: valueobject.StatusFailed, attempts: attempts, err: err}
	}

	uc.logger.Debug("Organization collected",
		"organization", org.ID, "total", metrics.TotalPublications, "status", status.String())
	return orgResult{organizationID: org.ID, status: status, attempts: attempts}
}

// saveFailedSnapshot records that collection was attempted and failed, so the
// gap is visible in history without polluting metric comparisons.
func (uc *RunCollectionUseCase) saveFailedSnapshot(ctx context.Context, organizationID string) {
	now := uc.now()
	snapshot, err := entity.NewSnapshot(organizationID, now, 0, 0, 0, nil, now, valueobject.StatusFailed)
	if err != nil {
		uc.logger.Error("Failed to build failure snapshot", err, "organization", organizationID)
		return
	}
	if err := uc.snapshots.Save(ctx, snapshot); err != nil {
		uc.logger.Error("Failed to save failure snapshot", err, "organization", organizationID)
	}
}

// availabilityFor derives the availability rule's input for one organization
// from this run's outcome and stored history.
func (uc *RunCollectionUseCase) availabilityFor(ctx context.Context, res *orgResult, runStart time.Time) AvailabilityInput {
	input := AvailabilityInput{FirstAttempt: runStart, Attempted: true}
	if res.status.Usable() {
		now := uc.now()
		input.LastSuccess = &now
		return input
	}

	history, err := uc.snapshots.FindLatest(ctx, res.organizationID, historyDepth)
	if err != nil {
		uc.logger.Error("Failed to load history for availability check", err, "organization", res.organizationID)
		return input
	}
	for _, snap := range history {
		if snap.Usable() {
			ts := snap.CollectedAt()
			input.LastSuccess = &ts
			break
		}
	}
	return input
}

func (uc *RunCollectionUseCase) abort(summary *dto.RunSummaryDTO, reason string) {
	summary.Aborted = true
	summary.AbortReason = reason
}

// finish stamps the summary and fans it out: cache invalidation, bus event,
// live clients, telemetry, and the daily export.
func (uc *RunCollectionUseCase) finish(ctx context.Context, summary *dto.RunSummaryDTO) {
	summary.FinishedAt = uc.now()
	duration := summary.FinishedAt.Sub(summary.StartedAt)
	summary.Duration = duration.Round(time.Millisecond).String()

	if uc.cache != nil {
		if err := uc.cache.DeletePattern(ctx, "snapshots:*"); err != nil {
			uc.logger.Error("Failed to invalidate snapshot cache", err)
		}
		if err := uc.cache.DeletePattern(ctx, "alerts:*"); err != nil {
			uc.logger.Error("Failed to invalidate alert cache", err)
		}
	}

	event := port.RunSummaryEvent{
		RunID:          summary.RunID,
		StartedAt:      summary.StartedAt.Format(time.RFC3339),
		FinishedAt:     summary.FinishedAt.Format(time.RFC3339),
		Organizations:  summary.Organizations,
		Succeeded:      summary.Succeeded,
		Partial:        summary.Partial,
		Failed:         summary.Failed,
		AlertsOpened:   summary.AlertsOpened,
		AlertsResolved: summary.AlertsResolved,
		Aborted:        summary.Aborted,
		AbortReason:    summary.AbortReason,
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishRunSummary(ctx, event); err != nil {
			uc.logger.Error("Failed to publish run summary", err, "run_id", summary.RunID)
		}
	}
	if uc.alerts != nil && uc.alerts.notifier != nil {
		uc.alerts.notifier.NotifyRun(event)
	}
	if uc.metrics != nil {
		uc.metrics.RecordRun(event, duration)
	}

	if uc.exporter != nil && !summary.Aborted {
		if key, err := uc.exporter.Execute(ctx, summary.FinishedAt); err != nil {
			uc.logger.Error("Daily export failed", err, "run_id", summary.RunID)
		} else {
			uc.logger.Info("Daily export stored", "run_id", summary.RunID, "key", key)
		}
	}

	uc.logger.Info("Collection run finished",
		"run_id", summary.RunID, "duration", summary.Duration,
		"succeeded", summary.Succeeded, "partial", summary.Partial, "failed", summary.Failed,
		"alerts_opened", summary.AlertsOpened, "alerts_resolved", summary.AlertsResolved,
		"aborted", summary.Aborted)
}

// attemptsFrom extracts the retry count from a transient failure, defaulting
// to one attempt for everything else.
func attemptsFrom(err error) int {
	if err == nil {
		return 1
	}
	var transient *apperror.TransientError
	if errors.As(err, &transient) {
		return transient.Attempts
	}
	return 1
}
