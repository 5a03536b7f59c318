package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/repository"
	"github.com/dreschagin/research-monitor/internal/domain/service"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// historyDepth bounds how many snapshots the rules look back over. The widest
// window is the stale-data check, so this comfortably covers it with daily
// collection.
const historyDepth = 45

// EvaluateAlertsUseCase reconciles rule findings against stored alerts: opens
// new ones, extends open ones that worsened, and resolves cleared ones.
type EvaluateAlertsUseCase struct {
	snapshots repository.SnapshotRepository
	alerts    repository.AlertRepository
	evaluator *service.RuleEvaluator
	publisher port.EventPublisher
	notifier  port.NotificationService
	logger    *logger.Logger
	now       func() time.Time
}

func NewEvaluateAlertsUseCase(
	snapshots repository.SnapshotRepository,
	alerts repository.AlertRepository,
	evaluator *service.RuleEvaluator,
	publisher port.EventPublisher,
	notifier port.NotificationService,
	logger *logger.Logger,
) *EvaluateAlertsUseCase {
	return &EvaluateAlertsUseCase{
		snapshots: snapshots,
		alerts:    alerts,
		evaluator: evaluator,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AvailabilityInput carries what the collector learned about reaching one
// organization's data during the current run.
type AvailabilityInput struct {
	LastSuccess  *time.Time // most recent successful collection, nil if never
	FirstAttempt time.Time  // when collection for this organization began
	Attempted    bool       // false when the run skipped the organization
}

// ExecuteForOrganization runs all rules for one organization and applies the
// resulting lifecycle changes. Returns how many alerts were opened and
// resolved. Re-running with unchanged data changes nothing.
func (uc *EvaluateAlertsUseCase) ExecuteForOrganization(
	ctx context.Context,
	organizationID string,
	availability AvailabilityInput,
) (opened, resolved int, err error) {
	now := uc.now()

	// 1. Load the evaluation window, newest first.
	history, err := uc.snapshots.FindLatest(ctx, organizationID, historyDepth)
	if err != nil {
		return 0, 0, fmt.Errorf("load snapshot history: %w", err)
	}

	// 2. Collect findings from the snapshot rules and the availability rule.
	findings := uc.evaluator.EvaluateOrganization(organizationID, history)
	if availability.Attempted {
		if f := uc.evaluator.EvaluateAvailability(organizationID, availability.LastSuccess, availability.FirstAttempt, now); f != nil {
			findings = append(findings, *f)
		}
	}

	// 3. Open or extend an alert per finding.
	active := make(map[string]bool, len(findings))
	for _, finding := range findings {
		active[finding.Key()] = true
		wasOpened, err := uc.applyFinding(ctx, finding, now)
		if err != nil {
			return opened, resolved, err
		}
		if wasOpened {
			opened++
		}
	}

	// 4. Resolve open alerts whose condition has cleared.
	open, err := uc.alerts.FindOpenByOrganization(ctx, organizationID)
	if err != nil {
		return opened, resolved, fmt.Errorf("load open alerts: %w", err)
	}
	for _, alert := range open {
		if active[alertKey(alert)] {
			continue
		}
		cleared := false
		if alert.Kind() == valueobject.KindSourceUnavailable {
			// A quiet availability rule during an attempted run means the
			// collection succeeded again.
			cleared = availability.Attempted
		} else {
			cleared = uc.evaluator.ShouldResolve(alert, history, now)
		}
		if !cleared {
			continue
		}
		if err := uc.resolveAlert(ctx, alert, now); err != nil {
			return opened, resolved, err
		}
		resolved++
	}

	return opened, resolved, nil
}

// applyFinding maps one finding onto the stored alert for its key. Reports
// whether a new alert record was created.
func (uc *EvaluateAlertsUseCase) applyFinding(ctx context.Context, finding service.Finding, now time.Time) (bool, error) {
	existing, err := uc.alerts.FindLatestByKey(ctx, finding.OrganizationID, finding.DataSourceID, finding.Kind)
	if err != nil {
		return false, fmt.Errorf("look up alert for %s: %w", finding.Key(), err)
	}

	if existing != nil && existing.IsOpen() {
		// Same condition still holding. Update only when it worsened so an
		// unchanged state writes nothing.
		if existing.Severity() == finding.Severity && existing.MetricAfter() == finding.MetricAfter {
			return false, nil
		}
		if err := existing.Extend(finding.Severity, finding.Message, finding.MetricAfter); err != nil {
			return false, fmt.Errorf("extend alert %s: %w", existing.ID(), err)
		}
		if err := uc.alerts.Save(ctx, existing); err != nil {
			return false, fmt.Errorf("save extended alert: %w", err)
		}
		uc.logger.Info("Alert extended",
			"alert_id", existing.ID(), "kind", finding.Kind.String(), "severity", existing.Severity().String())
		return false, nil
	}

	alert, err := entity.NewAlert(
		finding.OrganizationID, finding.DataSourceID,
		finding.Kind, finding.Severity, finding.Message,
		now, finding.MetricBefore, finding.MetricAfter,
	)
	if err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	if err := uc.alerts.Save(ctx, alert); err != nil {
		return false, fmt.Errorf("save alert: %w", err)
	}

	transition := valueobject.TransitionNew
	if existing != nil {
		// The same condition was resolved before and is back.
		transition = valueobject.TransitionReopened
	}
	uc.publishTransition(ctx, alert, transition, now)
	uc.logger.Warn("Alert opened",
		"alert_id", alert.ID(), "organization", alert.OrganizationID(),
		"kind", alert.Kind().String(), "severity", alert.Severity().String(),
		"transition", string(transition))
	return true, nil
}

func (uc *EvaluateAlertsUseCase) resolveAlert(ctx context.Context, alert *entity.Alert, now time.Time) error {
	if err := alert.Resolve(now); err != nil {
		return fmt.Errorf("resolve alert %s: %w", alert.ID(), err)
	}
	if err := uc.alerts.Save(ctx, alert); err != nil {
		return fmt.Errorf("save resolved alert: %w", err)
	}
	uc.publishTransition(ctx, alert, valueobject.TransitionResolved, now)
	uc.logger.Info("Alert resolved",
		"alert_id", alert.ID(), "organization", alert.OrganizationID(), "kind", alert.Kind().String())
	return nil
}

// publishTransition fans the event out to the bus and live clients. Delivery
// problems are logged, not propagated: alert state is already persisted.
func (uc *EvaluateAlertsUseCase) publishTransition(ctx context.Context, alert *entity.Alert, transition valueobject.TransitionType, now time.Time) {
	event := port.AlertTransitionEvent{
		AlertID:        alert.ID(),
		OrganizationID: alert.OrganizationID(),
		DataSourceID:   alert.DataSourceID(),
		Kind:           alert.Kind().String(),
		Severity:       alert.Severity().String(),
		Transition:     string(transition),
		Message:        alert.Message(),
		MetricBefore:   alert.MetricBefore(),
		MetricAfter:    alert.MetricAfter(),
		OccurredAt:     now.Format(time.RFC3339),
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishAlertTransition(ctx, event); err != nil {
			uc.logger.Error("Failed to publish alert transition", err, "alert_id", alert.ID())
		}
	}
	if uc.notifier != nil {
		uc.notifier.NotifyAlert(event)
	}
}

func alertKey(a *entity.Alert) string {
	return a.OrganizationID() + "/" + a.DataSourceID() + "/" + a.Kind().String()
}
