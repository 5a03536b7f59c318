package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/service"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

var evalNow = time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)

func newEvaluateFixture() (*EvaluateAlertsUseCase, *mockSnapshotRepo, *mockAlertRepo, *mockPublisher, *mockNotifier) {
	snapshots := &mockSnapshotRepo{}
	alerts := &mockAlertRepo{}
	publisher := &mockPublisher{}
	notifier := &mockNotifier{}
	evaluator := service.NewRuleEvaluator(service.Thresholds{
		DropPercent:         20,
		CriticalDropPercent: 50,
		StaleDays:           30,
		FreshnessDays:       14,
		FreshnessCritical:   30,
		UnavailableAfter:    6 * time.Hour,
		RecoveryPercent:     5,
		RecoverySnapshots:   7,
	})
	uc := NewEvaluateAlertsUseCase(snapshots, alerts, evaluator, publisher, notifier, logger.New("error"))
	uc.now = func() time.Time { return evalNow }
	return uc, snapshots, alerts, publisher, notifier
}

func addSnap(t *testing.T, repo *mockSnapshotRepo, orgID string, daysAgo, total int, status valueobject.CollectionStatus) {
	t.Helper()
	date := evalNow.AddDate(0, 0, -daysAgo)
	snap := entity.ReconstructSnapshot(orgID, date, total, total/10, 1, nil, date, status)
	if err := repo.Save(context.Background(), snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func okAvailability() AvailabilityInput {
	ts := evalNow.Add(-time.Minute)
	return AvailabilityInput{LastSuccess: &ts, FirstAttempt: evalNow.Add(-time.Hour), Attempted: true}
}

func TestEvaluateAlerts_OpensDropAlert(t *testing.T) {
	uc, snapshots, alerts, publisher, notifier := newEvaluateFixture()
	addSnap(t, snapshots, "org-1", 2, 100, valueobject.StatusSuccess)
	addSnap(t, snapshots, "org-1", 1, 100, valueobject.StatusSuccess)
	addSnap(t, snapshots, "org-1", 0, 78, valueobject.StatusSuccess)

	opened, resolved, err := uc.ExecuteForOrganization(context.Background(), "org-1", okAvailability())
	if err != nil {
		t.Fatalf("ExecuteForOrganization: %v", err)
	}
	if opened != 1 || resolved != 0 {
		t.Fatalf("opened/resolved = %d/%d, want 1/0", opened, resolved)
	}

	if len(alerts.alerts) != 1 {
		t.Fatalf("stored alerts = %d, want 1", len(alerts.alerts))
	}
	a := alerts.alerts[0]
	if a.Kind() != valueobject.KindPublicationDrop {
		t.Errorf("kind = %s, want publication_drop", a.Kind())
	}
	if a.Severity() != valueobject.SeverityWarning {
		t.Errorf("severity = %s, want warning", a.Severity())
	}
	if a.MetricBefore() != 100 || a.MetricAfter() != 78 {
		t.Errorf("metrics = %.0f/%.0f, want 100/78", a.MetricBefore(), a.MetricAfter())
	}

	if len(publisher.transitions) != 1 || publisher.transitions[0].Transition != "new" {
		t.Fatalf("transitions = %+v, want one 'new'", publisher.transitions)
	}
	if len(notifier.alerts) != 1 {
		t.Errorf("live notifications = %d, want 1", len(notifier.alerts))
	}
}

func TestEvaluateAlerts_Idempotent(t *testing.T) {
	uc, snapshots, alerts, publisher, _ := newEvaluateFixture()
	addSnap(t, snapshots, "org-1", 1, 100, valueobject.StatusSuccess)
	addSnap(t, snapshots, "org-1", 0, 70, valueobject.StatusSuccess)

	for i := 0; i < 3; i++ {
		if _, _, err := uc.ExecuteForOrganization(context.Background(), "org-1", okAvailability()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if len(alerts.alerts) != 1 {
		t.Fatalf("stored alerts = %d, want 1 after repeated evaluation", len(alerts.alerts))
	}
	if len(publisher.transitions) != 1 {
		t.Fatalf("transitions = %d, want 1 after repeated evaluation", len(publisher.transitions))
	}
}

func TestEvaluateAlerts_ExtendsOnWorsening(t *testing.T) {
	uc, snapshots, alerts, publisher, _ := newEvaluateFixture()
	addSnap(t, snapshots, "org-1", 1, 100, valueobject.StatusSuccess)
	addSnap(t, snapshots, "org-1", 0, 75, valueobject.StatusSuccess)

	if _, _, err := uc.ExecuteForOrganization(context.Background(), "org-1", okAvailability()); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if alerts.alerts[0].Severity() != valueobject.SeverityWarning {
		t.Fatalf("initial severity = %s, want warning", alerts.alerts[0].Severity())
	}

	// Next day the count collapses further; the open alert escalates in
	// place instead of spawning a duplicate.
	addSnap(t, snapshots, "org-1", -1, 30, valueobject.StatusSuccess)
	opened, _, err := uc.ExecuteForOrganization(context.Background(), "org-1", okAvailability())
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if opened != 0 {
		t.Fatalf("opened = %d, want 0 (extend, not reopen)", opened)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("stored alerts = %d, want 1", len(alerts.alerts))
	}
	if alerts.alerts[0].Severity() != valueobject.SeverityCritical {
		t.Errorf("severity = %s, want critical after escalation", alerts.alerts[0].Severity())
	}
	if len(publisher.transitions) != 1 {
		t.Errorf("transitions = %d, extension should not publish", len(publisher.transitions))
	}
}

func TestEvaluateAlerts_ResolvesOnRecovery(t *testing.T) {
	uc, snapshots, alerts, publisher, _ := newEvaluateFixture()
	addSnap(t, snapshots, "org-1", 1, 100, valueobject.StatusSuccess)
	addSnap(t, snapshots, "org-1", 0, 70, valueobject.StatusSuccess)

	if _, _, err := uc.ExecuteForOrganization(context.Background(), "org-1", okAvailability()); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if alerts.openCount() != 1 {
		t.Fatalf("open alerts = %d, want 1", alerts.openCount())
	}

	// The count climbs back within the recovery margin of the baseline.
	addSnap(t, snapshots, "org-1", -1, 97, valueobject.StatusSuccess)
	opened, resolved, err := uc.ExecuteForOrganization(context.Background(), "org-1", okAvailability())
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if opened != 0 || resolved != 1 {
		t.Fatalf("opened/resolved = %d/%d, want 0/1", opened, resolved)
	}
	if alerts.openCount() != 0 {
		t.Fatalf("open alerts = %d, want 0", alerts.openCount())
	}

	last := publisher.transitions[len(publisher.transitions)-1]
	if last.Transition != "resolved" {
		t.Errorf("last transition = %s, want resolved", last.Transition)
	}
}

func TestEvaluateAlerts_ReopenAfterResolution(t *testing.T) {
	uc, snapshots, alerts, publisher, _ := newEvaluateFixture()
	addSnap(t, snapshots, "org-1", 2, 100, valueobject.StatusSuccess)
	addSnap(t, snapshots, "org-1", 1, 70, valueobject.StatusSuccess)

	ctx := context.Background()
	if _, _, err := uc.ExecuteForOrganization(ctx, "org-1", okAvailability()); err != nil {
		t.Fatalf("open: %v", err)
	}
	addSnap(t, snapshots, "org-1", 0, 99, valueobject.StatusSuccess)
	if _, _, err := uc.ExecuteForOrganization(ctx, "org-1", okAvailability()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// The drop comes back: a fresh record opens with a reopened transition,
	// keeping the resolved one as history.
	addSnap(t, snapshots, "org-1", -1, 60, valueobject.StatusSuccess)
	opened, _, err := uc.ExecuteForOrganization(ctx, "org-1", okAvailability())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if opened != 1 {
		t.Fatalf("opened = %d, want 1", opened)
	}
	if len(alerts.alerts) != 2 {
		t.Fatalf("stored alerts = %d, want 2 (history kept)", len(alerts.alerts))
	}

	last := publisher.transitions[len(publisher.transitions)-1]
	if last.Transition != "reopened" {
		t.Errorf("last transition = %s, want reopened", last.Transition)
	}
}

func TestEvaluateAlerts_FailedSnapshotNotBaseline(t *testing.T) {
	uc, snapshots, alerts, _, _ := newEvaluateFixture()
	addSnap(t, snapshots, "org-1", 2, 100, valueobject.StatusSuccess)
	addSnap(t, snapshots, "org-1", 1, 0, valueobject.StatusFailed)
	addSnap(t, snapshots, "org-1", 0, 98, valueobject.StatusSuccess)

	opened, _, err := uc.ExecuteForOrganization(context.Background(), "org-1", okAvailability())
	if err != nil {
		t.Fatalf("ExecuteForOrganization: %v", err)
	}
	if opened != 0 {
		t.Fatalf("opened = %d, want 0: failed day must not read as a drop", opened)
	}
	if len(alerts.alerts) != 0 {
		t.Fatalf("stored alerts = %d, want 0", len(alerts.alerts))
	}
}

func TestEvaluateAlerts_SourceUnavailableLifecycle(t *testing.T) {
	uc, snapshots, alerts, _, _ := newEvaluateFixture()
	addSnap(t, snapshots, "org-1", 1, 100, valueobject.StatusSuccess)

	ctx := context.Background()

	// Collection has been failing for longer than the silence limit.
	lastSuccess := evalNow.Add(-8 * time.Hour)
	down := AvailabilityInput{LastSuccess: &lastSuccess, FirstAttempt: evalNow.Add(-9 * time.Hour), Attempted: true}
	opened, _, err := uc.ExecuteForOrganization(ctx, "org-1", down)
	if err != nil {
		t.Fatalf("down evaluation: %v", err)
	}
	if opened != 1 {
		t.Fatalf("opened = %d, want 1", opened)
	}
	a, _ := alerts.FindLatestByKey(ctx, "org-1", "", valueobject.KindSourceUnavailable)
	if a == nil || a.Severity() != valueobject.SeverityCritical {
		t.Fatalf("expected open critical source_unavailable alert, got %+v", a)
	}

	// The next successful run clears it.
	_, resolved, err := uc.ExecuteForOrganization(ctx, "org-1", okAvailability())
	if err != nil {
		t.Fatalf("recovered evaluation: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("resolved = %d, want 1", resolved)
	}
	if alerts.openCount() != 0 {
		t.Fatalf("open alerts = %d, want 0", alerts.openCount())
	}
}
