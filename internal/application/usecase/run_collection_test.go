package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dreschagin/research-monitor/internal/apperror"
	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/service"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

type runFixture struct {
	uc        *RunCollectionUseCase
	registry  *mockRegistry
	client    *mockGraphClient
	snapshots *mockSnapshotRepo
	alerts    *mockAlertRepo
	publisher *mockPublisher
	notifier  *mockNotifier
	cache     *mockCache
	metrics   *mockMetrics
}

func newRunFixture(orgs ...entity.Organization) *runFixture {
	f := &runFixture{
		registry:  &mockRegistry{orgs: orgs},
		client:    &mockGraphClient{results: map[string]*port.OrganizationMetrics{}, errs: map[string]error{}},
		snapshots: &mockSnapshotRepo{},
		alerts:    &mockAlertRepo{},
		publisher: &mockPublisher{},
		notifier:  &mockNotifier{},
		cache:     &mockCache{},
		metrics:   &mockMetrics{},
	}
	log := logger.New("error")
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
	evaluate := NewEvaluateAlertsUseCase(f.snapshots, f.alerts, evaluator, f.publisher, f.notifier, log)
	f.uc = NewRunCollectionUseCase(
		f.registry, f.client, f.snapshots, evaluate,
		f.publisher, f.cache, f.metrics, nil, log, 1,
	)
	return f
}

func org(id string) entity.Organization {
	return entity.Organization{ID: id, Name: id, RORID: "ror-" + id}
}

func TestRunCollection_HappyPath(t *testing.T) {
	f := newRunFixture(org("org-1"), org("org-2"))
	updated := time.Now().UTC().Add(-24 * time.Hour)
	f.client.results["ror-org-1"] = &port.OrganizationMetrics{
		OrganizationID:     "org-1",
		TotalPublications:  1200,
		RecentPublications: 80,
		DataSources: []port.DataSourceMetrics{
			{ID: "ds-1", Name: "repo", Type: "repository", LastUpdated: &updated},
		},
	}
	f.client.results["ror-org-2"] = &port.OrganizationMetrics{
		OrganizationID:    "org-2",
		TotalPublications: 300,
		Partial:           true,
	}

	summary, err := f.uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if summary.Organizations != 2 || summary.Succeeded != 1 || summary.Partial != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 2 orgs, 1 succeeded, 1 partial", summary)
	}
	if len(f.snapshots.snapshots) != 2 {
		t.Fatalf("stored snapshots = %d, want 2", len(f.snapshots.snapshots))
	}
	for _, s := range f.snapshots.snapshots {
		if s.OrganizationID() == "org-2" && s.Status() != valueobject.StatusPartial {
			t.Errorf("org-2 status = %s, want partial", s.Status())
		}
	}
	if len(f.publisher.summaries) != 1 {
		t.Fatalf("published summaries = %d, want 1", len(f.publisher.summaries))
	}
	if len(f.notifier.runs) != 1 {
		t.Errorf("live run notifications = %d, want 1", len(f.notifier.runs))
	}
	if len(f.metrics.runs) != 1 || len(f.metrics.fetches) != 2 {
		t.Errorf("telemetry runs/fetches = %d/%d, want 1/2", len(f.metrics.runs), len(f.metrics.fetches))
	}
	if len(f.cache.patterns) == 0 {
		t.Error("cache was not invalidated after the run")
	}
}

func TestRunCollection_OrganizationFailureIsIsolated(t *testing.T) {
	f := newRunFixture(org("org-1"), org("org-2"), org("org-3"))
	f.client.errs["ror-org-2"] = &apperror.TransientError{
		OrgID: "org-2", Attempts: 5, Cause: errors.New("upstream 503"),
	}

	summary, err := f.uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 2/1", summary.Succeeded, summary.Failed)
	}
	if len(f.client.fetched) != 3 {
		t.Fatalf("fetched = %d organizations, want all 3", len(f.client.fetched))
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("summary errors = %d, want 1", len(summary.Errors))
	}
	if summary.Errors[0].OrganizationID != "org-2" || summary.Errors[0].Attempts != 5 {
		t.Errorf("error record = %+v, want org-2 with 5 attempts", summary.Errors[0])
	}

	// The failure itself leaves a visible marker snapshot.
	failed, err := f.snapshots.FindLatest(context.Background(), "org-2", 1)
	if err != nil || len(failed) != 1 {
		t.Fatalf("org-2 snapshots = %d (%v), want 1", len(failed), err)
	}
	if failed[0].Status() != valueobject.StatusFailed {
		t.Errorf("org-2 snapshot status = %s, want failed", failed[0].Status())
	}
}

func TestRunCollection_AuthErrorAborts(t *testing.T) {
	f := newRunFixture(org("org-1"), org("org-2"), org("org-3"))
	f.client.errs["ror-org-1"] = &apperror.AuthError{StatusCode: 401, Cause: errors.New("invalid_client")}

	summary, err := f.uc.Execute(context.Background())
	if err == nil {
		t.Fatal("expected an error for an aborted run")
	}
	if !apperror.IsAuth(err) {
		t.Fatalf("error = %v, want auth error", err)
	}
	if !summary.Aborted || summary.AbortReason == "" {
		t.Fatalf("summary = %+v, want aborted with reason", summary)
	}
	if summary.AlertsOpened != 0 {
		t.Errorf("alerts opened = %d, want 0 on an aborted run", summary.AlertsOpened)
	}
	if len(f.publisher.summaries) != 1 {
		t.Errorf("published summaries = %d, aborted runs still report", len(f.publisher.summaries))
	}
}

func TestRunCollection_PreflightFailureSkipsRoster(t *testing.T) {
	f := newRunFixture(org("org-1"), org("org-2"))
	f.client.preflightErr = &apperror.AuthError{StatusCode: 401, Cause: errors.New("invalid_client")}

	summary, err := f.uc.Execute(context.Background())
	if err == nil {
		t.Fatal("expected preflight error")
	}
	if !summary.Aborted {
		t.Fatal("summary not marked aborted")
	}
	if len(f.client.fetched) != 0 {
		t.Fatalf("fetched = %d organizations, want 0 after failed preflight", len(f.client.fetched))
	}
	if len(f.snapshots.snapshots) != 0 {
		t.Fatalf("stored snapshots = %d, want 0", len(f.snapshots.snapshots))
	}
}

func TestRunCollection_RecollectionReplacesSameDay(t *testing.T) {
	f := newRunFixture(org("org-1"))
	f.client.results["ror-org-1"] = &port.OrganizationMetrics{OrganizationID: "org-1", TotalPublications: 100}

	ctx := context.Background()
	if _, err := f.uc.Execute(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	f.client.results["ror-org-1"].TotalPublications = 105
	if _, err := f.uc.Execute(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(f.snapshots.snapshots) != 1 {
		t.Fatalf("stored snapshots = %d, want 1 per (org, day)", len(f.snapshots.snapshots))
	}
	if got := f.snapshots.snapshots[0].TotalPublications(); got != 105 {
		t.Errorf("total = %d, want the re-collected 105", got)
	}
}
