package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
)

// mockSnapshotRepo is an in-memory SnapshotRepository keyed by
// (organization, date).
type mockSnapshotRepo struct {
	snapshots []*entity.Snapshot
	saveErr   error
}

func (m *mockSnapshotRepo) Save(_ context.Context, s *entity.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	for i, existing := range m.snapshots {
		if existing.OrganizationID() == s.OrganizationID() && existing.Date().Equal(s.Date()) {
			m.snapshots[i] = s
			return nil
		}
	}
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *mockSnapshotRepo) FindLatest(_ context.Context, orgID string, n int) ([]*entity.Snapshot, error) {
	var out []*entity.Snapshot
	for _, s := range m.snapshots {
		if s.OrganizationID() == orgID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date().After(out[j].Date()) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *mockSnapshotRepo) FindByDateRange(_ context.Context, orgID string, dates valueobject.DateRange) ([]*entity.Snapshot, error) {
	var out []*entity.Snapshot
	for _, s := range m.snapshots {
		if s.OrganizationID() == orgID && dates.Contains(s.Date()) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date().Before(out[j].Date()) })
	return out, nil
}

func (m *mockSnapshotRepo) FindLatestForAll(_ context.Context) (map[string]*entity.Snapshot, error) {
	latest := make(map[string]*entity.Snapshot)
	for _, s := range m.snapshots {
		if cur, ok := latest[s.OrganizationID()]; !ok || s.Date().After(cur.Date()) {
			latest[s.OrganizationID()] = s
		}
	}
	return latest, nil
}

func (m *mockSnapshotRepo) FindByKey(_ context.Context, orgID string, date time.Time) (*entity.Snapshot, error) {
	for _, s := range m.snapshots {
		if s.OrganizationID() == orgID && s.Date().Equal(valueobject.Day(date)) {
			return s, nil
		}
	}
	return nil, nil
}

// mockAlertRepo is an in-memory AlertRepository.
type mockAlertRepo struct {
	alerts []*entity.Alert
}

func (m *mockAlertRepo) Save(_ context.Context, a *entity.Alert) error {
	for i, existing := range m.alerts {
		if existing.ID() == a.ID() {
			m.alerts[i] = a
			return nil
		}
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *mockAlertRepo) FindOpen(_ context.Context) ([]*entity.Alert, error) {
	var out []*entity.Alert
	for _, a := range m.alerts {
		if a.IsOpen() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAlertRepo) FindOpenByOrganization(_ context.Context, orgID string) ([]*entity.Alert, error) {
	var out []*entity.Alert
	for _, a := range m.alerts {
		if a.IsOpen() && a.OrganizationID() == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAlertRepo) FindLatestByKey(_ context.Context, orgID, dataSourceID string, kind valueobject.AlertKind) (*entity.Alert, error) {
	var latest *entity.Alert
	for _, a := range m.alerts {
		if a.OrganizationID() != orgID || a.DataSourceID() != dataSourceID || a.Kind() != kind {
			continue
		}
		if latest == nil || a.TriggeredAt().After(latest.TriggeredAt()) {
			latest = a
		}
	}
	return latest, nil
}

func (m *mockAlertRepo) FindHistory(_ context.Context, orgID string, n int) ([]*entity.Alert, error) {
	var out []*entity.Alert
	for _, a := range m.alerts {
		if orgID == "" || a.OrganizationID() == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt().After(out[j].TriggeredAt()) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *mockAlertRepo) openCount() int {
	n := 0
	for _, a := range m.alerts {
		if a.IsOpen() {
			n++
		}
	}
	return n
}

// mockPublisher records published events.
type mockPublisher struct {
	transitions []port.AlertTransitionEvent
	summaries   []port.RunSummaryEvent
}

func (m *mockPublisher) PublishAlertTransition(_ context.Context, t port.AlertTransitionEvent) error {
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *mockPublisher) PublishRunSummary(_ context.Context, s port.RunSummaryEvent) error {
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// mockNotifier records live notifications.
type mockNotifier struct {
	alerts []port.AlertTransitionEvent
	runs   []port.RunSummaryEvent
}

func (m *mockNotifier) NotifyAlert(t port.AlertTransitionEvent) { m.alerts = append(m.alerts, t) }
func (m *mockNotifier) NotifyRun(s port.RunSummaryEvent)        { m.runs = append(m.runs, s) }

// mockGraphClient serves canned per-organization results.
type mockGraphClient struct {
	results      map[string]*port.OrganizationMetrics
	errs         map[string]error
	preflightErr error
	fetched      []string
}

func (m *mockGraphClient) FetchOrganization(_ context.Context, rorID string) (*port.OrganizationMetrics, error) {
	m.fetched = append(m.fetched, rorID)
	if err, ok := m.errs[rorID]; ok {
		return nil, err
	}
	if res, ok := m.results[rorID]; ok {
		return res, nil
	}
	return &port.OrganizationMetrics{OrganizationID: rorID}, nil
}

func (m *mockGraphClient) TestConnection(_ context.Context) error { return m.preflightErr }

// mockCache records cached keys and invalidated patterns.
type mockCache struct {
	store    map[string][]byte
	sets     []string
	deleted  []string
	patterns []string
}

func (m *mockCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return port.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	m.store[key] = raw
	m.sets = append(m.sets, key)
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	delete(m.store, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockCache) DeletePattern(_ context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.store {
		if strings.HasPrefix(key, prefix) {
			delete(m.store, key)
		}
	}
	return nil
}

// mockMetrics records exported telemetry.
type mockMetrics struct {
	runs    []port.RunSummaryEvent
	fetches []string
	flushed bool
}

func (m *mockMetrics) RecordRun(summary port.RunSummaryEvent, _ time.Duration) {
	m.runs = append(m.runs, summary)
}

func (m *mockMetrics) RecordOrganizationFetch(orgID string, _ int, _ bool, _ time.Duration) {
	m.fetches = append(m.fetches, orgID)
}

func (m *mockMetrics) Flush() error {
	m.flushed = true
	return nil
}

// mockRegistry serves a fixed roster.
type mockRegistry struct {
	orgs []entity.Organization
}

func (m *mockRegistry) All() []entity.Organization { return m.orgs }

func (m *mockRegistry) Find(id string) (entity.Organization, bool) {
	for _, o := range m.orgs {
		if o.ID == id {
			return o, true
		}
	}
	return entity.Organization{}, false
}
