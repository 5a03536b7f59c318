package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreschagin/research-monitor/internal/application/dto"
	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/application/usecase"
	"github.com/dreschagin/research-monitor/internal/domain/entity"
	"github.com/dreschagin/research-monitor/internal/domain/service"
	"github.com/dreschagin/research-monitor/internal/domain/valueobject"
	wsInfra "github.com/dreschagin/research-monitor/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/research-monitor/internal/infrastructure/registry"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/handler"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/research-monitor/internal/scheduler"
	"github.com/dreschagin/research-monitor/pkg/config"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

const testToken = "test-token"

const testRoster = `
organizations:
  - id: univ-a
    name: University A
    ror_id: 00aaaa001
  - id: univ-b
    name: University B
    ror_id: 00bbbb002
`

type memorySnapshotRepo struct {
	mu        sync.RWMutex
	snapshots map[string]*entity.Snapshot
}

func newMemorySnapshotRepo() *memorySnapshotRepo {
	return &memorySnapshotRepo{snapshots: make(map[string]*entity.Snapshot)}
}

func snapshotKey(organizationID string, date time.Time) string {
	return organizationID + "|" + valueobject.Day(date).Format("2006-01-02")
}

func (r *memorySnapshotRepo) Save(_ context.Context, snapshot *entity.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snapshotKey(snapshot.OrganizationID(), snapshot.Date())] = snapshot
	return nil
}

func (r *memorySnapshotRepo) FindLatest(_ context.Context, organizationID string, n int) ([]*entity.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*entity.Snapshot
	for _, snap := range r.snapshots {
		if snap.OrganizationID() == organizationID {
			result = append(result, snap)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date().After(result[j].Date())
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result, nil
}

func (r *memorySnapshotRepo) FindByDateRange(_ context.Context, organizationID string, dates valueobject.DateRange) ([]*entity.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*entity.Snapshot
	for _, snap := range r.snapshots {
		if snap.OrganizationID() == organizationID && dates.Contains(snap.Date()) {
			result = append(result, snap)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date().Before(result[j].Date())
	})
	return result, nil
}

func (r *memorySnapshotRepo) FindLatestForAll(_ context.Context) (map[string]*entity.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	latest := make(map[string]*entity.Snapshot)
	for _, snap := range r.snapshots {
		current, ok := latest[snap.OrganizationID()]
		if !ok || snap.Date().After(current.Date()) {
			latest[snap.OrganizationID()] = snap
		}
	}
	return latest, nil
}

func (r *memorySnapshotRepo) FindByKey(_ context.Context, organizationID string, date time.Time) (*entity.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshots[snapshotKey(organizationID, date)], nil
}

type memoryAlertRepo struct {
	mu     sync.RWMutex
	alerts []*entity.Alert
}

func (r *memoryAlertRepo) Save(_ context.Context, alert *entity.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.alerts {
		if existing.ID() == alert.ID() {
			r.alerts[i] = alert
			return nil
		}
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *memoryAlertRepo) FindOpen(_ context.Context) ([]*entity.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*entity.Alert
	for _, alert := range r.alerts {
		if alert.IsOpen() {
			result = append(result, alert)
		}
	}
	sortAlertsNewestFirst(result)
	return result, nil
}

func (r *memoryAlertRepo) FindOpenByOrganization(_ context.Context, organizationID string) ([]*entity.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*entity.Alert
	for _, alert := range r.alerts {
		if alert.IsOpen() && alert.OrganizationID() == organizationID {
			result = append(result, alert)
		}
	}
	sortAlertsNewestFirst(result)
	return result, nil
}

func (r *memoryAlertRepo) FindLatestByKey(_ context.Context, organizationID, dataSourceID string, kind valueobject.AlertKind) (*entity.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *entity.Alert
	for _, alert := range r.alerts {
		if alert.OrganizationID() != organizationID || alert.DataSourceID() != dataSourceID || alert.Kind() != kind {
			continue
		}
		if latest == nil || alert.TriggeredAt().After(latest.TriggeredAt()) {
			latest = alert
		}
	}
	return latest, nil
}

func (r *memoryAlertRepo) FindHistory(_ context.Context, organizationID string, n int) ([]*entity.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*entity.Alert
	for _, alert := range r.alerts {
		if organizationID == "" || alert.OrganizationID() == organizationID {
			result = append(result, alert)
		}
	}
	sortAlertsNewestFirst(result)
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result, nil
}

func sortAlertsNewestFirst(alerts []*entity.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].TriggeredAt().After(alerts[j].TriggeredAt())
	})
}

type stubGraphClient struct {
	mu      sync.Mutex
	results map[string]*port.OrganizationMetrics
}

func (c *stubGraphClient) FetchOrganization(_ context.Context, rorID string) (*port.OrganizationMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if metrics, ok := c.results[rorID]; ok {
		copied := *metrics
		return &copied, nil
	}
	return nil, &stubNotFoundError{rorID: rorID}
}

func (c *stubGraphClient) TestConnection(context.Context) error { return nil }

type stubNotFoundError struct{ rorID string }

func (e *stubNotFoundError) Error() string { return "organization not found: " + e.rorID }

type testEnv struct {
	server    *httptest.Server
	snapshots *memorySnapshotRepo
	alerts    *memoryAlertRepo
	sched     *scheduler.Scheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.New("error")

	roster, err := registry.ParseYAMLRegistry([]byte(testRoster))
	if err != nil {
		t.Fatalf("parse roster: %v", err)
	}

	snapshots := newMemorySnapshotRepo()
	alerts := &memoryAlertRepo{}

	lastUpdated := time.Now().UTC().Add(-24 * time.Hour)
	client := &stubGraphClient{results: map[string]*port.OrganizationMetrics{
		"00aaaa001": {
			OrganizationID:     "univ-a",
			ResolvedGraphID:    "openorgs____::a",
			TotalPublications:  1200,
			RecentPublications: 40,
			DataSources: []port.DataSourceMetrics{
				{ID: "ds-a1", Name: "Repository A", Type: "repository", LastUpdated: &lastUpdated},
			},
		},
		"00bbbb002": {
			OrganizationID:     "univ-b",
			ResolvedGraphID:    "openorgs____::b",
			TotalPublications:  800,
			RecentPublications: 12,
			DataSources: []port.DataSourceMetrics{
				{ID: "ds-b1", Name: "Repository B", Type: "repository", LastUpdated: &lastUpdated},
			},
		},
	}}

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

	hub := wsInfra.NewHub(log)
	go hub.Run()

	evaluateUC := usecase.NewEvaluateAlertsUseCase(snapshots, alerts, evaluator, nil, hub, log)
	collectUC := usecase.NewRunCollectionUseCase(roster, client, snapshots, evaluateUC, nil, nil, nil, nil, log, 2)
	getSnapshotsUC := usecase.NewGetSnapshotsUseCase(snapshots, nil, log)
	getAlertsUC := usecase.NewGetAlertsUseCase(alerts, nil, log)
	testConnectionUC := usecase.NewTestConnectionUseCase(client, log)

	sched := scheduler.NewScheduler(collectUC, log, time.Hour)

	authConfig := middleware.AuthConfig{Enabled: true, BearerToken: testToken}
	websocketHandler := handler.NewWebSocketHandler(hub, log, nil, authConfig)

	router := NewRouter(
		handler.NewSnapshotAPIHandler(getSnapshotsUC, log),
		handler.NewAlertAPIHandler(getAlertsUC, log),
		handler.NewCollectionAPIHandler(sched, testConnectionUC, log),
		websocketHandler,
		config.ServerConfig{RateLimitRPS: 100, RateLimitBurst: 100},
		config.SecurityConfig{AuthEnabled: true, AuthToken: testToken},
		log,
	)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return &testEnv{server: server, snapshots: snapshots, alerts: alerts, sched: sched}
}

func doRequest(t *testing.T, client *http.Client, method, url string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func waitForRunFinished(t *testing.T, env *testEnv) dto.RunSummaryDTO {
	t.Helper()
	client := env.server.Client()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/collection/status", authHeader())
		var status dto.RunStatusDTO
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		resp.Body.Close()
		if !status.Running && status.LastRun != nil {
			return *status.LastRun
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("collection run did not finish in time")
	return dto.RunSummaryDTO{}
}

func TestE2EHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, resp.StatusCode)
		}
	}
}

func TestE2EAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	client := env.server.Client()

	paths := []string{
		"/api/v1/snapshots/latest",
		"/api/v1/snapshots/history?org=univ-a",
		"/api/v1/alerts/open",
		"/api/v1/alerts/history",
		"/api/v1/collection/status",
	}
	for _, path := range paths {
		resp := doRequest(t, client, http.MethodGet, env.server.URL+path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s without token, got %d", path, resp.StatusCode)
		}
	}

	resp := doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/snapshots/latest", map[string]string{
		"Authorization": "Bearer wrong-token",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestE2ECollectionRunAndSnapshots(t *testing.T) {
	env := newTestEnv(t)
	client := env.server.Client()

	// No data collected yet.
	resp := doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/snapshots/latest", authHeader())
	var emptyPayload struct {
		Count     int               `json:"count"`
		Snapshots []dto.SnapshotDTO `json:"snapshots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emptyPayload); err != nil {
		t.Fatalf("decode empty snapshots: %v", err)
	}
	resp.Body.Close()
	if emptyPayload.Count != 0 {
		t.Fatalf("expected no snapshots before first run, got %d", emptyPayload.Count)
	}

	// Trigger a run and wait for it to complete.
	runResp := doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/collection/run", authHeader())
	runResp.Body.Close()
	if runResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for run trigger, got %d", runResp.StatusCode)
	}

	summary := waitForRunFinished(t, env)
	if summary.Organizations != 2 || summary.Succeeded != 2 {
		t.Fatalf("expected 2/2 organizations collected, got %d/%d", summary.Succeeded, summary.Organizations)
	}

	resp = doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/snapshots/latest", authHeader())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for snapshots, got %d", resp.StatusCode)
	}
	var payload struct {
		Count     int               `json:"count"`
		Snapshots []dto.SnapshotDTO `json:"snapshots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode snapshots: %v", err)
	}
	resp.Body.Close()

	if payload.Count != 2 {
		t.Fatalf("expected 2 snapshots, got %d", payload.Count)
	}
	if payload.Snapshots[0].OrganizationID != "univ-a" {
		t.Fatalf("expected univ-a first, got %s", payload.Snapshots[0].OrganizationID)
	}
	if payload.Snapshots[0].TotalPublications != 1200 {
		t.Fatalf("expected 1200 publications for univ-a, got %d", payload.Snapshots[0].TotalPublications)
	}

	historyResp := doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/snapshots/history?org=univ-b", authHeader())
	if historyResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", historyResp.StatusCode)
	}
	var historyPayload struct {
		OrganizationID string            `json:"organization_id"`
		Count          int               `json:"count"`
		Snapshots      []dto.SnapshotDTO `json:"snapshots"`
	}
	if err := json.NewDecoder(historyResp.Body).Decode(&historyPayload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	historyResp.Body.Close()
	if historyPayload.Count != 1 {
		t.Fatalf("expected 1 history entry for univ-b, got %d", historyPayload.Count)
	}

	alertsResp := doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/alerts/open", authHeader())
	if alertsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for open alerts, got %d", alertsResp.StatusCode)
	}
	var alertsPayload struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(alertsResp.Body).Decode(&alertsPayload); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	alertsResp.Body.Close()
	if alertsPayload.Count != 0 {
		t.Fatalf("expected no open alerts after healthy run, got %d", alertsPayload.Count)
	}
}

func TestE2EOverlappingRunRejected(t *testing.T) {
	env := newTestEnv(t)
	client := env.server.Client()

	first := doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/collection/run", authHeader())
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for first trigger, got %d", first.StatusCode)
	}

	// A second trigger while the first run is in flight is rejected. The run
	// may already have finished on a fast machine, so accept 202 as well.
	second := doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/collection/run", authHeader())
	second.Body.Close()
	if second.StatusCode != http.StatusConflict && second.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 409 or 202 for second trigger, got %d", second.StatusCode)
	}

	waitForRunFinished(t, env)
}

func TestE2EConnectionTest(t *testing.T) {
	env := newTestEnv(t)
	client := env.server.Client()

	resp := doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/connection/test", authHeader())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for connection test, got %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode connection result: %v", err)
	}
	if !result.OK {
		t.Fatal("expected connection test to pass")
	}
}

func TestE2EWebSocketReceivesRunSummary(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=" + testToken
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Unauthenticated upgrade is refused before the handshake completes.
	badURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	if _, badResp, err := websocket.DefaultDialer.Dial(badURL, nil); err == nil {
		t.Fatal("expected websocket dial without token to fail")
	} else if badResp != nil {
		if badResp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for unauthenticated websocket, got %d", badResp.StatusCode)
		}
		badResp.Body.Close()
	}

	// Give the hub a moment to process the registration before broadcasting.
	time.Sleep(50 * time.Millisecond)

	runResp := doRequest(t, env.server.Client(), http.MethodPost, env.server.URL+"/api/v1/collection/run", authHeader())
	runResp.Body.Close()
	if runResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for run trigger, got %d", runResp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var message struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	if message.Type != "run" {
		t.Fatalf("expected run message, got %q", message.Type)
	}

	var summary port.RunSummaryEvent
	if err := json.Unmarshal(message.Data, &summary); err != nil {
		t.Fatalf("decode run summary payload: %v", err)
	}
	if summary.Organizations != 2 {
		t.Fatalf("expected summary for 2 organizations, got %d", summary.Organizations)
	}
}
