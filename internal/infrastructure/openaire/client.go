package openaire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dreschagin/research-monitor/internal/apperror"
	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// recentWindowDays defines what counts as a recent publication.
const recentWindowDays = 30

const openorgsPrefix = "openorgs____::"

// maxResponseBytes bounds how much of an API reply is read.
const maxResponseBytes = 8 << 20

// Options configures the graph API client.
type Options struct {
	BaseURL        string
	AuthURL        string
	ClientID       string
	ClientSecret   string
	RequestTimeout time.Duration
	PageSize       int
	RequestDelay   time.Duration // minimum spacing between API requests
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

// Client talks to the OpenAIRE Graph API. It implements port.GraphClient.
// All requests share one rate limiter, so the configured delay holds across
// parallel collectors.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient httpDoer
	tokens     *TokenManager
	limiter    *rate.Limiter
	retry      *retryPolicy
	logger     *logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	resolved map[string]string // ROR id -> openorgs id
}

func NewClient(opts Options, logger *logger.Logger) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: opts.RequestTimeout}

	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}

	return &Client{
		baseURL:    opts.BaseURL,
		pageSize:   opts.PageSize,
		httpClient: httpClient,
		tokens:     NewTokenManager(opts.AuthURL, opts.ClientID, opts.ClientSecret, httpClient, logger),
		limiter:    rate.NewLimiter(limit, 1),
		retry:      newRetryPolicy(opts.MaxRetries, opts.BackoffBase, opts.BackoffCap),
		logger:     logger,
		now:        time.Now,
		resolved:   make(map[string]string),
	}
}

// FetchOrganization collects publication and data source metrics for one
// organization identified by its ROR id.
func (c *Client) FetchOrganization(ctx context.Context, rorID string) (*port.OrganizationMetrics, error) {
	graphID, err := c.resolveOrganization(ctx, rorID)
	if err != nil {
		return nil, fmt.Errorf("resolve organization %s: %w", rorID, err)
	}

	metrics := &port.OrganizationMetrics{
		OrganizationID:  rorID,
		ResolvedGraphID: graphID,
	}

	total, recent, err := c.fetchPublications(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("fetch publications for %s: %w", graphID, err)
	}
	metrics.TotalPublications = total
	metrics.RecentPublications = recent

	sources, err := c.fetchDataSources(ctx, graphID)
	if err != nil {
		if apperror.IsAuth(err) {
			return nil, fmt.Errorf("fetch data sources for %s: %w", graphID, err)
		}
		// Counts are in hand; report what we have as a partial result.
		c.logger.Warn("Data source listing failed, returning partial metrics",
			"organization", rorID, "error", err.Error())
		metrics.Partial = true
		return metrics, nil
	}
	metrics.DataSources = sources
	return metrics, nil
}

// TestConnection performs one minimal authenticated search to verify
// credentials and reachability.
func (c *Client) TestConnection(ctx context.Context) error {
	params := url.Values{"pageSize": {"1"}}
	var out organizationSearchResponse
	if err := c.getJSON(ctx, "organizations", params, &out); err != nil {
		return fmt.Errorf("connection test: %w", err)
	}
	return nil
}

// resolveOrganization maps a ROR id onto the provider's openorgs id,
// memoizing successful lookups for the lifetime of the client.
func (c *Client) resolveOrganization(ctx context.Context, rorID string) (string, error) {
	c.mu.Lock()
	if id, ok := c.resolved[rorID]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	params := url.Values{"pid": {"https://ror.org/" + rorID}}
	var out organizationSearchResponse
	if err := c.getJSON(ctx, "organizations", params, &out); err != nil {
		return "", err
	}

	for _, org := range out.Results {
		if len(org.ID) > len(openorgsPrefix) && org.ID[:len(openorgsPrefix)] == openorgsPrefix {
			c.mu.Lock()
			c.resolved[rorID] = org.ID
			c.mu.Unlock()
			return org.ID, nil
		}
	}
	return "", fmt.Errorf("no graph organization found for ROR id %s", rorID)
}

func (c *Client) fetchPublications(ctx context.Context, graphID string) (total, recent int, err error) {
	params := url.Values{
		"pageSize":          {strconv.Itoa(c.pageSize)},
		"relOrganizationId": {graphID},
		"sortBy":            {"publicationDate DESC"},
	}
	var out resultSearchResponse
	if err := c.getJSON(ctx, "researchProducts", params, &out); err != nil {
		return 0, 0, err
	}

	cutoff := c.now().AddDate(0, 0, -recentWindowDays)
	for _, rec := range out.Results {
		ts, ok := parseAPIDate(rec.PublicationDate)
		if !ok {
			continue
		}
		if !ts.Before(cutoff) {
			recent++
		}
	}
	return out.Total, recent, nil
}

func (c *Client) fetchDataSources(ctx context.Context, graphID string) ([]port.DataSourceMetrics, error) {
	params := url.Values{
		"pageSize":          {strconv.Itoa(c.pageSize)},
		"relOrganizationId": {graphID},
	}
	var out datasourceSearchResponse
	if err := c.getJSON(ctx, "dataSources", params, &out); err != nil {
		return nil, err
	}

	sources := make([]port.DataSourceMetrics, 0, len(out.Results))
	for _, rec := range out.Results {
		ds := port.DataSourceMetrics{
			ID:   rec.ID,
			Name: rec.OfficialName,
			Type: rec.Type,
		}
		// Prefer the validation date; collection date is the fallback signal
		// of recent activity.
		if ts, ok := parseAPIDate(rec.DateOfValidation); ok {
			ds.LastUpdated = &ts
		} else if ts, ok := parseAPIDate(rec.DateOfCollection); ok {
			ds.LastUpdated = &ts
		}
		sources = append(sources, ds)
	}
	return sources, nil
}

// getJSON performs one rate-limited, authenticated, retried GET and decodes
// the reply into dest.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, dest interface{}) error {
	reqURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	attempts, err := c.retry.do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.authorizedGet(ctx, reqURL, dest)
	})
	if err == nil {
		return nil
	}
	if apperror.IsAuth(err) || apperror.IsParse(err) {
		return err
	}
	return &apperror.TransientError{OrgID: endpoint, Attempts: attempts, Cause: err}
}

// authorizedGet performs one bearer-authenticated GET. A 401 invalidates the
// cached token and retries once with a fresh one; a second rejection means
// the credentials themselves are bad.
func (c *Client) authorizedGet(ctx context.Context, reqURL string, dest interface{}) error {
	body, status, err := c.doGet(ctx, reqURL)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.logger.Debug("Token rejected, refreshing once", "url", reqURL)
		c.tokens.Invalidate()
		body, status, err = c.doGet(ctx, reqURL)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return &apperror.AuthError{StatusCode: status, Cause: fmt.Errorf("token rejected after refresh")}
		}
	}
	if status != http.StatusOK {
		return &httpStatusError{status: status}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return apperror.NewParseError(reqURL, body, err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, reqURL string) ([]byte, int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// parseAPIDate accepts the date layouts the graph API emits.
func parseAPIDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if len(s) > 10 {
		s = s[:10]
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
