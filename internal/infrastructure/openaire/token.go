package openaire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/research-monitor/internal/apperror"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// expiryMargin is subtracted from the token lifetime so a token is refreshed
// before the provider stops accepting it.
const expiryMargin = 60 * time.Second

// httpDoer is the slice of *http.Client the token manager needs.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenManager obtains and caches OAuth2 client-credentials tokens. Safe for
// concurrent use; at most one refresh runs at a time.
type TokenManager struct {
	authURL      string
	clientID     string
	clientSecret string
	httpClient   httpDoer
	logger       *logger.Logger
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenManager(authURL, clientID, clientSecret string, httpClient httpDoer, logger *logger.Logger) *TokenManager {
	return &TokenManager{
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid access token, refreshing when the cached one is
// missing or inside the expiry margin.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && tm.now().Before(tm.expiresAt) {
		return tm.token, nil
	}
	return tm.refreshLocked(ctx)
}

// Invalidate discards the cached token so the next Token call refreshes. Used
// after the API rejects a token that looked valid locally.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = ""
	tm.expiresAt = time.Time{}
	tm.mu.Unlock()
}

func (tm *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	tm.logger.Debug("Requesting new access token")

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(tm.clientID, tm.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("token endpoint returned %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", &apperror.AuthError{StatusCode: resp.StatusCode, Cause: err}
		}
		return "", err
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", &apperror.AuthError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("empty access token")}
	}

	lifetime := time.Duration(token.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	if lifetime > expiryMargin {
		lifetime -= expiryMargin
	}

	tm.token = token.AccessToken
	tm.expiresAt = tm.now().Add(lifetime)
	tm.logger.Debug("Access token obtained", "valid_for", lifetime.String())
	return tm.token, nil
}
