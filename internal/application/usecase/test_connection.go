package usecase

import (
	"context"
	"time"

	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// TestConnectionUseCase checks credentials and provider reachability without
// touching stored data.
type TestConnectionUseCase struct {
	client port.GraphClient
	logger *logger.Logger
}

func NewTestConnectionUseCase(client port.GraphClient, logger *logger.Logger) *TestConnectionUseCase {
	return &TestConnectionUseCase{client: client, logger: logger}
}

// ConnectionResult reports the outcome of one connectivity check.
type ConnectionResult struct {
	OK        bool      `json:"ok"`
	Latency   string    `json:"latency"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func (uc *TestConnectionUseCase) Execute(ctx context.Context) ConnectionResult {
	started := time.Now()
	err := uc.client.TestConnection(ctx)
	result := ConnectionResult{
		OK:        err == nil,
		Latency:   time.Since(started).Round(time.Millisecond).String(),
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		result.Error = err.Error()
		uc.logger.Warn("Connection test failed", "error", err.Error())
	}
	return result
}
