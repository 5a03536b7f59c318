package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dreschagin/research-monitor/internal/application/dto"
	"github.com/dreschagin/research-monitor/internal/application/usecase"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// ErrRunInProgress is returned by TriggerNow while a collection is running.
var ErrRunInProgress = errors.New("collection run already in progress")

// Scheduler drives periodic collection runs and exposes their live state.
type Scheduler struct {
	collect  *usecase.RunCollectionUseCase
	log      *logger.Logger
	interval time.Duration

	runMu sync.Mutex

	mu        sync.RWMutex
	startedAt time.Time
	running   bool
	lastRunAt time.Time
	lastError string
	lastRun   *dto.RunSummaryDTO
	nextRunAt time.Time
}

func NewScheduler(collect *usecase.RunCollectionUseCase, log *logger.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		collect:   collect,
		log:       log,
		interval:  interval,
		startedAt: time.Now().UTC(),
	}
}

// Start runs the collection loop until ctx is canceled. When runOnStart is
// set, one run fires immediately.
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) {
	s.setNextRun(time.Now().UTC().Add(s.interval))

	if runOnStart {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("Startup collection run failed", err)
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.setNextRun(time.Now().UTC().Add(s.interval))
			if _, err := s.RunOnce(ctx); err != nil {
				// RunOnce already stores error state and logs context.
				continue
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce executes one collection run, serialized against concurrent runs.
func (s *Scheduler) RunOnce(ctx context.Context) (*dto.RunSummaryDTO, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setRunning(true)
	defer s.setRunning(false)

	summary, err := s.collect.Execute(ctx)
	runAt := time.Now().UTC()

	if err != nil {
		s.updateFailure(runAt, summary, err)
		return summary, err
	}
	s.updateSuccess(runAt, summary)
	return summary, nil
}

// TriggerNow starts a run in the background, rejecting overlap.
func (s *Scheduler) TriggerNow() error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if running {
		return ErrRunInProgress
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("Triggered collection run failed", err)
		}
	}()
	return nil
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() dto.RunStatusDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := dto.RunStatusDTO{
		Running:   s.running,
		StartedAt: s.startedAt,
		Interval:  s.interval.String(),
		LastError: s.lastError,
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		status.LastRunAt = &t
	}
	if s.lastRun != nil {
		copied := *s.lastRun
		copied.Errors = append([]dto.RunErrorDTO(nil), s.lastRun.Errors...)
		status.LastRun = &copied
	}
	if !s.nextRunAt.IsZero() {
		t := s.nextRunAt
		status.NextRunAt = &t
	}
	return status
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRunAt = t
	s.mu.Unlock()
}

func (s *Scheduler) updateFailure(runAt time.Time, summary *dto.RunSummaryDTO, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = runAt
	s.lastError = err.Error()
	s.lastRun = summary
}

func (s *Scheduler) updateSuccess(runAt time.Time, summary *dto.RunSummaryDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = runAt
	s.lastError = ""
	s.lastRun = summary
}
