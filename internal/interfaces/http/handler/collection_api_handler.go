package handler

import (
	"errors"
	"net/http"

	"github.com/dreschagin/research-monitor/internal/application/usecase"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/research-monitor/internal/scheduler"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// CollectionAPIHandler exposes collection control: trigger, status, and the
// provider connectivity check.
type CollectionAPIHandler struct {
	scheduler        *scheduler.Scheduler
	testConnectionUC *usecase.TestConnectionUseCase
	logger           *logger.Logger
}

func NewCollectionAPIHandler(
	scheduler *scheduler.Scheduler,
	testConnectionUC *usecase.TestConnectionUseCase,
	logger *logger.Logger,
) *CollectionAPIHandler {
	return &CollectionAPIHandler{
		scheduler:        scheduler,
		testConnectionUC: testConnectionUC,
		logger:           logger,
	}
}

// RunNow starts a collection run in the background.
func (h *CollectionAPIHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.scheduler.TriggerNow(); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			middleware.WriteJSON(w, http.StatusConflict, map[string]string{
				"error": "collection run already in progress",
			})
			return
		}
		h.logger.Error("Failed to trigger collection run", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// GetStatus reports the scheduler state and the last run summary.
func (h *CollectionAPIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.scheduler.Status())
}

// TestConnection checks credentials and provider reachability.
func (h *CollectionAPIHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := h.testConnectionUC.Execute(r.Context())
	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadGateway
	}
	middleware.WriteJSON(w, status, result)
}
