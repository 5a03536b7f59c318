package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/research-monitor/internal/application/usecase"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

const dateLayout = "2006-01-02"

// SnapshotAPIHandler serves the snapshot read endpoints.
type SnapshotAPIHandler struct {
	getSnapshotsUC *usecase.GetSnapshotsUseCase
	logger         *logger.Logger
}

func NewSnapshotAPIHandler(getSnapshotsUC *usecase.GetSnapshotsUseCase, logger *logger.Logger) *SnapshotAPIHandler {
	return &SnapshotAPIHandler{getSnapshotsUC: getSnapshotsUC, logger: logger}
}

// GetLatest returns every organization's most recent snapshot.
func (h *SnapshotAPIHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots, err := h.getSnapshotsUC.Latest(r.Context())
	if err != nil {
		h.logger.Error("Failed to load latest snapshots", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

// GetHistory returns one organization's snapshots for a date range. Defaults
// to the last 30 days when no range is given.
func (h *SnapshotAPIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orgID := r.URL.Query().Get("org")
	if orgID == "" {
		http.Error(w, "Missing required parameter: org", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -30)
	end := now

	if s := r.URL.Query().Get("start"); s != "" {
		parsed, err := time.Parse(dateLayout, s)
		if err != nil {
			http.Error(w, "Invalid start date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		start = parsed
	}
	if s := r.URL.Query().Get("end"); s != "" {
		parsed, err := time.Parse(dateLayout, s)
		if err != nil {
			http.Error(w, "Invalid end date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		end = parsed
	}
	if end.Before(start) {
		http.Error(w, "End date precedes start date", http.StatusBadRequest)
		return
	}

	snapshots, err := h.getSnapshotsUC.History(r.Context(), orgID, start, end)
	if err != nil {
		h.logger.Error("Failed to load snapshot history", err, "organization", orgID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"organization_id": orgID,
		"count":           len(snapshots),
		"snapshots":       snapshots,
	})
}
