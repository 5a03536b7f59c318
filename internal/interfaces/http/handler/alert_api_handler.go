package handler

import (
	"net/http"
	"strconv"

	"github.com/dreschagin/research-monitor/internal/application/usecase"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// AlertAPIHandler serves the alert read endpoints.
type AlertAPIHandler struct {
	getAlertsUC *usecase.GetAlertsUseCase
	logger      *logger.Logger
}

func NewAlertAPIHandler(getAlertsUC *usecase.GetAlertsUseCase, logger *logger.Logger) *AlertAPIHandler {
	return &AlertAPIHandler{getAlertsUC: getAlertsUC, logger: logger}
}

// GetOpen returns currently unresolved alerts, optionally filtered by org.
func (h *AlertAPIHandler) GetOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	alerts, err := h.getAlertsUC.Open(r.Context(), r.URL.Query().Get("org"))
	if err != nil {
		h.logger.Error("Failed to load open alerts", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// GetHistory returns past and present alerts, optionally filtered by org.
func (h *AlertAPIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orgID := r.URL.Query().Get("org")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	alerts, err := h.getAlertsUC.History(r.Context(), orgID, limit)
	if err != nil {
		h.logger.Error("Failed to load alert history", err, "organization", orgID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}
