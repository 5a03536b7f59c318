package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	wsinfra "github.com/dreschagin/research-monitor/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// WebSocketHandler upgrades HTTP connections and attaches clients to the hub.
type WebSocketHandler struct {
	hub            *wsinfra.Hub
	logger         *logger.Logger
	allowedOrigins map[string]struct{}
	authConfig     middleware.AuthConfig
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(hub *wsinfra.Hub, log *logger.Logger, allowedOrigins []string, authConfig middleware.AuthConfig) *WebSocketHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	h := &WebSocketHandler{
		hub:            hub,
		logger:         log,
		allowedOrigins: origins,
		authConfig:     authConfig,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send an Origin header.
		return true
	}
	if len(h.allowedOrigins) == 0 {
		return true
	}
	_, ok := h.allowedOrigins[origin]
	if !ok {
		h.logger.Warn("websocket origin rejected", "origin", origin)
	}
	return ok
}

// HandleConnection authenticates the request, upgrades it and starts the
// client pumps. Browsers cannot set headers on WebSocket requests, so the
// token may also arrive as a query parameter.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := middleware.ValidateRequestAuth(r, h.authConfig); err != nil {
		h.logger.Warn("websocket auth rejected", "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", err, "remote_addr", r.RemoteAddr)
		return
	}

	client := wsinfra.NewClient(h.hub, conn, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
