package http

import (
	"net/http"

	"github.com/dreschagin/research-monitor/internal/interfaces/http/handler"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/research-monitor/pkg/config"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// Router wires handlers into the HTTP mux and applies the middleware chain.
type Router struct {
	mux                  *http.ServeMux
	snapshotAPIHandler   *handler.SnapshotAPIHandler
	alertAPIHandler      *handler.AlertAPIHandler
	collectionAPIHandler *handler.CollectionAPIHandler
	websocketHandler     *handler.WebSocketHandler
	server               config.ServerConfig
	security             config.SecurityConfig
	logger               *logger.Logger
}

func NewRouter(
	snapshotAPIHandler *handler.SnapshotAPIHandler,
	alertAPIHandler *handler.AlertAPIHandler,
	collectionAPIHandler *handler.CollectionAPIHandler,
	websocketHandler *handler.WebSocketHandler,
	server config.ServerConfig,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:                  http.NewServeMux(),
		snapshotAPIHandler:   snapshotAPIHandler,
		alertAPIHandler:      alertAPIHandler,
		collectionAPIHandler: collectionAPIHandler,
		websocketHandler:     websocketHandler,
		server:               server,
		security:             security,
		logger:               logger,
	}
}

// Setup registers all routes and returns the wrapped handler.
func (rt *Router) Setup() http.Handler {
	// Health endpoints are intentionally unauthenticated for probes.
	rt.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	authMiddleware := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}, rt.logger)

	// WebSocket handles its own auth so the token can arrive as a query
	// parameter before the upgrade.
	rt.mux.HandleFunc("/ws", rt.websocketHandler.HandleConnection)

	// API endpoints
	rt.mux.Handle("/api/v1/snapshots/latest", authMiddleware(http.HandlerFunc(rt.snapshotAPIHandler.GetLatest)))
	rt.mux.Handle("/api/v1/snapshots/history", authMiddleware(http.HandlerFunc(rt.snapshotAPIHandler.GetHistory)))
	rt.mux.Handle("/api/v1/alerts/open", authMiddleware(http.HandlerFunc(rt.alertAPIHandler.GetOpen)))
	rt.mux.Handle("/api/v1/alerts/history", authMiddleware(http.HandlerFunc(rt.alertAPIHandler.GetHistory)))
	rt.mux.Handle("/api/v1/collection/run", authMiddleware(http.HandlerFunc(rt.collectionAPIHandler.RunNow)))
	rt.mux.Handle("/api/v1/collection/status", authMiddleware(http.HandlerFunc(rt.collectionAPIHandler.GetStatus)))
	rt.mux.Handle("/api/v1/connection/test", authMiddleware(http.HandlerFunc(rt.collectionAPIHandler.TestConnection)))

	limiter := middleware.NewIPRateLimiter(rt.server.RateLimitRPS, rt.server.RateLimitBurst)

	var h http.Handler = rt.mux
	h = middleware.RateLimit(limiter)(h)
	h = middleware.Logger(rt.logger)(h)
	h = middleware.Recovery(rt.logger)(h)

	return h
}
