// Package server exposes the control API: trade gate, watchlist, scan
// manager, runtime configuration, and the live WebSocket feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/server/handler"
	"github.com/quantleap/polyflux/internal/server/middleware"
	"github.com/quantleap/polyflux/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter enables per-client request limiting when non-nil.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Trades    *handler.TradeHandler
	Watchlist *handler.WatchlistHandler
	Pipeline  *handler.PipelineHandler
	Config    *handler.ConfigHandler
}

// Server is the headless HTTP + WebSocket control server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wires the middleware chain
// (CORS, logging, rate limiting, auth) around them.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Trade gate.
	mux.HandleFunc("POST /api/trades/propose", handlers.Trades.Propose)
	mux.HandleFunc("POST /api/trades/execute", handlers.Trades.Execute)
	mux.HandleFunc("GET /api/trades", handlers.Trades.List)
	mux.HandleFunc("GET /api/trades/pending", handlers.Trades.Pending)
	mux.HandleFunc("GET /api/trades/summary", handlers.Trades.Summary)
	mux.HandleFunc("GET /api/trades/{id}", handlers.Trades.Get)
	mux.HandleFunc("DELETE /api/trades/{id}", handlers.Trades.Cancel)
	mux.HandleFunc("GET /api/proposals", handlers.Trades.Proposals)

	// Watchlist.
	mux.HandleFunc("POST /api/watchlist/positions", handlers.Watchlist.AddPosition)
	mux.HandleFunc("GET /api/watchlist/positions", handlers.Watchlist.ListPositions)
	mux.HandleFunc("GET /api/watchlist/positions/{id}", handlers.Watchlist.GetPosition)
	mux.HandleFunc("PUT /api/watchlist/positions/{id}/exit-plan", handlers.Watchlist.UpdateExitPlan)
	mux.HandleFunc("DELETE /api/watchlist/positions/{id}", handlers.Watchlist.ClosePosition)
	mux.HandleFunc("PUT /api/watchlist/prices/{symbol}", handlers.Watchlist.UpdatePrice)
	mux.HandleFunc("POST /api/watchlist/evaluate", handlers.Watchlist.EvaluateTriggers)
	mux.HandleFunc("POST /api/watchlist/global-roi", handlers.Watchlist.EvaluateGlobalROI)
	mux.HandleFunc("GET /api/watchlist/notifications", handlers.Watchlist.Notifications)

	// Scan manager routes are only available when the manager is running.
	if handlers.Pipeline != nil {
		mux.HandleFunc("GET /api/pipeline/status", handlers.Pipeline.Status)
		mux.HandleFunc("POST /api/pipeline/scan", handlers.Pipeline.Scan)
		mux.HandleFunc("PUT /api/pipeline/task-flows", handlers.Pipeline.UpdateTaskFlows)
		mux.HandleFunc("POST /api/pipeline/flows/{id}", handlers.Pipeline.RunFlow)
		mux.HandleFunc("GET /api/pipeline/flows/history", handlers.Pipeline.FlowHistory)
	}

	// Runtime configuration, trigger settings, limits.
	mux.HandleFunc("GET /api/config", handlers.Config.Get)
	mux.HandleFunc("PATCH /api/config", handlers.Config.Update)
	mux.HandleFunc("GET /api/triggers", handlers.Config.ListTriggers)
	mux.HandleFunc("GET /api/triggers/{name}/settings", handlers.Config.GetTriggerSettings)
	mux.HandleFunc("PUT /api/triggers/{name}/settings", handlers.Config.UpdateTriggerSettings)
	mux.HandleFunc("GET /api/limits", handlers.Config.Limits)

	// WebSocket feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. An empty list
// allows all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
