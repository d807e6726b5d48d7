// Package server exposes the simulator over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/server/handler"
	"github.com/alanyoungcy/bondsim/internal/server/middleware"
	"github.com/alanyoungcy/bondsim/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archive may be nil.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Bonds    *handler.BondHandler
	Accounts *handler.AccountHandler
	Trades   *handler.TradeHandler
	Scenario *handler.ScenarioHandler
	Views    *handler.ViewHandler
	Archive  *handler.ArchiveHandler
}

const healthPath = "/api/health"

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limit, auth) and attaches the
// WebSocket hub. limiter may be nil, which disables rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+healthPath, handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Marketplace.
	mux.HandleFunc("GET /api/bonds", handlers.Bonds.ListBonds)
	mux.HandleFunc("GET /api/bonds/{id}", handlers.Bonds.GetBond)
	mux.HandleFunc("POST /api/bonds/import", handlers.Bonds.ImportBonds)
	mux.HandleFunc("GET /api/commentary", handlers.Bonds.Commentary)

	// Session and onboarding.
	mux.HandleFunc("POST /api/session/connect", handlers.Accounts.Connect)
	mux.HandleFunc("POST /api/session/disconnect", handlers.Accounts.Disconnect)
	mux.HandleFunc("GET /api/user", handlers.Accounts.GetUser)
	mux.HandleFunc("POST /api/kyc", handlers.Accounts.StartKYC)
	mux.HandleFunc("POST /api/upi-mandate", handlers.Accounts.SetupUPIMandate)
	mux.HandleFunc("POST /api/funds", handlers.Accounts.AddFunds)

	// Trading and logs.
	mux.HandleFunc("POST /api/trades", handlers.Trades.ExecuteTrade)
	mux.HandleFunc("GET /api/portfolio", handlers.Trades.GetPortfolio)
	mux.HandleFunc("GET /api/transactions", handlers.Trades.ListTransactions)
	mux.HandleFunc("GET /api/analytics", handlers.Trades.ListAnalytics)

	// Scenario and metrics.
	mux.HandleFunc("GET /api/scenario", handlers.Scenario.GetScenario)
	mux.HandleFunc("PUT /api/scenario", handlers.Scenario.SetScenario)
	mux.HandleFunc("GET /api/metrics", handlers.Scenario.GetMetrics)

	// Page models.
	mux.HandleFunc("GET /api/views/{page}", handlers.Views.GetView)

	// Archived history.
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archive.ListObjects)
		mux.HandleFunc("GET /api/archives/object", handlers.Archive.GetObject)
		mux.HandleFunc("GET /api/archives/transactions", handlers.Archive.ListTransactions)
		mux.HandleFunc("GET /api/audit", handlers.Archive.ListAudit)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain; the last one applied runs first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, healthPath)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger, healthPath, "/ws")(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

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
