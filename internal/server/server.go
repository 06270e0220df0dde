// Package server exposes the market over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbet/internal/crypto"
	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/server/handler"
	"github.com/alanyoungcy/updownbet/internal/server/middleware"
	"github.com/alanyoungcy/updownbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, API key authentication is disabled

	// RateLimit is requests per RateWindow per client IP. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Market  *handler.MarketHandler
	Epochs  *handler.EpochHandler
	Account *handler.AccountHandler
	Admin   *handler.AdminHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Deps are the cross-cutting collaborators of the middleware chain.
type Deps struct {
	Verifier middleware.SignatureVerifier
	// Limiter is nil when Redis is not configured.
	Limiter domain.RateLimiter
	// Replay rejects reused signed writes; an in-process cache when nil.
	Replay domain.ReplayGuard
	Hub    *ws.Hub
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(cfg, handlers, deps, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the routed handler wrapped in the middleware chain.
func NewRouter(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	replay := deps.Replay
	if replay == nil {
		replay = crypto.NewReplayCache(2*crypto.DefaultMaxSkew, time.Now)
	}
	signed := middleware.Wallet(deps.Verifier, replay, logger)
	wallet := func(fn http.HandlerFunc) http.Handler { return signed(fn) }

	// Public.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/config", handlers.Market.GetConfig)
	mux.HandleFunc("GET /api/assets", handlers.Market.ListAssets)
	mux.HandleFunc("GET /api/assets/{symbol}/epochs", handlers.Market.ListEpochs)
	mux.HandleFunc("GET /api/assets/{symbol}/epochs/{id}", handlers.Market.GetEpoch)
	mux.HandleFunc("GET /api/assets/{symbol}/epochs/{id}/bets", handlers.Market.ListEpochBets)
	mux.HandleFunc("GET /api/assets/{symbol}/archive", handlers.Market.ListArchivedEpochs)
	mux.HandleFunc("GET /api/events", handlers.Market.ListEvents)

	// Signed by wallet.
	mux.Handle("POST /api/assets/{symbol}/epochs", wallet(handlers.Epochs.CreateEpoch))
	mux.Handle("POST /api/assets/{symbol}/epochs/{id}/bets", wallet(handlers.Epochs.PlaceBet))
	mux.Handle("POST /api/assets/{symbol}/epochs/{id}/lock", wallet(handlers.Epochs.LockEpoch))
	mux.Handle("POST /api/assets/{symbol}/epochs/{id}/close", wallet(handlers.Epochs.CloseEpoch))
	mux.Handle("POST /api/assets/{symbol}/epochs/{id}/claim", wallet(handlers.Epochs.Claim))
	mux.Handle("POST /api/assets/{symbol}/epochs/{id}/refund", wallet(handlers.Epochs.Refund))
	mux.Handle("GET /api/me/bets", wallet(handlers.Account.MyBets))
	mux.Handle("GET /api/me/balances", wallet(handlers.Account.MyBalances))

	// Admin; the service checks the signer against the stored admin.
	mux.Handle("POST /api/admin/initialize", wallet(handlers.Admin.Initialize))
	mux.Handle("PUT /api/admin/assets/{symbol}", wallet(handlers.Admin.SetAsset))
	mux.Handle("PUT /api/admin/fee", wallet(handlers.Admin.SetFee))
	mux.Handle("POST /api/admin/pause", wallet(handlers.Admin.Pause))
	mux.Handle("POST /api/admin/unpause", wallet(handlers.Admin.Unpause))
	mux.Handle("POST /api/admin/deposits", wallet(handlers.Admin.Deposit))

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics", "/ws")(h)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: serve: %w", err)
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
