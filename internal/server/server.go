package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/server/handler"
	"github.com/reputenet/trustmarket/internal/server/middleware"
	"github.com/reputenet/trustmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// rate limiting even when a limiter is wired.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Donations *handler.DonationHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API for the reputation market engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market read surface and self-service creation.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{profileID}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{profileID}/price", handlers.Markets.GetPrice)
	mux.HandleFunc("GET /api/markets/{profileID}/participants", handlers.Markets.ListParticipants)
	mux.HandleFunc("GET /api/markets/{profileID}/balances/{address}", handlers.Markets.GetBalance)
	mux.HandleFunc("GET /api/markets/{profileID}/events", handlers.Markets.ListEvents)

	// Trading.
	mux.HandleFunc("POST /api/markets/{profileID}/buy", handlers.Trades.Buy)
	mux.HandleFunc("POST /api/markets/{profileID}/sell", handlers.Trades.Sell)
	mux.HandleFunc("POST /api/markets/{profileID}/simulate-buy", handlers.Trades.SimulateBuy)
	mux.HandleFunc("POST /api/markets/{profileID}/simulate-sell", handlers.Trades.SimulateSell)

	// Donations.
	mux.HandleFunc("PUT /api/markets/{profileID}/donation-recipient", handlers.Donations.SetRecipient)
	mux.HandleFunc("GET /api/donations/{address}", handlers.Donations.EscrowBalance)
	mux.HandleFunc("POST /api/donations/withdraw", handlers.Donations.Withdraw)

	// Administration.
	mux.HandleFunc("GET /api/admin/configs", handlers.Admin.ListConfigs)
	mux.HandleFunc("POST /api/admin/configs", handlers.Admin.AddConfig)
	mux.HandleFunc("DELETE /api/admin/configs/{index}", handlers.Admin.RemoveConfig)
	mux.HandleFunc("GET /api/admin/fees", handlers.Admin.GetFees)
	mux.HandleFunc("PUT /api/admin/fees", handlers.Admin.UpdateFees)
	mux.HandleFunc("PUT /api/admin/allowlist", handlers.Admin.SetAllowListEnforced)
	mux.HandleFunc("PUT /api/admin/allowlist/{profileID}", handlers.Admin.SetAllowListed)
	mux.HandleFunc("POST /api/admin/markets", handlers.Admin.CreateMarket)
	mux.HandleFunc("POST /api/admin/markets/{profileID}/graduate", handlers.Admin.Graduate)
	mux.HandleFunc("POST /api/admin/markets/{profileID}/withdraw", handlers.Admin.WithdrawGraduated)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
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
