package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reputenet/trustmarket/internal/server"
	"github.com/reputenet/trustmarket/internal/server/handler"
	"github.com/reputenet/trustmarket/internal/server/ws"
	"github.com/reputenet/trustmarket/internal/service"
)

// ServerMode runs the HTTP + WebSocket API backed by Postgres and Redis.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the event archival loop: aged market events are
// periodically batched to object storage and pruned from the database.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// StandaloneMode runs the API against the in-memory ledger with a dry-run
// treasury. No external services are required; intended for local
// development and integration testing.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server and, when archival is enabled, the archive
// loop in the same process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}
	return g.Wait()
}

// startHTTPServer builds the service layer, registers all REST handlers plus
// the WebSocket hub, and adds the server goroutines to the given errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	locks := service.NewLocks(deps.LockManager)

	marketSvc := service.NewMarketService(
		deps.Store, deps.Identity, deps.Roles, deps.Pause, deps.Payouts,
		deps.PriceCache, deps.SignalBus, deps.Notifier, locks, a.logger,
	)
	tradeSvc := service.NewTradeService(
		deps.Store, deps.Pause, deps.Payouts, deps.PriceCache,
		deps.SignalBus, locks, a.logger,
	)
	donationSvc := service.NewDonationService(
		deps.Store, deps.Identity, deps.Pause, deps.Payouts,
		deps.SignalBus, locks, a.logger,
	)
	adminSvc := service.NewAdminService(
		deps.Store, deps.Roles, deps.Pause, deps.Payouts,
		deps.SignalBus, deps.Notifier, locks, a.logger,
	)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(marketSvc, a.logger),
		Trades:    handler.NewTradeHandler(tradeSvc, a.logger),
		Donations: handler.NewDonationHandler(donationSvc, a.logger),
		Admin:     handler.NewAdminHandler(adminSvc, marketSvc, a.logger),
	}

	// WebSocket hub requires the signal bus; standalone mode runs without it.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveLoop adds the periodic event archival goroutine to the given
// errgroup. Each cycle archives events older than the retention window.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := a.cfg.Archive.RetentionDays
	if retention <= 0 {
		retention = 90
	}

	g.Go(func() error {
		runOnce := func() {
			cutoff := time.Now().UTC().AddDate(0, 0, -retention)
			archived, err := deps.Archiver.ArchiveEvents(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive cycle failed",
					slog.Time("cutoff", cutoff),
					slog.String("error", err.Error()),
				)
				return
			}
			if archived > 0 {
				a.logger.InfoContext(ctx, "archive cycle complete",
					slog.Int64("archived", archived),
					slog.Time("cutoff", cutoff),
				)
			}
		}

		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})
}
