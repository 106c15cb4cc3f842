package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantleap/polyflux/internal/notify"
	"github.com/quantleap/polyflux/internal/pipeline"
	"github.com/quantleap/polyflux/internal/procconfig"
	"github.com/quantleap/polyflux/internal/server"
	"github.com/quantleap/polyflux/internal/server/handler"
	"github.com/quantleap/polyflux/internal/server/ws"
	"github.com/quantleap/polyflux/internal/service"
	"github.com/quantleap/polyflux/internal/trigger"
	"github.com/quantleap/polyflux/internal/watchlist"
)

// reconcileTick is how often pending trades are checked against the exchange.
const reconcileTick = 5 * time.Minute

// run builds the services on top of the wired dependencies and drives all
// long-running goroutines until the context is cancelled.
func (a *App) run(ctx context.Context, deps *Dependencies) error {
	logger := a.logger

	runtimeCfg := procconfig.NewService(a.cfg.Pipeline.RuntimeConfigPath, logger)
	registry := trigger.EnsureRegistered()

	gate := service.NewTradeService(
		deps.TradeStore, deps.ProposalStore, deps.Exchange,
		runtimeCfg, deps.SignalBus, deps.AuditStore, logger,
	)
	watchSvc := watchlist.NewService(deps.WatchlistStore, deps.SignalBus, logger)

	g, ctx := errgroup.WithContext(ctx)

	// Scan manager: runs the market batch flow on the configured trigger.
	var manager *pipeline.Manager
	if a.cfg.Pipeline.Enabled && deps.Workforce != nil {
		manager = pipeline.NewManager(
			runtimeCfg, deps.Feed, deps.Workforce, gate,
			deps.DecisionStore, deps.LockManager,
			a.cfg.Pipeline.CachePath, logger,
		)
		g.Go(func() error {
			return manager.Run(ctx)
		})
	} else if a.cfg.Pipeline.Enabled {
		logger.WarnContext(ctx, "pipeline enabled but workforce endpoint not configured, scan manager disabled")
	}

	// Watchlist exit monitor: evaluates stop-loss/take-profit triggers and,
	// when enabled, the portfolio-wide ROI delta.
	roiOpts := watchlist.GlobalROIOptions{
		Enabled:          a.cfg.Watchlist.GlobalROIEnabled,
		ThresholdPct:     a.cfg.Watchlist.GlobalROIThresholdPct,
		FastThresholdPct: a.cfg.Watchlist.GlobalROIFastPct,
	}
	g.Go(func() error {
		interval := time.Duration(a.cfg.Watchlist.EvaluateIntervalSeconds) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := watchSvc.EvaluateTriggers(ctx); err != nil {
					logger.WarnContext(ctx, "watchlist trigger evaluation failed",
						slog.String("error", err.Error()))
				}
				if roiOpts.Enabled {
					if _, err := watchSvc.EvaluateGlobalROI(ctx, roiOpts); err != nil {
						logger.WarnContext(ctx, "global ROI evaluation failed",
							slog.String("error", err.Error()))
					}
				}
			}
		}
	})

	// Reconciler: times out trades stuck in pending.
	g.Go(func() error {
		olderThan := time.Duration(a.cfg.Pipeline.ReconcileAfterMinutes) * time.Minute
		ticker := time.NewTicker(reconcileTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				failed, err := gate.ReconcilePending(ctx, olderThan)
				if err != nil {
					logger.WarnContext(ctx, "pending trade reconciliation failed",
						slog.String("error", err.Error()))
					continue
				}
				if len(failed) > 0 {
					logger.InfoContext(ctx, "reconciled stale pending trades",
						slog.Int("count", len(failed)))
				}
			}
		}
	})

	// Archiver: ships resolved trades and old notifications to object storage.
	if deps.Archiver != nil {
		archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, logger)
		cronExpr := a.cfg.Pipeline.ArchiveCron
		g.Go(func() error {
			return archiver.RunCron(ctx, cronExpr)
		})
	}

	// Notification relay: bridges bus events to Telegram/Discord.
	if deps.Notifier != nil {
		relay := notify.NewRelay(deps.SignalBus, deps.Notifier, logger)
		g.Go(func() error {
			return relay.Run(ctx)
		})
	}

	// HTTP API server and WebSocket hub.
	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.SignalBus, "polyflux", logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})

		handlers := server.Handlers{
			Health:    handler.NewHealthHandler(logger),
			Trades:    handler.NewTradeHandler(gate, logger),
			Watchlist: handler.NewWatchlistHandler(watchSvc, roiOpts, logger),
			Config:    handler.NewConfigHandler(runtimeCfg, registry, deps.Exchange, logger),
		}
		if manager != nil {
			handlers.Pipeline = handler.NewPipelineHandler(manager, logger)
		}

		srv := server.NewServer(server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.ApiKey,
			RateLimiter:     deps.RateLimiter,
			RateLimit:       a.cfg.Server.RateLimitPerMinute,
			RateLimitWindow: time.Minute,
		}, handlers, hub, logger)

		g.Go(func() error {
			logger.InfoContext(ctx, "HTTP server listening",
				slog.Int("port", a.cfg.Server.Port))
			if err := srv.Start(); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("HTTP server shutting down")
			return srv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}
