package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradejournal/internal/domain"
	"github.com/alanyoungcy/tradejournal/internal/pipeline"
	"github.com/alanyoungcy/tradejournal/internal/server"
	"github.com/alanyoungcy/tradejournal/internal/server/handler"
	"github.com/alanyoungcy/tradejournal/internal/server/ws"
	"github.com/alanyoungcy/tradejournal/internal/service"
)

// ServerMode runs the HTTP + WebSocket API server plus, when enabled, the
// background fill sync and archive jobs. This is the normal long-running mode.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	journal := a.newJournalService(deps)

	// Background jobs first, so the admin handler can trigger them.
	var syncer *pipeline.FillSyncer
	if deps.Exchange != nil {
		syncer = pipeline.NewFillSyncer(deps.Exchange, deps.FillStore, journal, a.logger)
	}
	var archiveJob *pipeline.ArchiveJob
	if deps.Archiver != nil {
		archiveJob = pipeline.NewArchiveJob(deps.Archiver, a.cfg.Sync.ArchiveRetentionDays, a.logger)
	}

	if a.cfg.Sync.Enabled {
		if syncer == nil {
			return fmt.Errorf("app: sync enabled but no exchange account configured")
		}
		g.Go(func() error {
			return syncer.RunInterval(ctx, a.cfg.SyncInterval())
		})
		if archiveJob != nil && a.cfg.Sync.ArchiveCron != "" {
			g.Go(func() error {
				return archiveJob.RunCron(ctx, a.cfg.Sync.ArchiveCron)
			})
		}
	}

	// WebSocket hub bridges Redis pub/sub events to connected dashboards.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "no event bus wired; WebSocket endpoint disabled")
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Positions: handler.NewPositionHandler(journal, deps.PositionStore, a.logger),
		Fills:     handler.NewFillHandler(journal, a.logger),
		Stats:     handler.NewStatsHandler(journal, a.logger),
		Admin:     a.newAdminHandler(syncer, archiveJob),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// SyncMode runs the fill sync loop (and the archive cron, when configured)
// without the HTTP server. Useful as a standalone worker or a cron container.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	if deps.Exchange == nil {
		return fmt.Errorf("app: sync mode requires an exchange account")
	}

	g, ctx := errgroup.WithContext(ctx)

	journal := a.newJournalService(deps)
	syncer := pipeline.NewFillSyncer(deps.Exchange, deps.FillStore, journal, a.logger)

	g.Go(func() error {
		return syncer.RunInterval(ctx, a.cfg.SyncInterval())
	})

	if deps.Archiver != nil && a.cfg.Sync.ArchiveCron != "" {
		archiveJob := pipeline.NewArchiveJob(deps.Archiver, a.cfg.Sync.ArchiveRetentionDays, a.logger)
		g.Go(func() error {
			return archiveJob.RunCron(ctx, a.cfg.Sync.ArchiveCron)
		})
	}

	return g.Wait()
}

// AggregateMode replays the stored fill history once, persists the resulting
// positions, logs a summary, and exits. Useful for backfills and debugging.
func (a *App) AggregateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting aggregate mode")

	journal := a.newJournalService(deps)

	positions, err := journal.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("app: aggregate: %w", err)
	}

	open := 0
	for _, p := range positions {
		if p.Status == domain.PositionStatusOpen {
			open++
		}
	}
	a.logger.InfoContext(ctx, "aggregation complete",
		slog.Int("positions", len(positions)),
		slog.Int("open", open),
		slog.Int("closed", len(positions)-open),
	)

	summary, _, err := journal.Stats(ctx, a.cfg.Stats.StartEquity, a.cfg.Stats.Projection)
	if err != nil {
		a.logger.WarnContext(ctx, "statistics unavailable", slog.String("error", err.Error()))
		return nil
	}
	a.logger.InfoContext(ctx, "journal statistics",
		slog.Int("closed", summary.ClosedCount),
		slog.Float64("win_rate_pct", summary.WinRatePct),
		slog.Float64("total_realized_pnl", summary.TotalRealizedPnL),
		slog.Float64("avg_return_pct", summary.AvgReturnPct),
	)
	return nil
}

func (a *App) newJournalService(deps *Dependencies) *service.JournalService {
	return service.NewJournalService(
		deps.FillStore,
		deps.PositionStore,
		deps.LiveFeed,
		deps.SymbolResolver,
		deps.SnapshotCache,
		deps.SignalBus,
		a.logger,
	)
}

func (a *App) newAdminHandler(syncer *pipeline.FillSyncer, archiveJob *pipeline.ArchiveJob) *handler.AdminHandler {
	// Typed nils must not reach the handler's interface fields.
	var syncRunner handler.SyncRunner
	if syncer != nil {
		syncRunner = syncer
	}
	var archiveRunner handler.ArchiveRunner
	if archiveJob != nil {
		archiveRunner = archiveJob
	}
	return handler.NewAdminHandler(syncRunner, archiveRunner, a.logger)
}
