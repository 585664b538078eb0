package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearfork/marketsync/internal/domain"
	"github.com/clearfork/marketsync/internal/server"
	"github.com/clearfork/marketsync/internal/server/handler"
	syncsvc "github.com/clearfork/marketsync/internal/sync"
)

// snapshotWindow is how far back the resolved-markets export looks on each
// run. Overlapping windows are fine; the export overwrites by timestamp key.
const snapshotWindow = 24 * time.Hour

// syncService bundles the driver with its two stream sources. It implements
// handler.SyncRunner for the HTTP trigger endpoints and is driven directly by
// the worker tickers.
type syncService struct {
	driver      *syncsvc.Driver
	markets     syncsvc.Source
	resolutions syncsvc.Source
	snapshots   *syncsvc.SnapshotExporter // nil when S3 is disabled
	logger      *slog.Logger
	now         func() time.Time
}

// RunMarkets executes one run of the markets stream.
func (s *syncService) RunMarkets(ctx context.Context) (domain.RunStats, error) {
	return s.driver.Run(ctx, s.markets)
}

// RunResolutions executes one run of the resolutions stream, then exports the
// resolved-markets snapshot when the run succeeded and an exporter is wired.
func (s *syncService) RunResolutions(ctx context.Context) (domain.RunStats, error) {
	stats, err := s.driver.Run(ctx, s.resolutions)
	if err == nil && s.snapshots != nil {
		s.snapshots.Export(ctx, s.now().Add(-snapshotWindow))
	}
	return stats, err
}

// buildSyncService assembles the sources, the aggregator, and the driver from
// the wired dependencies.
func (a *App) buildSyncService(deps *Dependencies) *syncService {
	var icons *syncsvc.IconMirror
	if deps.BlobWriter != nil && a.cfg.S3.PublicBaseURL != "" {
		icons = syncsvc.NewIconMirror(deps.Content, deps.BlobWriter, a.cfg.S3.PublicBaseURL, a.logger)
	}

	markets := syncsvc.NewConditionSource(syncsvc.ConditionSourceDeps{
		Fetcher:    deps.Goldsky,
		Conditions: deps.Conditions,
		Events:     deps.Events,
		Markets:    deps.Markets,
		Outcomes:   deps.Outcomes,
		Metadata:   deps.Content,
		Cache:      deps.MetadataCache,
		Icons:      icons,
		Tags:       deps.Tags,
	}, a.cfg.Sync.AllowedCreators, a.logger)

	resolutions := syncsvc.NewResolutionSource(
		deps.Goldsky,
		deps.Conditions,
		deps.Markets,
		deps.Outcomes,
		a.cfg.Sync.DefaultLivenessSeconds,
		a.logger,
	)

	aggregator := syncsvc.NewAggregator(deps.Events, deps.Markets, a.logger)
	driver := syncsvc.NewDriver(
		deps.Streams,
		aggregator,
		a.cfg.Sync.PageSize,
		a.cfg.Sync.TimeBudget.Duration,
		a.logger,
	)

	var snapshots *syncsvc.SnapshotExporter
	if a.cfg.Sync.SnapshotExport && deps.BlobWriter != nil {
		snapshots = syncsvc.NewSnapshotExporter(deps.Markets, deps.BlobWriter, a.logger)
	}

	return &syncService{
		driver:      driver,
		markets:     markets,
		resolutions: resolutions,
		snapshots:   snapshots,
		logger:      a.logger,
		now:         time.Now,
	}
}

// ServerMode runs only the HTTP trigger server; sync runs happen on demand.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildSyncService(deps)
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// WorkerMode runs the periodic sync loops without an HTTP surface.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildSyncService(deps)
	a.startWorkerLoops(ctx, g, svc)

	return g.Wait()
}

// FullMode runs both the periodic sync loops and the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildSyncService(deps)
	a.startWorkerLoops(ctx, g, svc)
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// startWorkerLoops starts one ticker loop per stream. A run that loses the
// lock race (for example to a concurrent HTTP trigger) is logged and skipped;
// a run that fails is logged and retried on the next tick.
func (a *App) startWorkerLoops(ctx context.Context, g *errgroup.Group, svc *syncService) {
	interval := a.cfg.Sync.WorkerInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}

	run := func(name string, fn func(context.Context) (domain.RunStats, error)) func() error {
		return func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				stats, err := fn(ctx)
				switch {
				case err == nil:
					a.logger.InfoContext(ctx, "worker: sync run finished",
						slog.String("stream", name),
						slog.Int("fetched", stats.Fetched),
						slog.Int("processed", stats.Processed),
						slog.Int("errors", stats.Errors),
						slog.Bool("time_limit_reached", stats.TimeLimitReached),
					)
				case errors.Is(err, domain.ErrLockHeld):
					a.logger.InfoContext(ctx, "worker: sync run skipped, lock held",
						slog.String("stream", name),
					)
				case ctx.Err() != nil:
					return nil
				default:
					a.logger.ErrorContext(ctx, "worker: sync run failed",
						slog.String("stream", name),
						slog.String("error", err.Error()),
					)
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		}
	}

	g.Go(run("markets", svc.RunMarkets))
	g.Go(run("resolutions", svc.RunResolutions))
}

// startHTTPServer registers the API routes and runs the server until the
// context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *syncService) {
	srv := server.NewServer(
		server.Config{
			Port:   a.cfg.Server.Port,
			APIKey: a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(a.logger),
			Sync:   handler.NewSyncHandler(svc, deps.Streams, a.logger),
		},
		a.logger,
	)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
