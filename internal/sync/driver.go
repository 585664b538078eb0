package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clearfork/marketsync/internal/domain"
)

// Driver orchestrates one sync run: lock acquisition, the paging loop,
// time-boxing, per-record error isolation, cursor advancement, and status
// aggregation. A run is single-threaded; concurrency safety is about
// overlapping invocations, serialized solely by the stream's lock row.
type Driver struct {
	streams    domain.SyncStreamStore
	aggregator *Aggregator
	pageSize   int
	timeBudget time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewDriver creates a Driver. pageSize bounds each upstream query and
// timeBudget bounds one run's wall clock.
func NewDriver(
	streams domain.SyncStreamStore,
	aggregator *Aggregator,
	pageSize int,
	timeBudget time.Duration,
	logger *slog.Logger,
) *Driver {
	return &Driver{
		streams:    streams,
		aggregator: aggregator,
		pageSize:   pageSize,
		timeBudget: timeBudget,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one sync run over the given source. It returns
// domain.ErrLockHeld when another invocation holds the stream, run stats on
// success, and a fatal error (with the run state marked errored) otherwise.
func (d *Driver) Run(ctx context.Context, src Source) (domain.RunStats, error) {
	stream := src.Stream()
	logger := d.logger.With(
		slog.String("stream", stream.String()),
		slog.String("run_id", uuid.New().String()),
	)

	acquired, err := d.streams.TryAcquire(ctx, stream)
	if err != nil {
		return domain.RunStats{}, fmt.Errorf("sync: acquire lock: %w", err)
	}
	if !acquired {
		logger.Info("sync run skipped, lock held")
		return domain.RunStats{}, domain.ErrLockHeld
	}

	started := d.now()
	stats, runErr := d.loop(ctx, src, logger)
	elapsed := d.now().Sub(started)

	if runErr != nil {
		logger.Error("sync run failed",
			slog.Int("processed", stats.Processed),
			slog.Duration("elapsed", elapsed),
			slog.String("error", runErr.Error()),
		)
		if failErr := d.streams.Fail(ctx, stream, runErr.Error()); failErr != nil {
			logger.Error("marking run errored failed", slog.String("error", failErr.Error()))
		}
		return stats, runErr
	}

	if err := d.streams.Complete(ctx, stream, stats.Processed); err != nil {
		return stats, fmt.Errorf("sync: complete run: %w", err)
	}

	logger.Info("sync run complete",
		slog.Int("fetched", stats.Fetched),
		slog.Int("processed", stats.Processed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("errors", stats.Errors),
		slog.Bool("time_limit_reached", stats.TimeLimitReached),
		slog.Duration("elapsed", elapsed),
	)
	return stats, nil
}

// loop is the paging loop. Per-record failures are collected and the cursor
// still advances past them: a single permanently malformed upstream record
// must never stall all subsequent progress.
func (d *Driver) loop(ctx context.Context, src Source, logger *slog.Logger) (domain.RunStats, error) {
	var stats domain.RunStats
	stream := src.Stream()

	cursor, err := d.streams.Cursor(ctx, stream)
	if err != nil {
		return stats, fmt.Errorf("sync: read cursor: %w", err)
	}

	deadline := d.now().Add(d.timeBudget)
	touched := make(map[int64]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("sync: %w", domain.ErrContextDone)
		}
		if !d.now().Before(deadline) {
			stats.TimeLimitReached = true
			break
		}

		page, err := src.FetchPage(ctx, cursor, d.pageSize)
		if err != nil {
			return stats, fmt.Errorf("sync: fetch page: %w", err)
		}
		stats.Fetched += len(page)
		if len(page) == 0 {
			break
		}

		for _, rec := range page {
			if err := ctx.Err(); err != nil {
				return stats, fmt.Errorf("sync: %w", domain.ErrContextDone)
			}
			if !d.now().Before(deadline) {
				stats.TimeLimitReached = true
				break
			}

			res := src.Process(ctx, rec)
			switch res.Outcome {
			case OutcomeProcessed:
				stats.Processed++
			case OutcomeSkipped:
				stats.Skipped++
			case OutcomeFailed:
				recErr := &domain.RecordError{ID: rec.Cursor.ID, Err: res.Err}
				stats.Errors++
				stats.ErrorDetails = append(stats.ErrorDetails, recErr.Detail())
				logger.Warn("record failed", slog.String("error", recErr.Error()))
			}
			if res.EventID != 0 {
				touched[res.EventID] = struct{}{}
			}

			// Advance past the record regardless of outcome. The
			// watermark only ever moves forward.
			if cursor == nil || cursor.Before(rec.Cursor) {
				c := rec.Cursor
				cursor = &c
			}
		}

		// Persist the watermark reached so far; a crash after this point
		// re-applies at most the in-flight page, which upserts absorb.
		if cursor != nil {
			if err := d.streams.SetCursor(ctx, stream, *cursor); err != nil {
				return stats, fmt.Errorf("sync: write cursor: %w", err)
			}
		}

		if stats.TimeLimitReached {
			break
		}
		if len(page) < d.pageSize {
			// Short page: caught up, no further polling this run.
			break
		}
	}

	if len(touched) > 0 {
		ids := make([]int64, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		if err := d.aggregator.Recompute(ctx, ids); err != nil {
			return stats, fmt.Errorf("sync: aggregate event status: %w", err)
		}
	}

	return stats, nil
}
