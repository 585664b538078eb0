package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/clearfork/marketsync/internal/domain"
)

// Aggregator recomputes a parent event's coarse status from the set of its
// child markets' activity flags. It reads in two batched queries (one for
// events, one for markets), never N+1 per event.
type Aggregator struct {
	events  domain.EventStore
	markets domain.MarketStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(events domain.EventStore, markets domain.MarketStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		events:  events,
		markets: markets,
		logger:  logger,
		now:     time.Now,
	}
}

// Recompute derives and persists the status of every event in ids. Writes
// are skipped entirely when neither status nor resolvedAt would change.
func (a *Aggregator) Recompute(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	events, err := a.events.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	markets, err := a.markets.ListByEventIDs(ctx, ids)
	if err != nil {
		return err
	}

	byEvent := make(map[int64][]domain.Market, len(events))
	for _, m := range markets {
		byEvent[m.EventID] = append(byEvent[m.EventID], m)
	}

	for _, e := range events {
		status := DeriveEventStatus(byEvent[e.ID])

		resolvedAt := e.ResolvedAt
		if status == domain.EventStatusResolved && resolvedAt == nil {
			now := a.now().UTC()
			resolvedAt = &now
		}

		if status == e.Status && equalTimePtr(resolvedAt, e.ResolvedAt) {
			continue
		}

		if err := a.events.UpdateStatus(ctx, e.ID, status, resolvedAt); err != nil {
			return err
		}
		a.logger.Info("event status recomputed",
			slog.Int64("event_id", e.ID),
			slog.String("from", string(e.Status)),
			slog.String("to", string(status)),
		)
	}
	return nil
}

// DeriveEventStatus computes the coarse event status from its child markets.
// An event with no markets is a draft; one with no unresolved market is
// resolved; one with any active market is active; otherwise it is archived.
func DeriveEventStatus(markets []domain.Market) domain.EventStatus {
	if len(markets) == 0 {
		return domain.EventStatusDraft
	}

	hasActive := false
	hasUnresolved := false
	for _, m := range markets {
		unresolved := m.IsResolved == nil || !*m.IsResolved
		if unresolved {
			hasUnresolved = true
		}
		if (m.IsActive != nil && *m.IsActive) || (m.IsActive == nil && m.IsResolved != nil && !*m.IsResolved) {
			hasActive = true
		}
	}

	switch {
	case !hasUnresolved:
		return domain.EventStatusResolved
	case hasActive:
		return domain.EventStatusActive
	default:
		return domain.EventStatusArchived
	}
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
