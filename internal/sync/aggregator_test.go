package sync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfork/marketsync/internal/domain"
)

func flags(active, resolved bool) domain.Market {
	return domain.Market{IsActive: &active, IsResolved: &resolved}
}

func TestDeriveEventStatus(t *testing.T) {
	t.Run("no markets is draft", func(t *testing.T) {
		assert.Equal(t, domain.EventStatusDraft, DeriveEventStatus(nil))
	})

	t.Run("any active market keeps the event active", func(t *testing.T) {
		markets := []domain.Market{
			flags(false, true),
			flags(false, true),
			flags(true, false),
		}
		assert.Equal(t, domain.EventStatusActive, DeriveEventStatus(markets))
	})

	t.Run("all resolved is resolved", func(t *testing.T) {
		markets := []domain.Market{
			flags(false, true),
			flags(false, true),
		}
		assert.Equal(t, domain.EventStatusResolved, DeriveEventStatus(markets))
	})

	t.Run("untouched markets count as active", func(t *testing.T) {
		// The resolutions stream has not written flags yet; the market is
		// known-unresolved only after the condition upsert.
		falsePtr := false
		markets := []domain.Market{
			{IsActive: nil, IsResolved: &falsePtr},
		}
		assert.Equal(t, domain.EventStatusActive, DeriveEventStatus(markets))
	})

	t.Run("fully unknown flags are archived-but-unresolved", func(t *testing.T) {
		markets := []domain.Market{
			{IsActive: nil, IsResolved: nil},
		}
		assert.Equal(t, domain.EventStatusArchived, DeriveEventStatus(markets))
	})

	t.Run("inactive unresolved is archived", func(t *testing.T) {
		markets := []domain.Market{
			flags(false, false),
		}
		assert.Equal(t, domain.EventStatusArchived, DeriveEventStatus(markets))
	})
}

func TestAggregatorRecompute(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	newAggregator := func(events *fakeEventStore, markets *fakeMarketStore) *Aggregator {
		a := NewAggregator(events, markets, logger)
		a.now = func() time.Time { return now }
		return a
	}

	t.Run("transition into resolved stamps resolvedAt once", func(t *testing.T) {
		events := newFakeEventStore()
		markets := newFakeMarketStore()
		id, err := events.Insert(ctx, domain.Event{Slug: "e", Status: domain.EventStatusActive})
		require.NoError(t, err)
		_, err = markets.Upsert(ctx, domain.Market{ConditionID: "c1", EventID: id, IsActive: ptr(false), IsResolved: ptr(true)})
		require.NoError(t, err)

		agg := newAggregator(events, markets)
		require.NoError(t, agg.Recompute(ctx, []int64{id}))

		got := events.events[id]
		assert.Equal(t, domain.EventStatusResolved, got.Status)
		require.NotNil(t, got.ResolvedAt)
		assert.Equal(t, now, *got.ResolvedAt)

		// A second recompute later must not move the stamp.
		later := now.Add(time.Hour)
		agg.now = func() time.Time { return later }
		require.NoError(t, agg.Recompute(ctx, []int64{id}))

		got = events.events[id]
		require.NotNil(t, got.ResolvedAt)
		assert.Equal(t, now, *got.ResolvedAt)
	})

	t.Run("no write when nothing changed", func(t *testing.T) {
		events := newFakeEventStore()
		markets := newFakeMarketStore()
		id, err := events.Insert(ctx, domain.Event{Slug: "e", Status: domain.EventStatusActive})
		require.NoError(t, err)
		_, err = markets.Upsert(ctx, domain.Market{ConditionID: "c1", EventID: id, IsActive: ptr(true), IsResolved: ptr(false)})
		require.NoError(t, err)

		agg := newAggregator(events, markets)
		require.NoError(t, agg.Recompute(ctx, []int64{id}))
		assert.Equal(t, 0, events.updates)
	})

	t.Run("event without markets becomes draft", func(t *testing.T) {
		events := newFakeEventStore()
		markets := newFakeMarketStore()
		id, err := events.Insert(ctx, domain.Event{Slug: "e", Status: domain.EventStatusActive})
		require.NoError(t, err)

		agg := newAggregator(events, markets)
		require.NoError(t, agg.Recompute(ctx, []int64{id}))
		assert.Equal(t, domain.EventStatusDraft, events.events[id].Status)
	})

	t.Run("empty id list is a no-op", func(t *testing.T) {
		agg := newAggregator(newFakeEventStore(), newFakeMarketStore())
		require.NoError(t, agg.Recompute(ctx, nil))
	})
}
