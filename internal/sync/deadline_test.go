package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfork/marketsync/internal/domain"
)

func TestComputeDeadline(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("resolved has no deadline", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionResolved, false, base, ptr(int64(600)), false, 300)
		assert.Nil(t, got)
	})

	t.Run("resolved overrides flag", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionResolved, true, base, ptr(int64(600)), false, 300)
		assert.Nil(t, got)
	})

	t.Run("flag overrides liveness", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionProposed, true, base, ptr(int64(600)), false, 300)
		require.NotNil(t, got)
		assert.Equal(t, base.Add(safetyPeriod), *got)
	})

	t.Run("flagged neg-risk uses neg-risk hold", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionProposed, true, base, nil, true, 0)
		require.NotNil(t, got)
		assert.Equal(t, base.Add(negRiskSafetyPeriod), *got)
	})

	t.Run("pending uses record liveness", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionProposed, false, base, ptr(int64(600)), false, 300)
		require.NotNil(t, got)
		assert.Equal(t, base.Add(600*time.Second), *got)
	})

	t.Run("pending falls back to default liveness", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionChallenged, false, base, nil, false, 300)
		require.NotNil(t, got)
		assert.Equal(t, base.Add(300*time.Second), *got)
	})

	t.Run("zero record liveness falls back to default", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionPosed, false, base, ptr(int64(0)), false, 300)
		require.NotNil(t, got)
		assert.Equal(t, base.Add(300*time.Second), *got)
	})

	t.Run("no liveness and no default yields nil", func(t *testing.T) {
		got := computeDeadline(domain.ResolutionPosed, false, base, nil, false, 0)
		assert.Nil(t, got)
	})

	t.Run("unknown status still runs a window", func(t *testing.T) {
		got := computeDeadline(domain.ParseResolutionStatus("something-new"), false, base, ptr(int64(120)), false, 0)
		require.NotNil(t, got)
		assert.Equal(t, base.Add(120*time.Second), *got)
	})
}

func TestParseLiveness(t *testing.T) {
	require.Nil(t, parseLiveness(""))
	require.Nil(t, parseLiveness("abc"))
	require.Nil(t, parseLiveness("-5"))

	got := parseLiveness("7200")
	require.NotNil(t, got)
	assert.Equal(t, int64(7200), *got)
}
