package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfork/marketsync/internal/domain"
)

type stubRunner struct {
	stats domain.RunStats
	err   error
	calls []string
}

func (s *stubRunner) RunMarkets(ctx context.Context) (domain.RunStats, error) {
	s.calls = append(s.calls, "markets")
	return s.stats, s.err
}

func (s *stubRunner) RunResolutions(ctx context.Context) (domain.RunStats, error) {
	s.calls = append(s.calls, "resolutions")
	return s.stats, s.err
}

type stubStreamStore struct {
	states map[string]domain.StreamState
	err    error
}

func (s *stubStreamStore) TryAcquire(ctx context.Context, stream domain.Stream) (bool, error) {
	return false, nil
}
func (s *stubStreamStore) Complete(ctx context.Context, stream domain.Stream, processed int) error {
	return nil
}
func (s *stubStreamStore) Fail(ctx context.Context, stream domain.Stream, msg string) error {
	return nil
}
func (s *stubStreamStore) Cursor(ctx context.Context, stream domain.Stream) (*domain.Cursor, error) {
	return nil, nil
}
func (s *stubStreamStore) SetCursor(ctx context.Context, stream domain.Stream, c domain.Cursor) error {
	return nil
}

func (s *stubStreamStore) State(ctx context.Context, stream domain.Stream) (domain.StreamState, error) {
	if s.err != nil {
		return domain.StreamState{}, s.err
	}
	st, ok := s.states[stream.String()]
	if !ok {
		return domain.StreamState{}, domain.ErrNotFound
	}
	return st, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSyncHandlerTrigger(t *testing.T) {
	t.Run("successful run reports stats", func(t *testing.T) {
		runner := &stubRunner{stats: domain.RunStats{
			Fetched:   42,
			Processed: 40,
			Skipped:   1,
			Errors:    1,
			ErrorDetails: []domain.ErrorDetail{
				{ID: "rec-0007", Error: "malformed payload"},
			},
			TimeLimitReached: true,
		}}
		h := NewSyncHandler(runner, &stubStreamStore{}, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		h.TriggerMarkets(rec, httptest.NewRequest(http.MethodPost, "/api/sync/markets", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"markets"}, runner.calls)

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(42), body["fetched"])
		assert.Equal(t, float64(40), body["processed"])
		assert.Equal(t, float64(1), body["skipped"])
		assert.Equal(t, float64(1), body["errors"])
		assert.Equal(t, true, body["timeLimitReached"])
		details, ok := body["errorDetails"].([]any)
		require.True(t, ok)
		require.Len(t, details, 1)
		assert.Equal(t, "rec-0007", details[0].(map[string]any)["id"])
	})

	t.Run("held lock maps to conflict", func(t *testing.T) {
		runner := &stubRunner{err: domain.ErrLockHeld}
		h := NewSyncHandler(runner, &stubStreamStore{}, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		h.TriggerResolutions(rec, httptest.NewRequest(http.MethodPost, "/api/sync/resolutions", nil))

		require.Equal(t, http.StatusConflict, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, true, body["skipped"])
	})

	t.Run("run failure maps to internal error", func(t *testing.T) {
		runner := &stubRunner{err: errors.New("pool exhausted")}
		h := NewSyncHandler(runner, &stubStreamStore{}, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		h.TriggerMarkets(rec, httptest.NewRequest(http.MethodPost, "/api/sync/markets", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "pool exhausted", body["error"])
	})
}

func TestSyncHandlerStatus(t *testing.T) {
	marketsStream := domain.Stream{Service: "goldsky", Subgraph: "markets"}

	t.Run("reports known streams and omits never-run ones", func(t *testing.T) {
		errMsg := "upstream 502"
		updatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		store := &stubStreamStore{states: map[string]domain.StreamState{
			marketsStream.String(): {
				Stream:         marketsStream,
				Status:         domain.RunStatusError,
				ErrorMessage:   &errMsg,
				TotalProcessed: 1200,
				Cursor:         &domain.Cursor{Timestamp: 1700000000, ID: "rec-1200"},
				UpdatedAt:      updatedAt,
			},
		}}
		h := NewSyncHandler(&stubRunner{}, store, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])

		streams, ok := body["streams"].([]any)
		require.True(t, ok)
		require.Len(t, streams, 1)

		view := streams[0].(map[string]any)
		assert.Equal(t, "goldsky/markets", view["stream"])
		assert.Equal(t, "error", view["status"])
		assert.Equal(t, "upstream 502", view["errorMessage"])
		assert.Equal(t, float64(1200), view["totalProcessed"])
		assert.Equal(t, float64(1700000000), view["cursorTimestamp"])
		assert.Equal(t, "rec-1200", view["cursorId"])
		assert.Equal(t, "2026-03-01T12:00:00Z", view["updatedAt"])
	})

	t.Run("empty list before any run", func(t *testing.T) {
		h := NewSyncHandler(&stubRunner{}, &stubStreamStore{}, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		streams, ok := body["streams"].([]any)
		require.True(t, ok)
		assert.Empty(t, streams)
	})

	t.Run("store failure maps to internal error", func(t *testing.T) {
		store := &stubStreamStore{err: errors.New("connection reset")}
		h := NewSyncHandler(&stubRunner{}, store, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
	})
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "marketsync", body["service"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}
