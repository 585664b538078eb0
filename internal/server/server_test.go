package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfork/marketsync/internal/domain"
	"github.com/clearfork/marketsync/internal/server/handler"
)

type noopRunner struct{}

func (noopRunner) RunMarkets(ctx context.Context) (domain.RunStats, error) {
	return domain.RunStats{Processed: 3}, nil
}

func (noopRunner) RunResolutions(ctx context.Context) (domain.RunStats, error) {
	return domain.RunStats{}, nil
}

type emptyStreamStore struct{}

func (emptyStreamStore) TryAcquire(ctx context.Context, stream domain.Stream) (bool, error) {
	return false, nil
}
func (emptyStreamStore) Complete(ctx context.Context, stream domain.Stream, processed int) error {
	return nil
}
func (emptyStreamStore) Fail(ctx context.Context, stream domain.Stream, msg string) error {
	return nil
}
func (emptyStreamStore) Cursor(ctx context.Context, stream domain.Stream) (*domain.Cursor, error) {
	return nil, nil
}
func (emptyStreamStore) SetCursor(ctx context.Context, stream domain.Stream, c domain.Cursor) error {
	return nil
}
func (emptyStreamStore) State(ctx context.Context, stream domain.Stream) (domain.StreamState, error) {
	return domain.StreamState{}, domain.ErrNotFound
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	s := NewServer(
		Config{Port: 0, APIKey: apiKey},
		Handlers{
			Health: handler.NewHealthHandler(logger),
			Sync:   handler.NewSyncHandler(noopRunner{}, emptyStreamStore{}, logger),
		},
		logger,
	)
	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestServerRouting(t *testing.T) {
	const apiKey = "s3kret"

	do := func(t *testing.T, srv *httptest.Server, method, path string, header http.Header) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, nil)
		require.NoError(t, err)
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("health is reachable without credentials", func(t *testing.T) {
		srv := newTestServer(t, apiKey)
		resp := do(t, srv, http.MethodGet, "/api/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("sync endpoints require credentials", func(t *testing.T) {
		srv := newTestServer(t, apiKey)

		resp := do(t, srv, http.MethodPost, "/api/sync/markets", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = do(t, srv, http.MethodGet, "/api/sync/status", http.Header{
			"X-API-Key": []string{"wrong"},
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bearer token is accepted", func(t *testing.T) {
		srv := newTestServer(t, apiKey)
		resp := do(t, srv, http.MethodPost, "/api/sync/markets", http.Header{
			"Authorization": []string{"Bearer " + apiKey},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("api key header is accepted", func(t *testing.T) {
		srv := newTestServer(t, apiKey)
		resp := do(t, srv, http.MethodGet, "/api/sync/status", http.Header{
			"X-API-Key": []string{apiKey},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("empty key disables auth", func(t *testing.T) {
		srv := newTestServer(t, "")
		resp := do(t, srv, http.MethodPost, "/api/sync/resolutions", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("wrong method on a sync route is rejected", func(t *testing.T) {
		srv := newTestServer(t, apiKey)
		resp := do(t, srv, http.MethodGet, "/api/sync/markets", http.Header{
			"X-API-Key": []string{apiKey},
		})
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
