package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clearfork/marketsync/internal/domain"
)

// SyncRunner executes one sync run per stream. The server triggers runs on
// demand; a run that loses the lock race returns domain.ErrLockHeld.
type SyncRunner interface {
	RunMarkets(ctx context.Context) (domain.RunStats, error)
	RunResolutions(ctx context.Context) (domain.RunStats, error)
}

// SyncHandler serves the sync trigger and status endpoints.
type SyncHandler struct {
	runner  SyncRunner
	streams domain.SyncStreamStore
	logger  *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(runner SyncRunner, streams domain.SyncStreamStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		runner:  runner,
		streams: streams,
		logger:  logger,
	}
}

// syncResponse is the success body of a trigger endpoint: the run stats plus
// a success flag.
type syncResponse struct {
	Success bool `json:"success"`
	domain.RunStats
}

// TriggerMarkets runs the markets stream once and reports its stats.
// POST /api/sync/markets
func (h *SyncHandler) TriggerMarkets(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "markets", h.runner.RunMarkets)
}

// TriggerResolutions runs the resolutions stream once and reports its stats.
// POST /api/sync/resolutions
func (h *SyncHandler) TriggerResolutions(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "resolutions", h.runner.RunResolutions)
}

func (h *SyncHandler) trigger(w http.ResponseWriter, r *http.Request, name string, run func(context.Context) (domain.RunStats, error)) {
	logger := logHandler(h.logger, "sync."+name)

	stats, err := run(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, syncResponse{Success: true, RunStats: stats})
	case errors.Is(err, domain.ErrLockHeld):
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"skipped": true,
		})
	default:
		logger.ErrorContext(r.Context(), "handler: sync run failed",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}
}

// streamStateView is the JSON projection of one stream's cursor/lock row.
type streamStateView struct {
	Stream         string  `json:"stream"`
	Status         string  `json:"status"`
	ErrorMessage   *string `json:"errorMessage,omitempty"`
	TotalProcessed int64   `json:"totalProcessed"`
	CursorTS       *int64  `json:"cursorTimestamp,omitempty"`
	CursorID       *string `json:"cursorId,omitempty"`
	UpdatedAt      string  `json:"updatedAt"`
}

// Status reports the persisted run state and cursor of every known stream.
// Streams that have never run are omitted.
// GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	known := []domain.Stream{
		{Service: "goldsky", Subgraph: "markets"},
		{Service: "goldsky", Subgraph: "resolutions"},
	}

	views := make([]streamStateView, 0, len(known))
	for _, stream := range known {
		st, err := h.streams.State(r.Context(), stream)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			logHandler(h.logger, "sync.status").ErrorContext(r.Context(), "handler: read stream state",
				slog.String("stream", stream.String()),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"error":   "failed to read stream state",
			})
			return
		}

		v := streamStateView{
			Stream:         st.Stream.String(),
			Status:         string(st.Status),
			ErrorMessage:   st.ErrorMessage,
			TotalProcessed: st.TotalProcessed,
			UpdatedAt:      st.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if st.Cursor != nil {
			ts, id := st.Cursor.Timestamp, st.Cursor.ID
			v.CursorTS = &ts
			v.CursorID = &id
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"streams": views,
	})
}
