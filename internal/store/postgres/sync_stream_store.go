package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearfork/marketsync/internal/domain"
)

// lockStaleAfter is how old a running row must be before another caller may
// take over the lock. A crashed holder can therefore stall a stream for at
// most this long.
const lockStaleAfter = 15 * time.Minute

// SyncStreamStore implements domain.SyncStreamStore using PostgreSQL. The
// lock is a single conditional UPDATE (compare-and-swap on "not running OR
// stale"), never two flags that can disagree.
type SyncStreamStore struct {
	pool *pgxpool.Pool
}

// NewSyncStreamStore creates a SyncStreamStore backed by the given pool.
func NewSyncStreamStore(pool *pgxpool.Pool) *SyncStreamStore {
	return &SyncStreamStore{pool: pool}
}

// TryAcquire attempts to transition the stream's row to running. Losing the
// race to a concurrent caller returns (false, nil); only storage failures are
// errors.
func (s *SyncStreamStore) TryAcquire(ctx context.Context, stream domain.Stream) (bool, error) {
	const update = `
		UPDATE sync_streams
		SET status = 'running', error_message = NULL, updated_at = NOW()
		WHERE service = $1 AND subgraph = $2
		  AND (status <> 'running' OR updated_at < NOW() - make_interval(secs => $3))`

	tag, err := s.pool.Exec(ctx, update, stream.Service, stream.Subgraph, lockStaleAfter.Seconds())
	if err != nil {
		return false, fmt.Errorf("postgres: acquire sync lock %s: %w", stream, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// No row was updatable. Either the stream is new (insert it, treating a
	// conflicting concurrent insert as a race loss) or a fresh holder exists.
	const insert = `
		INSERT INTO sync_streams (service, subgraph, status, updated_at)
		VALUES ($1, $2, 'running', NOW())
		ON CONFLICT (service, subgraph) DO NOTHING`

	tag, err = s.pool.Exec(ctx, insert, stream.Service, stream.Subgraph)
	if err != nil {
		return false, fmt.Errorf("postgres: insert sync stream %s: %w", stream, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete releases the lock and accumulates the processed-record counter.
func (s *SyncStreamStore) Complete(ctx context.Context, stream domain.Stream, processed int) error {
	const query = `
		UPDATE sync_streams
		SET status = 'completed', total_processed = total_processed + $3, updated_at = NOW()
		WHERE service = $1 AND subgraph = $2`

	if _, err := s.pool.Exec(ctx, query, stream.Service, stream.Subgraph, processed); err != nil {
		return fmt.Errorf("postgres: complete sync run %s: %w", stream, err)
	}
	return nil
}

// Fail releases the lock and records the failure message.
func (s *SyncStreamStore) Fail(ctx context.Context, stream domain.Stream, msg string) error {
	const query = `
		UPDATE sync_streams
		SET status = 'error', error_message = $3, updated_at = NOW()
		WHERE service = $1 AND subgraph = $2`

	if _, err := s.pool.Exec(ctx, query, stream.Service, stream.Subgraph, msg); err != nil {
		return fmt.Errorf("postgres: fail sync run %s: %w", stream, err)
	}
	return nil
}

// Cursor returns the stream's watermark, or nil before the first record.
func (s *SyncStreamStore) Cursor(ctx context.Context, stream domain.Stream) (*domain.Cursor, error) {
	const query = `
		SELECT cursor_ts, cursor_id FROM sync_streams
		WHERE service = $1 AND subgraph = $2`

	var ts *int64
	var id *string
	err := s.pool.QueryRow(ctx, query, stream.Service, stream.Subgraph).Scan(&ts, &id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: read cursor %s: %w", stream, err)
	}
	if ts == nil || id == nil {
		return nil, nil
	}
	return &domain.Cursor{Timestamp: *ts, ID: *id}, nil
}

// SetCursor upserts the stream's watermark. The write doubles as the run
// heartbeat via updated_at.
func (s *SyncStreamStore) SetCursor(ctx context.Context, stream domain.Stream, c domain.Cursor) error {
	const query = `
		INSERT INTO sync_streams (service, subgraph, status, cursor_ts, cursor_id, updated_at)
		VALUES ($1, $2, 'running', $3, $4, NOW())
		ON CONFLICT (service, subgraph) DO UPDATE SET
			cursor_ts  = EXCLUDED.cursor_ts,
			cursor_id  = EXCLUDED.cursor_id,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, stream.Service, stream.Subgraph, c.Timestamp, c.ID); err != nil {
		return fmt.Errorf("postgres: write cursor %s: %w", stream, err)
	}
	return nil
}

// State returns the full stream row.
func (s *SyncStreamStore) State(ctx context.Context, stream domain.Stream) (domain.StreamState, error) {
	const query = `
		SELECT status, error_message, total_processed, cursor_ts, cursor_id, updated_at
		FROM sync_streams
		WHERE service = $1 AND subgraph = $2`

	st := domain.StreamState{Stream: stream}
	var status string
	var ts *int64
	var id *string
	err := s.pool.QueryRow(ctx, query, stream.Service, stream.Subgraph).Scan(
		&status, &st.ErrorMessage, &st.TotalProcessed, &ts, &id, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StreamState{}, domain.ErrNotFound
		}
		return domain.StreamState{}, fmt.Errorf("postgres: read sync stream %s: %w", stream, err)
	}
	st.Status = domain.RunStatus(status)
	if ts != nil && id != nil {
		st.Cursor = &domain.Cursor{Timestamp: *ts, ID: *id}
	}
	return st, nil
}

// Compile-time interface check.
var _ domain.SyncStreamStore = (*SyncStreamStore)(nil)
