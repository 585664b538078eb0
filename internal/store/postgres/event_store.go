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

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventCols = `id, slug, title, status, resolved_at, end_date, neg_risk,
	series_slug, icon_url, created_at, updated_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	var status string
	err := row.Scan(
		&e.ID, &e.Slug, &e.Title, &status, &e.ResolvedAt, &e.EndDate,
		&e.NegRisk, &e.SeriesSlug, &e.IconURL, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	e.Status = domain.EventStatus(status)
	return e, nil
}

// GetBySlug retrieves an event by its unique slug.
func (s *EventStore) GetBySlug(ctx context.Context, slug string) (domain.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventCols+` FROM events WHERE slug = $1`, slug)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("postgres: get event by slug %s: %w", slug, err)
	}
	return e, nil
}

// Insert creates a new event and returns its generated id.
func (s *EventStore) Insert(ctx context.Context, e domain.Event) (int64, error) {
	const query = `
		INSERT INTO events (slug, title, status, end_date, neg_risk, series_slug, icon_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		e.Slug, e.Title, string(e.Status), e.EndDate, e.NegRisk, e.SeriesSlug,
		e.IconURL, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert event %s: %w", e.Slug, err)
	}
	return id, nil
}

// Update patches the mutable fields of an existing event.
func (s *EventStore) Update(ctx context.Context, e domain.Event) error {
	const query = `
		UPDATE events SET
			title       = $2,
			end_date    = $3,
			neg_risk    = $4,
			series_slug = $5,
			created_at  = $6,
			updated_at  = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		e.ID, e.Title, e.EndDate, e.NegRisk, e.SeriesSlug, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update event %d: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByIDs loads events for the given id set in one query.
func (s *EventStore) ListByIDs(ctx context.Context, ids []int64) ([]domain.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM events WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by ids: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// UpdateStatus writes the aggregated status. resolvedAt is passed through
// verbatim so a previously set resolution timestamp is never re-stamped.
func (s *EventStore) UpdateStatus(ctx context.Context, id int64, status domain.EventStatus, resolvedAt *time.Time) error {
	const query = `
		UPDATE events SET status = $2, resolved_at = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), resolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: update event status %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
