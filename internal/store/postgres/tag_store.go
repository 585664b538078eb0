package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearfork/marketsync/internal/domain"
)

// TagStore implements domain.TagProcessor using PostgreSQL.
type TagStore struct {
	pool *pgxpool.Pool
}

// NewTagStore creates a TagStore backed by the given pool.
func NewTagStore(pool *pgxpool.Pool) *TagStore {
	return &TagStore{pool: pool}
}

// ProcessTags records an event's tags. Tags are normalized to lower case and
// deduplicated; re-recording an existing tag is a no-op.
func (s *TagStore) ProcessTags(ctx context.Context, eventID int64, tags []string) error {
	const query = `
		INSERT INTO event_tags (event_id, tag)
		VALUES ($1, $2)
		ON CONFLICT (event_id, tag) DO NOTHING`

	seen := make(map[string]bool, len(tags))
	batch := &pgx.Batch{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		batch.Queue(query, eventID, tag)
	}
	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tag batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListTags returns an event's recorded tags in insertion-independent order.
func (s *TagStore) ListTags(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tag FROM event_tags WHERE event_id = $1 ORDER BY tag`, eventID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tags %d: %w", eventID, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("postgres: scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tags rows: %w", err)
	}
	return tags, nil
}

// Compile-time interface check.
var _ domain.TagProcessor = (*TagStore)(nil)
