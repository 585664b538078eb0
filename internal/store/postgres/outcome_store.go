package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearfork/marketsync/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// InsertAll inserts a market's full outcome set in one batch. The set is
// immutable once created, so conflicts are ignored rather than replayed.
func (s *OutcomeStore) InsertAll(ctx context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	const query = `
		INSERT INTO outcomes (condition_id, outcome_index, title, is_winning, payout)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (condition_id, outcome_index) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range outcomes {
		batch.Queue(query, o.ConditionID, o.Index, o.Title, o.IsWinning, o.Payout)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range outcomes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert outcome batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByConditionID returns a market's outcomes ordered by leg index.
func (s *OutcomeStore) ListByConditionID(ctx context.Context, conditionID string) ([]domain.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT condition_id, outcome_index, title, is_winning, payout
		 FROM outcomes WHERE condition_id = $1 ORDER BY outcome_index`,
		conditionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes %s: %w", conditionID, err)
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ConditionID, &o.Index, &o.Title, &o.IsWinning, &o.Payout); err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list outcomes rows: %w", err)
	}
	return outcomes, nil
}

// SetPayout writes one leg's payout fields.
func (s *OutcomeStore) SetPayout(ctx context.Context, conditionID string, index int, payout float64, winning bool) error {
	const query = `
		UPDATE outcomes SET payout = $3, is_winning = $4
		WHERE condition_id = $1 AND outcome_index = $2`

	tag, err := s.pool.Exec(ctx, query, conditionID, index, payout, winning)
	if err != nil {
		return fmt.Errorf("postgres: set payout %s[%d]: %w", conditionID, index, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.OutcomeStore = (*OutcomeStore)(nil)
