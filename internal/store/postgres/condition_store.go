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

// ConditionStore implements domain.ConditionStore using PostgreSQL.
type ConditionStore struct {
	pool *pgxpool.Pool
}

// NewConditionStore creates a ConditionStore backed by the given pool.
func NewConditionStore(pool *pgxpool.Pool) *ConditionStore {
	return &ConditionStore{pool: pool}
}

// Upsert inserts or replaces a condition row keyed by id. The conflict branch
// only writes the identity fields: resolved and the rest of the resolution
// state belong to the resolutions stream, and a replayed condition record
// must not regress them.
func (s *ConditionStore) Upsert(ctx context.Context, c domain.Condition) error {
	const query = `
		INSERT INTO conditions (
			id, oracle, question_id, resolved, metadata_hash, creator,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			oracle        = EXCLUDED.oracle,
			question_id   = EXCLUDED.question_id,
			metadata_hash = EXCLUDED.metadata_hash,
			creator       = EXCLUDED.creator,
			created_at    = EXCLUDED.created_at,
			updated_at    = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.Oracle, c.QuestionID, c.Resolved, c.MetadataHash, c.Creator,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert condition %s: %w", c.ID, err)
	}
	return nil
}

const conditionCols = `id, oracle, question_id, resolved, metadata_hash, creator,
	created_at, updated_at, resolution_status, flagged, paused, last_updated,
	price, was_disputed, approved, deadline_at, liveness_seconds`

// scanCondition scans a single condition row.
func scanCondition(row pgx.Row) (domain.Condition, error) {
	var c domain.Condition
	var status string
	var lastUpdated *time.Time
	err := row.Scan(
		&c.ID, &c.Oracle, &c.QuestionID, &c.Resolved, &c.MetadataHash, &c.Creator,
		&c.CreatedAt, &c.UpdatedAt, &status, &c.Flagged, &c.Paused, &lastUpdated,
		&c.Price, &c.WasDisputed, &c.Approved, &c.DeadlineAt, &c.LivenessSeconds,
	)
	if err != nil {
		return domain.Condition{}, err
	}
	c.ResolutionStatus = domain.ResolutionStatus(status)
	if lastUpdated != nil {
		c.LastUpdated = *lastUpdated
	}
	return c, nil
}

// GetByID retrieves a condition by its primary key.
func (s *ConditionStore) GetByID(ctx context.Context, id string) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE id = $1`, id)
	c, err := scanCondition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Condition{}, domain.ErrNotFound
		}
		return domain.Condition{}, fmt.Errorf("postgres: get condition %s: %w", id, err)
	}
	return c, nil
}

// GetByQuestionID retrieves a condition by question id, case-insensitively.
func (s *ConditionStore) GetByQuestionID(ctx context.Context, questionID string) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE LOWER(question_id) = LOWER($1)`, questionID)
	c, err := scanCondition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Condition{}, domain.ErrNotFound
		}
		return domain.Condition{}, fmt.Errorf("postgres: get condition by question %s: %w", questionID, err)
	}
	return c, nil
}

// UpdateResolution replaces every resolution field of the row in full. The
// decoder always writes the complete decoded state, never a merge.
func (s *ConditionStore) UpdateResolution(ctx context.Context, c domain.Condition) error {
	const query = `
		UPDATE conditions SET
			resolved          = $2,
			resolution_status = $3,
			flagged           = $4,
			paused            = $5,
			last_updated      = $6,
			price             = $7,
			was_disputed      = $8,
			approved          = $9,
			deadline_at       = $10,
			liveness_seconds  = $11
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		c.ID, c.Resolved, string(c.ResolutionStatus), c.Flagged, c.Paused,
		c.LastUpdated, c.Price, c.WasDisputed, c.Approved, c.DeadlineAt,
		c.LivenessSeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres: update resolution %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.ConditionStore = (*ConditionStore)(nil)
