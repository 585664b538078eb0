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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a market keyed by condition id and reports
// whether a row already existed before the write. Existence decides whether
// the caller seeds the immutable outcome set.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) (bool, error) {
	const query = `
		INSERT INTO markets (
			condition_id, event_id, question, slug, icon_url,
			is_active, is_resolved, neg_risk, neg_risk_request_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (condition_id) DO UPDATE SET
			event_id            = EXCLUDED.event_id,
			question            = EXCLUDED.question,
			slug                = EXCLUDED.slug,
			neg_risk            = EXCLUDED.neg_risk,
			neg_risk_request_id = EXCLUDED.neg_risk_request_id,
			updated_at          = NOW()
		RETURNING (xmax <> 0) AS existed`

	var existed bool
	err := s.pool.QueryRow(ctx, query,
		m.ConditionID, m.EventID, m.Question, m.Slug, m.IconURL,
		m.IsActive, m.IsResolved, m.NegRisk, m.NegRiskRequestID,
	).Scan(&existed)
	if err != nil {
		return false, fmt.Errorf("postgres: upsert market %s: %w", m.ConditionID, err)
	}
	return existed, nil
}

const marketCols = `condition_id, event_id, question, slug, icon_url,
	is_active, is_resolved, neg_risk, neg_risk_request_id, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ConditionID, &m.EventID, &m.Question, &m.Slug, &m.IconURL,
		&m.IsActive, &m.IsResolved, &m.NegRisk, &m.NegRiskRequestID,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetByConditionID retrieves a market by its primary key.
func (s *MarketStore) GetByConditionID(ctx context.Context, conditionID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE condition_id = $1`, conditionID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", conditionID, err)
	}
	return m, nil
}

// GetByNegRiskRequestID retrieves a neg-risk market by its alternate
// resolution request id.
func (s *MarketStore) GetByNegRiskRequestID(ctx context.Context, requestID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE neg_risk_request_id = $1 AND neg_risk_request_id <> ''`,
		requestID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by request %s: %w", requestID, err)
	}
	return m, nil
}

// UpdateFlags writes the resolution-driven activity flags.
func (s *MarketStore) UpdateFlags(ctx context.Context, conditionID string, isActive, isResolved bool) error {
	const query = `
		UPDATE markets SET is_active = $2, is_resolved = $3, updated_at = NOW()
		WHERE condition_id = $1`

	tag, err := s.pool.Exec(ctx, query, conditionID, isActive, isResolved)
	if err != nil {
		return fmt.Errorf("postgres: update market flags %s: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByEventIDs loads every market of the given events in one query, for
// batched status aggregation.
func (s *MarketStore) ListByEventIDs(ctx context.Context, eventIDs []int64) ([]domain.Market, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE event_id = ANY($1)`, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by events: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// ListResolvedSince returns markets resolved since the given time, for the
// snapshot exporter.
func (s *MarketStore) ListResolvedSince(ctx context.Context, since time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE is_resolved = TRUE AND updated_at >= $1 ORDER BY updated_at`,
		since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolved market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets rows: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
