package domain

import (
	"context"
	"time"
)

// SyncStreamStore persists the per-stream cursor/lock row.
type SyncStreamStore interface {
	// TryAcquire attempts to transition the stream's run state to running.
	// It returns true only when this call performed the transition; a race
	// loss (someone else holds a fresh lock) is false, not an error. A
	// running row older than the staleness threshold is taken over.
	TryAcquire(ctx context.Context, stream Stream) (bool, error)

	// Complete releases the lock by marking the run completed.
	Complete(ctx context.Context, stream Stream, processed int) error

	// Fail releases the lock by marking the run errored.
	Fail(ctx context.Context, stream Stream, msg string) error

	// Cursor returns the stream's watermark, or nil before the first record.
	Cursor(ctx context.Context, stream Stream) (*Cursor, error)

	// SetCursor upserts the stream's watermark. The driver never writes a
	// cursor lower than what is stored.
	SetCursor(ctx context.Context, stream Stream, c Cursor) error

	// State returns the full stream row for observability endpoints.
	State(ctx context.Context, stream Stream) (StreamState, error)
}

// ConditionStore persists condition rows.
type ConditionStore interface {
	Upsert(ctx context.Context, c Condition) error
	GetByID(ctx context.Context, id string) (Condition, error)
	// GetByQuestionID matches case-insensitively.
	GetByQuestionID(ctx context.Context, questionID string) (Condition, error)
	// UpdateResolution replaces every resolution field of the row in full.
	UpdateResolution(ctx context.Context, c Condition) error
}

// EventStore persists event rows.
type EventStore interface {
	GetBySlug(ctx context.Context, slug string) (Event, error)
	Insert(ctx context.Context, e Event) (int64, error)
	Update(ctx context.Context, e Event) error
	ListByIDs(ctx context.Context, ids []int64) ([]Event, error)
	UpdateStatus(ctx context.Context, id int64, status EventStatus, resolvedAt *time.Time) error
}

// MarketStore persists market rows.
type MarketStore interface {
	// Upsert inserts or updates a market and reports whether a row already
	// existed before the write.
	Upsert(ctx context.Context, m Market) (existed bool, err error)
	GetByConditionID(ctx context.Context, conditionID string) (Market, error)
	GetByNegRiskRequestID(ctx context.Context, requestID string) (Market, error)
	UpdateFlags(ctx context.Context, conditionID string, isActive, isResolved bool) error
	ListByEventIDs(ctx context.Context, eventIDs []int64) ([]Market, error)
	ListResolvedSince(ctx context.Context, since time.Time) ([]Market, error)
}

// OutcomeStore persists market outcome legs.
type OutcomeStore interface {
	// InsertAll inserts the full outcome set of a market. Re-inserting an
	// existing set is a no-op, never an error.
	InsertAll(ctx context.Context, outcomes []Outcome) error
	ListByConditionID(ctx context.Context, conditionID string) ([]Outcome, error)
	SetPayout(ctx context.Context, conditionID string, index int, payout float64, winning bool) error
}

// MetadataCache caches content-addressed metadata documents. Get returns
// (nil, nil) on a miss.
type MetadataCache interface {
	GetMetadata(ctx context.Context, hash string) (*MarketMetadata, error)
	SetMetadata(ctx context.Context, hash string, doc *MarketMetadata) error
}

// TagProcessor records event tags. Attempted once per event creation;
// failures are logged, never fatal.
type TagProcessor interface {
	ProcessTags(ctx context.Context, eventID int64, tags []string) error
}
