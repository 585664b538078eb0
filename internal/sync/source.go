// Package sync implements the market synchronization and resolution pipeline:
// a periodically-invoked worker that pulls append-only record streams from the
// subgraph indexer, incrementally upserts normalized market/event rows, and
// maintains the resolution state machine.
package sync

import (
	"context"

	"github.com/clearfork/marketsync/internal/domain"
)

// Record is one raw upstream record paired with its (timestamp, id) ordering
// key. The driver advances the cursor to this key whether or not processing
// succeeds.
type Record struct {
	Cursor domain.Cursor
	Raw    any
}

// Outcome classifies what processing one record did.
type Outcome int

const (
	// OutcomeProcessed means the record was applied to storage.
	OutcomeProcessed Outcome = iota
	// OutcomeSkipped means the record was deliberately not applied (creator
	// not allow-listed, or no matching condition in this deployment).
	OutcomeSkipped
	// OutcomeFailed means the record could not be applied. The failure is
	// isolated: the driver records it and moves the cursor past the record.
	OutcomeFailed
)

// Result is the typed per-record outcome the driver pattern-matches on. One
// record's failure never unwinds the loop.
type Result struct {
	Outcome Outcome
	EventID int64 // parent event touched, 0 when none
	Err     error // set when Outcome is OutcomeFailed
}

func processed(eventID int64) Result {
	return Result{Outcome: OutcomeProcessed, EventID: eventID}
}

func skipped() Result {
	return Result{Outcome: OutcomeSkipped}
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}

// Source adapts one upstream stream to the driver: it fetches ordered pages
// and applies single records.
type Source interface {
	// Stream identifies the cursor/lock row this source advances.
	Stream() domain.Stream

	// FetchPage returns up to limit records strictly after the cursor,
	// ascending by (timestamp, id). An error here is fatal to the run. A
	// record whose ordering key cannot be parsed is also fatal: the cursor
	// could not be advanced past it.
	FetchPage(ctx context.Context, cursor *domain.Cursor, limit int) ([]Record, error)

	// Process applies one record. All failures are reported through the
	// Result, never by panicking or aborting the run.
	Process(ctx context.Context, rec Record) Result
}
