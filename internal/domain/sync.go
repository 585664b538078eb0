package domain

import (
	"fmt"
	"time"
)

// Stream identifies one append-only upstream sync stream.
type Stream struct {
	Service  string
	Subgraph string
}

func (s Stream) String() string {
	return s.Service + "/" + s.Subgraph
}

// Cursor is a composite (timestamp, id) watermark marking sync progress.
// Ordering is lexicographic: timestamp first, then id.
type Cursor struct {
	Timestamp int64
	ID        string
}

// Before reports whether c orders strictly before other.
func (c Cursor) Before(other Cursor) bool {
	if c.Timestamp != other.Timestamp {
		return c.Timestamp < other.Timestamp
	}
	return c.ID < other.ID
}

// RunStatus is the state of one stream's sync run. The "running" state doubles
// as the mutual-exclusion lock; completed and error both release it.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// StreamState is the single durable row per stream carrying both the cursor
// and the run-state lock.
type StreamState struct {
	Stream         Stream
	Status         RunStatus
	ErrorMessage   *string
	TotalProcessed int64
	Cursor         *Cursor // nil until the first record is applied
	UpdatedAt      time.Time
}

// RecordError is a failure isolated to a single upstream record. The driver
// collects these and keeps going; one malformed record must never stall the
// stream.
type RecordError struct {
	ID  string
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Detail projects the error into the run-stats entry reported to callers.
func (e *RecordError) Detail() ErrorDetail {
	return ErrorDetail{ID: e.ID, Error: e.Err.Error()}
}

// RunStats summarizes one sync run for the HTTP response and logs.
type RunStats struct {
	Fetched          int           `json:"fetched"`
	Processed        int           `json:"processed"`
	Skipped          int           `json:"skipped"`
	Errors           int           `json:"errors"`
	ErrorDetails     []ErrorDetail `json:"errorDetails"`
	TimeLimitReached bool          `json:"timeLimitReached"`
}

// ErrorDetail is one entry of RunStats.ErrorDetails.
type ErrorDetail struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// RawCondition is one record of the markets stream as returned by the
// subgraph. Numeric fields arrive as decimal strings and are validated by the
// upserter, not here.
type RawCondition struct {
	ID                string
	Oracle            string
	QuestionID        string
	Creator           string
	MetadataHash      string
	CreationTimestamp string
	Timestamp         string // last-update timestamp, the stream's ordering key
	NegRiskRequestID  string
}

// RawResolution is one record of the resolutions stream.
type RawResolution struct {
	ID          string // oracle request id; neg-risk lookup key
	QuestionID  string
	Status      string
	Price       string // integer-as-string fixed-point, 1e18 scale
	Flagged     bool
	Paused      bool
	WasDisputed bool
	Approved    *bool
	Liveness    string // seconds, may be empty
	LastUpdated string
	Timestamp   string // the stream's ordering key
}
