package domain

import (
	"strings"
	"time"
)

// ResolutionStatus is the lifecycle phase of a condition's resolution as
// reported by the UMA oracle adapter.
type ResolutionStatus string

const (
	ResolutionPosed      ResolutionStatus = "posed"
	ResolutionProposed   ResolutionStatus = "proposed"
	ResolutionReproposed ResolutionStatus = "reproposed"
	ResolutionChallenged ResolutionStatus = "challenged"
	ResolutionDisputed   ResolutionStatus = "disputed"
	ResolutionResolved   ResolutionStatus = "resolved"
)

// ParseResolutionStatus lower-cases a free-form upstream status string. Any
// unknown value is kept verbatim and treated as pending by deadline logic.
func ParseResolutionStatus(s string) ResolutionStatus {
	return ResolutionStatus(strings.ToLower(strings.TrimSpace(s)))
}

// Condition is the canonical on-chain question record. It is the join key
// between the markets stream and the resolutions stream.
type Condition struct {
	ID           string // external condition id, primary key
	Oracle       string
	QuestionID   string
	Resolved     bool
	MetadataHash string
	Creator      string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Resolution state, rewritten in full by every resolutions-stream record.
	ResolutionStatus ResolutionStatus
	Flagged          bool
	Paused           bool
	LastUpdated      time.Time
	Price            *float64 // nil while the payout is not yet decodable
	WasDisputed      bool
	Approved         *bool
	DeadlineAt       *time.Time
	LivenessSeconds  *int64
}
