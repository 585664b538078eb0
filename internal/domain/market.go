package domain

import "time"

// Market is one tradable question belonging to an Event, 1:1 with a Condition.
type Market struct {
	ConditionID      string // primary key, joins to Condition.ID
	EventID          int64
	Question         string
	Slug             string
	IconURL          *string
	IsActive         *bool // nil until the resolutions stream first touches it
	IsResolved       *bool
	NegRisk          bool
	NegRiskRequestID string // alternate resolution lookup key for neg-risk markets
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Outcome is one payout leg (e.g. Yes/No) of a Market. The outcome set is
// immutable once created; only the payout fields are written at resolution.
type Outcome struct {
	ConditionID string
	Index       int
	Title       string
	IsWinning   bool
	Payout      *float64
}
