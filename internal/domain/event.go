package domain

import "time"

// EventStatus is the coarse lifecycle state of an event, recomputed from its
// child markets by the status aggregator.
type EventStatus string

const (
	EventStatusDraft    EventStatus = "draft"
	EventStatusActive   EventStatus = "active"
	EventStatusResolved EventStatus = "resolved"
	EventStatusArchived EventStatus = "archived"
)

// Event is a user-facing grouping of one or more markets shown as one page.
type Event struct {
	ID         int64
	Slug       string // unique
	Title      string
	Status     EventStatus
	ResolvedAt *time.Time // set once, on the first transition into resolved
	EndDate    *time.Time
	NegRisk    bool
	SeriesSlug string
	IconURL    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
