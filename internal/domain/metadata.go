package domain

// MarketMetadata is the content-addressed metadata document fetched from the
// content-store gateway by hash. Documents are immutable, so they cache
// indefinitely.
type MarketMetadata struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Icon     string         `json:"icon,omitempty"`
	Outcomes []string       `json:"outcomes,omitempty"`
	Event    *EventMetadata `json:"event"`
	Tags     []string       `json:"tags,omitempty"`
}

// EventMetadata is the parent-event description embedded in MarketMetadata.
type EventMetadata struct {
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	EndDate    string `json:"endDate,omitempty"` // RFC 3339, may be empty
	NegRisk    bool   `json:"negRisk,omitempty"`
	SeriesSlug string `json:"seriesSlug,omitempty"`
	Icon       string `json:"icon,omitempty"`
}
