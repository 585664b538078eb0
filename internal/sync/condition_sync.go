package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clearfork/marketsync/internal/domain"
)

// ConditionFetcher retrieves raw condition records from the subgraph.
type ConditionFetcher interface {
	FetchConditions(ctx context.Context, cursor *domain.Cursor, first int) ([]domain.RawCondition, error)
}

// MetadataFetcher retrieves a content-addressed metadata document.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, hash string) (*domain.MarketMetadata, error)
}

// ConditionSource is the markets-stream source: it normalizes one raw
// condition record and idempotently writes the condition, its market, its
// outcome legs, and the parent event.
type ConditionSource struct {
	fetcher    ConditionFetcher
	conditions domain.ConditionStore
	events     domain.EventStore
	markets    domain.MarketStore
	outcomes   domain.OutcomeStore
	metadata   MetadataFetcher
	cache      domain.MetadataCache // optional
	icons      *IconMirror          // optional
	tags       domain.TagProcessor  // optional
	allowed    map[string]bool      // normalized creator addresses
	logger     *slog.Logger
}

// ConditionSourceDeps bundles the collaborators of a ConditionSource. Cache,
// Icons, and Tags may be nil; the source degrades gracefully without them.
type ConditionSourceDeps struct {
	Fetcher    ConditionFetcher
	Conditions domain.ConditionStore
	Events     domain.EventStore
	Markets    domain.MarketStore
	Outcomes   domain.OutcomeStore
	Metadata   MetadataFetcher
	Cache      domain.MetadataCache
	Icons      *IconMirror
	Tags       domain.TagProcessor
}

// NewConditionSource creates the markets-stream source. allowedCreators is
// the allow-list of market creator addresses; conditions from any other
// creator are skipped, not errored.
func NewConditionSource(deps ConditionSourceDeps, allowedCreators []string, logger *slog.Logger) *ConditionSource {
	allowed := make(map[string]bool, len(allowedCreators))
	for _, a := range allowedCreators {
		allowed[normalizeAddress(a)] = true
	}
	return &ConditionSource{
		fetcher:    deps.Fetcher,
		conditions: deps.Conditions,
		events:     deps.Events,
		markets:    deps.Markets,
		outcomes:   deps.Outcomes,
		metadata:   deps.Metadata,
		cache:      deps.Cache,
		icons:      deps.Icons,
		tags:       deps.Tags,
		allowed:    allowed,
		logger:     logger,
	}
}

// Stream identifies the markets-stream cursor/lock row.
func (s *ConditionSource) Stream() domain.Stream {
	return domain.Stream{Service: "goldsky", Subgraph: "markets"}
}

// FetchPage returns the next ordered page of condition records.
func (s *ConditionSource) FetchPage(ctx context.Context, cursor *domain.Cursor, limit int) ([]Record, error) {
	raws, err := s.fetcher.FetchConditions(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		ts, err := strconv.ParseInt(raw.Timestamp, 10, 64)
		if err != nil {
			// The ordering key itself is broken; the cursor cannot be
			// advanced past this record, so the run must stop here.
			return nil, fmt.Errorf("condition %s: unparseable stream timestamp %q", raw.ID, raw.Timestamp)
		}
		records = append(records, Record{
			Cursor: domain.Cursor{Timestamp: ts, ID: raw.ID},
			Raw:    raw,
		})
	}
	return records, nil
}

// Process applies one condition record per the upsert protocol.
func (s *ConditionSource) Process(ctx context.Context, rec Record) Result {
	raw, ok := rec.Raw.(domain.RawCondition)
	if !ok {
		return failed(fmt.Errorf("unexpected record type %T", rec.Raw))
	}

	if err := validateRawCondition(raw); err != nil {
		return failed(err)
	}

	createdAt, err := parseEpoch(raw.CreationTimestamp)
	if err != nil {
		return failed(fmt.Errorf("unparseable creationTimestamp %q", raw.CreationTimestamp))
	}
	updatedAt, err := parseEpoch(raw.Timestamp)
	if err != nil {
		return failed(fmt.Errorf("unparseable timestamp %q", raw.Timestamp))
	}

	if !s.allowed[normalizeAddress(raw.Creator)] {
		return skipped()
	}

	cond := domain.Condition{
		ID:           raw.ID,
		Oracle:       raw.Oracle,
		QuestionID:   raw.QuestionID,
		MetadataHash: raw.MetadataHash,
		Creator:      raw.Creator,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	if err := s.conditions.Upsert(ctx, cond); err != nil {
		return failed(err)
	}

	meta, err := s.fetchMetadata(ctx, raw.MetadataHash)
	if err != nil {
		return failed(err)
	}

	eventID, err := s.resolveEvent(ctx, meta, createdAt)
	if err != nil {
		return failed(err)
	}

	market := domain.Market{
		ConditionID:      raw.ID,
		EventID:          eventID,
		Question:         meta.Name,
		Slug:             meta.Slug,
		NegRisk:          meta.Event.NegRisk,
		NegRiskRequestID: raw.NegRiskRequestID,
	}
	if s.icons != nil && meta.Icon != "" {
		market.IconURL = s.icons.Mirror(ctx, meta.Icon, "markets/"+raw.ID)
	}

	existed, err := s.markets.Upsert(ctx, market)
	if err != nil {
		return failed(err)
	}

	// The outcome set is immutable once created; only seed it when the
	// market row was genuinely new.
	if !existed {
		if err := s.outcomes.InsertAll(ctx, outcomesFromMetadata(raw.ID, meta)); err != nil {
			return failed(err)
		}
	}

	return processed(eventID)
}

// fetchMetadata reads through the cache when one is configured. Cache
// failures degrade to a direct gateway fetch.
func (s *ConditionSource) fetchMetadata(ctx context.Context, hash string) (*domain.MarketMetadata, error) {
	if s.cache != nil {
		if doc, err := s.cache.GetMetadata(ctx, hash); err == nil && doc != nil {
			return doc, nil
		} else if err != nil {
			s.logger.Warn("metadata cache read failed",
				slog.String("hash", hash),
				slog.String("error", err.Error()),
			)
		}
	}

	doc, err := s.metadata.FetchMetadata(ctx, hash)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetMetadata(ctx, hash, doc); err != nil {
			s.logger.Warn("metadata cache write failed",
				slog.String("hash", hash),
				slog.String("error", err.Error()),
			)
		}
	}
	return doc, nil
}

// resolveEvent finds or creates the parent event for a market's metadata and
// returns its id. Existing events are patched field-by-field; stored data is
// never overwritten with emptier data.
func (s *ConditionSource) resolveEvent(ctx context.Context, meta *domain.MarketMetadata, condCreatedAt time.Time) (int64, error) {
	em := meta.Event

	existing, err := s.events.GetBySlug(ctx, em.Slug)
	if err == nil {
		return existing.ID, s.patchEvent(ctx, existing, em, condCreatedAt)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}

	event := domain.Event{
		Slug:       em.Slug,
		Title:      em.Title,
		Status:     domain.EventStatusDraft,
		EndDate:    parseEndDate(em.EndDate),
		NegRisk:    em.NegRisk,
		SeriesSlug: em.SeriesSlug,
		CreatedAt:  condCreatedAt,
	}
	if event.Title == "" {
		event.Title = meta.Name
	}
	if s.icons != nil && em.Icon != "" {
		event.IconURL = s.icons.Mirror(ctx, em.Icon, "events/"+em.Slug)
	}

	id, err := s.events.Insert(ctx, event)
	if err != nil {
		return 0, err
	}

	if s.tags != nil && len(meta.Tags) > 0 {
		if err := s.tags.ProcessTags(ctx, id, meta.Tags); err != nil {
			s.logger.Warn("tag processing failed",
				slog.Int64("event_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return id, nil
}

// patchEvent updates an existing event's mutable fields. Title only when
// literally different, createdAt only when the new value is earlier
// (earliest-wins across merged sources), endDate only when changed, neg-risk
// and series flags always.
func (s *ConditionSource) patchEvent(ctx context.Context, existing domain.Event, em *domain.EventMetadata, condCreatedAt time.Time) error {
	changed := false

	if em.Title != "" && em.Title != existing.Title {
		existing.Title = em.Title
		changed = true
	}
	if em.NegRisk != existing.NegRisk {
		existing.NegRisk = em.NegRisk
		changed = true
	}
	if em.SeriesSlug != "" && em.SeriesSlug != existing.SeriesSlug {
		existing.SeriesSlug = em.SeriesSlug
		changed = true
	}
	if condCreatedAt.Before(existing.CreatedAt) {
		existing.CreatedAt = condCreatedAt
		changed = true
	}
	if end := parseEndDate(em.EndDate); end != nil {
		if existing.EndDate == nil || !end.Equal(*existing.EndDate) {
			existing.EndDate = end
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return s.events.Update(ctx, existing)
}

// validateRawCondition checks the fields the upserter cannot proceed without.
func validateRawCondition(raw domain.RawCondition) error {
	var missing []string
	if raw.Oracle == "" {
		missing = append(missing, "oracle")
	}
	if raw.QuestionID == "" {
		missing = append(missing, "questionId")
	}
	if raw.Creator == "" {
		missing = append(missing, "creator")
	}
	if raw.MetadataHash == "" {
		missing = append(missing, "metadataHash")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// outcomesFromMetadata builds a market's initial outcome legs. Binary
// markets without an explicit outcomes list default to Yes/No.
func outcomesFromMetadata(conditionID string, meta *domain.MarketMetadata) []domain.Outcome {
	titles := meta.Outcomes
	if len(titles) == 0 {
		titles = []string{"Yes", "No"}
	}

	outcomes := make([]domain.Outcome, 0, len(titles))
	for i, title := range titles {
		outcomes = append(outcomes, domain.Outcome{
			ConditionID: conditionID,
			Index:       i,
			Title:       title,
		})
	}
	return outcomes
}

// normalizeAddress canonicalizes a creator address for allow-list comparison.
// Comparison is case-insensitive; non-hex values normalize to their trimmed
// lower-case form and simply never match a valid allow-list entry.
func normalizeAddress(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if common.IsHexAddress(trimmed) {
		return strings.ToLower(common.HexToAddress(trimmed).Hex())
	}
	return strings.ToLower(trimmed)
}

// parseEpoch converts a decimal epoch-seconds string to a UTC time.
func parseEpoch(raw string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

// parseEndDate parses the metadata endDate, tolerating both RFC 3339 and
// epoch-seconds forms. Unparseable values are treated as absent.
func parseEndDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := parseEpoch(raw); err == nil {
		return &t
	}
	return nil
}

// Compile-time interface check.
var _ Source = (*ConditionSource)(nil)
