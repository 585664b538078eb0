package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/clearfork/marketsync/internal/domain"
)

// ResolutionFetcher retrieves raw resolution records from the subgraph.
type ResolutionFetcher interface {
	FetchResolutions(ctx context.Context, cursor *domain.Cursor, first int) ([]domain.RawResolution, error)
}

// ResolutionSource is the resolutions-stream source: it decodes one oracle
// resolution record into internal status, flags, payout price, and deadline,
// and applies it to the owning condition, market, and outcome legs.
type ResolutionSource struct {
	fetcher         ResolutionFetcher
	conditions      domain.ConditionStore
	markets         domain.MarketStore
	outcomes        domain.OutcomeStore
	defaultLiveness int64
	logger          *slog.Logger
}

// NewResolutionSource creates the resolutions-stream source. defaultLiveness
// is the challenge-window fallback in seconds when a record carries no
// parseable liveness of its own; zero disables the fallback.
func NewResolutionSource(
	fetcher ResolutionFetcher,
	conditions domain.ConditionStore,
	markets domain.MarketStore,
	outcomes domain.OutcomeStore,
	defaultLiveness int64,
	logger *slog.Logger,
) *ResolutionSource {
	return &ResolutionSource{
		fetcher:         fetcher,
		conditions:      conditions,
		markets:         markets,
		outcomes:        outcomes,
		defaultLiveness: defaultLiveness,
		logger:          logger,
	}
}

// Stream identifies the resolutions-stream cursor/lock row.
func (s *ResolutionSource) Stream() domain.Stream {
	return domain.Stream{Service: "goldsky", Subgraph: "resolutions"}
}

// FetchPage returns the next ordered page of resolution records.
func (s *ResolutionSource) FetchPage(ctx context.Context, cursor *domain.Cursor, limit int) ([]Record, error) {
	raws, err := s.fetcher.FetchResolutions(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		ts, err := strconv.ParseInt(raw.Timestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("resolution %s: unparseable stream timestamp %q", raw.ID, raw.Timestamp)
		}
		records = append(records, Record{
			Cursor: domain.Cursor{Timestamp: ts, ID: raw.ID},
			Raw:    raw,
		})
	}
	return records, nil
}

// Process applies one resolution record per the decode protocol.
func (s *ResolutionSource) Process(ctx context.Context, rec Record) Result {
	raw, ok := rec.Raw.(domain.RawResolution)
	if !ok {
		return failed(fmt.Errorf("unexpected record type %T", rec.Raw))
	}

	cond, market, found, err := s.lookupOwner(ctx, raw)
	if err != nil {
		return failed(err)
	}
	if !found {
		// This deployment does not track the question; not an error.
		return skipped()
	}

	lastUpdate, err := parseEpoch(raw.LastUpdated)
	if err != nil {
		return failed(fmt.Errorf("unparseable lastUpdateTimestamp %q", raw.LastUpdated))
	}

	status := domain.ParseResolutionStatus(raw.Status)
	resolved := status == domain.ResolutionResolved

	price, recognized := decodePayoutPrice(raw.Price)
	if price == nil && !recognized {
		// Values the protocol should never emit are indistinguishable from
		// pendency downstream; keep the raw value operator-visible.
		s.logger.Warn("unrecognized resolution price, treating as pending",
			slog.String("condition_id", cond.ID),
			slog.String("price", raw.Price),
		)
	}

	liveness := parseLiveness(raw.Liveness)
	deadline := computeDeadline(status, raw.Flagged, lastUpdate, liveness, market.NegRisk, s.defaultLiveness)
	if deadline == nil && !resolved && !raw.Flagged {
		s.logger.Warn("no deadline derivable for pending resolution",
			slog.String("condition_id", cond.ID),
			slog.String("status", string(status)),
		)
	}

	cond.Resolved = resolved
	cond.ResolutionStatus = status
	cond.Flagged = raw.Flagged
	cond.Paused = raw.Paused
	cond.LastUpdated = lastUpdate
	cond.Price = price
	cond.WasDisputed = raw.WasDisputed
	cond.Approved = raw.Approved
	cond.DeadlineAt = deadline
	cond.LivenessSeconds = liveness

	if err := s.conditions.UpdateResolution(ctx, cond); err != nil {
		return failed(err)
	}

	if err := s.updateMarketFlags(ctx, market, resolved); err != nil {
		return failed(err)
	}

	if resolved && price != nil {
		if err := s.writePayouts(ctx, cond.ID, *price); err != nil {
			return failed(err)
		}
	}

	return processed(market.EventID)
}

// lookupOwner finds the condition a resolution record belongs to, either by
// question id or, for neg-risk markets, by the market whose request id
// matches the record id.
func (s *ResolutionSource) lookupOwner(ctx context.Context, raw domain.RawResolution) (domain.Condition, domain.Market, bool, error) {
	cond, err := s.conditions.GetByQuestionID(ctx, raw.QuestionID)
	if err == nil {
		market, err := s.markets.GetByConditionID(ctx, cond.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Condition{}, domain.Market{}, false, fmt.Errorf("condition %s has no market", cond.ID)
			}
			return domain.Condition{}, domain.Market{}, false, err
		}
		return cond, market, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Condition{}, domain.Market{}, false, err
	}

	market, err := s.markets.GetByNegRiskRequestID(ctx, raw.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Condition{}, domain.Market{}, false, nil
		}
		return domain.Condition{}, domain.Market{}, false, err
	}

	cond, err = s.conditions.GetByID(ctx, market.ConditionID)
	if err != nil {
		return domain.Condition{}, domain.Market{}, false, err
	}
	return cond, market, true, nil
}

// updateMarketFlags writes isResolved/isActive only when the target state
// actually differs from what is stored, avoiding redundant writes under
// high-frequency re-sync.
func (s *ResolutionSource) updateMarketFlags(ctx context.Context, market domain.Market, resolved bool) error {
	targetActive := !resolved
	targetResolved := resolved

	if market.IsActive != nil && *market.IsActive == targetActive &&
		market.IsResolved != nil && *market.IsResolved == targetResolved {
		return nil
	}
	return s.markets.UpdateFlags(ctx, market.ConditionID, targetActive, targetResolved)
}

// writePayouts sets the two payout legs from the decoded price. Writes are
// conditional on the computed values differing from stored values; payouts
// are effectively written once.
func (s *ResolutionSource) writePayouts(ctx context.Context, conditionID string, price float64) error {
	stored, err := s.outcomes.ListByConditionID(ctx, conditionID)
	if err != nil {
		return err
	}

	byIndex := make(map[int]domain.Outcome, len(stored))
	for _, o := range stored {
		byIndex[o.Index] = o
	}

	payouts := []float64{clamp01(price), clamp01(1 - price)}
	for i, payout := range payouts {
		winning := payout > 0
		current, ok := byIndex[i]
		if !ok {
			return fmt.Errorf("market %s has no outcome leg %d", conditionID, i)
		}
		if current.Payout != nil && *current.Payout == payout && current.IsWinning == winning {
			continue
		}
		if err := s.outcomes.SetPayout(ctx, conditionID, i, payout, winning); err != nil {
			return err
		}
	}
	return nil
}

// parseLiveness parses the record's own liveness seconds; empty or
// malformed values yield nil so the configured default applies.
func parseLiveness(raw string) *int64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	v, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// Compile-time interface check.
var _ Source = (*ResolutionSource)(nil)
