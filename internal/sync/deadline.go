package sync

import (
	"time"

	"github.com/clearfork/marketsync/internal/domain"
)

// Safety-period hold applied while a resolution is flagged for review. The
// neg-risk value is a distinct protocol parameter even though both are
// currently one hour.
const (
	safetyPeriod        = 3600 * time.Second
	negRiskSafetyPeriod = 3600 * time.Second
)

// computeDeadline derives when a pending resolution becomes actionable.
//
// Precedence: a resolved market has no deadline; a flag is an active safety
// hold and overrides any liveness-based window; otherwise a pending status
// runs out its challenge window. With no parseable liveness and no configured
// default there is no deadline at all.
func computeDeadline(
	status domain.ResolutionStatus,
	flagged bool,
	lastUpdate time.Time,
	liveness *int64,
	negRisk bool,
	defaultLiveness int64,
) *time.Time {
	if status == domain.ResolutionResolved {
		return nil
	}

	if flagged {
		hold := safetyPeriod
		if negRisk {
			hold = negRiskSafetyPeriod
		}
		d := lastUpdate.Add(hold)
		return &d
	}

	// Unknown statuses are treated as posed-like: still pending, still
	// running a challenge window.
	effective := defaultLiveness
	if liveness != nil && *liveness > 0 {
		effective = *liveness
	}
	if effective <= 0 {
		return nil
	}
	d := lastUpdate.Add(time.Duration(effective) * time.Second)
	return &d
}
