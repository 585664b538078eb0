package sync

import (
	"math/big"
	"strings"
)

// The oracle adapter reports proposed prices as 1e18-scale fixed-point
// integers. Only three values are legitimate final payouts; everything else
// is either the "ignore" sentinel or not yet decodable.
var (
	priceIgnoreSentinel = big.NewInt(69)
	priceOne            = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	priceHalf           = new(big.Int).Div(priceOne, big.NewInt(2))
)

// decodePayoutPrice maps a raw fixed-point price string to a payout ratio.
// It returns (nil, true) for the sentinel and negative values (known
// "unresolved" markers) and (nil, false) for values the protocol should never
// emit, so the caller can surface the anomaly.
func decodePayoutPrice(raw string) (*float64, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, false
	}

	if v.Cmp(priceIgnoreSentinel) == 0 || v.Sign() < 0 {
		return nil, true
	}

	switch {
	case v.Sign() == 0:
		return ptr(0.0), true
	case v.Cmp(priceOne) == 0:
		return ptr(1.0), true
	case v.Cmp(priceHalf) == 0:
		return ptr(0.5), true
	}
	return nil, false
}

// clamp01 bounds a payout ratio to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func ptr[T any](v T) *T { return &v }
