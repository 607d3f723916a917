package data

import (
	"fmt"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
)

// ValidateBars checks a timestamp-ordered series for the invariants the rest
// of the pipeline assumes: strictly increasing timestamps and positive prices.
func ValidateBars(bars []types.Bar) error {
	for i, b := range bars {
		if b.Open.LessThanOrEqual(decimal.Zero) || b.High.LessThanOrEqual(decimal.Zero) ||
			b.Low.LessThanOrEqual(decimal.Zero) || b.Close.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("bar %d (%s): non-positive price", i, b.Timestamp.Format("2006-01-02T15:04:05Z"))
		}
		if b.High.LessThan(b.Low) {
			return fmt.Errorf("bar %d (%s): high below low", i, b.Timestamp.Format("2006-01-02T15:04:05Z"))
		}
		if i > 0 {
			prev := bars[i-1]
			if !b.Timestamp.After(prev.Timestamp) {
				return fmt.Errorf("bar %d (%s): timestamp not after previous bar", i, b.Timestamp.Format("2006-01-02T15:04:05Z"))
			}
		}
	}
	return nil
}

// Dedupe drops bars that repeat the previous timestamp, keeping the first
// occurrence. Input must already be sorted by timestamp.
func Dedupe(bars []types.Bar) []types.Bar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if b.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, b)
	}
	return out
}
