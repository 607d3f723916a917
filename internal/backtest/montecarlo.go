package backtest

import (
	"math/rand"
	"sort"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
)

// Resample bootstraps the trade sequence with replacement and reports return
// percentile bands, worst-drawdown P95, and the probability of a losing
// sequence. A fixed seed makes the summary reproducible.
func Resample(trades []types.Trade, initialCapital decimal.Decimal, iterations int, seed int64) types.MonteCarloSummary {
	summary := types.MonteCarloSummary{Iterations: iterations}
	if len(trades) == 0 || iterations <= 0 {
		return summary
	}

	capital, _ := initialCapital.Float64()
	pnls := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i], _ = t.PnL.Float64()
	}

	rng := rand.New(rand.NewSource(seed))
	finalReturns := make([]float64, iterations)
	maxDrawdowns := make([]float64, iterations)
	losses := 0

	for it := 0; it < iterations; it++ {
		equity := capital
		peak := capital
		worstDD := 0.0
		for range pnls {
			equity += pnls[rng.Intn(len(pnls))]
			if equity > peak {
				peak = equity
			}
			if peak > 0 {
				if dd := (peak - equity) / peak; dd > worstDD {
					worstDD = dd
				}
			}
		}

		finalReturns[it] = equity/capital - 1
		maxDrawdowns[it] = worstDD
		if equity < capital {
			losses++
		}
	}

	sort.Float64s(finalReturns)
	sort.Float64s(maxDrawdowns)

	summary.P5Return = decimal.NewFromFloat(percentile(finalReturns, 0.05))
	summary.P25Return = decimal.NewFromFloat(percentile(finalReturns, 0.25))
	summary.MedianReturn = decimal.NewFromFloat(percentile(finalReturns, 0.50))
	summary.P75Return = decimal.NewFromFloat(percentile(finalReturns, 0.75))
	summary.P95Return = decimal.NewFromFloat(percentile(finalReturns, 0.95))
	summary.MaxDrawdownP95 = decimal.NewFromFloat(percentile(maxDrawdowns, 0.95))
	summary.ProbabilityLoss = decimal.NewFromFloat(float64(losses) / float64(iterations))
	return summary
}

// percentile reads from a sorted slice, interpolating linearly between the
// neighboring ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
