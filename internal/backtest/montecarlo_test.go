package backtest

import (
	"testing"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcTrades(pnls ...float64) []types.Trade {
	out := make([]types.Trade, len(pnls))
	for i, p := range pnls {
		out[i] = types.Trade{PnL: decimal.NewFromFloat(p)}
	}
	return out
}

func TestResampleReproducible(t *testing.T) {
	trades := mcTrades(120, -80, 200, -50, 90, -110, 60, 40)
	capital := decimal.NewFromInt(10000)

	a := Resample(trades, capital, 500, 7)
	b := Resample(trades, capital, 500, 7)

	assert.True(t, a.MedianReturn.Equal(b.MedianReturn))
	assert.True(t, a.P5Return.Equal(b.P5Return))
	assert.True(t, a.MaxDrawdownP95.Equal(b.MaxDrawdownP95))
}

func TestResamplePercentileOrdering(t *testing.T) {
	trades := mcTrades(120, -80, 200, -50, 90, -110, 60, 40)
	s := Resample(trades, decimal.NewFromInt(10000), 1000, 3)

	require.Equal(t, 1000, s.Iterations)
	assert.True(t, s.P5Return.LessThanOrEqual(s.P25Return))
	assert.True(t, s.P25Return.LessThanOrEqual(s.MedianReturn))
	assert.True(t, s.MedianReturn.LessThanOrEqual(s.P75Return))
	assert.True(t, s.P75Return.LessThanOrEqual(s.P95Return))

	probLoss, _ := s.ProbabilityLoss.Float64()
	assert.GreaterOrEqual(t, probLoss, 0.0)
	assert.LessOrEqual(t, probLoss, 1.0)
}

func TestResampleAllWinners(t *testing.T) {
	trades := mcTrades(100, 50, 75)
	s := Resample(trades, decimal.NewFromInt(10000), 200, 1)

	assert.True(t, s.ProbabilityLoss.IsZero())
	assert.True(t, s.P5Return.GreaterThan(decimal.Zero))
}

func TestResampleEmptyTrades(t *testing.T) {
	s := Resample(nil, decimal.NewFromInt(10000), 100, 1)
	assert.Equal(t, 100, s.Iterations)
	assert.True(t, s.MedianReturn.IsZero())
}
