package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-trader/internal/data"
	"github.com/atlas-desktop/adaptive-trader/internal/strategy"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func syntheticBars(t *testing.T, n int) []types.Bar {
	t.Helper()
	src := data.NewSyntheticSource(17)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := src.Fetch(context.Background(), "BTCUSDT", types.Timeframe1h, start, start.Add(time.Duration(n-1)*time.Hour))
	require.NoError(t, err)
	return bars
}

func activeParams() types.ParameterSet {
	return types.ParameterSet{
		strategy.ParamATRLength:     10,
		strategy.ParamMALength:      20,
		strategy.ParamATRMultiplier: 1.0,
		strategy.ParamStopLossPct:   2.0,
		strategy.ParamTakeProfitPct: 4.0,
	}
}

func TestRunIdempotent(t *testing.T) {
	engine := NewEngine(zap.NewNop(), decimal.NewFromInt(10000))
	bars := syntheticBars(t, 500)

	a, err := engine.Run(bars, activeParams())
	require.NoError(t, err)
	b, err := engine.Run(bars, activeParams())
	require.NoError(t, err)

	assert.True(t, a.Metrics.TotalReturn.Equal(b.Metrics.TotalReturn))
	assert.True(t, a.Metrics.SharpeRatio.Equal(b.Metrics.SharpeRatio))
	assert.Equal(t, a.Metrics.TradeCount, b.Metrics.TradeCount)
}

func TestZeroTradeRunProducesNeutralMetrics(t *testing.T) {
	engine := NewEngine(zap.NewNop(), decimal.NewFromInt(10000))
	bars := syntheticBars(t, 300)

	// An absurd band multiplier guarantees no entries.
	params := activeParams()
	params[strategy.ParamATRMultiplier] = 500

	res, err := engine.Run(bars, params)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Metrics.TradeCount)
	assert.True(t, res.Metrics.TotalReturn.IsZero())
	assert.True(t, res.Metrics.WinRate.IsZero())
	assert.True(t, res.Metrics.ProfitFactor.IsZero())
	assert.Len(t, res.EquityCurve, len(bars))
}

func TestMetricsConsistency(t *testing.T) {
	engine := NewEngine(zap.NewNop(), decimal.NewFromInt(10000))
	bars := syntheticBars(t, 800)

	res, err := engine.Run(bars, activeParams())
	require.NoError(t, err)

	m := res.Metrics
	assert.Equal(t, m.TradeCount, m.WinningTrades+m.LosingTrades)
	assert.True(t, m.MaxDrawdown.GreaterThanOrEqual(decimal.Zero))
	if m.TradeCount > 0 {
		winRate, _ := m.WinRate.Float64()
		assert.GreaterOrEqual(t, winRate, 0.0)
		assert.LessOrEqual(t, winRate, 1.0)
	}
}

func TestProfitFactorNoLossSentinel(t *testing.T) {
	now := time.Now()
	trades := []types.Trade{
		{PnL: decimal.NewFromInt(100), EntryTime: now, ExitTime: now},
		{PnL: decimal.NewFromInt(50), EntryTime: now, ExitTime: now},
	}
	curve := []types.EquityPoint{
		{Equity: decimal.NewFromInt(10000)},
		{Equity: decimal.NewFromInt(10150)},
	}

	m := computeMetrics(trades, curve, decimal.NewFromInt(10000), 8760)
	assert.True(t, m.ProfitFactor.Equal(types.NoLossProfitFactor))
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 0, m.LosingTrades)
}
