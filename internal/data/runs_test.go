package data

import (
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRun(symbol string, ts time.Time, status types.RunStatus) types.OptimizationRun {
	return types.OptimizationRun{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Symbol:    symbol,
		Timeframe: types.Timeframe1h,
		Objective: "sharpe",
		Status:    status,
		Metrics: types.PerformanceMetrics{
			TotalReturn: decimal.NewFromFloat(0.12),
			SharpeRatio: decimal.NewFromFloat(1.8),
		},
	}
}

func TestRunStoreLatestSkipsFailedRuns(t *testing.T) {
	rs, err := NewRunStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := newRun("BTCUSDT", base, types.RunStatusCompleted)
	failed := newRun("BTCUSDT", base.Add(time.Hour), types.RunStatusFailed)

	require.NoError(t, rs.SaveRun(completed))
	require.NoError(t, rs.SaveRun(failed))

	latest, ok, err := rs.Latest("BTCUSDT", types.Timeframe1h, "sharpe")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, completed.ID, latest.ID)
}

func TestRunStoreLatestEmpty(t *testing.T) {
	rs, err := NewRunStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	_, ok, err := rs.Latest("BTCUSDT", types.Timeframe1h, "sharpe")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParameterFileRoundTrip(t *testing.T) {
	rs, err := NewRunStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	pf := types.ParameterFile{
		Params: types.ParameterSet{
			"atr_length":     14,
			"atr_multiplier": 2.5,
			"risk_percent":   1.0,
		},
		Metrics: types.PerformanceMetrics{
			TotalReturn:  decimal.NewFromFloat(0.31),
			SharpeRatio:  decimal.NewFromFloat(2.1),
			MaxDrawdown:  decimal.NewFromFloat(0.08),
			WinRate:      decimal.NewFromFloat(0.58),
			ProfitFactor: decimal.NewFromFloat(1.9),
			TradeCount:   42,
		},
		Metadata: types.ParameterMetadata{
			Symbol:         "ETHUSDT",
			Timeframe:      types.Timeframe4h,
			Days:           90,
			Objective:      "sharpe",
			Timestamp:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			MaxEvaluations: 200,
			UseSentiment:   true,
		},
	}

	require.NoError(t, rs.SaveParameterFile(pf))

	loaded, err := rs.LoadParameterFile("ETHUSDT", types.Timeframe4h)
	require.NoError(t, err)
	assert.Equal(t, pf.Params, loaded.Params)
	assert.Equal(t, pf.Metadata.Symbol, loaded.Metadata.Symbol)
	assert.Equal(t, pf.Metadata.Timeframe, loaded.Metadata.Timeframe)
	assert.Equal(t, pf.Metadata.Days, loaded.Metadata.Days)
	assert.Equal(t, pf.Metadata.Objective, loaded.Metadata.Objective)
	assert.Equal(t, pf.Metadata.MaxEvaluations, loaded.Metadata.MaxEvaluations)
	assert.Equal(t, pf.Metadata.UseSentiment, loaded.Metadata.UseSentiment)
	assert.True(t, pf.Metadata.Timestamp.Equal(loaded.Metadata.Timestamp))
	assert.True(t, pf.Metrics.SharpeRatio.Equal(loaded.Metrics.SharpeRatio))
	assert.Equal(t, pf.Metrics.TradeCount, loaded.Metrics.TradeCount)
}

func TestDashboardSummary(t *testing.T) {
	rs, err := NewRunStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, rs.SaveRun(newRun("BTCUSDT", base, types.RunStatusCompleted)))
	require.NoError(t, rs.SaveRun(newRun("ETHUSDT", base, types.RunStatusCompleted)))

	require.NoError(t, rs.WriteDashboardSummary())
}
