package data

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBars(t *testing.T, n int) []types.Bar {
	t.Helper()
	src := NewSyntheticSource(7)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := src.Fetch(context.Background(), "BTCUSDT", types.Timeframe1h, start, start.Add(time.Duration(n-1)*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, n)
	return bars
}

func TestStoreSaveAndLoad(t *testing.T) {
	store, err := NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	bars := testBars(t, 48)
	require.NoError(t, store.SaveBars("BTCUSDT", types.Timeframe1h, bars))

	loaded, err := store.LastN(context.Background(), "BTCUSDT", types.Timeframe1h, 10)
	require.NoError(t, err)
	assert.Len(t, loaded, 10)
	assert.True(t, loaded[9].Timestamp.Equal(bars[47].Timestamp))

	windowed, err := store.Bars(context.Background(), "BTCUSDT", types.Timeframe1h,
		bars[10].Timestamp, bars[19].Timestamp)
	require.NoError(t, err)
	assert.Len(t, windowed, 10)
}

func TestStoreMissingSeries(t *testing.T) {
	store, err := NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	_, err = store.LastN(context.Background(), "NOPE", types.Timeframe1h, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStoreRejectsInvalidSeries(t *testing.T) {
	store, err := NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	bars := testBars(t, 5)
	bars[2].Timestamp = bars[1].Timestamp // duplicate
	err = store.SaveBars("BTCUSDT", types.Timeframe1h, bars)
	assert.Error(t, err)
}

func TestValidateBars(t *testing.T) {
	bars := testBars(t, 10)
	require.NoError(t, ValidateBars(bars))

	bad := make([]types.Bar, len(bars))
	copy(bad, bars)
	bad[3].Close = decimal.NewFromInt(-1)
	assert.Error(t, ValidateBars(bad))
}

func TestDedupe(t *testing.T) {
	bars := testBars(t, 5)
	dup := append([]types.Bar{}, bars[0], bars[0], bars[1], bars[2])
	out := Dedupe(dup)
	assert.Len(t, out, 3)
}
