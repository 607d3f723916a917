package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingSource struct {
	calls int
	err   error
}

func (f *failingSource) Name() string { return "failing" }

func (f *failingSource) Fetch(context.Context, string, types.Timeframe, time.Time, time.Time) ([]types.Bar, error) {
	f.calls++
	return nil, f.err
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	src := NewSyntheticSource(42)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(100 * time.Hour)

	a, err := src.Fetch(context.Background(), "ETHUSDT", types.Timeframe1h, start, end)
	require.NoError(t, err)
	b, err := src.Fetch(context.Background(), "ETHUSDT", types.Timeframe1h, start, end)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].Close.Equal(b[i].Close), "bar %d differs", i)
	}
	require.NoError(t, ValidateBars(a))
}

func TestSyntheticSourceVariesBySymbol(t *testing.T) {
	src := NewSyntheticSource(42)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)

	a, err := src.Fetch(context.Background(), "BTCUSDT", types.Timeframe1h, start, end)
	require.NoError(t, err)
	b, err := src.Fetch(context.Background(), "ETHUSDT", types.Timeframe1h, start, end)
	require.NoError(t, err)
	assert.False(t, a[5].Close.Equal(b[5].Close))
}

func TestSourceChainFallsThrough(t *testing.T) {
	failing := &failingSource{err: ErrUnavailable}
	chain := NewSourceChain(zap.NewNop(), failing, NewSyntheticSource(1))

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	bars, err := chain.Fetch(context.Background(), "BTCUSDT", types.Timeframe1h, start, start.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Len(t, bars, 6)
	// ErrUnavailable is permanent, so the first source is not retried.
	assert.Equal(t, 1, failing.calls)
}

func TestSourceChainRetriesTransientErrors(t *testing.T) {
	failing := &failingSource{err: errors.New("connection reset")}
	chain := NewSourceChain(zap.NewNop(), failing, NewSyntheticSource(1))
	chain.maxRetries = 2

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := chain.Fetch(context.Background(), "BTCUSDT", types.Timeframe1h, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, failing.calls) // initial attempt plus two retries
}

func TestSourceChainAllExhausted(t *testing.T) {
	chain := NewSourceChain(zap.NewNop(), &failingSource{err: ErrUnavailable})

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := chain.Fetch(context.Background(), "BTCUSDT", types.Timeframe1h, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrUnavailable)
}
