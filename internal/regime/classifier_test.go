package regime

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubSource serves a fixed bar series regardless of the requested count
// beyond its length. When failAbove is set, requests for that many bars or
// more fail, which simulates history loss between retrains.
type stubSource struct {
	bars      []types.Bar
	failAbove int
}

func (s *stubSource) LastN(_ context.Context, _ string, _ types.Timeframe, n int) ([]types.Bar, error) {
	if s.failAbove > 0 && n >= s.failAbove {
		return nil, errors.New("history truncated")
	}
	if len(s.bars) > n {
		return s.bars[len(s.bars)-n:], nil
	}
	return s.bars, nil
}

// waveBars builds a series whose volatility cycles between calm and wild
// phases so k-means has distinct clusters to find.
func waveBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := range bars {
		// volatility alternates every 20 bars
		vol := 0.5
		if (i/20)%2 == 1 {
			vol = 5.0
		}
		swing := vol * (1 + 0.1*math.Sin(float64(i)))
		bars[i] = types.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: types.Timeframe1h,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromFloat(price),
			High:      decimal.NewFromFloat(price + swing),
			Low:       decimal.NewFromFloat(price - swing),
			Close:     decimal.NewFromFloat(price + swing/4),
			Volume:    decimal.NewFromInt(100),
		}
		price += swing / 4
	}
	return bars
}

func newTestClassifier(bars []types.Bar) *Classifier {
	cfg := DefaultConfig()
	cfg.Lookback = 60
	cfg.ATRLength = 14
	return NewClassifier(zap.NewNop(), cfg, &stubSource{bars: bars})
}

func TestTrainAndClassify(t *testing.T) {
	c := newTestClassifier(waveBars(120))

	_, err := c.Train(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, c.HasModel("BTCUSDT"))

	assignment, err := c.Current(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, assignment.Regime, 0)
	assert.Less(t, assignment.Regime, 3)
	assert.Greater(t, assignment.Confidence, 0.0)
	assert.LessOrEqual(t, assignment.Confidence, 1.0)
	assert.Contains(t, []Level{LevelLow, LevelMedium, LevelHigh}, assignment.Level)
}

func TestTrainDeterministic(t *testing.T) {
	bars := waveBars(120)

	a := newTestClassifier(bars)
	b := newTestClassifier(bars)

	_, err := a.Train(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	_, err = b.Train(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assignA, err := a.Current(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assignB, err := b.Current(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, assignA.Regime, assignB.Regime)
	assert.InDelta(t, assignA.Confidence, assignB.Confidence, 1e-12)
}

func TestInsufficientData(t *testing.T) {
	// 18 bars leaves 4 feature points, below the 2k=6 minimum.
	c := newTestClassifier(waveBars(18))

	_, err := c.Train(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.False(t, c.HasModel("BTCUSDT"))
}

func TestUntrainedSymbol(t *testing.T) {
	c := newTestClassifier(waveBars(120))

	_, err := c.Current(context.Background(), "ETHUSDT")
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestStaleModelSurvivesFailedRetrain(t *testing.T) {
	source := &stubSource{bars: waveBars(120)}
	cfg := DefaultConfig()
	cfg.ModelTTL = time.Minute
	c := NewClassifier(zap.NewNop(), cfg, source)

	_, err := c.Train(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// Expire the model, then make the full retrain window unavailable while
	// the short classification window still works.
	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	source.failAbove = 30

	assignment, err := c.Current(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.LessOrEqual(t, assignment.Regime, 2)
}

func TestDefaultModelTTLSpansLookbackWindow(t *testing.T) {
	cfg := DefaultConfig()
	// 60 bars at 1h: the model lives until its training window rolled over.
	assert.Equal(t, 60*time.Hour, cfg.ModelTTL)
}

func TestLevelOrdering(t *testing.T) {
	centroids := []float64{0.01, 0.05, 0.2}

	low, _ := classify(centroids, 0.011)
	high, _ := classify(centroids, 0.19)
	assert.Equal(t, 0, low)
	assert.Equal(t, 2, high)
	assert.Equal(t, LevelLow, levelFor(low, 3))
	assert.Equal(t, LevelHigh, levelFor(high, 3))
}
