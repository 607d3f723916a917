// Package regime classifies per-symbol volatility regimes with a
// deterministic 1-D k-means over a rolling volatility feature.
package regime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrNoModel is returned when a symbol has never been trained.
	ErrNoModel = errors.New("no regime model for symbol")
	// ErrInsufficientData is returned when training has too few feature points.
	ErrInsufficientData = errors.New("insufficient data to train regime model")
)

// Level labels a regime by its volatility band.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Assignment is the classification of a symbol's current bar window.
type Assignment struct {
	Regime     int     // ordinal regime index, 0 = lowest volatility
	Level      Level   // LOW/MEDIUM/HIGH for k=3, ordinal labels otherwise
	Confidence float64 // 0..1, distance-based separation from the runner-up centroid
	Feature    float64 // the normalized volatility value that was classified
}

// BarSource supplies recent bars for feature extraction.
type BarSource interface {
	LastN(ctx context.Context, symbol string, tf types.Timeframe, n int) ([]types.Bar, error)
}

// Config controls the classifier.
type Config struct {
	Timeframe types.Timeframe
	Lookback  int           // feature window length in bars
	Clusters  int           // k
	ATRLength int           // true-range smoothing length
	ModelTTL  time.Duration // model age before retraining
	MaxIters  int           // k-means iteration cap
}

// DefaultConfig returns the classifier defaults. The model TTL matches the
// lookback window, so a model retrains once the window it was fitted on has
// fully rolled over.
func DefaultConfig() Config {
	cfg := Config{
		Timeframe: types.Timeframe1h,
		Lookback:  60,
		Clusters:  3,
		ATRLength: 14,
		MaxIters:  100,
	}
	cfg.ModelTTL = time.Duration(cfg.Lookback) * cfg.Timeframe.Duration()
	return cfg
}

type model struct {
	centroids []float64 // ascending
	trainedAt time.Time
	samples   int
}

// Classifier trains and serves per-symbol regime models. The model cache is
// owned by the classifier instance; models expire after ModelTTL and are
// retrained lazily, keeping the previous model active if retraining fails.
type Classifier struct {
	mu     sync.RWMutex
	logger *zap.Logger
	cfg    Config
	source BarSource
	models map[string]*model
	now    func() time.Time
}

// NewClassifier creates a classifier over the given bar source.
func NewClassifier(logger *zap.Logger, cfg Config, source BarSource) *Classifier {
	return &Classifier{
		logger: logger.Named("regime"),
		cfg:    cfg,
		source: source,
		models: make(map[string]*model),
		now:    time.Now,
	}
}

// Train fits a fresh model for the symbol and returns the regime of the most
// recent bar window.
func (c *Classifier) Train(ctx context.Context, symbol string) (int, error) {
	m, features, err := c.fit(ctx, symbol)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.models[symbol] = m
	c.mu.Unlock()

	regime, _ := classify(m.centroids, features[len(features)-1])
	c.logger.Info("regime model trained",
		zap.String("symbol", symbol),
		zap.Int("samples", m.samples),
		zap.Float64s("centroids", m.centroids),
		zap.Int("currentRegime", regime))
	return regime, nil
}

// Current classifies the symbol's latest bar window against its model,
// retraining first when the model has expired. A symbol that was never
// trained returns ErrNoModel; the classifier never guesses a default regime.
func (c *Classifier) Current(ctx context.Context, symbol string) (Assignment, error) {
	c.mu.RLock()
	m, ok := c.models[symbol]
	c.mu.RUnlock()
	if !ok {
		return Assignment{}, fmt.Errorf("%w: %s", ErrNoModel, symbol)
	}

	if c.now().Sub(m.trainedAt) > c.cfg.ModelTTL {
		fresh, _, err := c.fit(ctx, symbol)
		if err != nil {
			// Stale model stays in service until a retrain succeeds.
			c.logger.Warn("regime retrain failed, serving stale model",
				zap.String("symbol", symbol), zap.Error(err))
		} else {
			c.mu.Lock()
			c.models[symbol] = fresh
			c.mu.Unlock()
			m = fresh
		}
	}

	feature, err := c.latestFeature(ctx, symbol)
	if err != nil {
		return Assignment{}, err
	}

	regime, confidence := classify(m.centroids, feature)
	return Assignment{
		Regime:     regime,
		Level:      levelFor(regime, len(m.centroids)),
		Confidence: confidence,
		Feature:    feature,
	}, nil
}

// HasModel reports whether a symbol has an active model.
func (c *Classifier) HasModel(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[symbol]
	return ok
}

func (c *Classifier) fit(ctx context.Context, symbol string) (*model, []float64, error) {
	features, err := c.features(ctx, symbol, c.cfg.Lookback)
	if err != nil {
		return nil, nil, err
	}
	if len(features) < 2*c.cfg.Clusters {
		return nil, nil, fmt.Errorf("%w: %d feature points, need %d",
			ErrInsufficientData, len(features), 2*c.cfg.Clusters)
	}

	centroids := kmeans1D(features, c.cfg.Clusters, c.cfg.MaxIters)
	return &model{
		centroids: centroids,
		trainedAt: c.now(),
		samples:   len(features),
	}, features, nil
}

// features computes the normalized ATR series: average true range over
// ATRLength bars divided by the closing price, one value per bar after
// warmup.
func (c *Classifier) features(ctx context.Context, symbol string, count int) ([]float64, error) {
	need := count + c.cfg.ATRLength
	bars, err := c.source.LastN(ctx, symbol, c.cfg.Timeframe, need)
	if err != nil {
		return nil, fmt.Errorf("failed to load bars for %s: %w", symbol, err)
	}
	if len(bars) <= c.cfg.ATRLength {
		return nil, fmt.Errorf("%w: %d bars, need more than %d", ErrInsufficientData, len(bars), c.cfg.ATRLength)
	}

	trs := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		high, _ := bars[i].High.Float64()
		low, _ := bars[i].Low.Float64()
		prevClose, _ := bars[i-1].Close.Float64()
		trs[i] = math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	var features []float64
	for i := c.cfg.ATRLength; i < len(bars); i++ {
		var sum float64
		for j := i - c.cfg.ATRLength + 1; j <= i; j++ {
			sum += trs[j]
		}
		atr := sum / float64(c.cfg.ATRLength)
		close, _ := bars[i].Close.Float64()
		if close > 0 {
			features = append(features, atr/close)
		}
	}
	return features, nil
}

func (c *Classifier) latestFeature(ctx context.Context, symbol string) (float64, error) {
	features, err := c.features(ctx, symbol, 1)
	if err != nil {
		return 0, err
	}
	return features[len(features)-1], nil
}

// kmeans1D runs Lloyd's algorithm on scalar data with quantile-seeded
// centroids, which makes the result deterministic for a given input.
func kmeans1D(values []float64, k, maxIters int) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	centroids := make([]float64, k)
	for i := 0; i < k; i++ {
		q := (float64(i) + 0.5) / float64(k)
		centroids[i] = sorted[int(q*float64(len(sorted)-1))]
	}

	assign := make([]int, len(values))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, v := range values {
			best, _ := classify(centroids, v)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([]float64, k)
		counts := make([]int, k)
		for i, v := range values {
			sums[assign[i]] += v
			counts[assign[i]]++
		}
		for i := 0; i < k; i++ {
			if counts[i] > 0 {
				centroids[i] = sums[i] / float64(counts[i])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	sort.Float64s(centroids)
	return centroids
}

// classify returns the nearest centroid index and a confidence derived from
// the separation between the nearest and next-nearest centroid distances.
func classify(centroids []float64, v float64) (int, float64) {
	best, second := -1, -1
	bestD, secondD := math.MaxFloat64, math.MaxFloat64
	for i, c := range centroids {
		d := math.Abs(v - c)
		if d < bestD {
			second, secondD = best, bestD
			best, bestD = i, d
		} else if d < secondD {
			second, secondD = i, d
		}
	}
	if second < 0 || bestD+secondD == 0 {
		return best, 1.0
	}
	return best, secondD / (bestD + secondD)
}

func levelFor(regime, k int) Level {
	if k == 3 {
		switch regime {
		case 0:
			return LevelLow
		case 1:
			return LevelMedium
		default:
			return LevelHigh
		}
	}
	return Level(fmt.Sprintf("R%d", regime+1))
}
