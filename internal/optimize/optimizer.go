package optimize

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/atlas-desktop/adaptive-trader/internal/backtest"
	"github.com/atlas-desktop/adaptive-trader/internal/strategy"
	"github.com/atlas-desktop/adaptive-trader/internal/workers"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Parameter defines one searchable dimension of the space.
type Parameter struct {
	Name string
	Min  float64
	Max  float64
	Step float64
}

// values expands the dimension into its grid points.
func (p Parameter) values() []float64 {
	var out []float64
	for v := p.Min; v <= p.Max+p.Step/1e6; v += p.Step {
		out = append(out, v)
	}
	return out
}

// DefaultSpace is the search space for the trend-band strategy.
func DefaultSpace() []Parameter {
	return []Parameter{
		{Name: strategy.ParamATRLength, Min: 7, Max: 21, Step: 7},
		{Name: strategy.ParamMALength, Min: 10, Max: 40, Step: 10},
		{Name: strategy.ParamATRMultiplier, Min: 1.0, Max: 3.0, Step: 0.5},
		{Name: strategy.ParamStopLossPct, Min: 1.0, Max: 3.0, Step: 1.0},
		{Name: strategy.ParamTakeProfitPct, Min: 2.0, Max: 6.0, Step: 2.0},
	}
}

// Config bounds the search.
type Config struct {
	MaxEvaluations       int
	HoldoutSplit         float64 // fraction of bars held out for validation
	Parallelism          int
	MonteCarloIterations int
}

// DefaultConfig returns the optimizer defaults.
func DefaultConfig() Config {
	return Config{
		MaxEvaluations:       200,
		HoldoutSplit:         0.3,
		Parallelism:          4,
		MonteCarloIterations: 1000,
	}
}

// Result is the outcome of one optimization.
type Result struct {
	BestParameters types.ParameterSet
	TrainMetrics   types.PerformanceMetrics
	HoldoutMetrics types.PerformanceMetrics
	HoldoutRatio   decimal.Decimal
	Grade          types.ValidationGrade
	MonteCarlo     types.MonteCarloSummary
	Evaluations    int
	Seed           int64
}

// Optimizer searches the parameter space with the backtest engine as its
// objective oracle. A given (bars, space, objective, seed) input always
// reproduces the same result.
type Optimizer struct {
	logger *zap.Logger
	engine *backtest.Engine
	cfg    Config
}

// New creates an optimizer over a backtest engine.
func New(logger *zap.Logger, engine *backtest.Engine, cfg Config) *Optimizer {
	return &Optimizer{
		logger: logger.Named("optimizer"),
		engine: engine,
		cfg:    cfg,
	}
}

// Run splits the series into train and held-out segments, searches the space
// on the train segment, then validates and grades the winner. Candidates are
// evaluated in parallel; cancellation is honored between evaluations and the
// input series is never modified.
func (o *Optimizer) Run(ctx context.Context, bars []types.Bar, space []Parameter, objective Objective, seed int64) (Result, error) {
	if len(bars) < 10 {
		return Result{}, fmt.Errorf("series too short for optimization: %d bars", len(bars))
	}
	if len(space) == 0 {
		return Result{}, fmt.Errorf("empty parameter space")
	}

	split := len(bars) - int(float64(len(bars))*o.cfg.HoldoutSplit)
	if split <= 0 || split >= len(bars) {
		return Result{}, fmt.Errorf("holdout split %.2f leaves no usable segments", o.cfg.HoldoutSplit)
	}
	trainBars, holdoutBars := bars[:split], bars[split:]

	candidates := o.candidates(space, seed)
	o.logger.Info("starting parameter search",
		zap.Int("candidates", len(candidates)),
		zap.Int("trainBars", len(trainBars)),
		zap.Int("holdoutBars", len(holdoutBars)),
		zap.String("objective", string(objective)))

	type evaluation struct {
		params types.ParameterSet
		result backtest.Result
		score  float64
	}

	var (
		mu        sync.Mutex
		best      *evaluation
		evaluated int
	)

	pool := workers.NewPool(o.logger, o.cfg.Parallelism, len(candidates))
	pool.Start(ctx)

	for _, params := range candidates {
		params := params
		task := workers.TaskFunc(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := o.engine.Run(trainBars, params)
			if err != nil {
				return fmt.Errorf("candidate evaluation failed: %w", err)
			}
			score := objective.Score(res.Metrics)

			mu.Lock()
			defer mu.Unlock()
			evaluated++
			if best == nil || score > best.score {
				best = &evaluation{params: params, result: res, score: score}
			}
			return nil
		})
		if err := pool.Submit(ctx, task); err != nil {
			break
		}
	}
	pool.Stop()

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("optimization cancelled: %w", err)
	}
	if best == nil {
		return Result{}, fmt.Errorf("no candidate could be evaluated")
	}

	holdoutRes, err := o.engine.Run(holdoutBars, best.params)
	if err != nil {
		return Result{}, fmt.Errorf("holdout validation failed: %w", err)
	}
	holdoutScore := objective.Score(holdoutRes.Metrics)

	ratio := holdoutRatio(best.score, holdoutScore)
	result := Result{
		BestParameters: best.params,
		TrainMetrics:   best.result.Metrics,
		HoldoutMetrics: holdoutRes.Metrics,
		HoldoutRatio:   decimal.NewFromFloat(ratio),
		Grade:          grade(holdoutScore, ratio),
		MonteCarlo: backtest.Resample(best.result.Trades,
			o.engine.InitialCapital(), o.cfg.MonteCarloIterations, seed),
		Evaluations: evaluated,
		Seed:        seed,
	}

	o.logger.Info("optimization finished",
		zap.Int("evaluations", evaluated),
		zap.Float64("trainScore", best.score),
		zap.Float64("holdoutScore", holdoutScore),
		zap.String("grade", string(result.Grade)))
	return result, nil
}

// candidates expands the full grid when it fits in the evaluation budget and
// falls back to seeded random sampling otherwise.
func (o *Optimizer) candidates(space []Parameter, seed int64) []types.ParameterSet {
	sorted := make([]Parameter, len(space))
	copy(sorted, space)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	gridSize := 1
	for _, p := range sorted {
		gridSize *= len(p.values())
		if gridSize > o.cfg.MaxEvaluations {
			break
		}
	}

	if gridSize <= o.cfg.MaxEvaluations {
		return expandGrid(sorted)
	}
	return sampleRandom(sorted, o.cfg.MaxEvaluations, seed)
}

func expandGrid(space []Parameter) []types.ParameterSet {
	sets := []types.ParameterSet{{}}
	for _, p := range space {
		var next []types.ParameterSet
		for _, set := range sets {
			for _, v := range p.values() {
				clone := set.Clone()
				clone[p.Name] = v
				next = append(next, clone)
			}
		}
		sets = next
	}
	return sets
}

func sampleRandom(space []Parameter, n int, seed int64) []types.ParameterSet {
	rng := rand.New(rand.NewSource(seed))
	sets := make([]types.ParameterSet, 0, n)
	for i := 0; i < n; i++ {
		set := make(types.ParameterSet, len(space))
		for _, p := range space {
			vals := p.values()
			set[p.Name] = vals[rng.Intn(len(vals))]
		}
		sets = append(sets, set)
	}
	return sets
}

// holdoutRatio relates held-out performance to in-sample performance.
func holdoutRatio(trainScore, holdoutScore float64) float64 {
	if trainScore == 0 {
		return 0
	}
	return holdoutScore / trainScore
}

// grade classifies how much of the in-sample edge survived validation.
func grade(holdoutScore, ratio float64) types.ValidationGrade {
	switch {
	case holdoutScore < 0:
		return types.GradePoor
	case ratio >= 0.7:
		return types.GradeExcellent
	case ratio >= 0.3:
		return types.GradeGood
	default:
		return types.GradeFair
	}
}
