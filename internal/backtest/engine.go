// Package backtest evaluates parameter sets over historical bars and judges
// robustness with bootstrap resampling.
package backtest

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/adaptive-trader/internal/strategy"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result bundles a single backtest evaluation.
type Result struct {
	Metrics     types.PerformanceMetrics
	Trades      []types.Trade
	EquityCurve []types.EquityPoint
}

// Engine runs the strategy and derives performance metrics. The engine does
// not care where the bars came from; synthetic series evaluate identically to
// stored history.
type Engine struct {
	logger         *zap.Logger
	runner         *strategy.Runner
	initialCapital decimal.Decimal
}

// NewEngine creates a backtest engine with the given starting capital.
func NewEngine(logger *zap.Logger, initialCapital decimal.Decimal) *Engine {
	return &Engine{
		logger:         logger.Named("backtest"),
		runner:         strategy.NewRunner(),
		initialCapital: initialCapital,
	}
}

// InitialCapital returns the starting capital used for every run.
func (e *Engine) InitialCapital() decimal.Decimal {
	return e.initialCapital
}

// Run backtests one parameter set over the series. A run that produces no
// trades reports neutral metrics rather than an error.
func (e *Engine) Run(bars []types.Bar, params types.ParameterSet) (Result, error) {
	if len(bars) == 0 {
		return Result{}, fmt.Errorf("empty bar series")
	}

	trades, curve, err := e.runner.Run(bars, params, e.initialCapital)
	if err != nil {
		return Result{}, fmt.Errorf("strategy run failed: %w", err)
	}

	tf := bars[0].Timeframe
	metrics := computeMetrics(trades, curve, e.initialCapital, tf.PeriodsPerYear())
	return Result{Metrics: metrics, Trades: trades, EquityCurve: curve}, nil
}

func computeMetrics(trades []types.Trade, curve []types.EquityPoint, initialCapital decimal.Decimal, periodsPerYear float64) types.PerformanceMetrics {
	m := types.PerformanceMetrics{TradeCount: len(trades)}
	if len(curve) == 0 {
		return m
	}

	final := curve[len(curve)-1].Equity
	m.TotalReturn = final.Sub(initialCapital).Div(initialCapital)

	totalReturn, _ := m.TotalReturn.Float64()
	years := float64(len(curve)) / periodsPerYear
	if years > 0 && totalReturn > -1 {
		annualized := math.Pow(1+totalReturn, 1/years) - 1
		m.AnnualizedReturn = decimal.NewFromFloat(annualized)
	}

	m.SharpeRatio = decimal.NewFromFloat(sharpe(curve, periodsPerYear))

	maxDD := decimal.Zero
	for _, p := range curve {
		if p.Drawdown.GreaterThan(maxDD) {
			maxDD = p.Drawdown
		}
	}
	m.MaxDrawdown = maxDD

	for _, t := range trades {
		if t.PnL.GreaterThan(decimal.Zero) {
			m.WinningTrades++
			m.GrossProfit = m.GrossProfit.Add(t.PnL)
		} else {
			m.LosingTrades++
			m.GrossLoss = m.GrossLoss.Add(t.PnL.Abs())
		}
	}

	if len(trades) > 0 {
		m.WinRate = decimal.NewFromInt(int64(m.WinningTrades)).Div(decimal.NewFromInt(int64(len(trades))))
	}

	switch {
	case m.GrossLoss.GreaterThan(decimal.Zero):
		m.ProfitFactor = m.GrossProfit.Div(m.GrossLoss)
	case m.GrossProfit.GreaterThan(decimal.Zero):
		m.ProfitFactor = types.NoLossProfitFactor
	}

	return m
}

// sharpe annualizes the mean/stddev of per-bar equity returns.
func sharpe(curve []types.EquityPoint, periodsPerYear float64) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Equity.Float64()
		cur, _ := curve[i].Equity.Float64()
		if prev > 0 {
			returns = append(returns, cur/prev-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	return mean / std * math.Sqrt(periodsPerYear)
}
