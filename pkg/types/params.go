// Package types provides optimization result types and the parameter file contract.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParameterSet is a named parameter map for a strategy. A set attached to an
// OptimizationRun is immutable; Clone before modifying.
type ParameterSet map[string]float64

// Clone returns an independent copy of the set.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Get returns the named parameter or the fallback when absent.
func (p ParameterSet) Get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return fallback
}

// NoLossProfitFactor is the sentinel reported when a run has gross profit but
// zero gross loss, where the profit factor would otherwise divide by zero.
var NoLossProfitFactor = decimal.NewFromInt(1000)

// PerformanceMetrics describes performance over one evaluation window.
// JSON keys match the parameter file contract.
type PerformanceMetrics struct {
	TotalReturn      decimal.Decimal `json:"return"`
	AnnualizedReturn decimal.Decimal `json:"annualizedReturn"`
	SharpeRatio      decimal.Decimal `json:"sharpe"`
	MaxDrawdown      decimal.Decimal `json:"drawdown"`
	WinRate          decimal.Decimal `json:"winRate"`
	ProfitFactor     decimal.Decimal `json:"profitFactor"`
	TradeCount       int             `json:"tradeCount"`
	WinningTrades    int             `json:"winningTrades"`
	LosingTrades     int             `json:"losingTrades"`
	GrossProfit      decimal.Decimal `json:"grossProfit"`
	GrossLoss        decimal.Decimal `json:"grossLoss"`
}

// MonteCarloSummary holds percentile bands from bootstrap resampling of a
// trade sequence.
type MonteCarloSummary struct {
	Iterations      int             `json:"iterations"`
	MedianReturn    decimal.Decimal `json:"medianReturn"`
	P5Return        decimal.Decimal `json:"p5Return"`
	P25Return       decimal.Decimal `json:"p25Return"`
	P75Return       decimal.Decimal `json:"p75Return"`
	P95Return       decimal.Decimal `json:"p95Return"`
	MaxDrawdownP95  decimal.Decimal `json:"maxDrawdownP95"`
	ProbabilityLoss decimal.Decimal `json:"probabilityLoss"`
}

// ValidationGrade classifies held-out performance relative to in-sample.
type ValidationGrade string

const (
	GradeExcellent ValidationGrade = "excellent" // >= 70% retained
	GradeGood      ValidationGrade = "good"      // 30-70%
	GradeFair      ValidationGrade = "fair"      // 0-30%
	GradePoor      ValidationGrade = "poor"      // negative held-out score
)

// RunStatus marks whether an optimization run completed.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// OptimizationRun records one optimization for a (symbol, timeframe,
// objective) tuple. Runs are append-only; new runs supersede old ones
// logically but history is never overwritten.
type OptimizationRun struct {
	ID             string             `json:"id"`
	Timestamp      time.Time          `json:"timestamp"`
	Symbol         string             `json:"symbol"`
	Timeframe      Timeframe          `json:"timeframe"`
	Objective      string             `json:"objective"`
	Status         RunStatus          `json:"status"`
	Error          string             `json:"error,omitempty"`
	BestParameters ParameterSet       `json:"bestParameters,omitempty"`
	Metrics        PerformanceMetrics `json:"metrics"`
	HoldoutMetrics PerformanceMetrics `json:"holdoutMetrics"`
	HoldoutRatio   decimal.Decimal    `json:"holdoutRatio"`
	Grade          ValidationGrade    `json:"grade,omitempty"`
	MonteCarlo     MonteCarloSummary  `json:"monteCarlo"`
	Evaluations    int                `json:"evaluations"`
	Seed           int64              `json:"seed"`
}

// ParameterFile is the on-disk contract consumed by the live path and the
// dashboard collaborator.
type ParameterFile struct {
	Params   ParameterSet       `json:"params"`
	Metrics  PerformanceMetrics `json:"metrics"`
	Metadata ParameterMetadata  `json:"metadata"`
}

// ParameterMetadata describes the run that produced a parameter file.
type ParameterMetadata struct {
	Symbol         string    `json:"symbol"`
	Timeframe      Timeframe `json:"timeframe"`
	Days           int       `json:"days"`
	Objective      string    `json:"objective"`
	Timestamp      time.Time `json:"timestamp"`
	MaxEvaluations int       `json:"maxEvaluations"`
	UseSentiment   bool      `json:"useSentiment,omitempty"`
}
