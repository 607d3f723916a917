// Package sizing scales base position sizes by volatility regime and recent
// per-symbol performance.
package sizing

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-desktop/adaptive-trader/internal/regime"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegimeSource provides the current volatility assignment for a symbol.
type RegimeSource interface {
	Current(ctx context.Context, symbol string) (regime.Assignment, error)
}

// TradeHistory exposes recent realized outcomes for an account/symbol pair.
type TradeHistory interface {
	RecentOutcomes(accountID, symbol string, n int) []types.TradeOutcome
}

// Config bounds the sizer's adjustments.
type Config struct {
	BaseRiskPercent float64 // baseline risk per trade
	MinRiskPercent  float64 // floor for the performance adjustment
	MaxRiskPercent  float64 // cap for the performance adjustment
	MinRegimeFactor float64 // floor for the regime adjustment
	MaxRegimeFactor float64 // cap for the regime adjustment
	MaxPositionMult float64 // hard multiplier cap on the final size
	HistoryWindow   int     // outcomes considered for the performance factor
}

// DefaultConfig returns the sizer defaults.
func DefaultConfig() Config {
	return Config{
		BaseRiskPercent: 1.0,
		MinRiskPercent:  0.25,
		MaxRiskPercent:  2.0,
		MinRegimeFactor: 0.5,
		MaxRegimeFactor: 1.5,
		MaxPositionMult: 2.0,
		HistoryWindow:   20,
	}
}

// Request asks for a sized position. Price and StopLoss are optional and
// only inform the reported risk, not the factors.
type Request struct {
	Symbol    string
	AccountID string
	BaseSize  decimal.Decimal
	Price     decimal.Decimal
	StopLoss  decimal.Decimal
}

// Factor is one multiplicative adjustment with its rationale.
type Factor struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Rationale string  `json:"rationale"`
}

// Result carries the final size and the full factor breakdown.
type Result struct {
	Size        decimal.Decimal `json:"size"`
	RiskPercent float64         `json:"riskPercent"`
	Factors     []Factor        `json:"factors"`
}

// Sizer computes position sizes. It never errors on missing regime data; a
// symbol without a model gets a neutral regime factor.
type Sizer struct {
	logger  *zap.Logger
	cfg     Config
	regimes RegimeSource
	history TradeHistory
}

// NewSizer creates a position sizer.
func NewSizer(logger *zap.Logger, cfg Config, regimes RegimeSource, history TradeHistory) *Sizer {
	return &Sizer{
		logger:  logger.Named("sizing"),
		cfg:     cfg,
		regimes: regimes,
		history: history,
	}
}

// Size returns the adjusted position size for the request.
func (s *Sizer) Size(ctx context.Context, req Request) (Result, error) {
	if req.BaseSize.LessThanOrEqual(decimal.Zero) {
		return Result{}, fmt.Errorf("base size must be positive, got %s", req.BaseSize)
	}

	regimeFactor := s.regimeFactor(ctx, req.Symbol)
	perfFactor := s.performanceFactor(req.AccountID, req.Symbol)

	// The combined multiplier stays within [minRiskPercent/baseRiskPercent,
	// maxPositionMult] so the output never undercuts the risk floor.
	combined := clamp(regimeFactor.Value*perfFactor.Value,
		s.cfg.MinRiskPercent/s.cfg.BaseRiskPercent, s.cfg.MaxPositionMult)

	size := req.BaseSize.Mul(decimal.NewFromFloat(combined))
	riskPercent := s.cfg.BaseRiskPercent * perfFactor.Value

	s.logger.Debug("position sized",
		zap.String("symbol", req.Symbol),
		zap.String("account", req.AccountID),
		zap.Float64("regimeFactor", regimeFactor.Value),
		zap.Float64("performanceFactor", perfFactor.Value),
		zap.String("size", size.String()))

	return Result{
		Size:        size,
		RiskPercent: riskPercent,
		Factors:     []Factor{regimeFactor, perfFactor},
	}, nil
}

// regimeFactor scales up in LOW volatility and down in HIGH, proportional to
// classification confidence. Clamped to the configured factor band.
func (s *Sizer) regimeFactor(ctx context.Context, symbol string) Factor {
	assignment, err := s.regimes.Current(ctx, symbol)
	if err != nil {
		if !errors.Is(err, regime.ErrNoModel) {
			s.logger.Warn("regime lookup failed, using neutral factor",
				zap.String("symbol", symbol), zap.Error(err))
		}
		return Factor{Name: "regime", Value: 1.0, Rationale: "no regime data, neutral"}
	}

	var value float64
	switch assignment.Level {
	case regime.LevelLow:
		value = 1.0 + 0.25*assignment.Confidence
	case regime.LevelHigh:
		value = 1.0 - 0.35*assignment.Confidence
	default:
		value = 1.0
	}
	value = clamp(value, s.cfg.MinRegimeFactor, s.cfg.MaxRegimeFactor)

	return Factor{
		Name:  "regime",
		Value: value,
		Rationale: fmt.Sprintf("%s volatility, confidence %.2f",
			assignment.Level, assignment.Confidence),
	}
}

// performanceFactor adjusts risk by the recent win/loss streak and realized
// P&L for this account/symbol. The implied risk percent stays within
// [MinRiskPercent, MaxRiskPercent].
func (s *Sizer) performanceFactor(accountID, symbol string) Factor {
	outcomes := s.history.RecentOutcomes(accountID, symbol, s.cfg.HistoryWindow)
	if len(outcomes) == 0 {
		return Factor{Name: "performance", Value: 1.0, Rationale: "no trade history, neutral"}
	}

	streak := 0
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].Win() {
			if streak < 0 {
				break
			}
			streak++
		} else {
			if streak > 0 {
				break
			}
			streak--
		}
	}

	netPnL := decimal.Zero
	for _, o := range outcomes {
		netPnL = netPnL.Add(o.PnL)
	}

	risk := s.cfg.BaseRiskPercent
	switch {
	case streak >= 3:
		risk *= 1.0 + 0.1*float64(streak-2)
	case streak <= -2:
		risk *= 1.0 - 0.15*float64(-streak-1)
	}
	if netPnL.LessThan(decimal.Zero) {
		risk *= 0.85
	}
	risk = clamp(risk, s.cfg.MinRiskPercent, s.cfg.MaxRiskPercent)

	return Factor{
		Name:  "performance",
		Value: risk / s.cfg.BaseRiskPercent,
		Rationale: fmt.Sprintf("streak %+d over %d trades, net pnl %s",
			streak, len(outcomes), netPnL.StringFixed(2)),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
