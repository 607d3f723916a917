package risk

import (
	"context"
	"fmt"

	"github.com/atlas-desktop/adaptive-trader/internal/regime"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Status is the outcome of a risk evaluation.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// RiskLevel grades how much headroom remains after approval.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Decision is the explicit result of evaluating one signal.
type Decision struct {
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	RiskLevel RiskLevel `json:"riskLevel"`
	RiskPct   float64   `json:"riskPct"`
}

// Config bounds the evaluator.
type Config struct {
	DailyRiskBudgetPct    float64             // total risk permitted per UTC day
	MaxDrawdownPct        float64             // drawdown at which new trades stop
	MaxCorrelatedExposure float64             // group exposure cap as equity multiple
	DefaultRiskPct        float64             // assumed risk when no stop is given
	CorrelationGroups     map[string][]string // symbol -> correlated symbols
}

// DefaultConfig returns the evaluator defaults.
func DefaultConfig() Config {
	return Config{
		DailyRiskBudgetPct:    3.0,
		MaxDrawdownPct:        20.0,
		MaxCorrelatedExposure: 2.0,
		DefaultRiskPct:        1.0,
	}
}

// Evaluator applies the ordered risk checks to inbound signals. The checks
// themselves are pure over an account state snapshot; EvaluateAndReserve
// couples them with budget consumption under the account mutex.
type Evaluator struct {
	logger   *zap.Logger
	cfg      Config
	accounts *Accounts
}

// NewEvaluator creates a risk evaluator over the account store.
func NewEvaluator(logger *zap.Logger, cfg Config, accounts *Accounts) *Evaluator {
	return &Evaluator{
		logger:   logger.Named("risk"),
		cfg:      cfg,
		accounts: accounts,
	}
}

// Evaluate runs the checks against a snapshot of the account's state. It is
// read-only; the live path goes through EvaluateAndReserve so approval and
// budget consumption are atomic.
func (e *Evaluator) Evaluate(ctx context.Context, signal types.TradeSignal, accountID string) Decision {
	return e.check(ctx, signal, e.accounts.Snapshot(accountID))
}

// EvaluateAndReserve evaluates the signal and, when it approves, consumes the
// daily risk budget and adds the open exposure before releasing the account
// mutex. Two concurrent signals for the same account cannot both be approved
// past the budget.
func (e *Evaluator) EvaluateAndReserve(ctx context.Context, signal types.TradeSignal, accountID string, exposure decimal.Decimal) Decision {
	var decision Decision
	e.accounts.Transact(accountID, func(state AccountState) *Reservation {
		decision = e.check(ctx, signal, state)
		if decision.Status != StatusApproved {
			return nil
		}
		return &Reservation{Symbol: signal.Symbol, RiskPct: decision.RiskPct, Exposure: exposure}
	})
	return decision
}

// check runs the checks in order: daily risk budget, drawdown threshold,
// correlated exposure. The first failing check rejects the signal; any
// internal inconsistency also rejects (fail closed).
func (e *Evaluator) check(ctx context.Context, signal types.TradeSignal, state AccountState) Decision {
	if err := ctx.Err(); err != nil {
		return Decision{Status: StatusRejected, Reason: "evaluation cancelled", RiskLevel: RiskHigh}
	}

	riskPct, err := e.proposedRiskPct(signal, state)
	if err != nil {
		e.logger.Warn("risk computation failed, rejecting",
			zap.String("signal", signal.ID), zap.Error(err))
		return Decision{Status: StatusRejected, Reason: fmt.Sprintf("risk computation failed: %v", err), RiskLevel: RiskHigh}
	}

	if state.DailyRiskUsedPct+riskPct > e.cfg.DailyRiskBudgetPct {
		return Decision{
			Status: StatusRejected,
			Reason: fmt.Sprintf("daily risk budget exhausted: %.2f%% used + %.2f%% proposed > %.2f%% limit",
				state.DailyRiskUsedPct, riskPct, e.cfg.DailyRiskBudgetPct),
			RiskLevel: RiskHigh,
			RiskPct:   riskPct,
		}
	}

	if dd := state.DrawdownPct(); dd >= e.cfg.MaxDrawdownPct {
		return Decision{
			Status: StatusRejected,
			Reason: fmt.Sprintf("drawdown %.2f%% at or beyond %.2f%% limit",
				dd, e.cfg.MaxDrawdownPct),
			RiskLevel: RiskHigh,
			RiskPct:   riskPct,
		}
	}

	if reason, ok := e.correlationCheck(signal, state); !ok {
		return Decision{Status: StatusRejected, Reason: reason, RiskLevel: RiskHigh, RiskPct: riskPct}
	}

	return Decision{
		Status:    StatusApproved,
		RiskLevel: e.riskLevel(state, riskPct),
		RiskPct:   riskPct,
	}
}

// proposedRiskPct derives the signal's risk as a percent of equity. With a
// stop level the risk is the stop distance times size; without one the
// configured default applies.
func (e *Evaluator) proposedRiskPct(signal types.TradeSignal, state AccountState) (float64, error) {
	if signal.StopLoss.IsZero() || signal.Price.IsZero() {
		return e.cfg.DefaultRiskPct, nil
	}
	if state.Equity.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("account %s has no equity", state.AccountID)
	}

	distance := signal.Price.Sub(signal.StopLoss).Abs()
	atRisk := distance.Mul(signal.Size)
	pct := atRisk.Div(state.Equity).Mul(decimal.NewFromInt(100))
	f, _ := pct.Float64()
	if f < 0 {
		return 0, fmt.Errorf("negative risk for signal %s", signal.ID)
	}
	return f, nil
}

// correlationCheck caps combined open exposure across the symbol's
// correlation group at a multiple of equity.
func (e *Evaluator) correlationCheck(signal types.TradeSignal, state AccountState) (string, bool) {
	if state.Equity.LessThanOrEqual(decimal.Zero) {
		return "", true
	}

	group := append([]string{signal.Symbol}, e.cfg.CorrelationGroups[signal.Symbol]...)
	exposure := decimal.Zero
	for _, sym := range group {
		exposure = exposure.Add(state.OpenExposure[sym])
	}

	proposed := signal.Size
	if !signal.Price.IsZero() {
		proposed = signal.Size.Mul(signal.Price)
	}
	exposure = exposure.Add(proposed)

	limit := state.Equity.Mul(decimal.NewFromFloat(e.cfg.MaxCorrelatedExposure))
	if exposure.GreaterThan(limit) {
		return fmt.Sprintf("correlated exposure %s exceeds %.1fx equity limit %s",
			exposure.StringFixed(2), e.cfg.MaxCorrelatedExposure, limit.StringFixed(2)), false
	}
	return "", true
}

func (e *Evaluator) riskLevel(state AccountState, riskPct float64) RiskLevel {
	used := state.DailyRiskUsedPct + riskPct
	switch {
	case used > e.cfg.DailyRiskBudgetPct*0.75 || state.DrawdownPct() > e.cfg.MaxDrawdownPct*0.5:
		return RiskHigh
	case used > e.cfg.DailyRiskBudgetPct*0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// AdjustStopLoss widens or tightens a stop distance by the volatility level:
// HIGH volatility widens to 1.5x, LOW tightens to 0.75x, MEDIUM leaves the
// distance unchanged. Returns the absolute stop level.
func (e *Evaluator) AdjustStopLoss(price, stop decimal.Decimal, level regime.Level) decimal.Decimal {
	var mult decimal.Decimal
	switch level {
	case regime.LevelHigh:
		mult = decimal.NewFromFloat(1.5)
	case regime.LevelLow:
		mult = decimal.NewFromFloat(0.75)
	default:
		mult = decimal.NewFromInt(1)
	}

	distance := price.Sub(stop)
	return price.Sub(distance.Mul(mult))
}
