// Package risk evaluates trade signals against per-account risk state.
package risk

import (
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountState is a snapshot of one account's risk posture.
type AccountState struct {
	AccountID        string                     `json:"accountId"`
	Equity           decimal.Decimal            `json:"equity"`
	PeakEquity       decimal.Decimal            `json:"peakEquity"`
	DailyRiskUsedPct float64                    `json:"dailyRiskUsedPct"`
	Day              time.Time                  `json:"day"`
	OpenExposure     map[string]decimal.Decimal `json:"openExposure"`
}

// DrawdownPct returns the current drawdown from peak equity in percent.
func (s AccountState) DrawdownPct() float64 {
	if s.PeakEquity.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	dd := s.PeakEquity.Sub(s.Equity).Div(s.PeakEquity)
	f, _ := dd.Float64()
	if f < 0 {
		return 0
	}
	return f * 100
}

type account struct {
	mu       sync.Mutex
	state    AccountState
	outcomes []types.TradeOutcome
}

// Accounts is the account risk state store. Each account has its own mutex;
// all mutation for one account is serialized through it.
type Accounts struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	accounts map[string]*account
	now      func() time.Time
}

// NewAccounts creates an empty account store.
func NewAccounts(logger *zap.Logger) *Accounts {
	return &Accounts{
		logger:   logger.Named("accounts"),
		accounts: make(map[string]*account),
		now:      time.Now,
	}
}

func (a *Accounts) get(accountID string) *account {
	a.mu.RLock()
	acc, ok := a.accounts[accountID]
	a.mu.RUnlock()
	if ok {
		return acc
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.accounts[accountID]; ok {
		return acc
	}
	acc = &account{state: AccountState{
		AccountID:    accountID,
		OpenExposure: make(map[string]decimal.Decimal),
		Day:          a.now().UTC().Truncate(24 * time.Hour),
	}}
	a.accounts[accountID] = acc
	return acc
}

// resetIfNewDay clears the daily risk counter when the UTC day rolls over.
// Caller must hold the account mutex.
func (a *Accounts) resetIfNewDay(acc *account) {
	today := a.now().UTC().Truncate(24 * time.Hour)
	if today.After(acc.state.Day) {
		acc.state.Day = today
		acc.state.DailyRiskUsedPct = 0
	}
}

// SetEquity seeds or updates an account's equity, tracking the peak.
func (a *Accounts) SetEquity(accountID string, equity decimal.Decimal) {
	acc := a.get(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	acc.state.Equity = equity
	if equity.GreaterThan(acc.state.PeakEquity) {
		acc.state.PeakEquity = equity
	}
}

// RecordTrade consumes daily risk budget and adds open exposure for an
// approved trade.
func (a *Accounts) RecordTrade(accountID, symbol string, riskPct float64, exposure decimal.Decimal) {
	acc := a.get(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	a.resetIfNewDay(acc)
	acc.state.DailyRiskUsedPct += riskPct
	acc.state.OpenExposure[symbol] = acc.state.OpenExposure[symbol].Add(exposure)
}

// RecordOutcome realizes a closed trade: releases exposure, applies P&L to
// equity, and appends to the outcome history used by the sizer.
func (a *Accounts) RecordOutcome(accountID string, outcome types.TradeOutcome, exposure decimal.Decimal) {
	acc := a.get(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	remaining := acc.state.OpenExposure[outcome.Symbol].Sub(exposure)
	if remaining.LessThanOrEqual(decimal.Zero) {
		delete(acc.state.OpenExposure, outcome.Symbol)
	} else {
		acc.state.OpenExposure[outcome.Symbol] = remaining
	}

	acc.state.Equity = acc.state.Equity.Add(outcome.PnL)
	if acc.state.Equity.GreaterThan(acc.state.PeakEquity) {
		acc.state.PeakEquity = acc.state.Equity
	}

	acc.outcomes = append(acc.outcomes, outcome)
	const maxOutcomes = 500
	if len(acc.outcomes) > maxOutcomes {
		acc.outcomes = acc.outcomes[len(acc.outcomes)-maxOutcomes:]
	}
}

// Reservation commits an approved trade's budget use and open exposure.
type Reservation struct {
	Symbol   string
	RiskPct  float64
	Exposure decimal.Decimal
}

// Transact runs fn against the account's current state while the account
// mutex is held. A non-nil reservation is recorded before the mutex is
// released, so checking the state and consuming the budget happen in one
// critical section and concurrent signals cannot jointly overshoot it.
func (a *Accounts) Transact(accountID string, fn func(state AccountState) *Reservation) {
	acc := a.get(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	a.resetIfNewDay(acc)
	if res := fn(copyState(acc.state)); res != nil {
		acc.state.DailyRiskUsedPct += res.RiskPct
		acc.state.OpenExposure[res.Symbol] = acc.state.OpenExposure[res.Symbol].Add(res.Exposure)
	}
}

// Snapshot returns a copy of the account's current state.
func (a *Accounts) Snapshot(accountID string) AccountState {
	acc := a.get(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	a.resetIfNewDay(acc)
	return copyState(acc.state)
}

func copyState(state AccountState) AccountState {
	out := state
	out.OpenExposure = make(map[string]decimal.Decimal, len(state.OpenExposure))
	for k, v := range state.OpenExposure {
		out.OpenExposure[k] = v
	}
	return out
}

// RecentOutcomes returns up to n most recent realized outcomes for the
// account/symbol, oldest first. Satisfies the sizer's TradeHistory.
func (a *Accounts) RecentOutcomes(accountID, symbol string, n int) []types.TradeOutcome {
	acc := a.get(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	var out []types.TradeOutcome
	for _, o := range acc.outcomes {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
