package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-trader/internal/regime"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signal(id string) types.TradeSignal {
	return types.TradeSignal{
		ID:        id,
		Symbol:    "BTCUSDT",
		Direction: types.DirectionLong,
		Size:      decimal.NewFromFloat(0.1),
		AccountID: "acct-1",
	}
}

func newTestEvaluator(t *testing.T) (*Evaluator, *Accounts) {
	t.Helper()
	accounts := NewAccounts(zap.NewNop())
	accounts.SetEquity("acct-1", decimal.NewFromInt(10000))
	return NewEvaluator(zap.NewNop(), DefaultConfig(), accounts), accounts
}

func TestApproveWithinBudget(t *testing.T) {
	e, _ := newTestEvaluator(t)

	d := e.Evaluate(context.Background(), signal("s1"), "acct-1")
	assert.Equal(t, StatusApproved, d.Status)
	assert.Empty(t, d.Reason)
}

func TestDailyRiskBudgetNeverExceeded(t *testing.T) {
	e, accounts := newTestEvaluator(t)
	cfg := DefaultConfig()

	// Approve trades until the 3% daily budget is exhausted; each signal
	// carries the default 1% risk.
	approved := 0
	for i := 0; i < 10; i++ {
		d := e.Evaluate(context.Background(), signal("s"), "acct-1")
		if d.Status != StatusApproved {
			break
		}
		approved++
		accounts.RecordTrade("acct-1", "BTCUSDT", d.RiskPct, decimal.NewFromInt(100))
	}

	assert.Equal(t, 3, approved)
	state := accounts.Snapshot("acct-1")
	assert.LessOrEqual(t, state.DailyRiskUsedPct, cfg.DailyRiskBudgetPct)

	d := e.Evaluate(context.Background(), signal("rejected"), "acct-1")
	assert.Equal(t, StatusRejected, d.Status)
	assert.Contains(t, d.Reason, "daily risk budget")
}

func TestEvaluateAndReserveSerializesBudget(t *testing.T) {
	e, accounts := newTestEvaluator(t)
	cfg := DefaultConfig()

	// 16 concurrent signals each carrying the default 1% risk against the 3%
	// budget: exactly three reservations fit, regardless of interleaving.
	var wg sync.WaitGroup
	var approved atomic.Int64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := e.EvaluateAndReserve(context.Background(), signal("s"), "acct-1", decimal.NewFromInt(100))
			if d.Status == StatusApproved {
				approved.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), approved.Load())
	state := accounts.Snapshot("acct-1")
	assert.LessOrEqual(t, state.DailyRiskUsedPct, cfg.DailyRiskBudgetPct)
}

func TestDrawdownRejection(t *testing.T) {
	e, accounts := newTestEvaluator(t)

	// Equity falls 25% from its 10000 peak, past the 20% limit.
	accounts.SetEquity("acct-1", decimal.NewFromInt(10000))
	accounts.RecordOutcome("acct-1", types.TradeOutcome{
		Symbol: "BTCUSDT",
		PnL:    decimal.NewFromInt(-2500),
	}, decimal.Zero)

	state := accounts.Snapshot("acct-1")
	require.InDelta(t, 25.0, state.DrawdownPct(), 0.01)

	d := e.Evaluate(context.Background(), signal("s1"), "acct-1")
	assert.Equal(t, StatusRejected, d.Status)
	assert.Contains(t, d.Reason, "drawdown")
}

func TestCorrelatedExposureRejection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CorrelationGroups = map[string][]string{"BTCUSDT": {"ETHUSDT"}}
	accounts := NewAccounts(zap.NewNop())
	accounts.SetEquity("acct-1", decimal.NewFromInt(10000))
	e := NewEvaluator(zap.NewNop(), cfg, accounts)

	// Open exposure across the group already sits at 2x equity.
	accounts.RecordTrade("acct-1", "ETHUSDT", 0, decimal.NewFromInt(20000))

	sig := signal("s1")
	sig.Price = decimal.NewFromInt(50000)
	d := e.Evaluate(context.Background(), sig, "acct-1")
	assert.Equal(t, StatusRejected, d.Status)
	assert.Contains(t, d.Reason, "correlated exposure")
}

func TestStopDistanceDrivesRiskPct(t *testing.T) {
	e, _ := newTestEvaluator(t)

	sig := signal("s1")
	sig.Price = decimal.NewFromInt(50000)
	sig.StopLoss = decimal.NewFromInt(49000)
	sig.Size = decimal.NewFromFloat(0.1)

	// 1000 * 0.1 = 100 at risk on 10000 equity = 1%.
	d := e.Evaluate(context.Background(), sig, "acct-1")
	assert.Equal(t, StatusApproved, d.Status)
	assert.InDelta(t, 1.0, d.RiskPct, 0.001)
}

func TestAdjustStopLoss(t *testing.T) {
	e, _ := newTestEvaluator(t)

	price := decimal.NewFromInt(100)
	stop := decimal.NewFromInt(96)

	wide := e.AdjustStopLoss(price, stop, regime.LevelHigh)
	tight := e.AdjustStopLoss(price, stop, regime.LevelLow)
	same := e.AdjustStopLoss(price, stop, regime.LevelMedium)

	assert.True(t, wide.Equal(decimal.NewFromInt(94)), "got %s", wide)
	assert.True(t, tight.Equal(decimal.NewFromInt(97)), "got %s", tight)
	assert.True(t, same.Equal(stop))
}

func TestDailyReset(t *testing.T) {
	accounts := NewAccounts(zap.NewNop())
	accounts.SetEquity("acct-1", decimal.NewFromInt(10000))
	accounts.RecordTrade("acct-1", "BTCUSDT", 2.5, decimal.NewFromInt(100))

	require.InDelta(t, 2.5, accounts.Snapshot("acct-1").DailyRiskUsedPct, 0.001)

	accounts.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }
	state := accounts.Snapshot("acct-1")
	assert.Zero(t, state.DailyRiskUsedPct)
}
