package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseTimeframe(t *testing.T) {
	tf, ok := ParseTimeframe("4h")
	assert.True(t, ok)
	assert.Equal(t, Timeframe4h, tf)

	_, ok = ParseTimeframe("2h")
	assert.False(t, ok)
}

func TestPeriodsPerYear(t *testing.T) {
	assert.InDelta(t, 8760, Timeframe1h.PeriodsPerYear(), 0.1)
	assert.InDelta(t, 365, Timeframe1d.PeriodsPerYear(), 0.1)
	assert.InDelta(t, 2190, Timeframe4h.PeriodsPerYear(), 0.1)
}

func TestParameterSetCloneIsIndependent(t *testing.T) {
	orig := ParameterSet{"atr_length": 14}
	clone := orig.Clone()
	clone["atr_length"] = 21

	assert.Equal(t, 14.0, orig["atr_length"])
	assert.Equal(t, 21.0, clone["atr_length"])
}

func TestParameterSetGetFallback(t *testing.T) {
	p := ParameterSet{"ma_length": 20}
	assert.Equal(t, 20.0, p.Get("ma_length", 50))
	assert.Equal(t, 50.0, p.Get("missing", 50))
}

func TestTradeOutcomeWin(t *testing.T) {
	win := TradeOutcome{PnL: decimal.NewFromInt(5), ClosedAt: time.Now()}
	loss := TradeOutcome{PnL: decimal.NewFromInt(-5), ClosedAt: time.Now()}
	flat := TradeOutcome{PnL: decimal.Zero, ClosedAt: time.Now()}

	assert.True(t, win.Win())
	assert.False(t, loss.Win())
	assert.False(t, flat.Win())
}
