// Package strategy implements the deterministic ATR trend-band strategy used
// by the backtest engine and the optimizer.
package strategy

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
)

// Parameter names understood by the runner, with their defaults.
const (
	ParamATRLength     = "atr_length"      // default 14
	ParamATRMultiplier = "atr_multiplier"  // default 2.0
	ParamMALength      = "ma_length"       // default 20
	ParamRiskPercent   = "risk_percent"    // default 1.0
	ParamStopLossPct   = "stop_loss_pct"   // default 2.0
	ParamTakeProfitPct = "take_profit_pct" // default 4.0
)

type position struct {
	direction types.Direction
	entryIdx  int
	entry     float64
	units     float64
	stop      float64
	target    float64
}

// Runner executes the strategy over a bar series. Run is pure: the same
// inputs always produce the same trades and equity curve, and the input
// series is never modified.
type Runner struct{}

// NewRunner creates a strategy runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run walks the series bar by bar, entering on closes beyond the ATR band
// around the moving average and exiting on stop, target, or the opposite
// band. All decisions use bar closes only. The returned equity curve has one
// point per input bar.
func (r *Runner) Run(bars []types.Bar, params types.ParameterSet, initialCapital decimal.Decimal) ([]types.Trade, []types.EquityPoint, error) {
	if len(bars) == 0 {
		return nil, nil, fmt.Errorf("empty bar series")
	}
	if initialCapital.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("initial capital must be positive, got %s", initialCapital)
	}

	atrLength := int(params.Get(ParamATRLength, 14))
	maLength := int(params.Get(ParamMALength, 20))
	atrMult := params.Get(ParamATRMultiplier, 2.0)
	riskPct := params.Get(ParamRiskPercent, 1.0)
	stopPct := params.Get(ParamStopLossPct, 2.0)
	targetPct := params.Get(ParamTakeProfitPct, 4.0)
	if atrLength < 1 || maLength < 1 || atrMult <= 0 || riskPct <= 0 || stopPct <= 0 || targetPct <= 0 {
		return nil, nil, fmt.Errorf("invalid parameters: %v", params)
	}

	closePrices := closes(bars)
	ma := sma(closePrices, maLength)
	atrs := atr(bars, atrLength)

	capital, _ := initialCapital.Float64()
	cash := capital
	peak := capital

	var (
		trades []types.Trade
		curve  = make([]types.EquityPoint, 0, len(bars))
		pos    *position
		symbol = bars[0].Symbol
	)

	closeOut := func(i int, price float64, kind string) {
		var pnl float64
		if pos.direction == types.DirectionLong {
			pnl = (price - pos.entry) * pos.units
		} else {
			pnl = (pos.entry - price) * pos.units
		}
		cash += pnl
		trades = append(trades, types.Trade{
			Symbol:    symbol,
			Direction: pos.direction,
			EntryTime: bars[pos.entryIdx].Timestamp,
			ExitTime:  bars[i].Timestamp,
			Entry:     decimal.NewFromFloat(pos.entry),
			Exit:      decimal.NewFromFloat(price),
			Size:      decimal.NewFromFloat(pos.units),
			PnL:       decimal.NewFromFloat(pnl),
			ExitKind:  kind,
		})
		pos = nil
	}

	for i, bar := range bars {
		price := closePrices[i]
		warm := !math.IsNaN(ma[i]) && !math.IsNaN(atrs[i])

		if pos != nil {
			switch {
			case pos.direction == types.DirectionLong && price <= pos.stop:
				closeOut(i, price, "stop")
			case pos.direction == types.DirectionLong && price >= pos.target:
				closeOut(i, price, "target")
			case pos.direction == types.DirectionShort && price >= pos.stop:
				closeOut(i, price, "stop")
			case pos.direction == types.DirectionShort && price <= pos.target:
				closeOut(i, price, "target")
			case warm && pos.direction == types.DirectionLong && price < ma[i]-atrMult*atrs[i]:
				closeOut(i, price, "signal")
			case warm && pos.direction == types.DirectionShort && price > ma[i]+atrMult*atrs[i]:
				closeOut(i, price, "signal")
			}
		}

		if pos == nil && warm && i < len(bars)-1 {
			upper := ma[i] + atrMult*atrs[i]
			lower := ma[i] - atrMult*atrs[i]
			if price > upper {
				pos = r.open(types.DirectionLong, i, price, cash, riskPct, stopPct, targetPct)
			} else if price < lower {
				pos = r.open(types.DirectionShort, i, price, cash, riskPct, stopPct, targetPct)
			}
		}

		if i == len(bars)-1 && pos != nil {
			closeOut(i, price, "close")
		}

		equity := cash
		if pos != nil {
			if pos.direction == types.DirectionLong {
				equity += (price - pos.entry) * pos.units
			} else {
				equity += (pos.entry - price) * pos.units
			}
		}
		if equity > peak {
			peak = equity
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - equity) / peak
		}
		curve = append(curve, types.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    decimal.NewFromFloat(equity),
			Drawdown:  decimal.NewFromFloat(drawdown),
		})
	}

	return trades, curve, nil
}

// open sizes a position so the stop distance risks riskPct of current cash.
func (r *Runner) open(dir types.Direction, i int, price, cash, riskPct, stopPct, targetPct float64) *position {
	atRisk := cash * riskPct / 100
	stopDistance := price * stopPct / 100
	units := atRisk / stopDistance

	// Cap the notional at current cash; no leverage in the backtest path.
	if units*price > cash {
		units = cash / price
	}
	if units <= 0 {
		return nil
	}

	p := &position{direction: dir, entryIdx: i, entry: price, units: units}
	if dir == types.DirectionLong {
		p.stop = price * (1 - stopPct/100)
		p.target = price * (1 + targetPct/100)
	} else {
		p.stop = price * (1 + stopPct/100)
		p.target = price * (1 - targetPct/100)
	}
	return p
}
