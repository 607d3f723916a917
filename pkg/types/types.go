// Package types provides shared type definitions for the adaptive trader core.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Timeframe represents bar timeframes.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the bar interval for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// PeriodsPerYear returns the number of bars in a year, used for annualization.
func (tf Timeframe) PeriodsPerYear() float64 {
	return float64(365*24*time.Hour) / float64(tf.Duration())
}

// ParseTimeframe maps a string to a known timeframe.
func ParseTimeframe(s string) (Timeframe, bool) {
	switch Timeframe(s) {
	case Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d:
		return Timeframe(s), true
	}
	return "", false
}

// Bar represents a single OHLCV candlestick.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// TradeSignal is the minimal signal shape consumed from the webhook collaborator.
type TradeSignal struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol" validate:"required"`
	Direction Direction       `json:"direction" validate:"required,oneof=long short"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price,omitempty"`
	StopLoss  decimal.Decimal `json:"stopLoss,omitempty"`
	AccountID string          `json:"accountId" validate:"required"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Trade represents a completed round trip produced by a strategy run.
type Trade struct {
	Symbol    string          `json:"symbol"`
	Direction Direction       `json:"direction"`
	EntryTime time.Time       `json:"entryTime"`
	ExitTime  time.Time       `json:"exitTime"`
	Entry     decimal.Decimal `json:"entry"`
	Exit      decimal.Decimal `json:"exit"`
	Size      decimal.Decimal `json:"size"`
	PnL       decimal.Decimal `json:"pnl"`
	ExitKind  string          `json:"exitKind"` // "signal", "stop", "target", "close"
}

// EquityPoint represents a point on the equity curve.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// TradeOutcome is a realized trade result kept per account for sizing statistics.
type TradeOutcome struct {
	Symbol   string          `json:"symbol"`
	PnL      decimal.Decimal `json:"pnl"`
	ClosedAt time.Time       `json:"closedAt"`
}

// Win reports whether the outcome was profitable.
func (o TradeOutcome) Win() bool {
	return o.PnL.GreaterThan(decimal.Zero)
}
