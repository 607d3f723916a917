package strategy

import (
	"math"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
)

// closes extracts closing prices as floats for indicator math.
func closes(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i], _ = b.Close.Float64()
	}
	return out
}

// sma returns the simple moving average ending at each index; indices before
// the first full window are NaN.
func sma(values []float64, length int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= length {
			sum -= values[i-length]
		}
		if i >= length-1 {
			out[i] = sum / float64(length)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// atr returns the average true range ending at each index; indices before the
// first full window are NaN.
func atr(bars []types.Bar, length int) []float64 {
	trs := make([]float64, len(bars))
	for i := range bars {
		high, _ := bars[i].High.Float64()
		low, _ := bars[i].Low.Float64()
		if i == 0 {
			trs[i] = high - low
			continue
		}
		prevClose, _ := bars[i-1].Close.Float64()
		trs[i] = math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}
	return sma(trs, length)
}
