// Package optimize searches the strategy parameter space and validates the
// winner on held-out data.
package optimize

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
)

// Objective selects the scalar score an optimization maximizes. The set is
// closed; scoring goes through a switch, not injected functions.
type Objective string

const (
	ObjectiveSharpe       Objective = "sharpe"
	ObjectiveReturn       Objective = "return"
	ObjectiveRiskAdjusted Objective = "risk_adjusted"
	ObjectiveWinRate      Objective = "win_rate"
	ObjectiveCalmar       Objective = "calmar"
)

// calmarEpsilon floors the drawdown divisor so a drawdown-free run does not
// blow up the ratio.
const calmarEpsilon = 0.01

// ParseObjective maps a string to a known objective.
func ParseObjective(s string) (Objective, error) {
	switch Objective(s) {
	case ObjectiveSharpe, ObjectiveReturn, ObjectiveRiskAdjusted, ObjectiveWinRate, ObjectiveCalmar:
		return Objective(s), nil
	}
	return "", fmt.Errorf("unknown objective %q", s)
}

// Score computes the objective value for a metrics set. Higher is better.
func (o Objective) Score(m types.PerformanceMetrics) float64 {
	totalReturn, _ := m.TotalReturn.Float64()
	sharpe, _ := m.SharpeRatio.Float64()
	drawdown, _ := m.MaxDrawdown.Float64()
	winRate, _ := m.WinRate.Float64()
	annualized, _ := m.AnnualizedReturn.Float64()

	switch o {
	case ObjectiveSharpe:
		return sharpe
	case ObjectiveReturn:
		return totalReturn
	case ObjectiveRiskAdjusted:
		return totalReturn / (1 + math.Abs(drawdown))
	case ObjectiveWinRate:
		return winRate
	case ObjectiveCalmar:
		return annualized / math.Max(math.Abs(drawdown), calmarEpsilon)
	default:
		return math.Inf(-1)
	}
}
