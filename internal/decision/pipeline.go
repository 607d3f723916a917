// Package decision composes validation, regime lookup, sizing, and risk
// evaluation into the synchronous signal-to-decision pipeline.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlas-desktop/adaptive-trader/internal/risk"
	"github.com/atlas-desktop/adaptive-trader/internal/sizing"
	"github.com/atlas-desktop/adaptive-trader/pkg/metrics"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidSignal is returned when an inbound signal fails validation.
var ErrInvalidSignal = errors.New("invalid trade signal")

// Outcome is the pipeline's answer for one signal.
type Outcome struct {
	Signal   types.TradeSignal `json:"signal"`
	Sizing   sizing.Result     `json:"sizing"`
	Decision risk.Decision     `json:"decision"`
}

// Pipeline evaluates inbound trade signals. Every internal failure resolves
// to a REJECTED decision; the pipeline never approves by accident.
type Pipeline struct {
	logger   *zap.Logger
	validate *validator.Validate
	sizer    *sizing.Sizer
	risk     *risk.Evaluator
	metrics  *metrics.Metrics
}

// NewPipeline wires the decision path.
func NewPipeline(logger *zap.Logger, sizer *sizing.Sizer, evaluator *risk.Evaluator, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		logger:   logger.Named("decision"),
		validate: validator.New(),
		sizer:    sizer,
		risk:     evaluator,
		metrics:  m,
	}
}

// Evaluate runs one signal through the pipeline. Approved outcomes are
// recorded against the account's daily risk budget and open exposure.
func (p *Pipeline) Evaluate(ctx context.Context, signal types.TradeSignal) (Outcome, error) {
	started := time.Now()
	defer func() {
		p.metrics.DecisionLatency.Observe(time.Since(started).Seconds())
	}()

	if err := p.validate.Struct(signal); err != nil {
		p.metrics.DecisionsTotal.WithLabelValues("invalid").Inc()
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if signal.Size.LessThanOrEqual(decimal.Zero) {
		p.metrics.DecisionsTotal.WithLabelValues("invalid").Inc()
		return Outcome{}, fmt.Errorf("%w: size must be positive", ErrInvalidSignal)
	}

	sized, err := p.sizer.Size(ctx, sizing.Request{
		Symbol:    signal.Symbol,
		AccountID: signal.AccountID,
		BaseSize:  signal.Size,
		Price:     signal.Price,
		StopLoss:  signal.StopLoss,
	})
	if err != nil {
		p.logger.Warn("sizing failed, rejecting signal",
			zap.String("signal", signal.ID), zap.Error(err))
		p.metrics.DecisionsTotal.WithLabelValues("rejected").Inc()
		return Outcome{
			Signal:   signal,
			Decision: risk.Decision{Status: risk.StatusRejected, Reason: "sizing failed", RiskLevel: risk.RiskHigh},
		}, nil
	}

	adjusted := signal
	adjusted.Size = sized.Size
	exposure := sized.Size
	if !signal.Price.IsZero() {
		exposure = sized.Size.Mul(signal.Price)
	}

	// Evaluation and budget consumption are one atomic step per account, so
	// concurrent signals cannot jointly exceed the daily budget.
	decision := p.risk.EvaluateAndReserve(ctx, adjusted, signal.AccountID, exposure)

	if decision.Status == risk.StatusApproved {
		p.metrics.DecisionsTotal.WithLabelValues("approved").Inc()
	} else {
		p.metrics.DecisionsTotal.WithLabelValues("rejected").Inc()
	}

	p.logger.Info("signal evaluated",
		zap.String("signal", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.String("status", string(decision.Status)),
		zap.String("size", sized.Size.String()))

	return Outcome{Signal: signal, Sizing: sized, Decision: decision}, nil
}
