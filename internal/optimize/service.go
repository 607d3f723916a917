package optimize

import (
	"context"
	"time"

	"github.com/atlas-desktop/adaptive-trader/internal/data"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request describes one optimization to perform.
type Request struct {
	Symbol       string
	Timeframe    types.Timeframe
	Objective    Objective
	Days         int
	Seed         int64
	UseSentiment bool
}

// Service composes the data source chain, the optimizer, and the run store
// into the complete optimize-validate-persist flow both binaries use.
type Service struct {
	logger    *zap.Logger
	sources   *data.SourceChain
	optimizer *Optimizer
	runs      *data.RunStore
	space     []Parameter
	now       func() time.Time
}

// NewService wires the optimization flow.
func NewService(logger *zap.Logger, sources *data.SourceChain, optimizer *Optimizer, runs *data.RunStore) *Service {
	return &Service{
		logger:    logger.Named("optimize"),
		sources:   sources,
		optimizer: optimizer,
		runs:      runs,
		space:     DefaultSpace(),
		now:       time.Now,
	}
}

// Optimize runs one full optimization and persists the run record. Failures
// after data arrives are recorded as failed runs; data unavailability is
// returned to the caller after recording.
func (s *Service) Optimize(ctx context.Context, req Request) (types.OptimizationRun, error) {
	run := types.OptimizationRun{
		ID:        uuid.New().String(),
		Timestamp: s.now().UTC(),
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Objective: string(req.Objective),
		Seed:      req.Seed,
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -req.Days)
	bars, err := s.sources.Fetch(ctx, req.Symbol, req.Timeframe, start, end)
	if err != nil {
		run.Status = types.RunStatusFailed
		run.Error = err.Error()
		if saveErr := s.runs.SaveRun(run); saveErr != nil {
			s.logger.Error("failed to record failed run", zap.Error(saveErr))
		}
		return run, err
	}

	result, err := s.optimizer.Run(ctx, bars, s.space, req.Objective, req.Seed)
	if err != nil {
		run.Status = types.RunStatusFailed
		run.Error = err.Error()
		if saveErr := s.runs.SaveRun(run); saveErr != nil {
			s.logger.Error("failed to record failed run", zap.Error(saveErr))
		}
		return run, err
	}

	run.Status = types.RunStatusCompleted
	run.BestParameters = result.BestParameters
	run.Metrics = result.TrainMetrics
	run.HoldoutMetrics = result.HoldoutMetrics
	run.HoldoutRatio = result.HoldoutRatio
	run.Grade = result.Grade
	run.MonteCarlo = result.MonteCarlo
	run.Evaluations = result.Evaluations

	if err := s.runs.SaveRun(run); err != nil {
		return run, err
	}

	pf := types.ParameterFile{
		Params:  result.BestParameters,
		Metrics: result.HoldoutMetrics,
		Metadata: types.ParameterMetadata{
			Symbol:         req.Symbol,
			Timeframe:      req.Timeframe,
			Days:           req.Days,
			Objective:      string(req.Objective),
			Timestamp:      run.Timestamp,
			MaxEvaluations: s.optimizer.cfg.MaxEvaluations,
			UseSentiment:   req.UseSentiment,
		},
	}
	if err := s.runs.SaveParameterFile(pf); err != nil {
		return run, err
	}
	return run, nil
}

// EquityCurve re-runs a parameter set over the request window and returns the
// equity curve, used for the plot artifact.
func (s *Service) EquityCurve(ctx context.Context, req Request, params types.ParameterSet) ([]types.EquityPoint, error) {
	end := s.now().UTC()
	start := end.AddDate(0, 0, -req.Days)
	bars, err := s.sources.Fetch(ctx, req.Symbol, req.Timeframe, start, end)
	if err != nil {
		return nil, err
	}
	result, err := s.optimizer.engine.Run(bars, params)
	if err != nil {
		return nil, err
	}
	return result.EquityCurve, nil
}
