// Package scheduler periodically re-optimizes configured symbol/timeframe
// tuples and alerts on performance degradation between consecutive runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-trader/internal/notify"
	"github.com/atlas-desktop/adaptive-trader/internal/optimize"
	"github.com/atlas-desktop/adaptive-trader/pkg/metrics"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State is the scheduler's coarse lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateAlerting State = "ALERTING"
)

// RunHistory is the slice of the run store the scheduler needs.
type RunHistory interface {
	Latest(symbol string, tf types.Timeframe, objective string) (types.OptimizationRun, bool, error)
}

// Tuner performs one optimization for a tuple.
type Tuner interface {
	Optimize(ctx context.Context, req optimize.Request) (types.OptimizationRun, error)
}

// Config controls the schedule and the degradation thresholds.
type Config struct {
	Interval              time.Duration
	Symbols               []string
	Timeframes            []types.Timeframe
	Objective             optimize.Objective
	Days                  int
	Seed                  int64
	DegradationThreshold  float64 // relative drop on return/sharpe/winRate
	DrawdownIncreaseLimit float64 // relative increase on max drawdown
}

// Scheduler drives the periodic re-optimization loop in its own goroutine.
// It never participates in live decisioning; a slow cycle delays the next
// optimization, nothing else.
type Scheduler struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	cfg      Config
	tuner    Tuner
	history  RunHistory
	notifier notify.Notifier
	metrics  *metrics.Metrics
	state    State
	now      func() time.Time
}

// New creates a scheduler.
func New(logger *zap.Logger, cfg Config, tuner Tuner, history RunHistory, notifier notify.Notifier, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		cfg:      cfg,
		tuner:    tuner,
		history:  history,
		notifier: notifier,
		metrics:  m,
		state:    StateIdle,
		now:      time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Start runs the timer loop until the context is cancelled. An immediate
// cycle runs before the first tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Strings("symbols", s.cfg.Symbols))

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle optimizes every configured tuple once.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.setState(StateRunning)
	defer s.setState(StateIdle)

	for _, symbol := range s.cfg.Symbols {
		for _, tf := range s.cfg.Timeframes {
			if ctx.Err() != nil {
				return
			}
			s.runTuple(ctx, symbol, tf)
		}
	}
}

func (s *Scheduler) runTuple(ctx context.Context, symbol string, tf types.Timeframe) {
	previous, hasPrevious, err := s.history.Latest(symbol, tf, string(s.cfg.Objective))
	if err != nil {
		s.logger.Error("failed to load previous run",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}

	run, err := s.tuner.Optimize(ctx, optimize.Request{
		Symbol:    symbol,
		Timeframe: tf,
		Objective: s.cfg.Objective,
		Days:      s.cfg.Days,
		Seed:      s.cfg.Seed,
	})
	if err != nil {
		// Stale data is not degradation; the failed run is on record.
		s.metrics.OptimizationRuns.WithLabelValues("failed").Inc()
		s.logger.Warn("optimization failed, no alert",
			zap.String("symbol", symbol),
			zap.String("timeframe", string(tf)),
			zap.Error(err))
		return
	}
	s.metrics.OptimizationRuns.WithLabelValues("completed").Inc()

	if !hasPrevious {
		return
	}
	if degraded := s.compare(previous.Metrics, run.Metrics); len(degraded) > 0 {
		s.alert(symbol, tf, degraded)
	}
}

// degradation names one metric that fell beyond its threshold. Drop is the
// relative change magnitude used to rank degradations against each other.
type degradation struct {
	Metric   string
	Previous float64
	Current  float64
	Drop     float64
}

// compare flags relative drops on return, sharpe, and win rate beyond the
// degradation threshold, and drawdown growth beyond its own limit.
func (s *Scheduler) compare(prev, cur types.PerformanceMetrics) []degradation {
	var out []degradation

	drops := []struct {
		name      string
		prev, cur decimal.Decimal
	}{
		{"return", prev.TotalReturn, cur.TotalReturn},
		{"sharpe", prev.SharpeRatio, cur.SharpeRatio},
		{"winRate", prev.WinRate, cur.WinRate},
	}
	for _, d := range drops {
		p, _ := d.prev.Float64()
		c, _ := d.cur.Float64()
		if p <= 0 {
			continue
		}
		if drop := (p - c) / p; drop > s.cfg.DegradationThreshold {
			out = append(out, degradation{Metric: d.name, Previous: p, Current: c, Drop: drop})
		}
	}

	prevDD, _ := prev.MaxDrawdown.Float64()
	curDD, _ := cur.MaxDrawdown.Float64()
	if prevDD > 0 {
		if growth := (curDD - prevDD) / prevDD; growth > s.cfg.DrawdownIncreaseLimit {
			out = append(out, degradation{Metric: "drawdown", Previous: prevDD, Current: curDD, Drop: growth})
		}
	}
	return out
}

// alert emits one alert covering every degraded metric, featuring the one
// with the largest relative drop: warning for a single metric, critical for
// two or more.
func (s *Scheduler) alert(symbol string, tf types.Timeframe, degraded []degradation) {
	s.setState(StateAlerting)
	defer s.setState(StateRunning)

	level := notify.LevelWarning
	if len(degraded) >= 2 {
		level = notify.LevelCritical
	}

	worst := degraded[0]
	for _, d := range degraded[1:] {
		if d.Drop > worst.Drop {
			worst = d
		}
	}
	alert := notify.Alert{
		Title: fmt.Sprintf("Strategy degradation: %s %s", symbol, tf),
		Message: fmt.Sprintf("%d metric(s) degraded since last optimization, worst: %s %.4f -> %.4f",
			len(degraded), worst.Metric, worst.Previous, worst.Current),
		Level:     level,
		Timestamp: s.now().UTC(),
		Data: map[string]any{
			"symbol":         symbol,
			"timeframe":      string(tf),
			"metric":         worst.Metric,
			"previousMetric": worst.Previous,
			"currentMetric":  worst.Current,
			"degradedCount":  len(degraded),
		},
	}

	s.metrics.DegradationAlerts.WithLabelValues(string(level)).Inc()
	if err := s.notifier.Notify(alert); err != nil {
		s.logger.Error("alert delivery failed", zap.Error(err))
	}
}
