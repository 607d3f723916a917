// Package main provides the one-shot optimization CLI: fetch history,
// search the parameter space, validate out-of-sample, and write the
// parameter file the live path consumes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/atlas-desktop/adaptive-trader/internal/backtest"
	"github.com/atlas-desktop/adaptive-trader/internal/config"
	"github.com/atlas-desktop/adaptive-trader/internal/data"
	"github.com/atlas-desktop/adaptive-trader/internal/optimize"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "Symbol to optimize")
	timeframe := flag.String("timeframe", "1h", "Bar timeframe (1m, 5m, 15m, 1h, 4h, 1d)")
	objective := flag.String("objective", "sharpe", "Objective (sharpe, return, risk_adjusted, win_rate, calmar)")
	days := flag.Int("days", 90, "History window in days")
	maxEvals := flag.Int("max-evals", 0, "Evaluation budget (0 = config default)")
	useSentiment := flag.Bool("use-sentiment", false, "Record sentiment usage in run metadata")
	savePlot := flag.Bool("save-plot", false, "Write the equity curve artifact")
	configPath := flag.String("config", "", "Config file path (YAML)")
	seed := flag.Int64("seed", 42, "Random seed for reproducible searches")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	if err := run(logger, *symbol, *timeframe, *objective, *days, *maxEvals, *seed, *useSentiment, *savePlot, *configPath); err != nil {
		logger.Error("Optimization failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, symbol, timeframe, objective string, days, maxEvals int, seed int64, useSentiment, savePlot bool, configPath string) error {
	tf, ok := types.ParseTimeframe(timeframe)
	if !ok {
		return fmt.Errorf("unknown timeframe %q", timeframe)
	}
	obj, err := optimize.ParseObjective(objective)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if maxEvals > 0 {
		cfg.Optimizer.MaxEvaluations = maxEvals
	}

	logger.Info("Starting optimization",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.String("objective", objective),
		zap.Int("days", days),
		zap.Int("maxEvals", cfg.Optimizer.MaxEvaluations),
		zap.Int64("seed", seed),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cancelling")
		cancel()
	}()

	service, err := buildService(logger, cfg)
	if err != nil {
		return err
	}

	req := optimize.Request{
		Symbol:       symbol,
		Timeframe:    tf,
		Objective:    obj,
		Days:         days,
		Seed:         seed,
		UseSentiment: useSentiment,
	}

	run, err := service.Optimize(ctx, req)
	if err != nil {
		return err
	}

	logger.Info("Optimization complete",
		zap.String("runId", run.ID),
		zap.String("grade", string(run.Grade)),
		zap.Int("evaluations", run.Evaluations),
		zap.String("holdoutRatio", run.HoldoutRatio.StringFixed(3)),
	)
	printSummary(run)

	if savePlot {
		curve, err := service.EquityCurve(ctx, req, run.BestParameters)
		if err != nil {
			return fmt.Errorf("failed to build equity curve: %w", err)
		}
		path := filepath.Join(cfg.Data.RunDir, fmt.Sprintf("%s_%s_equity.json", symbol, tf))
		raw, err := json.MarshalIndent(curve, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("failed to write equity artifact: %w", err)
		}
		logger.Info("Equity curve written", zap.String("path", path))
	}

	return nil
}

func buildService(logger *zap.Logger, cfg *config.Config) (*optimize.Service, error) {
	store, err := data.NewStore(logger, cfg.Data.BarDir)
	if err != nil {
		return nil, err
	}
	runs, err := data.NewRunStore(logger, cfg.Data.RunDir)
	if err != nil {
		return nil, err
	}

	sources := data.NewSourceChain(logger,
		data.NewStoreSource(store),
		data.NewSyntheticSource(cfg.Data.SyntheticSeed),
	)

	engine := backtest.NewEngine(logger, decimal.NewFromFloat(cfg.Backtest.InitialCapital))
	optimizer := optimize.New(logger, engine, optimize.Config{
		MaxEvaluations:       cfg.Optimizer.MaxEvaluations,
		HoldoutSplit:         cfg.Optimizer.HoldoutSplit,
		Parallelism:          cfg.Optimizer.Parallelism,
		MonteCarloIterations: cfg.Backtest.MonteCarloIterations,
	})

	return optimize.NewService(logger, sources, optimizer, runs), nil
}

func printSummary(run types.OptimizationRun) {
	var params []string
	for name, value := range run.BestParameters {
		params = append(params, fmt.Sprintf("%s=%.2f", name, value))
	}

	fmt.Printf("\nBest parameters: %s\n", strings.Join(params, " "))
	fmt.Printf("In-sample:  return %s  sharpe %s  drawdown %s  winRate %s  trades %d\n",
		run.Metrics.TotalReturn.StringFixed(4),
		run.Metrics.SharpeRatio.StringFixed(2),
		run.Metrics.MaxDrawdown.StringFixed(4),
		run.Metrics.WinRate.StringFixed(2),
		run.Metrics.TradeCount)
	fmt.Printf("Held-out:   return %s  sharpe %s  drawdown %s  winRate %s  trades %d\n",
		run.HoldoutMetrics.TotalReturn.StringFixed(4),
		run.HoldoutMetrics.SharpeRatio.StringFixed(2),
		run.HoldoutMetrics.MaxDrawdown.StringFixed(4),
		run.HoldoutMetrics.WinRate.StringFixed(2),
		run.HoldoutMetrics.TradeCount)
	fmt.Printf("Validation grade: %s (ratio %s)\n", run.Grade, run.HoldoutRatio.StringFixed(3))
	fmt.Printf("Monte Carlo: median %s  p5 %s  p95 %s  P(loss) %s\n",
		run.MonteCarlo.MedianReturn.StringFixed(4),
		run.MonteCarlo.P5Return.StringFixed(4),
		run.MonteCarlo.P95Return.StringFixed(4),
		run.MonteCarlo.ProbabilityLoss.StringFixed(3))
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
