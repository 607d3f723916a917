// Package main provides the periodic re-optimization daemon. It re-tunes the
// configured symbol/timeframe tuples on an interval and alerts when a
// strategy's performance degrades against its previous run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atlas-desktop/adaptive-trader/internal/backtest"
	"github.com/atlas-desktop/adaptive-trader/internal/config"
	"github.com/atlas-desktop/adaptive-trader/internal/data"
	"github.com/atlas-desktop/adaptive-trader/internal/notify"
	"github.com/atlas-desktop/adaptive-trader/internal/optimize"
	"github.com/atlas-desktop/adaptive-trader/internal/scheduler"
	"github.com/atlas-desktop/adaptive-trader/pkg/metrics"
	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	intervalHours := flag.Int("interval", 24, "Hours between optimization cycles")
	symbolsCSV := flag.String("symbols", "BTCUSDT,ETHUSDT", "Comma-separated symbols")
	timeframesCSV := flag.String("timeframes", "1h", "Comma-separated timeframes")
	objective := flag.String("objective", "sharpe", "Objective (sharpe, return, risk_adjusted, win_rate, calmar)")
	days := flag.Int("days", 90, "History window in days")
	mobileAlerts := flag.Bool("mobile-alerts", false, "Also queue alerts for the mobile relay")
	dashboardOnly := flag.Bool("dashboard-only", false, "Regenerate the dashboard summary and exit")
	configPath := flag.String("config", "", "Config file path (YAML)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	if err := run(logger, *intervalHours, *symbolsCSV, *timeframesCSV, *objective, *days, *mobileAlerts, *dashboardOnly, *configPath); err != nil {
		logger.Error("Scheduler failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, intervalHours int, symbolsCSV, timeframesCSV, objective string, days int, mobileAlerts, dashboardOnly bool, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	runs, err := data.NewRunStore(logger, cfg.Data.RunDir)
	if err != nil {
		return err
	}

	if dashboardOnly {
		if err := runs.WriteDashboardSummary(); err != nil {
			return err
		}
		logger.Info("Dashboard summary regenerated")
		return nil
	}

	obj, err := optimize.ParseObjective(objective)
	if err != nil {
		return err
	}
	timeframes, err := parseTimeframes(timeframesCSV)
	if err != nil {
		return err
	}
	symbols := strings.Split(symbolsCSV, ",")

	store, err := data.NewStore(logger, cfg.Data.BarDir)
	if err != nil {
		return err
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
	service := optimize.NewService(logger, sources, optimizer, runs)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if mobileAlerts {
		notifier = notify.Multi{notifier, notify.NewMobileNotifier(logger)}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	interval := time.Duration(intervalHours) * time.Hour
	if interval <= 0 {
		interval = cfg.Scheduler.Interval
	}

	sched := scheduler.New(logger, scheduler.Config{
		Interval:              interval,
		Symbols:               symbols,
		Timeframes:            timeframes,
		Objective:             obj,
		Days:                  days,
		Seed:                  cfg.Data.SyntheticSeed,
		DegradationThreshold:  cfg.Scheduler.DegradationThreshold,
		DrawdownIncreaseLimit: cfg.Scheduler.DrawdownIncreaseLimit,
	}, service, runs, notifier, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go sched.Start(ctx)

	logger.Info("Scheduler running",
		zap.Duration("interval", interval),
		zap.Strings("symbols", symbols),
		zap.String("objective", objective),
	)

	<-sigChan
	logger.Info("Shutdown signal received")
	cancel()
	return nil
}

func parseTimeframes(csv string) ([]types.Timeframe, error) {
	var out []types.Timeframe
	for _, s := range strings.Split(csv, ",") {
		tf, ok := types.ParseTimeframe(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("unknown timeframe %q", s)
		}
		out = append(out, tf)
	}
	return out, nil
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
