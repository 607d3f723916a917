// Package config loads runtime configuration through viper, with YAML file,
// environment override, and defaults layered in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration consumed by both binaries.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Regime    RegimeConfig    `mapstructure:"regime"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// DataConfig locates the on-disk stores.
type DataConfig struct {
	BarDir        string `mapstructure:"bar_dir"`
	RunDir        string `mapstructure:"run_dir"`
	SyntheticSeed int64  `mapstructure:"synthetic_seed"`
}

// RegimeConfig controls the volatility regime classifier.
type RegimeConfig struct {
	Lookback  int           `mapstructure:"lookback"`
	Clusters  int           `mapstructure:"clusters"`
	ATRLength int           `mapstructure:"atr_length"`
	ModelTTL  time.Duration `mapstructure:"model_ttl"`
	MaxIters  int           `mapstructure:"max_iters"`
}

// SizingConfig bounds the position sizer.
type SizingConfig struct {
	BaseRiskPercent float64 `mapstructure:"base_risk_percent"`
	MinRiskPercent  float64 `mapstructure:"min_risk_percent"`
	MaxRiskPercent  float64 `mapstructure:"max_risk_percent"`
	MinRegimeFactor float64 `mapstructure:"min_regime_factor"`
	MaxRegimeFactor float64 `mapstructure:"max_regime_factor"`
	MaxPositionMult float64 `mapstructure:"max_position_mult"`
	HistoryWindow   int     `mapstructure:"history_window"`
}

// RiskConfig bounds the risk evaluator.
type RiskConfig struct {
	DailyRiskBudgetPct    float64 `mapstructure:"daily_risk_budget_pct"`
	MaxDrawdownPct        float64 `mapstructure:"max_drawdown_pct"`
	MaxCorrelatedExposure float64 `mapstructure:"max_correlated_exposure"`
}

// BacktestConfig controls backtest evaluation.
type BacktestConfig struct {
	InitialCapital       float64 `mapstructure:"initial_capital"`
	MonteCarloIterations int     `mapstructure:"monte_carlo_iterations"`
}

// OptimizerConfig controls the parameter search.
type OptimizerConfig struct {
	MaxEvaluations int     `mapstructure:"max_evaluations"`
	HoldoutSplit   float64 `mapstructure:"holdout_split"`
	Parallelism    int     `mapstructure:"parallelism"`
}

// SchedulerConfig controls periodic re-optimization.
type SchedulerConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	DegradationThreshold  float64       `mapstructure:"degradation_threshold"`
	DrawdownIncreaseLimit float64       `mapstructure:"drawdown_increase_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.bar_dir", "data/bars")
	v.SetDefault("data.run_dir", "data/optimization")
	v.SetDefault("data.synthetic_seed", 42)

	v.SetDefault("regime.lookback", 60)
	v.SetDefault("regime.clusters", 3)
	v.SetDefault("regime.atr_length", 14)
	// Retrain once the 60-bar lookback window at 1h bars has rolled over.
	v.SetDefault("regime.model_ttl", 60*time.Hour)
	v.SetDefault("regime.max_iters", 100)

	v.SetDefault("sizing.base_risk_percent", 1.0)
	v.SetDefault("sizing.min_risk_percent", 0.25)
	v.SetDefault("sizing.max_risk_percent", 2.0)
	v.SetDefault("sizing.min_regime_factor", 0.5)
	v.SetDefault("sizing.max_regime_factor", 1.5)
	v.SetDefault("sizing.max_position_mult", 2.0)
	v.SetDefault("sizing.history_window", 20)

	v.SetDefault("risk.daily_risk_budget_pct", 3.0)
	v.SetDefault("risk.max_drawdown_pct", 20.0)
	v.SetDefault("risk.max_correlated_exposure", 2.0)

	v.SetDefault("backtest.initial_capital", 10000.0)
	v.SetDefault("backtest.monte_carlo_iterations", 1000)

	v.SetDefault("optimizer.max_evaluations", 200)
	v.SetDefault("optimizer.holdout_split", 0.3)
	v.SetDefault("optimizer.parallelism", 4)

	v.SetDefault("scheduler.interval", 24*time.Hour)
	v.SetDefault("scheduler.degradation_threshold", 0.2)
	v.SetDefault("scheduler.drawdown_increase_limit", 0.3)
}

// Load reads configuration from the optional YAML file at path, applying
// ADAPT_-prefixed environment overrides and built-in defaults. An empty path
// loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ADAPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Regime.Clusters < 2 {
		return fmt.Errorf("regime.clusters must be at least 2, got %d", c.Regime.Clusters)
	}
	if c.Regime.Lookback < c.Regime.ATRLength {
		return fmt.Errorf("regime.lookback (%d) must cover regime.atr_length (%d)", c.Regime.Lookback, c.Regime.ATRLength)
	}
	if c.Optimizer.HoldoutSplit <= 0 || c.Optimizer.HoldoutSplit >= 1 {
		return fmt.Errorf("optimizer.holdout_split must be in (0, 1), got %f", c.Optimizer.HoldoutSplit)
	}
	if c.Sizing.MinRiskPercent > c.Sizing.BaseRiskPercent || c.Sizing.BaseRiskPercent > c.Sizing.MaxRiskPercent {
		return fmt.Errorf("sizing risk bounds must satisfy min <= base <= max")
	}
	if c.Sizing.MinRegimeFactor <= 0 || c.Sizing.MinRegimeFactor > c.Sizing.MaxRegimeFactor {
		return fmt.Errorf("sizing regime factor band must satisfy 0 < min <= max")
	}
	if c.Scheduler.DegradationThreshold <= 0 {
		return fmt.Errorf("scheduler.degradation_threshold must be positive, got %f", c.Scheduler.DegradationThreshold)
	}
	return nil
}
