package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Regime.Lookback)
	assert.Equal(t, 3, cfg.Regime.Clusters)
	assert.Equal(t, 60*time.Hour, cfg.Regime.ModelTTL)
	assert.Equal(t, 0.3, cfg.Optimizer.HoldoutSplit)
	assert.Equal(t, 0.2, cfg.Scheduler.DegradationThreshold)
	assert.Equal(t, 0.3, cfg.Scheduler.DrawdownIncreaseLimit)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Interval)
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
regime:
  lookback: 120
  clusters: 4
optimizer:
  max_evaluations: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Regime.Lookback)
	assert.Equal(t, 4, cfg.Regime.Clusters)
	assert.Equal(t, 50, cfg.Optimizer.MaxEvaluations)
	// untouched keys keep their defaults
	assert.Equal(t, 0.3, cfg.Optimizer.HoldoutSplit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regime:\n  clusters: 1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ADAPT_REGIME_LOOKBACK", "90")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Regime.Lookback)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
