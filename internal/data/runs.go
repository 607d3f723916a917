package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"go.uber.org/zap"
)

// RunStore persists optimization runs append-only, one JSON file per run,
// and maintains the parameter files consumed by the live path.
type RunStore struct {
	mu     sync.Mutex
	logger *zap.Logger
	dir    string
}

// NewRunStore creates a run store rooted at dir.
func NewRunStore(logger *zap.Logger, dir string) (*RunStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "params"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create params directory: %w", err)
	}
	return &RunStore{logger: logger.Named("runstore"), dir: dir}, nil
}

func runFileName(run types.OptimizationRun) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s.json",
		run.Timestamp.UTC().Format("20060102T150405"),
		run.Symbol, run.Timeframe, run.Objective, run.ID[:8])
}

// SaveRun appends a run record. Existing run files are never overwritten.
func (r *RunStore) SaveRun(run types.OptimizationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	path := filepath.Join(r.dir, "runs", runFileName(run))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("run file already exists: %s", path)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	r.logger.Info("optimization run persisted",
		zap.String("id", run.ID),
		zap.String("symbol", run.Symbol),
		zap.String("objective", run.Objective),
		zap.String("status", string(run.Status)))
	return nil
}

// Runs returns every persisted run for a (symbol, timeframe, objective)
// tuple, ordered oldest first.
func (r *RunStore) Runs(symbol string, tf types.Timeframe, objective string) ([]types.OptimizationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(r.dir, "runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []types.OptimizationRun
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.dir, "runs", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read run file %s: %w", e.Name(), err)
		}
		var run types.OptimizationRun
		if err := json.Unmarshal(raw, &run); err != nil {
			r.logger.Warn("skipping unreadable run file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		if run.Symbol == symbol && run.Timeframe == tf && run.Objective == objective {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

// Latest returns the most recent completed run for the tuple, or false when
// none exists.
func (r *RunStore) Latest(symbol string, tf types.Timeframe, objective string) (types.OptimizationRun, bool, error) {
	runs, err := r.Runs(symbol, tf, objective)
	if err != nil {
		return types.OptimizationRun{}, false, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Status == types.RunStatusCompleted {
			return runs[i], true, nil
		}
	}
	return types.OptimizationRun{}, false, nil
}

func paramFileName(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s_%s_params.json", symbol, tf)
}

// SaveParameterFile writes the parameter file the live path reads. Unlike
// run records, parameter files are replaced on each successful optimization.
func (r *RunStore) SaveParameterFile(pf types.ParameterFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal parameter file: %w", err)
	}
	path := filepath.Join(r.dir, "params", paramFileName(pf.Metadata.Symbol, pf.Metadata.Timeframe))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write parameter file: %w", err)
	}
	return nil
}

// LoadParameterFile reads the current parameter file for a symbol/timeframe.
func (r *RunStore) LoadParameterFile(symbol string, tf types.Timeframe) (types.ParameterFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pf types.ParameterFile
	raw, err := os.ReadFile(filepath.Join(r.dir, "params", paramFileName(symbol, tf)))
	if err != nil {
		return pf, fmt.Errorf("failed to read parameter file: %w", err)
	}
	if err := json.Unmarshal(raw, &pf); err != nil {
		return pf, fmt.Errorf("failed to parse parameter file: %w", err)
	}
	return pf, nil
}

// DashboardSummary is the aggregate artifact regenerated for the dashboard
// collaborator.
type DashboardSummary struct {
	GeneratedAt time.Time             `json:"generatedAt"`
	Runs        []DashboardRunSummary `json:"runs"`
}

// DashboardRunSummary is one row of the dashboard artifact.
type DashboardRunSummary struct {
	Symbol    string                   `json:"symbol"`
	Timeframe types.Timeframe          `json:"timeframe"`
	Objective string                   `json:"objective"`
	Timestamp time.Time                `json:"timestamp"`
	Status    types.RunStatus          `json:"status"`
	Grade     types.ValidationGrade    `json:"grade,omitempty"`
	Metrics   types.PerformanceMetrics `json:"metrics"`
}

// WriteDashboardSummary regenerates summary.json from the latest run per
// (symbol, timeframe, objective) tuple.
func (r *RunStore) WriteDashboardSummary() error {
	r.mu.Lock()
	entries, err := os.ReadDir(filepath.Join(r.dir, "runs"))
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to list runs: %w", err)
	}

	latest := make(map[string]types.OptimizationRun)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.dir, "runs", e.Name()))
		if err != nil {
			continue
		}
		var run types.OptimizationRun
		if err := json.Unmarshal(raw, &run); err != nil {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s", run.Symbol, run.Timeframe, run.Objective)
		if prev, ok := latest[key]; !ok || run.Timestamp.After(prev.Timestamp) {
			latest[key] = run
		}
	}
	r.mu.Unlock()

	summary := DashboardSummary{GeneratedAt: time.Now().UTC()}
	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		run := latest[k]
		summary.Runs = append(summary.Runs, DashboardRunSummary{
			Symbol:    run.Symbol,
			Timeframe: run.Timeframe,
			Objective: run.Objective,
			Timestamp: run.Timestamp,
			Status:    run.Status,
			Grade:     run.Grade,
			Metrics:   run.Metrics,
		})
	}

	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.WriteFile(filepath.Join(r.dir, "summary.json"), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
