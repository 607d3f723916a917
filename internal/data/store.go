// Package data provides market history storage and the data source chain.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-trader/pkg/types"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when no source can serve the requested history.
var ErrUnavailable = errors.New("market history unavailable")

// Store provides access to persisted OHLC bars per (symbol, timeframe).
// Bars are immutable once stored; reads serve from an in-memory cache.
type Store struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	dataDir  string
	cache    map[string][]types.Bar
	metadata map[string]*SeriesMetadata
}

// SeriesMetadata describes the stored range for one (symbol, timeframe).
type SeriesMetadata struct {
	Symbol    string          `json:"symbol"`
	Timeframe types.Timeframe `json:"timeframe"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	BarCount  int             `json:"barCount"`
}

// NewStore creates a bar store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	s := &Store{
		logger:   logger.Named("store"),
		dataDir:  dataDir,
		cache:    make(map[string][]types.Bar),
		metadata: make(map[string]*SeriesMetadata),
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.loadMetadata(); err != nil {
		logger.Warn("failed to load store metadata", zap.Error(err))
	}

	return s, nil
}

func seriesKey(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s_%s", symbol, tf)
}

// Bars returns the bars for a symbol/timeframe within [start, end], ordered
// by timestamp. Returns ErrUnavailable when nothing is stored.
func (s *Store) Bars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	all, err := s.load(ctx, symbol, tf)
	if err != nil {
		return nil, err
	}
	return filterRange(all, start, end), nil
}

// LastN returns the most recent n bars for a symbol/timeframe.
func (s *Store) LastN(ctx context.Context, symbol string, tf types.Timeframe, n int) ([]types.Bar, error) {
	all, err := s.load(ctx, symbol, tf)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]types.Bar, len(all))
	copy(out, all)
	return out, nil
}

func (s *Store) load(ctx context.Context, symbol string, tf types.Timeframe) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := seriesKey(symbol, tf)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[key]; ok {
		return cached, nil
	}

	filename := filepath.Join(s.dataDir, key+".json")
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no stored bars for %s %s", ErrUnavailable, symbol, tf)
		}
		return nil, fmt.Errorf("failed to read bar file: %w", err)
	}

	var bars []types.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse bar file %s: %w", filename, err)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	if err := ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("stored series %s failed validation: %w", key, err)
	}

	s.cache[key] = bars
	return bars, nil
}

// SaveBars persists a bar series, replacing any stored series for the same
// (symbol, timeframe). The series must pass validation.
func (s *Store) SaveBars(symbol string, tf types.Timeframe, bars []types.Bar) error {
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	if err := ValidateBars(sorted); err != nil {
		return fmt.Errorf("refusing to persist invalid series: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(symbol, tf)
	filename := filepath.Join(s.dataDir, key+".json")

	raw, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bars: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write bar file: %w", err)
	}

	s.cache[key] = sorted
	if len(sorted) > 0 {
		s.metadata[key] = &SeriesMetadata{
			Symbol:    symbol,
			Timeframe: tf,
			StartDate: sorted[0].Timestamp,
			EndDate:   sorted[len(sorted)-1].Timestamp,
			BarCount:  len(sorted),
		}
	}

	if err := s.saveMetadata(); err != nil {
		s.logger.Warn("failed to persist store metadata", zap.Error(err))
	}

	return nil
}

// Range returns the stored date range for a symbol/timeframe.
func (s *Store) Range(symbol string, tf types.Timeframe) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta, ok := s.metadata[seriesKey(symbol, tf)]; ok {
		return meta.StartDate, meta.EndDate, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: no metadata for %s %s", ErrUnavailable, symbol, tf)
}

// ClearCache drops the in-memory cache; the next read reloads from disk.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]types.Bar)
}

func filterRange(bars []types.Bar, start, end time.Time) []types.Bar {
	var out []types.Bar
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *Store) loadMetadata() error {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var metadata map[string]*SeriesMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return err
	}
	s.metadata = metadata
	return nil
}

func (s *Store) saveMetadata() error {
	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, "metadata.json"), raw, 0o644)
}
