// Package stats turns daily usage records and settings into a Snapshot.
package stats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrMissingSettings aborts a pass when no settings are available yet.
var ErrMissingSettings = errors.New("no settings found")

// SettingsProvider supplies the current settings.
type SettingsProvider interface {
	Get(ctx context.Context) (*storage.Settings, error)
}

// Config holds the trailing windows used by a pass.
type Config struct {
	StreakWindowDays int
	TrendWindowDays  int
	YearWindowDays   int
}

// DefaultConfig returns the standard windows: 30 days for streaks, 7 for
// the trend and 365 for the trailing year.
func DefaultConfig() Config {
	return Config{StreakWindowDays: 30, TrendWindowDays: 7, YearWindowDays: 365}
}

// Engine reads records and settings and produces datasets for Build.
type Engine struct {
	records  storage.RecordStore
	settings SettingsProvider
	clock    clock.Clock
	cfg      Config
	logger   zerolog.Logger
}

// NewEngine creates an aggregation engine. Zero config fields take their defaults.
func NewEngine(records storage.RecordStore, settings SettingsProvider, clk clock.Clock, cfg Config, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.StreakWindowDays <= 0 {
		cfg.StreakWindowDays = def.StreakWindowDays
	}
	if cfg.TrendWindowDays <= 0 {
		cfg.TrendWindowDays = def.TrendWindowDays
	}
	if cfg.YearWindowDays <= 0 {
		cfg.YearWindowDays = def.YearWindowDays
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Engine{
		records:  records,
		settings: settings,
		clock:    clk,
		cfg:      cfg,
		logger:   logger.With().Str("component", "stats-engine").Logger(),
	}
}

// Dataset is everything one aggregation pass reads.
type Dataset struct {
	Settings storage.Settings
	Today    string
	Now      time.Time
	Record   storage.DailyRecord // today

	Week   []storage.DailyRecord // Monday to Sunday
	Month  []storage.DailyRecord // whole calendar month
	Year   []storage.DailyRecord // trailing window ending today
	Streak []storage.DailyRecord
	Trend  []storage.DailyRecord
}

// LoadRange returns one record per calendar day in [start, end], oldest
// first. Each day comes from its daily key, then from its week bucket, and
// is otherwise synthesized as an empty day with the given limit. Read
// failures are logged and treated as absence; only cancellation of ctx is
// returned as an error.
func (e *Engine) LoadRange(ctx context.Context, start, end time.Time, limit int) ([]storage.DailyRecord, error) {
	days := storage.Days(start, end)
	out := make([]storage.DailyRecord, 0, len(days))

	var (
		known   map[string]bool
		buckets = make(map[string]storage.WeekBucket)
	)

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := storage.DateKey(day)

		rec, err := e.records.Get(ctx, date)
		if err == nil {
			rec.Date = date
			out = append(out, *rec)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn().Err(err).Str("date", date).Msg("Failed to read daily record")
		}

		if known == nil {
			known = e.knownWeeks(ctx)
		}
		weekKey := storage.WeekKey(day)
		if known[weekKey] {
			bucket, ok := buckets[weekKey]
			if !ok {
				bucket, err = e.records.GetWeekBucket(ctx, weekKey)
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					e.logger.Warn().Err(err).Str("week", weekKey).Msg("Failed to read week bucket")
				}
				buckets[weekKey] = bucket
			}
			if entry, ok := bucket[date]; ok {
				out = append(out, entry.Record(date))
				continue
			}
		}

		out = append(out, storage.DailyRecord{Date: date, Limit: limit})
	}

	return out, nil
}

func (e *Engine) knownWeeks(ctx context.Context) map[string]bool {
	keys, err := e.records.ListWeekKeys(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to list week keys")
	}
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	return known
}

// ComputeStreak evaluates the streak window ending at asOf.
func (e *Engine) ComputeStreak(ctx context.Context, asOf time.Time, limit int) (Streak, error) {
	end := storage.StartOfDay(asOf)
	days, err := e.LoadRange(ctx, end.AddDate(0, 0, -(e.cfg.StreakWindowDays-1)), end, limit)
	if err != nil {
		return Streak{}, err
	}
	return StreakOf(days, storage.DateKey(end), limit), nil
}

// ComputeTrend compares the halves of the trailing windowDays ending today.
func (e *Engine) ComputeTrend(ctx context.Context, windowDays int) (Trend, error) {
	if windowDays < 1 {
		return Trend{Direction: Stable}, nil
	}
	s, err := e.loadSettings(ctx)
	if err != nil {
		return Trend{}, err
	}
	today := storage.StartOfDay(e.clock.Now())
	days, err := e.LoadRange(ctx, today.AddDate(0, 0, -(windowDays-1)), today, s.DailyIntake)
	if err != nil {
		return Trend{}, err
	}
	return TrendOf(counts(days)), nil
}

// Load reads a complete dataset. The independent ranges are loaded concurrently.
func (e *Engine) Load(ctx context.Context) (*Dataset, error) {
	s, err := e.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	today := storage.StartOfDay(now)
	weekStart := storage.WeekStart(today)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	limit := s.DailyIntake

	ds := &Dataset{
		Settings: *s,
		Today:    storage.DateKey(today),
		Now:      now,
	}

	var todayRange []storage.DailyRecord
	g, gctx := errgroup.WithContext(ctx)
	load := func(dst *[]storage.DailyRecord, start, end time.Time) {
		g.Go(func() error {
			days, err := e.LoadRange(gctx, start, end, limit)
			if err != nil {
				return err
			}
			*dst = days
			return nil
		})
	}

	load(&todayRange, today, today)
	load(&ds.Week, weekStart, weekStart.AddDate(0, 0, 6))
	load(&ds.Month, monthStart, monthStart.AddDate(0, 1, -1))
	load(&ds.Year, today.AddDate(0, 0, -(e.cfg.YearWindowDays-1)), today)
	load(&ds.Streak, today.AddDate(0, 0, -(e.cfg.StreakWindowDays-1)), today)
	load(&ds.Trend, today.AddDate(0, 0, -(e.cfg.TrendWindowDays-1)), today)

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load ranges: %w", err)
	}
	ds.Record = todayRange[0]

	return ds, nil
}

// Reload refreshes today's record inside prev and reuses every other day.
// It falls back to Load when prev is nil, the date has rolled over, or the
// settings changed since prev was read.
func (e *Engine) Reload(ctx context.Context, prev *Dataset) (*Dataset, error) {
	if prev == nil {
		return e.Load(ctx)
	}

	s, err := e.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if storage.DateKey(now) != prev.Today || *s != prev.Settings {
		return e.Load(ctx)
	}

	days, err := e.LoadRange(ctx, now, now, s.DailyIntake)
	if err != nil {
		return nil, err
	}
	today := days[0]

	return &Dataset{
		Settings: *s,
		Today:    prev.Today,
		Now:      now,
		Record:   today,
		Week:     patch(prev.Week, today),
		Month:    patch(prev.Month, today),
		Year:     patch(prev.Year, today),
		Streak:   patch(prev.Streak, today),
		Trend:    patch(prev.Trend, today),
	}, nil
}

// Assemble runs a full load and builds a snapshot from it.
func (e *Engine) Assemble(ctx context.Context) (*Snapshot, error) {
	ds, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Build(ds), nil
}

func (e *Engine) loadSettings(ctx context.Context) (*storage.Settings, error) {
	s, err := e.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingSettings, err)
	}
	if s == nil {
		return nil, ErrMissingSettings
	}
	return s, nil
}

func patch(days []storage.DailyRecord, rec storage.DailyRecord) []storage.DailyRecord {
	out := slices.Clone(days)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Date == rec.Date {
			out[i] = rec
			break
		}
	}
	return out
}

func counts(days []storage.DailyRecord) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = d.Count
	}
	return out
}
