// Package memory is an in-process storage.Store used by tests and one-shot
// commands that never persist anything.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/goodtune/snuskoll/internal/storage"
)

// Store keeps records and settings in maps.
type Store struct {
	mu       sync.RWMutex
	days     map[string]storage.DailyRecord
	weeks    map[string]storage.WeekBucket
	settings *storage.Settings
}

// New returns an empty store.
func New() *Store {
	return &Store{
		days:  make(map[string]storage.DailyRecord),
		weeks: make(map[string]storage.WeekBucket),
	}
}

func (s *Store) Close() error                    { return nil }
func (s *Store) Records() storage.RecordStore    { return (*recordStore)(s) }
func (s *Store) Settings() storage.SettingsStore { return (*settingsStore)(s) }

// PutWeekEntry writes a week bucket entry without a daily record, as left
// behind by data whose daily keys were lost.
func (s *Store) PutWeekEntry(date string, entry storage.WeekEntry) error {
	week, err := storage.WeekKeyOf(date)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.weeks[week] == nil {
		s.weeks[week] = make(storage.WeekBucket)
	}
	s.weeks[week][date] = entry
	return nil
}

type recordStore Store

func (r *recordStore) Get(ctx context.Context, date string) (*storage.DailyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.days[date]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rec, nil
}

func (r *recordStore) Set(ctx context.Context, date string, record storage.DailyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	week, err := storage.WeekKeyOf(date)
	if err != nil {
		return err
	}
	record.Date = date

	r.mu.Lock()
	defer r.mu.Unlock()
	r.days[date] = record
	if r.weeks[week] == nil {
		r.weeks[week] = make(storage.WeekBucket)
	}
	r.weeks[week][date] = record.Entry()
	return nil
}

func (r *recordStore) GetWeekBucket(ctx context.Context, week string) (storage.WeekBucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket, ok := r.weeks[week]
	if !ok || len(bucket) == 0 {
		return nil, storage.ErrNotFound
	}
	return maps.Clone(bucket), nil
}

func (r *recordStore) ListWeekKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.weeks)), nil
}

func (r *recordStore) List(ctx context.Context) ([]storage.DailyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.DailyRecord, 0, len(r.days))
	for _, date := range slices.Sorted(maps.Keys(r.days)) {
		out = append(out, r.days[date])
	}
	return out, nil
}

func (r *recordStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days = make(map[string]storage.DailyRecord)
	r.weeks = make(map[string]storage.WeekBucket)
	return nil
}

type settingsStore Store

func (s *settingsStore) Load(ctx context.Context) (*storage.Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return nil, storage.ErrNotFound
	}
	out := *s.settings
	return &out, nil
}

func (s *settingsStore) Save(ctx context.Context, settings storage.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}
