package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Records() RecordStore
	Settings() SettingsStore
}

// RecordStore manages daily usage records and their week buckets.
type RecordStore interface {
	// Get returns the record for date, or ErrNotFound.
	Get(ctx context.Context, date string) (*DailyRecord, error)
	// Set writes the record for date together with its week bucket entry
	// and the week index, as one unit.
	Set(ctx context.Context, date string, record DailyRecord) error
	// GetWeekBucket returns the bucket stored under weekKey, or ErrNotFound.
	GetWeekBucket(ctx context.Context, weekKey string) (WeekBucket, error)
	// ListWeekKeys returns every known week key in ascending order.
	ListWeekKeys(ctx context.Context) ([]string, error)
	// List returns all daily records ordered by date.
	List(ctx context.Context) ([]DailyRecord, error)
	// Clear removes all records, buckets and the week index.
	Clear(ctx context.Context) error
}

// SettingsStore persists the settings singleton.
type SettingsStore interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, settings Settings) error
}
