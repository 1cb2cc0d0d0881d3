package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/snuskoll/internal/config"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/goodtune/snuskoll/internal/storage/storagetest"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays 0
	cfg := config.RedisConfig{
		Host:           mr.Addr(),
		Port:           0,
		DB:             0,
		PoolSize:       10,
		MinIdleConns:   1,
		DialTimeout:    "5s",
		ReadTimeout:    "3s",
		WriteTimeout:   "3s",
		ConnectTimeout: "2s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func ms(t time.Time) *time.Time {
	v := storage.Millis(t)
	return &v
}

func TestRecordStore_RoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	records := store.Records()

	now := time.Date(2024, 3, 14, 9, 30, 15, 123456789, time.Local)
	record := storage.DailyRecord{
		Date:                "2024-03-14",
		Count:               4,
		Limit:               10,
		LongestPause:        5400,
		CurrentSessionStart: nil,
		LastSessionEnd:      ms(now),
		NextAllowedAt:       ms(now.Add(30 * time.Minute)),
	}

	if err := records.Set(ctx, record.Date, record); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := records.Get(ctx, record.Date)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !got.Equal(record) {
		t.Errorf("Round trip mismatch:\n got  %+v\n want %+v", *got, record)
	}
	if got.CurrentSessionStart != nil {
		t.Errorf("Expected CurrentSessionStart to stay nil, got %v", got.CurrentSessionStart)
	}
}

func TestRecordStore_GetMissing(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	_, err := store.Records().Get(context.Background(), "2024-01-01")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	_, err = store.Records().GetWeekBucket(context.Background(), "2024-01-01")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for week bucket, got %v", err)
	}
}

func TestRecordStore_WeekBucketMirrorsDay(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	records := store.Records()

	// 2024-03-11 is a Monday; 2024-03-17 the Sunday of the same week
	for _, r := range []storage.DailyRecord{
		{Date: "2024-03-11", Count: 3, Limit: 10},
		{Date: "2024-03-17", Count: 12, Limit: 10, LongestPause: 60},
		{Date: "2024-03-18", Count: 1, Limit: 8},
	} {
		if err := records.Set(ctx, r.Date, r); err != nil {
			t.Fatalf("Set %s failed: %v", r.Date, err)
		}
	}

	bucket, err := records.GetWeekBucket(ctx, "2024-03-11")
	if err != nil {
		t.Fatalf("GetWeekBucket failed: %v", err)
	}

	if len(bucket) != 2 {
		t.Fatalf("Expected 2 entries in week 2024-03-11, got %d", len(bucket))
	}
	if bucket["2024-03-17"].Count != 12 || bucket["2024-03-17"].LongestPause != 60 {
		t.Errorf("Unexpected Sunday entry: %+v", bucket["2024-03-17"])
	}

	// Overwriting the day updates the bucket as well
	if err := records.Set(ctx, "2024-03-11", storage.DailyRecord{Count: 5, Limit: 10}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	bucket, _ = records.GetWeekBucket(ctx, "2024-03-11")
	if bucket["2024-03-11"].Count != 5 {
		t.Errorf("Expected bucket count 5 after overwrite, got %d", bucket["2024-03-11"].Count)
	}

	weeks, err := records.ListWeekKeys(ctx)
	if err != nil {
		t.Fatalf("ListWeekKeys failed: %v", err)
	}
	if len(weeks) != 2 || weeks[0] != "2024-03-11" || weeks[1] != "2024-03-18" {
		t.Errorf("Unexpected week keys: %v", weeks)
	}
}

func TestRecordStore_ListAndClear(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	records := store.Records()

	for _, date := range []string{"2024-02-03", "2024-02-01", "2024-02-02"} {
		if err := records.Set(ctx, date, storage.DailyRecord{Count: 1, Limit: 10}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := store.Settings().Save(ctx, storage.DefaultSettings()); err != nil {
		t.Fatalf("Save settings failed: %v", err)
	}

	list, err := records.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(list))
	}
	if list[0].Date != "2024-02-01" || list[2].Date != "2024-02-03" {
		t.Errorf("Expected records sorted by date, got %s..%s", list[0].Date, list[2].Date)
	}

	if err := records.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	list, _ = records.List(ctx)
	if len(list) != 0 {
		t.Errorf("Expected no records after Clear, got %d", len(list))
	}
	if mr.Exists(weekIndexKey()) {
		t.Error("Week index should be removed by Clear")
	}
	if !mr.Exists(settingsKey()) {
		t.Error("Settings should survive Clear")
	}
}

func TestSettingsStore(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if _, err := store.Settings().Load(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before first save, got %v", err)
	}

	want := storage.DefaultSettings()
	want.DailyIntake = 6
	want.TargetDailyIntake = 4
	want.Goal = storage.GoalQuit

	if err := store.Settings().Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Settings().Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *got != want {
		t.Errorf("Expected %+v, got %+v", want, *got)
	}
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := setupTestStore(t)
		return store
	})
}
