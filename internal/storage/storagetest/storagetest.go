// Package storagetest holds behaviour checks shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/snuskoll/internal/storage"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) storage.Store

// Run exercises the RecordStore and SettingsStore contracts against open.
func Run(t *testing.T, open Opener) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, open(t)) })
	t.Run("WeekBuckets", func(t *testing.T) { testWeekBuckets(t, open(t)) })
	t.Run("ListAndClear", func(t *testing.T) { testListAndClear(t, open(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, open(t)) })
}

func stamp(t time.Time) *time.Time {
	v := storage.Millis(t)
	return &v
}

func testRoundTrip(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	start := time.Date(2024, 6, 3, 7, 45, 0, 987654321, time.Local)
	cases := []storage.DailyRecord{
		{Date: "2024-06-03", Count: 0, Limit: 10},
		{Date: "2024-06-04", Count: 2, Limit: 10, LongestPause: 3600, CurrentSessionStart: stamp(start)},
		{Date: "2024-06-05", Count: 7, Limit: 8, LongestPause: 120, LastSessionEnd: stamp(start), NextAllowedAt: stamp(start.Add(30 * time.Minute))},
	}

	for _, want := range cases {
		if err := store.Records().Set(ctx, want.Date, want); err != nil {
			t.Fatalf("set %s: %v", want.Date, err)
		}
		got, err := store.Records().Get(ctx, want.Date)
		if err != nil {
			t.Fatalf("get %s: %v", want.Date, err)
		}
		if !got.Equal(want) {
			t.Errorf("round trip %s:\n got  %+v\n want %+v", want.Date, *got, want)
		}
	}

	// The key wins over whatever Date the caller put in the record
	if err := store.Records().Set(ctx, "2024-06-06", storage.DailyRecord{Date: "bogus", Count: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Records().Get(ctx, "2024-06-06")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Date != "2024-06-06" {
		t.Errorf("expected date to follow key, got %q", got.Date)
	}
}

func testMissing(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.Records().Get(ctx, "2023-01-01"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing day, got %v", err)
	}
	if _, err := store.Records().GetWeekBucket(ctx, "2023-01-02"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing week, got %v", err)
	}
	weeks, err := store.Records().ListWeekKeys(ctx)
	if err != nil {
		t.Fatalf("list week keys: %v", err)
	}
	if len(weeks) != 0 {
		t.Errorf("expected no week keys, got %v", weeks)
	}
}

func testWeekBuckets(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	// 2024-01-01 was a Monday; 2024-01-07 the Sunday that closes its week
	days := []storage.DailyRecord{
		{Date: "2024-01-07", Count: 4, Limit: 10},
		{Date: "2024-01-01", Count: 2, Limit: 10},
		{Date: "2024-01-08", Count: 9, Limit: 8},
		{Date: "2023-12-31", Count: 1, Limit: 12},
	}
	for _, d := range days {
		if err := store.Records().Set(ctx, d.Date, d); err != nil {
			t.Fatalf("set %s: %v", d.Date, err)
		}
	}

	bucket, err := store.Records().GetWeekBucket(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("get week bucket: %v", err)
	}
	if len(bucket) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(bucket), bucket)
	}
	if bucket["2024-01-07"].Count != 4 {
		t.Errorf("expected Sunday count 4, got %d", bucket["2024-01-07"].Count)
	}

	// Rewriting a day keeps its bucket entry consistent
	if err := store.Records().Set(ctx, "2024-01-07", storage.DailyRecord{Count: 6, Limit: 10}); err != nil {
		t.Fatalf("set: %v", err)
	}
	bucket, err = store.Records().GetWeekBucket(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("get week bucket: %v", err)
	}
	day, err := store.Records().Get(ctx, "2024-01-07")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bucket["2024-01-07"].Record("2024-01-07").Equal(*day) {
		t.Errorf("bucket entry %+v diverged from record %+v", bucket["2024-01-07"], *day)
	}

	weeks, err := store.Records().ListWeekKeys(ctx)
	if err != nil {
		t.Fatalf("list week keys: %v", err)
	}
	want := []string{"2023-12-25", "2024-01-01", "2024-01-08"}
	if len(weeks) != len(want) {
		t.Fatalf("expected week keys %v, got %v", want, weeks)
	}
	for i := range want {
		if weeks[i] != want[i] {
			t.Errorf("week key %d: expected %s, got %s", i, want[i], weeks[i])
		}
	}
}

func testListAndClear(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	for _, date := range []string{"2024-04-03", "2024-04-01", "2024-04-02"} {
		if err := store.Records().Set(ctx, date, storage.DailyRecord{Count: 1, Limit: 5}); err != nil {
			t.Fatalf("set %s: %v", date, err)
		}
	}
	if err := store.Settings().Save(ctx, storage.DefaultSettings()); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	list, err := store.Records().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Date != "2024-04-01" || list[2].Date != "2024-04-03" {
		t.Fatalf("expected three records in date order, got %+v", list)
	}

	if err := store.Records().Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	list, err = store.Records().List(ctx)
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty store after clear, got %d records", len(list))
	}
	weeks, _ := store.Records().ListWeekKeys(ctx)
	if len(weeks) != 0 {
		t.Errorf("expected no week keys after clear, got %v", weeks)
	}
	if _, err := store.Settings().Load(ctx); err != nil {
		t.Errorf("settings should survive clear: %v", err)
	}

	// The store is still writable after a clear
	if err := store.Records().Set(ctx, "2024-04-04", storage.DailyRecord{Count: 2}); err != nil {
		t.Errorf("set after clear: %v", err)
	}
}

func testSettings(t *testing.T, store storage.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.Settings().Load(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	want := storage.DefaultSettings()
	want.CostPerCan = 42.5
	want.TargetWaitTime = 45
	want.Pace = storage.PaceSlow

	if err := store.Settings().Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Settings().Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != want {
		t.Errorf("expected %+v, got %+v", want, *got)
	}

	want.DailyIntake = 3
	if err := store.Settings().Save(ctx, want); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, _ = store.Settings().Load(ctx)
	if got.DailyIntake != 3 {
		t.Errorf("expected overwrite to stick, got daily intake %d", got.DailyIntake)
	}
}
