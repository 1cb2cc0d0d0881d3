package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
)

// countingRecords is an in-memory RecordStore that counts backing reads.
type countingRecords struct {
	mu      sync.Mutex
	days    map[string]DailyRecord
	gets    int
	buckets int
}

func newCountingRecords() *countingRecords {
	return &countingRecords{days: make(map[string]DailyRecord)}
}

func (r *countingRecords) Get(_ context.Context, date string) (*DailyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	rec, ok := r.days[date]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *countingRecords) Set(_ context.Context, date string, record DailyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.Date = date
	r.days[date] = record
	return nil
}

func (r *countingRecords) GetWeekBucket(_ context.Context, weekKey string) (WeekBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets++
	bucket := make(WeekBucket)
	for date, rec := range r.days {
		if wk, _ := WeekKeyOf(date); wk == weekKey {
			bucket[date] = rec.Entry()
		}
	}
	if len(bucket) == 0 {
		return nil, ErrNotFound
	}
	return bucket, nil
}

func (r *countingRecords) ListWeekKeys(context.Context) ([]string, error) { return nil, nil }
func (r *countingRecords) List(context.Context) ([]DailyRecord, error)    { return nil, nil }

func (r *countingRecords) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days = make(map[string]DailyRecord)
	return nil
}

func (r *countingRecords) reads() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets, r.buckets
}

func newTestCache(t *testing.T) (*CachedRecords, *countingRecords, *clock.TestClock) {
	t.Helper()
	inner := newCountingRecords()
	clk := clock.NewTestClock(time.Date(2024, 3, 20, 12, 0, 0, 0, time.Local)) // Wednesday
	return NewCachedRecords(inner, clk, 64, time.Hour), inner, clk
}

func TestCachedRecordsSettledDays(t *testing.T) {
	ctx := context.Background()
	cache, inner, _ := newTestCache(t)

	_ = inner.Set(ctx, "2024-03-19", DailyRecord{Count: 3, Limit: 10})

	for i := 0; i < 3; i++ {
		rec, err := cache.Get(ctx, "2024-03-19")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec.Count != 3 {
			t.Fatalf("expected count 3, got %d", rec.Count)
		}
		rec.Count = 99 // callers get their own copy
	}

	if gets, _ := inner.reads(); gets != 1 {
		t.Errorf("expected 1 backing read for a settled day, got %d", gets)
	}
}

func TestCachedRecordsNegativeResults(t *testing.T) {
	ctx := context.Background()
	cache, inner, _ := newTestCache(t)

	for i := 0; i < 2; i++ {
		if _, err := cache.Get(ctx, "2024-01-01"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if gets, _ := inner.reads(); gets != 1 {
		t.Errorf("expected missing day to be cached, got %d reads", gets)
	}

	// A write through the cache replaces the negative entry
	if err := cache.Set(ctx, "2024-01-01", DailyRecord{Count: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, err := cache.Get(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("expected count 1 after write, got %d", rec.Count)
	}
}

func TestCachedRecordsTodayBypassesCache(t *testing.T) {
	ctx := context.Background()
	cache, inner, clk := newTestCache(t)

	today := DateKey(clk.Now())
	_ = inner.Set(ctx, today, DailyRecord{Count: 1})

	_, _ = cache.Get(ctx, today)
	_ = inner.Set(ctx, today, DailyRecord{Count: 2}) // a writer that skips the cache

	rec, err := cache.Get(ctx, today)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Count != 2 {
		t.Errorf("expected fresh read for today, got count %d", rec.Count)
	}
	if gets, _ := inner.reads(); gets != 2 {
		t.Errorf("expected 2 backing reads for today, got %d", gets)
	}
}

func TestCachedRecordsWeekBuckets(t *testing.T) {
	ctx := context.Background()
	cache, inner, clk := newTestCache(t)

	_ = inner.Set(ctx, "2024-03-12", DailyRecord{Count: 4})
	_ = inner.Set(ctx, "2024-03-19", DailyRecord{Count: 5})

	tests := []struct {
		name      string
		week      string
		wantReads int
	}{
		{"closed week is cached", "2024-03-11", 1},
		{"current week is not", "2024-03-18", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, before := inner.reads()
			for i := 0; i < 2; i++ {
				if _, err := cache.GetWeekBucket(ctx, tt.week); err != nil {
					t.Fatalf("get week bucket: %v", err)
				}
			}
			_, after := inner.reads()
			if after-before != tt.wantReads {
				t.Errorf("expected %d backing reads, got %d", tt.wantReads, after-before)
			}
		})
	}

	// Moving into the next week settles the week that was current
	clk.Set(time.Date(2024, 3, 25, 9, 0, 0, 0, time.Local))
	if !cache.settledWeek("2024-03-18") {
		t.Error("expected 2024-03-18 to be settled on 2024-03-25")
	}
}

func TestCachedRecordsSetInvalidatesWeek(t *testing.T) {
	ctx := context.Background()
	cache, inner, _ := newTestCache(t)

	_ = inner.Set(ctx, "2024-03-12", DailyRecord{Count: 4})
	if _, err := cache.GetWeekBucket(ctx, "2024-03-11"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	if err := cache.Set(ctx, "2024-03-13", DailyRecord{Count: 7}); err != nil {
		t.Fatalf("set: %v", err)
	}
	bucket, err := cache.GetWeekBucket(ctx, "2024-03-11")
	if err != nil {
		t.Fatalf("get week bucket: %v", err)
	}
	if bucket["2024-03-13"].Count != 7 {
		t.Errorf("expected invalidated bucket to include new day, got %v", bucket)
	}
}

// gatedRecords blocks Set until release is closed.
type gatedRecords struct {
	*countingRecords
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRecords) Set(ctx context.Context, date string, record DailyRecord) error {
	close(g.entered)
	<-g.release
	return g.countingRecords.Set(ctx, date, record)
}

func TestCachedRecordsReadDuringSet(t *testing.T) {
	ctx := context.Background()
	inner := &gatedRecords{
		countingRecords: newCountingRecords(),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	clk := clock.NewTestClock(time.Date(2024, 3, 20, 0, 15, 0, 0, time.Local))
	cache := NewCachedRecords(inner, clk, 64, time.Hour)

	// A session that started before midnight and is still open
	started := time.Date(2024, 3, 19, 23, 50, 0, 0, time.Local)
	_ = inner.countingRecords.Set(ctx, "2024-03-19", DailyRecord{Count: 4, CurrentSessionStart: &started})

	ended := DailyRecord{Count: 4, LastSessionEnd: stampOf(clk.Now())}
	setDone := make(chan error, 1)
	go func() { setDone <- cache.Set(ctx, "2024-03-19", ended) }()
	<-inner.entered

	getDone := make(chan struct{})
	go func() {
		_, _ = cache.Get(ctx, "2024-03-19")
		close(getDone)
	}()

	// Let the read reach the cache before the write lands
	time.Sleep(20 * time.Millisecond)
	close(inner.release)

	if err := <-setDone; err != nil {
		t.Fatalf("set: %v", err)
	}
	<-getDone

	rec, err := cache.Get(ctx, "2024-03-19")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.CurrentSessionStart != nil {
		t.Errorf("expected ended session after Set returned, got session start %v", rec.CurrentSessionStart)
	}
	if rec.LastSessionEnd == nil {
		t.Error("expected last session end to be set")
	}
}

func stampOf(t time.Time) *time.Time { return &t }

func TestCachedRecordsClear(t *testing.T) {
	ctx := context.Background()
	cache, inner, _ := newTestCache(t)

	_ = inner.Set(ctx, "2024-03-01", DailyRecord{Count: 2})
	_, _ = cache.Get(ctx, "2024-03-01")

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := cache.Get(ctx, "2024-03-01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestDays(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  int
	}{
		{"single day", "2024-03-10", "2024-03-10", 1},
		{"leap february", "2024-02-01", "2024-02-29", 29},
		{"across DST change", "2024-03-28", "2024-04-02", 6},
		{"inverted", "2024-03-10", "2024-03-09", 0},
		{"trailing year", "2023-03-11", "2024-03-09", 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, _ := ParseDate(tt.start)
			end, _ := ParseDate(tt.end)
			days := Days(start, end)
			if len(days) != tt.want {
				t.Fatalf("expected %d days, got %d", tt.want, len(days))
			}
			for i := 1; i < len(days); i++ {
				if DateKey(days[i]) <= DateKey(days[i-1]) {
					t.Fatalf("days out of order at %d: %s after %s", i, DateKey(days[i]), DateKey(days[i-1]))
				}
			}
		})
	}
}

func TestWeekKey(t *testing.T) {
	tests := map[string]string{
		"2024-03-11": "2024-03-11", // Monday
		"2024-03-17": "2024-03-11", // Sunday
		"2024-01-01": "2024-01-01",
		"2023-12-31": "2023-12-25",
	}
	for date, want := range tests {
		got, err := WeekKeyOf(date)
		if err != nil {
			t.Fatalf("WeekKeyOf(%s): %v", date, err)
		}
		if got != want {
			t.Errorf("WeekKeyOf(%s) = %s, want %s", date, got, want)
		}
	}
}
