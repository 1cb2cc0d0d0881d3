package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/settings"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/goodtune/snuskoll/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*memory.Store, *settings.Service) {
	t.Helper()
	store := memory.New()
	svc := settings.NewService(store.Settings(), zerolog.Nop())
	require.NoError(t, svc.Init(context.Background(), storage.DefaultSettings()))
	return store, svc
}

func seed(t *testing.T, records storage.RecordStore, days map[string]int) {
	t.Helper()
	for date, count := range days {
		require.NoError(t, records.Set(context.Background(), date, storage.DailyRecord{Date: date, Count: count, Limit: 10}))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, srcSettings := setupTestStore(t)
	seed(t, src.Records(), map[string]int{"2024-03-18": 4, "2024-03-19": 12, "2024-03-20": 0})
	_, err := srcSettings.Update(ctx, func(s *storage.Settings) { s.DailyIntake = 7 })
	require.NoError(t, err)

	now := time.Date(2024, 3, 20, 3, 0, 0, 0, time.UTC)
	a, err := Export(ctx, src.Records(), srcSettings, now)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, a.Version)
	require.Len(t, a.Records, 3)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))
	decoded, err := Read(&buf)
	require.NoError(t, err)
	assert.True(t, now.Equal(decoded.CreatedAt))

	dst, dstSettings := setupTestStore(t)
	seed(t, dst.Records(), map[string]int{"2023-01-01": 3})

	broadcasts := 0
	dstSettings.Subscribe(func() { broadcasts++ })
	require.NoError(t, Import(ctx, dst.Records(), dstSettings, decoded))

	list, err := dst.Records().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2024-03-18", list[0].Date)
	assert.Equal(t, 12, list[1].Count)

	_, err = dst.Records().Get(ctx, "2023-01-01")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bucket, err := dst.Records().GetWeekBucket(ctx, "2024-03-18")
	require.NoError(t, err)
	assert.Len(t, bucket, 3)

	got, err := dstSettings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, got.DailyIntake)
	assert.Equal(t, 1, broadcasts)
}

func TestExportWithoutSettings(t *testing.T) {
	store := memory.New()
	svc := settings.NewService(store.Settings(), zerolog.Nop())

	a, err := Export(context.Background(), store.Records(), svc, time.Now())
	require.NoError(t, err)
	assert.Nil(t, a.Settings)
	assert.Empty(t, a.Records)
}

func TestImportRejectsBadArchive(t *testing.T) {
	invalid := storage.DefaultSettings()
	invalid.WaitTime = 0

	tests := []struct {
		name    string
		archive Archive
	}{
		{"future version", Archive{Version: FormatVersion + 1}},
		{"bad date", Archive{Version: 1, Records: []storage.DailyRecord{{Date: "20-03-2024"}}}},
		{"duplicate", Archive{Version: 1, Records: []storage.DailyRecord{{Date: "2024-03-20"}, {Date: "2024-03-20"}}}},
		{"bad settings", Archive{Version: 1, Settings: &invalid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := setupTestStore(t)
			seed(t, store.Records(), map[string]int{"2024-03-01": 2})

			err := Import(context.Background(), store.Records(), svc, &tt.archive)
			require.Error(t, err)

			// nothing was cleared
			_, err = store.Records().Get(context.Background(), "2024-03-01")
			assert.NoError(t, err)
		})
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not an archive")))
	assert.Error(t, err)
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "backup.json.zst")
	a := &Archive{Version: FormatVersion, Records: []storage.DailyRecord{{Date: "2024-03-20", Count: 5, Limit: 10}}}

	require.NoError(t, WriteFile(path, a))
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, 5, got.Records[0].Count)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestNextRun(t *testing.T) {
	loc := time.Local
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before", time.Date(2024, 3, 20, 2, 59, 0, 0, loc), time.Date(2024, 3, 20, 3, 0, 0, 0, loc)},
		{"exactly", time.Date(2024, 3, 20, 3, 0, 0, 0, loc), time.Date(2024, 3, 21, 3, 0, 0, 0, loc)},
		{"after", time.Date(2024, 3, 20, 15, 0, 0, 0, loc), time.Date(2024, 3, 21, 3, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(nil, nil, t.TempDir(), "03:00", 3, clock.NewTestClock(tt.now), zerolog.Nop())
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(s.nextRun()), "got %v", s.nextRun())
		})
	}
}

func TestNewSchedulerRejectsBadTime(t *testing.T) {
	_, err := NewScheduler(nil, nil, t.TempDir(), "3am", 3, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunOncePrunes(t *testing.T) {
	store, svc := setupTestStore(t)
	seed(t, store.Records(), map[string]int{"2024-03-20": 3})

	dir := t.TempDir()
	clk := clock.NewTestClock(time.Date(2024, 3, 20, 3, 0, 0, 0, time.Local))
	s, err := NewScheduler(store.Records(), svc, dir, "03:00", 2, clk, zerolog.Nop())
	require.NoError(t, err)

	var paths []string
	for range 4 {
		path, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		paths = append(paths, path)
		clk.Advance(24 * time.Hour)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Base(paths[2]), entries[0].Name())
	assert.Equal(t, filepath.Base(paths[3]), entries[1].Name())

	a, err := ReadFile(paths[3])
	require.NoError(t, err)
	require.Len(t, a.Records, 1)
	assert.Equal(t, 3, a.Records[0].Count)
}

func TestStartStop(t *testing.T) {
	store, svc := setupTestStore(t)
	s, err := NewScheduler(store.Records(), svc, t.TempDir(), "03:00", 2, nil, zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	s.Stop()
	s.Stop()
}
