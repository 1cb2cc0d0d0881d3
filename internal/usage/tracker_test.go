package usage

import (
	"context"
	"sync"
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

type recorder struct {
	mu     sync.Mutex
	titles []string
}

func (r *recorder) Notify(title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return nil
}

func (r *recorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

type testEnv struct {
	store   *memory.Store
	clock   *clock.TestClock
	notes   *recorder
	tracker *Tracker
	changes int
}

// 08:00 on a Wednesday; session time and wait time are both 30 minutes
func setupTestTracker(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	svc := settings.NewService(store.Settings(), zerolog.Nop())
	require.NoError(t, svc.Init(context.Background(), storage.DefaultSettings()))

	env := &testEnv{
		store: store,
		clock: clock.NewTestClock(time.Date(2024, 3, 20, 8, 0, 0, 0, time.Local)),
		notes: &recorder{},
	}
	env.tracker = NewTracker(store.Records(), svc, env.notes, env.clock, Config{}, zerolog.Nop())
	env.tracker.OnChange(func() { env.changes++ })
	return env
}

func (e *testEnv) record(t *testing.T, date string) storage.DailyRecord {
	t.Helper()
	rec, err := e.store.Records().Get(context.Background(), date)
	require.NoError(t, err)
	return *rec
}

func TestStartEndCycle(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	rec, err := env.tracker.Start(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, 10, rec.Limit)
	assert.Equal(t, storage.StateActive, rec.State(env.clock.Now()))

	_, err = env.tracker.Start(ctx, false)
	assert.ErrorIs(t, err, ErrSessionActive)

	env.clock.Advance(20 * time.Minute)
	rec, err = env.tracker.End(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec.CurrentSessionStart)
	require.NotNil(t, rec.NextAllowedAt)
	assert.True(t, env.clock.Now().Add(30*time.Minute).Equal(*rec.NextAllowedAt))

	_, err = env.tracker.End(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	env.clock.Advance(10 * time.Minute)
	_, err = env.tracker.Start(ctx, false)
	assert.ErrorIs(t, err, ErrWaiting)

	env.clock.Advance(30 * time.Minute)
	rec, err = env.tracker.Start(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, int64(40*60), rec.LongestPause)
	assert.Nil(t, rec.LastSessionEnd)
	assert.Nil(t, rec.NextAllowedAt)

	assert.Equal(t, 3, env.changes)
	stored := env.record(t, "2024-03-20")
	assert.True(t, stored.Equal(*rec))
}

func TestStartWithOverride(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	_, err := env.tracker.Start(ctx, false)
	require.NoError(t, err)
	_, err = env.tracker.End(ctx)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	rec, err := env.tracker.Start(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, int64(60), rec.LongestPause)
}

func TestOverrideClearsState(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	_, err := env.tracker.Start(ctx, false)
	require.NoError(t, err)

	rec, err := env.tracker.Override(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.StateIdle, rec.State(env.clock.Now()))
	assert.Equal(t, 1, rec.Count, "override never decrements")

	_, err = env.tracker.Start(ctx, false)
	require.NoError(t, err)
}

func TestExpire(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	changed, err := env.tracker.Expire(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = env.tracker.Start(ctx, false)
	require.NoError(t, err)

	env.clock.Advance(29 * time.Minute)
	changed, err = env.tracker.Expire(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "session still inside its time")

	env.clock.Advance(time.Minute)
	changed, err = env.tracker.Expire(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	rec := env.record(t, "2024-03-20")
	assert.Equal(t, storage.StateWaiting, rec.State(env.clock.Now()))

	env.clock.Advance(30 * time.Minute)
	changed, err = env.tracker.Expire(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	rec = env.record(t, "2024-03-20")
	assert.Nil(t, rec.NextAllowedAt)
	assert.NotNil(t, rec.LastSessionEnd)

	assert.Equal(t, []string{"Session over", "Wait is over"}, env.notes.sent())
}

func TestEndSessionAcrossMidnight(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	env.clock.Set(time.Date(2024, 3, 20, 23, 50, 0, 0, time.Local))
	_, err := env.tracker.Start(ctx, false)
	require.NoError(t, err)

	env.clock.Set(time.Date(2024, 3, 21, 0, 5, 0, 0, time.Local))
	_, err = env.tracker.Start(ctx, false)
	assert.ErrorIs(t, err, ErrSessionActive)

	status, err := env.tracker.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-21", status.Date)
	assert.Equal(t, 0, status.Count)
	assert.Equal(t, storage.StateActive, status.State)
	assert.Equal(t, int64(15*60), status.SessionRemaining)

	rec, err := env.tracker.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-20", rec.Date)

	// the wait lives on yesterday's record but still applies today
	env.clock.Advance(10 * time.Minute)
	_, err = env.tracker.Start(ctx, false)
	assert.ErrorIs(t, err, ErrWaiting)

	status, err = env.tracker.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.StateWaiting, status.State)
	assert.Equal(t, int64(20*60), status.WaitRemaining)

	_, err = env.tracker.Override(ctx)
	require.NoError(t, err)
	assert.Nil(t, env.record(t, "2024-03-20").NextAllowedAt)

	rec, err = env.tracker.Start(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-21", rec.Date)
	assert.Equal(t, 1, rec.Count)
}

func TestDailyLimitNotification(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := env.tracker.Start(ctx, false)
		require.NoError(t, err)
		_, err = env.tracker.Override(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"Daily limit passed"}, env.notes.sent())
	assert.Equal(t, 11, env.record(t, "2024-03-20").Count)
}

func TestCommitPause(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	// Nothing recorded today
	require.NoError(t, env.tracker.CommitPause(ctx))

	_, err := env.tracker.Start(ctx, false)
	require.NoError(t, err)
	_, err = env.tracker.End(ctx)
	require.NoError(t, err)
	changes := env.changes

	env.clock.Advance(10 * time.Minute)
	require.NoError(t, env.tracker.CommitPause(ctx))
	assert.Equal(t, int64(600), env.record(t, "2024-03-20").LongestPause)

	// Throttled inside the interval
	env.clock.Advance(500 * time.Millisecond)
	require.NoError(t, env.tracker.CommitPause(ctx))
	assert.Equal(t, int64(600), env.record(t, "2024-03-20").LongestPause)

	env.clock.Advance(time.Second)
	require.NoError(t, env.tracker.CommitPause(ctx))
	assert.Equal(t, int64(601), env.record(t, "2024-03-20").LongestPause)

	assert.Equal(t, changes, env.changes, "maintenance writes do not trigger change hooks")
}

func TestCommitPauseNeverShrinks(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	ended := env.clock.Now().Add(-time.Minute)
	require.NoError(t, env.store.Records().Set(ctx, "2024-03-20", storage.DailyRecord{
		Count: 2, Limit: 10, LongestPause: 3600, LastSessionEnd: &ended,
	}))

	require.NoError(t, env.tracker.CommitPause(ctx))
	assert.Equal(t, int64(3600), env.record(t, "2024-03-20").LongestPause)
}

func TestStatus(t *testing.T) {
	env := setupTestTracker(t)
	ctx := context.Background()

	status, err := env.tracker.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.StateIdle, status.State)
	assert.Equal(t, 10, status.Limit)

	_, err = env.tracker.Start(ctx, false)
	require.NoError(t, err)
	env.clock.Advance(5 * time.Minute)
	_, err = env.tracker.End(ctx)
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)

	status, err = env.tracker.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.StateWaiting, status.State)
	assert.Equal(t, int64(20*60), status.WaitRemaining)
	assert.Equal(t, int64(10*60), status.CurrentPause)
	assert.Equal(t, 1, status.Count)
	assert.False(t, status.OverLimit())
}

func TestWatchStopsWithContext(t *testing.T) {
	env := setupTestTracker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.tracker.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
