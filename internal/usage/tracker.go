package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/metrics"
	"github.com/goodtune/snuskoll/internal/notify"
	"github.com/goodtune/snuskoll/internal/stats"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultPauseCommitInterval bounds how often the current pause is written back
	DefaultPauseCommitInterval = time.Second

	// DefaultWatchInterval is how often Watch checks for expired sessions and waits
	DefaultWatchInterval = time.Second
)

var (
	ErrSessionActive   = errors.New("a session is already running")
	ErrWaiting         = errors.New("wait period has not ended")
	ErrNoActiveSession = errors.New("no active session")
)

// SettingsProvider supplies the current settings.
type SettingsProvider interface {
	Get(ctx context.Context) (*storage.Settings, error)
}

// Config holds tracker configuration
type Config struct {
	PauseCommitInterval time.Duration
}

// Tracker applies usage actions to the daily records.
type Tracker struct {
	records  storage.RecordStore
	settings SettingsProvider
	notifier notify.Notifier
	clock    clock.Clock
	config   Config
	logger   zerolog.Logger

	mu              sync.Mutex // serializes read-modify-write of records
	lastPauseCommit time.Time

	hookMu   sync.RWMutex
	onChange func()
}

// NewTracker creates a new usage tracker
func NewTracker(records storage.RecordStore, settings SettingsProvider, notifier notify.Notifier, clk clock.Clock, config Config, logger zerolog.Logger) *Tracker {
	if config.PauseCommitInterval <= 0 {
		config.PauseCommitInterval = DefaultPauseCommitInterval
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Tracker{
		records:  records,
		settings: settings,
		notifier: notifier,
		clock:    clk,
		config:   config,
		logger:   logger.With().Str("component", "usage-tracker").Logger(),
	}
}

// OnChange registers fn to run after every action that modified a record.
func (t *Tracker) OnChange(fn func()) {
	t.hookMu.Lock()
	t.onChange = fn
	t.hookMu.Unlock()
}

func (t *Tracker) changed() {
	t.hookMu.RLock()
	fn := t.onChange
	t.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Start logs one portion and begins a session. It fails while a session is
// running, and while the wait period is in effect unless override is set.
func (t *Tracker) Start(ctx context.Context, override bool) (*storage.DailyRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	now := t.clock.Now()

	rec, err := t.current(ctx, now, s.DailyIntake)
	if err != nil {
		return nil, err
	}

	if rec.CurrentSessionStart != nil {
		return nil, ErrSessionActive
	}
	if until := t.waitUntil(ctx, rec, now); until != nil {
		if !override {
			return nil, ErrWaiting
		}
		metrics.SessionEvents.WithLabelValues("override").Inc()
		t.logger.Info().Time("next_allowed_at", *until).Msg("Wait period overridden")
	}

	if rec.LastSessionEnd != nil {
		if pause := int64(now.Sub(*rec.LastSessionEnd) / time.Second); pause > rec.LongestPause {
			rec.LongestPause = pause
		}
	}

	start := storage.Millis(now)
	rec.Count++
	rec.Limit = s.DailyIntake
	rec.CurrentSessionStart = &start
	rec.LastSessionEnd = nil
	rec.NextAllowedAt = nil

	if err := t.records.Set(ctx, rec.Date, rec); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	metrics.PortionsLogged.Inc()
	metrics.SessionEvents.WithLabelValues("start").Inc()
	t.logger.Info().
		Str("date", rec.Date).
		Int("count", rec.Count).
		Int("limit", rec.Limit).
		Msg("Session started")

	if rec.Count > rec.Limit {
		t.notify("Daily limit passed", fmt.Sprintf("%d of %d portions used today", rec.Count, rec.Limit))
	}

	t.changed()
	return &rec, nil
}

// End finishes the running session and starts the wait period.
func (t *Tracker) End(ctx context.Context) (*storage.DailyRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	now := t.clock.Now()

	rec, err := t.current(ctx, now, s.DailyIntake)
	if err != nil {
		return nil, err
	}
	if rec.CurrentSessionStart == nil {
		return nil, ErrNoActiveSession
	}

	if err := t.endSession(ctx, &rec, now, s.WaitDuration()); err != nil {
		return nil, err
	}
	metrics.SessionEvents.WithLabelValues("end").Inc()

	t.changed()
	return &rec, nil
}

// Override clears any running session and wait period, including one
// carried over from yesterday, and returns today's record.
func (t *Tracker) Override(ctx context.Context) (*storage.DailyRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	now := t.clock.Now()

	yesterday, err := t.records.Get(ctx, storage.DateKey(now.AddDate(0, 0, -1)))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load record: %w", err)
	case yesterday.State(now) != storage.StateIdle:
		yesterday.CurrentSessionStart = nil
		yesterday.NextAllowedAt = nil
		if err := t.records.Set(ctx, yesterday.Date, *yesterday); err != nil {
			return nil, fmt.Errorf("failed to save record: %w", err)
		}
	}

	rec, err := t.load(ctx, storage.DateKey(now), s.DailyIntake)
	if err != nil {
		return nil, err
	}

	rec.CurrentSessionStart = nil
	rec.LastSessionEnd = nil
	rec.NextAllowedAt = nil
	if err := t.records.Set(ctx, rec.Date, rec); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	metrics.SessionEvents.WithLabelValues("override").Inc()
	t.logger.Info().Str("date", rec.Date).Msg("Emergency override, session and wait cleared")

	t.changed()
	return &rec, nil
}

// Expire ends sessions that ran past the session time and clears wait
// periods that have passed. It reports whether anything changed.
func (t *Tracker) Expire(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.settings.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load settings: %w", err)
	}
	now := t.clock.Now()

	rec, err := t.current(ctx, now, s.DailyIntake)
	if err != nil {
		return false, err
	}

	switch {
	case rec.CurrentSessionStart != nil:
		if now.Sub(*rec.CurrentSessionStart) < s.SessionDuration() {
			return false, nil
		}
		if err := t.endSession(ctx, &rec, now, s.WaitDuration()); err != nil {
			return false, err
		}
		metrics.SessionEvents.WithLabelValues("expire").Inc()
		t.notify("Session over", fmt.Sprintf("Next portion at %s", rec.NextAllowedAt.Format("15:04")))

	case rec.NextAllowedAt != nil && !rec.NextAllowedAt.After(now):
		rec.NextAllowedAt = nil
		if err := t.records.Set(ctx, rec.Date, rec); err != nil {
			return false, fmt.Errorf("failed to save record: %w", err)
		}
		t.logger.Debug().Str("date", rec.Date).Msg("Wait period ended")
		t.notify("Wait is over", "You can take a portion again")

	default:
		return false, nil
	}

	t.changed()
	return true, nil
}

// CommitPause writes the pause since the last session into LongestPause
// when it beats the stored value. Writes are throttled to one per
// PauseCommitInterval.
func (t *Tracker) CommitPause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if !t.lastPauseCommit.IsZero() && now.Sub(t.lastPauseCommit) < t.config.PauseCommitInterval {
		return nil
	}

	rec, err := t.records.Get(ctx, storage.DateKey(now))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	pause := stats.CurrentPause(*rec, now)
	if pause <= rec.LongestPause {
		return nil
	}

	rec.LongestPause = pause
	if err := t.records.Set(ctx, rec.Date, *rec); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	t.lastPauseCommit = now
	metrics.PauseCommits.Inc()

	return nil
}

// Status reports today's usage and any running session or wait.
func (t *Tracker) Status(ctx context.Context) (*Status, error) {
	s, err := t.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	now := t.clock.Now()

	rec, err := t.current(ctx, now, s.DailyIntake)
	if err != nil {
		return nil, err
	}
	today := rec
	if rec.Date != storage.DateKey(now) {
		if today, err = t.load(ctx, storage.DateKey(now), s.DailyIntake); err != nil {
			return nil, err
		}
	}

	status := &Status{
		Date:         today.Date,
		Count:        today.Count,
		Limit:        today.Limit,
		State:        storage.StateIdle,
		SessionStart: rec.CurrentSessionStart,
		CurrentPause: stats.CurrentPause(today, now),
		LongestPause: today.LongestPause,
	}
	if rec.CurrentSessionStart != nil {
		status.State = storage.StateActive
		status.SessionRemaining = remaining(rec.CurrentSessionStart.Add(s.SessionDuration()), now)
	} else if until := t.waitUntil(ctx, rec, now); until != nil {
		status.State = storage.StateWaiting
		status.NextAllowedAt = until
		status.WaitRemaining = remaining(*until, now)
	}
	return status, nil
}

// Watch runs Expire every interval until ctx is done.
func (t *Tracker) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Expire(ctx); err != nil && ctx.Err() == nil {
				t.logger.Error().Err(err).Msg("Failed to expire sessions")
			}
		}
	}
}

// endSession must be called with t.mu held.
func (t *Tracker) endSession(ctx context.Context, rec *storage.DailyRecord, now time.Time, wait time.Duration) error {
	started := *rec.CurrentSessionStart
	end := storage.Millis(now)
	next := end.Add(wait)

	rec.CurrentSessionStart = nil
	rec.LastSessionEnd = &end
	rec.NextAllowedAt = &next

	if err := t.records.Set(ctx, rec.Date, *rec); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	t.logger.Info().
		Str("date", rec.Date).
		Dur("duration", end.Sub(started)).
		Time("next_allowed_at", next).
		Msg("Session ended")
	return nil
}

// current returns the record holding the running session, checking
// yesterday for a session that crossed midnight, and otherwise today's.
func (t *Tracker) current(ctx context.Context, now time.Time, limit int) (storage.DailyRecord, error) {
	today, err := t.load(ctx, storage.DateKey(now), limit)
	if err != nil || today.CurrentSessionStart != nil {
		return today, err
	}

	yesterday, err := t.load(ctx, storage.DateKey(now.AddDate(0, 0, -1)), limit)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read yesterday's record")
		return today, nil
	}
	if yesterday.CurrentSessionStart != nil {
		return yesterday, nil
	}
	return today, nil
}

// waitUntil returns the end of the wait in effect at now, or nil. A session
// that ran past midnight leaves its wait on yesterday's record.
func (t *Tracker) waitUntil(ctx context.Context, rec storage.DailyRecord, now time.Time) *time.Time {
	if rec.State(now) == storage.StateWaiting {
		return rec.NextAllowedAt
	}
	if rec.Date != storage.DateKey(now) {
		return nil
	}

	yesterday, err := t.records.Get(ctx, storage.DateKey(now.AddDate(0, 0, -1)))
	if err != nil {
		return nil
	}
	if yesterday.State(now) == storage.StateWaiting {
		return yesterday.NextAllowedAt
	}
	return nil
}

func (t *Tracker) load(ctx context.Context, date string, limit int) (storage.DailyRecord, error) {
	rec, err := t.records.Get(ctx, date)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.DailyRecord{Date: date, Limit: limit}, nil
	}
	if err != nil {
		return storage.DailyRecord{}, fmt.Errorf("failed to load record %s: %w", date, err)
	}
	rec.Date = date
	return *rec, nil
}

func (t *Tracker) notify(title, message string) {
	if err := t.notifier.Notify(title, message); err != nil {
		t.logger.Debug().Err(err).Msg("Notification not delivered")
	}
}

func remaining(until, now time.Time) int64 {
	if !until.After(now) {
		return 0
	}
	return int64(until.Sub(now) / time.Second)
}
