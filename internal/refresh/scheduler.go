// Package refresh decides when statistics are recomputed and publishes the
// latest snapshot.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/metrics"
	"github.com/goodtune/snuskoll/internal/stats"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine produces datasets for snapshots.
type Engine interface {
	Load(ctx context.Context) (*stats.Dataset, error)
	Reload(ctx context.Context, prev *stats.Dataset) (*stats.Dataset, error)
}

// Notifier broadcasts settings changes.
type Notifier interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Maintainer runs store upkeep before each pass.
type Maintainer interface {
	CommitPause(ctx context.Context) error
}

// Trigger names what asked for a pass.
type Trigger string

const (
	TriggerInitial  Trigger = "initial"
	TriggerPoll     Trigger = "poll"
	TriggerSettings Trigger = "settings"
	TriggerManual   Trigger = "manual"
	TriggerDeferred Trigger = "deferred"
)

// Config holds scheduler timings
type Config struct {
	PollInterval  time.Duration
	CoalesceDelay time.Duration
	MinInterval   time.Duration
}

// DefaultConfig returns a 500ms poll with 100ms coalescing.
func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		CoalesceDelay: 100 * time.Millisecond,
		MinInterval:   100 * time.Millisecond,
	}
}

// State is what consumers see: the last good snapshot plus loading and
// error flags.
type State struct {
	Snapshot  *stats.Snapshot
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// Scheduler runs at most one aggregation pass at a time. Triggers that
// arrive during a pass, or too soon after one, collapse into a single
// deferred pass.
type Scheduler struct {
	engine     Engine
	notifier   Notifier
	maintainer Maintainer
	clock      clock.Clock
	config     Config
	logger     zerolog.Logger

	mu            sync.Mutex
	ctx           context.Context
	started       bool
	stopped       bool
	running       bool
	rerun         bool
	pendingFull   bool
	timer         *time.Timer
	lastCompleted time.Time
	lastDate      string
	dataset       *stats.Dataset
	state         State
	watchers      map[int]func(State)
	nextWatcher   int
	unsubscribe   func()
	ticker        *time.Ticker
	done          chan struct{}
	wg            sync.WaitGroup
}

// NewScheduler creates a scheduler. maintainer may be nil.
func NewScheduler(engine Engine, notifier Notifier, maintainer Maintainer, clk clock.Clock, config Config, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.CoalesceDelay <= 0 {
		config.CoalesceDelay = def.CoalesceDelay
	}
	if config.MinInterval < 0 {
		config.MinInterval = 0
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Scheduler{
		engine:     engine,
		notifier:   notifier,
		maintainer: maintainer,
		clock:      clk,
		config:     config,
		logger:     logger.With().Str("component", "refresh-scheduler").Logger(),
		ctx:        context.Background(),
		state:      State{Loading: true},
		watchers:   make(map[int]func(State)),
		done:       make(chan struct{}),
	}
}

// Start subscribes to settings changes, starts polling and runs the first
// full pass. Passes are not cancelled by ctx; call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.ctx = context.WithoutCancel(ctx)
	if s.notifier != nil {
		s.unsubscribe = s.notifier.Subscribe(func() { s.trigger(TriggerSettings, true) })
	}
	s.ticker = time.NewTicker(s.config.PollInterval)
	s.wg.Add(1)
	go s.poll(s.ticker.C)
	s.mu.Unlock()

	s.logger.Info().
		Dur("poll_interval", s.config.PollInterval).
		Dur("coalesce_delay", s.config.CoalesceDelay).
		Msg("Refresh scheduler started")

	s.trigger(TriggerInitial, true)
	return nil
}

// Stop unsubscribes, stops the poll and any deferred pass, and waits for an
// in-flight pass to finish. Later triggers are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Refresh scheduler stopped")
}

// Refresh requests a full pass.
func (s *Scheduler) Refresh() {
	s.trigger(TriggerManual, true)
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watch calls fn with the new state after every pass. fn must not block.
func (s *Scheduler) Watch(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Scheduler) poll(ticks <-chan time.Time) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-ticks:
			today := storage.DateKey(s.clock.Now())
			s.mu.Lock()
			rolled := s.lastDate != "" && s.lastDate != today
			s.mu.Unlock()
			if rolled {
				s.logger.Debug().Str("date", today).Msg("Date rolled over")
			}
			s.trigger(TriggerPoll, rolled)
		}
	}
}

func (s *Scheduler) trigger(reason Trigger, full bool) {
	var outcome string

	s.mu.Lock()
	switch {
	case s.stopped:
		s.mu.Unlock()
		return
	case s.running:
		s.rerun = true
		s.pendingFull = s.pendingFull || full
		outcome = "coalesced"
	case s.timer != nil:
		s.pendingFull = s.pendingFull || full
		outcome = "coalesced"
	case !s.lastCompleted.IsZero() && time.Since(s.lastCompleted) < s.config.MinInterval:
		s.pendingFull = s.pendingFull || full
		s.armLocked()
		outcome = "deferred"
	default:
		full = full || s.pendingFull
		s.pendingFull = false
		s.running = true
		s.wg.Add(1)
		go s.run(reason, full)
		outcome = "run"
	}
	s.mu.Unlock()

	metrics.RefreshTriggers.WithLabelValues(string(reason), outcome).Inc()
}

// armLocked schedules the single deferred pass. Caller holds s.mu.
func (s *Scheduler) armLocked() {
	if s.timer != nil || s.stopped {
		return
	}
	s.timer = time.AfterFunc(s.config.CoalesceDelay, s.fireDeferred)
}

func (s *Scheduler) fireDeferred() {
	s.mu.Lock()
	s.timer = nil
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	full := s.pendingFull
	s.pendingFull = false
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.run(TriggerDeferred, full)
}

func (s *Scheduler) run(reason Trigger, full bool) {
	defer s.wg.Done()

	passID := uuid.NewString()
	mode := "light"
	if full {
		mode = "full"
	}
	started := time.Now()

	s.mu.Lock()
	s.state.Loading = true
	prev := s.dataset
	ctx := s.ctx
	s.mu.Unlock()

	ds, err := s.pass(ctx, prev, full)
	var snapshot *stats.Snapshot
	if err == nil {
		snapshot, err = build(ds)
	}
	elapsed := time.Since(started)

	s.mu.Lock()
	s.running = false
	s.state.Loading = false
	switch {
	case errors.Is(err, stats.ErrMissingSettings):
		// Not complete: the next trigger retries from scratch
		s.pendingFull = true
		s.state.Err = err
	case err != nil:
		s.lastCompleted = time.Now()
		s.state.Err = err
	default:
		s.lastCompleted = time.Now()
		s.dataset = ds
		s.lastDate = ds.Today
		s.state = State{Snapshot: snapshot, UpdatedAt: s.clock.Now()}
	}
	if s.rerun {
		s.rerun = false
		s.armLocked()
	}
	state := s.state
	watchers := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.AggregationPasses.WithLabelValues(mode, result).Inc()
	metrics.AggregationDuration.WithLabelValues(mode).Observe(elapsed.Seconds())

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("pass_id", passID).
			Str("trigger", string(reason)).
			Bool("full", full).
			Msg("Aggregation pass failed")
	} else {
		s.logger.Debug().
			Str("pass_id", passID).
			Str("trigger", string(reason)).
			Bool("full", full).
			Dur("duration", elapsed).
			Msg("Aggregation pass complete")
	}

	for _, fn := range watchers {
		fn(state)
	}
}

func (s *Scheduler) pass(ctx context.Context, prev *stats.Dataset, full bool) (ds *stats.Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregation panicked: %v", r)
		}
	}()

	if s.maintainer != nil {
		if err := s.maintainer.CommitPause(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to commit current pause")
		}
	}

	if full || prev == nil {
		return s.engine.Load(ctx)
	}
	return s.engine.Reload(ctx, prev)
}

func build(ds *stats.Dataset) (snap *stats.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot build panicked: %v", r)
		}
	}()
	if ds == nil {
		return nil, errors.New("engine returned no dataset")
	}
	return stats.Build(ds), nil
}
