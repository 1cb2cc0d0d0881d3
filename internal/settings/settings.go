// Package settings owns the user's settings and tells subscribers when they change.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/rs/zerolog"
)

// Service is the process-wide settings provider.
type Service struct {
	store  storage.SettingsStore
	logger zerolog.Logger

	mu      sync.RWMutex
	current *storage.Settings

	// saveMu orders persisting with swapping current
	saveMu sync.Mutex

	subMu       sync.Mutex
	nextSubID   int
	subscribers map[int]func()
}

// NewService creates a settings service backed by store.
func NewService(store storage.SettingsStore, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		logger:      logger.With().Str("component", "settings").Logger(),
		subscribers: make(map[int]func()),
	}
}

// Init loads settings, seeding defaults when the store has none.
func (s *Service) Init(ctx context.Context, defaults storage.Settings) error {
	loaded, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := Validate(defaults); err != nil {
			return fmt.Errorf("invalid default settings: %w", err)
		}
		if err := s.store.Save(ctx, defaults); err != nil {
			return fmt.Errorf("failed to seed settings: %w", err)
		}
		s.logger.Info().Msg("Seeded default settings")
		loaded = &defaults
	case err != nil:
		return fmt.Errorf("failed to load settings: %w", err)
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current settings. It returns storage.ErrNotFound
// when nothing has been saved yet.
func (s *Service) Get(ctx context.Context) (*storage.Settings, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current == nil {
		loaded, err := s.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.current == nil {
			s.current = loaded
		}
		current = s.current
		s.mu.Unlock()
	}

	out := *current
	return &out, nil
}

// Save validates and persists settings, then notifies subscribers.
func (s *Service) Save(ctx context.Context, next storage.Settings) error {
	s.saveMu.Lock()
	err := s.save(ctx, next)
	s.saveMu.Unlock()
	if err != nil {
		return err
	}
	s.broadcast()
	return nil
}

// Update applies fn to a copy of the current settings and saves the result.
func (s *Service) Update(ctx context.Context, fn func(*storage.Settings)) (*storage.Settings, error) {
	s.saveMu.Lock()
	current, err := s.Get(ctx)
	if err == nil {
		fn(current)
		err = s.save(ctx, *current)
	}
	s.saveMu.Unlock()
	if err != nil {
		return nil, err
	}
	s.broadcast()
	return current, nil
}

// save must be called with saveMu held.
func (s *Service) save(ctx context.Context, next storage.Settings) error {
	if err := Validate(next); err != nil {
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.mu.Lock()
	s.current = &next
	s.mu.Unlock()

	s.logger.Debug().
		Int("daily_intake", next.DailyIntake).
		Str("goal", string(next.Goal)).
		Msg("Settings updated")
	return nil
}

// Subscribe registers fn to run after every successful save. fn runs on the
// saving goroutine and must not block. The returned func unsubscribes.
func (s *Service) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Service) broadcast() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
