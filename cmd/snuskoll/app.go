package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/config"
	"github.com/goodtune/snuskoll/internal/notify"
	"github.com/goodtune/snuskoll/internal/settings"
	"github.com/goodtune/snuskoll/internal/stats"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/goodtune/snuskoll/internal/usage"
	"github.com/rs/zerolog"
)

// app holds the services every command needs.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	clock    clock.Clock
	store    storage.Store
	settings *settings.Service
	engine   *stats.Engine
	tracker  *usage.Tracker
}

// newApp opens storage and builds the settings, stats and usage services.
// Settings are seeded from the configured defaults on first run.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	clk := clock.RealClock{}

	store, err := openStorage(cfg.Storage, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("target", storageTarget(cfg.Storage)).
		Bool("cache", cfg.Storage.Cache.Enabled).
		Msg("Storage initialized")

	settingsService := settings.NewService(store.Settings(), logger)
	if err := settingsService.Init(ctx, cfg.Defaults); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}

	engine := stats.NewEngine(store.Records(), settingsService, clk, stats.Config{
		StreakWindowDays: cfg.Stats.StreakWindowDays,
		TrendWindowDays:  cfg.Stats.TrendWindowDays,
		YearWindowDays:   cfg.Stats.YearWindowDays,
	}, logger)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifications.Enabled {
		notifier = notify.NewDesktop(cfg.Notifications.AppName, cfg.Notifications.Sound, logger)
	}

	tracker := usage.NewTracker(store.Records(), settingsService, notifier, clk, usage.Config{
		PauseCommitInterval: config.ParseDuration(cfg.Refresh.PauseCommitInterval, usage.DefaultPauseCommitInterval),
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		store:    store,
		settings: settingsService,
		engine:   engine,
		tracker:  tracker,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close storage")
	}
}

// loadCLI loads configuration and builds an app for a one-shot command.
func loadCLI(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newApp(ctx, cfg, cliLogger(cfg.Logging))
}

// commandContext bounds a one-shot command.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
