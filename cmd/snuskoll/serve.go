package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodtune/snuskoll/internal/api"
	"github.com/goodtune/snuskoll/internal/backup"
	"github.com/goodtune/snuskoll/internal/config"
	"github.com/goodtune/snuskoll/internal/metrics"
	"github.com/goodtune/snuskoll/internal/refresh"
	"github.com/goodtune/snuskoll/internal/systemd"
	"github.com/goodtune/snuskoll/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Snuskoll server",
	Long:  `Start the refresh scheduler, session watcher, optional backups and the HTTP API.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging, os.Stdout)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Snuskoll")

	// Check for systemd socket activation
	httpListener, err := systemd.HTTPListener()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if httpListener != nil {
		logger.Info().Msg("Running with systemd socket activation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Initialize Refresh Scheduler
	scheduler := refresh.NewScheduler(a.engine, a.settings, a.tracker, a.clock, refresh.Config{
		PollInterval:  config.ParseDuration(cfg.Refresh.PollInterval, refresh.DefaultConfig().PollInterval),
		CoalesceDelay: config.ParseDuration(cfg.Refresh.CoalesceDelay, refresh.DefaultConfig().CoalesceDelay),
		MinInterval:   config.ParseDuration(cfg.Refresh.MinInterval, refresh.DefaultConfig().MinInterval),
	}, logger)

	// Every tracker write schedules a full pass
	a.tracker.OnChange(scheduler.Refresh)

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresh scheduler: %w", err)
	}
	logger.Info().Msg("Refresh Scheduler started")

	// Session watcher ends expired sessions and waits
	go a.tracker.Watch(ctx, config.ParseDuration(cfg.Usage.WatchInterval, usage.DefaultWatchInterval))

	// Initialize Backup Scheduler
	var backupScheduler *backup.Scheduler
	if cfg.Backup.Enabled {
		backupScheduler, err = backup.NewScheduler(
			a.store.Records(),
			a.settings,
			cfg.Backup.Dir,
			cfg.Backup.Time,
			cfg.Backup.Keep,
			a.clock,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize Backup Scheduler: %w", err)
		}
		backupScheduler.Start()
	}

	// Initialize HTTP Server
	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	httpServer := metrics.NewServer(addr, cfg.Server.MetricsEnabled, logger)
	httpServer.Mount("/api/v1", api.Routes(api.Deps{
		Stats:    scheduler,
		Tracker:  a.tracker,
		Settings: a.settings,
	}, logger))

	// Use systemd socket-activated listener if available
	if httpListener != nil {
		httpServer.SetListener(httpListener)
	}

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP Server: %w", err)
	}

	logger.Info().Msg("Snuskoll startup complete")
	logger.Info().Msgf("API: http://%s/api/v1/stats", addr)
	if cfg.Server.MetricsEnabled {
		logger.Info().Msgf("Metrics: http://%s/metrics", addr)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	go systemd.RunWatchdog(ctx, logger)

	// Wait for signals (shutdown or refresh)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			break
		}

		logger.Info().Msg("SIGHUP received, refreshing statistics")
		_ = systemd.NotifyReloading()
		scheduler.Refresh()
		_ = systemd.NotifyReady()
	}
	signal.Stop(sigChan)

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop in reverse order of start
	if err := httpServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping HTTP Server")
	}
	if backupScheduler != nil {
		backupScheduler.Stop()
	}
	cancel()
	scheduler.Stop()

	logger.Info().Msg("Snuskoll stopped")
	return nil
}
