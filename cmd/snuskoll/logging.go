package main

import (
	"io"
	"os"

	"github.com/goodtune/snuskoll/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogger configures the logger based on configuration. Console output
// goes to out; when a log file is configured every entry is also written
// there, rotated by size.
func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = out
	if cfg.Format == "text" {
		console = zerolog.ConsoleWriter{Out: out}
	}

	if cfg.File == "" {
		return zerolog.New(console).With().Timestamp().Logger()
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	// The file always gets JSON, whatever the console format
	return zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
}

// cliLogger is the logger for one-shot commands: it writes to stderr so
// stdout carries only command output, and stays quiet below warn unless
// the configuration asks for debug.
func cliLogger(cfg config.LoggingConfig) zerolog.Logger {
	if cfg.Level != "debug" {
		cfg.Level = "warn"
	}
	cfg.Format = "text"
	return setupLogger(cfg, os.Stderr)
}
