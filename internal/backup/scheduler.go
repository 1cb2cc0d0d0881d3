package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/rs/zerolog"
)

const (
	filePrefix = "snuskoll-"
	fileSuffix = ".json.zst"
	fileStamp  = "20060102-150405"
)

// Scheduler writes a backup once a day at a fixed local time and keeps
// the newest Keep files.
type Scheduler struct {
	records  storage.RecordStore
	settings SettingsReader
	dir      string
	keep     int
	at       time.Time // only hour and minute are used
	clock    clock.Clock
	logger   zerolog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler creates a backup scheduler. at is "HH:MM".
func NewScheduler(records storage.RecordStore, cfg SettingsReader, dir, at string, keep int, clk clock.Clock, logger zerolog.Logger) (*Scheduler, error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("invalid backup time %q: %w", at, err)
	}
	if keep < 1 {
		keep = 1
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Scheduler{
		records:  records,
		settings: cfg,
		dir:      dir,
		keep:     keep,
		at:       parsed,
		clock:    clk,
		logger:   logger.With().Str("component", "backup-scheduler").Logger(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info().
		Str("backup_time", s.at.Format("15:04")).
		Str("dir", s.dir).
		Msg("Daily backup scheduler started")
}

// Stop stops the loop and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info().Msg("Daily backup scheduler stopped")
	})
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		next := s.nextRun()
		wait := next.Sub(s.clock.Now())

		s.logger.Debug().
			Time("next_backup", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next backup")

		select {
		case <-time.After(wait):
			if _, err := s.RunOnce(context.Background()); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
		case <-s.stopChan:
			return
		}
	}
}

// nextRun returns the next backup time strictly after now.
func (s *Scheduler) nextRun() time.Time {
	now := s.clock.Now()
	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		s.at.Hour(), s.at.Minute(), 0, 0,
		now.Location(),
	)
	if !now.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// RunOnce writes a backup now, prunes old files and returns the new path.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	now := s.clock.Now()
	a, err := Export(ctx, s.records, s.settings, now)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filePrefix+now.Format(fileStamp)+fileSuffix)
	if err := WriteFile(path, a); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("path", path).
		Int("records", len(a.Records)).
		Msg("Backup written")

	if err := s.prune(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prune old backups")
	}
	return path, nil
}

// prune removes all but the newest keep backups. Timestamped names sort
// in creation order.
func (s *Scheduler) prune() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	if len(names) <= s.keep {
		return nil
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-s.keep] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return err
		}
		s.logger.Debug().Str("file", name).Msg("Removed old backup")
	}
	return nil
}
