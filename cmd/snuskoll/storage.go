package main

import (
	"fmt"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/config"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/goodtune/snuskoll/internal/storage/bolt"
	"github.com/goodtune/snuskoll/internal/storage/memory"
	"github.com/goodtune/snuskoll/internal/storage/redis"
	"github.com/goodtune/snuskoll/internal/storage/sqlite"
)

func openStorage(cfg config.StorageConfig, clk clock.Clock) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Type {
	case "", "bolt":
		store, err = bolt.Open(cfg.Bolt.Path)
	case "sqlite":
		store, err = sqlite.Open(cfg.SQLite.Path)
	case "redis":
		store, err = redis.Open(cfg.Redis)
	case "memory":
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	// sqlite and redis can be written by a one-shot command while serve runs,
	// and those writes never reach this process's cache
	if cfg.Cache.Enabled && singleProcess(cfg.Type) {
		store = storage.WithCache(store, clk, cfg.Cache.Size, config.ParseDuration(cfg.Cache.TTL, 0))
	}
	return store, nil
}

// singleProcess reports whether only one process can write to the backend.
// bbolt holds an exclusive file lock; memory lives in the process.
func singleProcess(storageType string) bool {
	switch storageType {
	case "", "bolt", "memory":
		return true
	default:
		return false
	}
}

// storageTarget describes where the store lives, for log lines.
func storageTarget(cfg config.StorageConfig) string {
	switch cfg.Type {
	case "sqlite":
		return cfg.SQLite.Path
	case "redis":
		return fmt.Sprintf("%s:%d/%d", cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB)
	case "memory":
		return "memory"
	default:
		return cfg.Bolt.Path
	}
}
