package main

import (
	"path/filepath"
	"testing"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/config"
	"github.com/goodtune/snuskoll/internal/storage"
)

func TestOpenStorageCache(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		typ    string
		cached bool
	}{
		{"bolt", true},
		{"memory", true},
		{"sqlite", false}, // shared with one-shot commands
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			cfg := config.Default().Storage
			cfg.Type = tt.typ
			cfg.Bolt.Path = filepath.Join(dir, "snuskoll.bolt")
			cfg.SQLite.Path = filepath.Join(dir, "snuskoll.db")
			if !cfg.Cache.Enabled {
				t.Fatal("expected the cache to be enabled by default")
			}

			store, err := openStorage(cfg, clock.RealClock{})
			if err != nil {
				t.Fatalf("open %s: %v", tt.typ, err)
			}
			defer store.Close()

			if _, ok := store.Records().(*storage.CachedRecords); ok != tt.cached {
				t.Errorf("cached = %v, want %v", ok, tt.cached)
			}
		})
	}
}
