package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/goodtune/snuskoll/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTestStore(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snuskoll.bolt")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Records().Set(context.Background(), "2024-02-29", storage.DailyRecord{Count: 3, Limit: 10}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = store.Close() }()

	record, err := store.Records().Get(context.Background(), "2024-02-29")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if record.Count != 3 {
		t.Fatalf("expected count 3, got %d", record.Count)
	}

	weeks, err := store.Records().ListWeekKeys(context.Background())
	if err != nil {
		t.Fatalf("list week keys: %v", err)
	}
	if len(weeks) != 1 || weeks[0] != "2024-02-26" {
		t.Fatalf("expected week 2024-02-26, got %v", weeks)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "snuskoll.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
