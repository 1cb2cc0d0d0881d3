package sqlite

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

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snuskoll.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Records().Set(context.Background(), "2024-05-01", storage.DailyRecord{Count: 4, Limit: 10}); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	var version int
	if err := store.db.QueryRow("SELECT MAX(version) FROM migrations").Scan(&version); err != nil {
		t.Fatalf("read migration version: %v", err)
	}
	if version != len(getMigrations()) {
		t.Errorf("expected migration version %d, got %d", len(getMigrations()), version)
	}

	rec, err := store.Records().Get(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if rec.Count != 4 {
		t.Errorf("expected count 4, got %d", rec.Count)
	}
}

func TestWeekKeyColumn(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	// Sunday belongs to the week that started the previous Monday
	if err := store.Records().Set(context.Background(), "2024-03-17", storage.DailyRecord{Count: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	var week string
	if err := store.db.QueryRow("SELECT week_key FROM daily_records WHERE date = ?", "2024-03-17").Scan(&week); err != nil {
		t.Fatalf("query: %v", err)
	}
	if week != "2024-03-11" {
		t.Errorf("expected week 2024-03-11, got %s", week)
	}
}

func TestSetRejectsBadDate(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	if err := store.Records().Set(context.Background(), "not-a-date", storage.DailyRecord{}); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "snuskoll.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
