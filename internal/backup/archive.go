package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goodtune/snuskoll/internal/settings"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/klauspost/compress/zstd"
)

// FormatVersion is written into every archive. Read rejects newer versions.
const FormatVersion = 1

// Archive is a full copy of the settings and every daily record.
type Archive struct {
	Version   int                   `json:"version"`
	CreatedAt time.Time             `json:"created_at"`
	Settings  *storage.Settings     `json:"settings,omitempty"`
	Records   []storage.DailyRecord `json:"records"`
}

// SettingsReader loads the current settings.
type SettingsReader interface {
	Get(ctx context.Context) (*storage.Settings, error)
}

// SettingsWriter persists settings. settings.Service also broadcasts the
// change, which forces a full refresh.
type SettingsWriter interface {
	Save(ctx context.Context, s storage.Settings) error
}

// Export collects the settings and all records into an archive.
func Export(ctx context.Context, records storage.RecordStore, cfg SettingsReader, now time.Time) (*Archive, error) {
	list, err := records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	a := &Archive{
		Version:   FormatVersion,
		CreatedAt: now,
		Records:   list,
	}

	s, err := cfg.Get(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load settings: %w", err)
	default:
		a.Settings = s
	}

	return a, nil
}

// Import replaces every stored record with the archive's records and saves
// its settings. The archive is checked before anything is removed.
func Import(ctx context.Context, records storage.RecordStore, cfg SettingsWriter, a *Archive) error {
	if err := a.validate(); err != nil {
		return err
	}

	if err := records.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	for _, rec := range a.Records {
		if err := records.Set(ctx, rec.Date, rec); err != nil {
			return fmt.Errorf("failed to restore %s: %w", rec.Date, err)
		}
	}

	if a.Settings != nil {
		if err := cfg.Save(ctx, *a.Settings); err != nil {
			return fmt.Errorf("failed to restore settings: %w", err)
		}
	}
	return nil
}

func (a *Archive) validate() error {
	if a.Version < 1 || a.Version > FormatVersion {
		return fmt.Errorf("unsupported archive version %d", a.Version)
	}
	seen := make(map[string]bool, len(a.Records))
	for _, rec := range a.Records {
		if _, err := storage.ParseDate(rec.Date); err != nil {
			return fmt.Errorf("invalid record date %q: %w", rec.Date, err)
		}
		if seen[rec.Date] {
			return fmt.Errorf("duplicate record for %s", rec.Date)
		}
		seen[rec.Date] = true
	}
	if a.Settings != nil {
		if err := settings.Validate(*a.Settings); err != nil {
			return fmt.Errorf("archive settings: %w", err)
		}
	}
	return nil
}

// Write encodes a as zstd-compressed JSON.
func Write(w io.Writer, a *Archive) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(a); err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to encode archive: %w", err)
	}
	return enc.Close()
}

// Read decodes an archive written by Write.
func Read(r io.Reader) (*Archive, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var a Archive
	if err := json.NewDecoder(dec).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}
	if a.Version > FormatVersion {
		return nil, fmt.Errorf("unsupported archive version %d", a.Version)
	}
	return &a, nil
}

// WriteFile writes a to path via a temporary file in the same directory.
func WriteFile(path string, a *Archive) error {
	if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snuskoll-backup-*")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, a); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close backup file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ReadFile reads an archive from path.
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
