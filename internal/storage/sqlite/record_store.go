package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/snuskoll/internal/storage"
)

const recordColumns = `date, count, daily_limit, longest_pause, current_session_start, last_session_end, next_allowed_at`

type recordStore struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (storage.DailyRecord, error) {
	var (
		rec            storage.DailyRecord
		start, end, na sql.NullInt64
	)
	if err := row.Scan(&rec.Date, &rec.Count, &rec.Limit, &rec.LongestPause, &start, &end, &na); err != nil {
		return storage.DailyRecord{}, err
	}
	rec.CurrentSessionStart = fromMillis(start)
	rec.LastSessionEnd = fromMillis(end)
	rec.NextAllowedAt = fromMillis(na)
	return rec, nil
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func (s *recordStore) Get(ctx context.Context, date string) (*storage.DailyRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM daily_records WHERE date = ?`, date)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", date, err)
	}
	return &rec, nil
}

// Set upserts the day. The week bucket is a view over week_key, so a single
// row write keeps the day and its bucket entry in step.
func (s *recordStore) Set(ctx context.Context, date string, record storage.DailyRecord) error {
	week, err := storage.WeekKeyOf(date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_records (date, week_key, count, daily_limit, longest_pause, current_session_start, last_session_end, next_allowed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date) DO UPDATE SET
			week_key = excluded.week_key,
			count = excluded.count,
			daily_limit = excluded.daily_limit,
			longest_pause = excluded.longest_pause,
			current_session_start = excluded.current_session_start,
			last_session_end = excluded.last_session_end,
			next_allowed_at = excluded.next_allowed_at,
			updated_at = CURRENT_TIMESTAMP
	`, date, week, record.Count, record.Limit, record.LongestPause,
		toMillis(record.CurrentSessionStart), toMillis(record.LastSessionEnd), toMillis(record.NextAllowedAt))
	if err != nil {
		return fmt.Errorf("failed to set record %s: %w", date, err)
	}
	return nil
}

func (s *recordStore) GetWeekBucket(ctx context.Context, week string) (storage.WeekBucket, error) {
	records, err := s.query(ctx, `SELECT `+recordColumns+` FROM daily_records WHERE week_key = ? ORDER BY date`, week)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}

	bucket := make(storage.WeekBucket, len(records))
	for _, rec := range records {
		bucket[rec.Date] = rec.Entry()
	}
	return bucket, nil
}

func (s *recordStore) ListWeekKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT week_key FROM daily_records ORDER BY week_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list week keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *recordStore) List(ctx context.Context) ([]storage.DailyRecord, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM daily_records ORDER BY date`)
}

func (s *recordStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

func (s *recordStore) query(ctx context.Context, query string, args ...any) ([]storage.DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]storage.DailyRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
