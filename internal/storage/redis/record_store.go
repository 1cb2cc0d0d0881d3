package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/redis/go-redis/v9"
)

type recordStore struct {
	client    *redis.Client
	setScript *redis.Script
}

// Get retrieves the record for a date
func (s *recordStore) Get(ctx context.Context, date string) (*storage.DailyRecord, error) {
	data, err := s.client.HGetAll(ctx, dayKey(date)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseDailyRecord(data)
}

// Set writes the record, its week bucket entry and the week index in one script call
func (s *recordStore) Set(ctx context.Context, date string, record storage.DailyRecord) error {
	week, err := storage.WeekKeyOf(date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}

	record.Date = date
	entry, err := json.Marshal(record.Entry())
	if err != nil {
		return fmt.Errorf("failed to marshal week entry: %w", err)
	}

	keys := []string{dayKey(date), weekKey(week), weekIndexKey()}
	args := []interface{}{
		date,
		record.Count,
		record.Limit,
		record.LongestPause,
		formatMillis(record.CurrentSessionStart),
		formatMillis(record.LastSessionEnd),
		formatMillis(record.NextAllowedAt),
		week,
		string(entry),
	}

	return s.setScript.Run(ctx, s.client, keys, args...).Err()
}

// GetWeekBucket retrieves all entries stored for a week
func (s *recordStore) GetWeekBucket(ctx context.Context, week string) (storage.WeekBucket, error) {
	data, err := s.client.HGetAll(ctx, weekKey(week)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	bucket := make(storage.WeekBucket, len(data))
	for date, raw := range data {
		var entry storage.WeekEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse week entry %s: %w", date, err)
		}
		bucket[date] = entry
	}

	return bucket, nil
}

// ListWeekKeys returns all known week keys in ascending order
func (s *recordStore) ListWeekKeys(ctx context.Context) ([]string, error) {
	weeks, err := s.client.SMembers(ctx, weekIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	sort.Strings(weeks)
	return weeks, nil
}

// List returns every daily record ordered by date
func (s *recordStore) List(ctx context.Context) ([]storage.DailyRecord, error) {
	keys, err := s.scanKeys(ctx, dayKey("*"))
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return []storage.DailyRecord{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]storage.DailyRecord, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		record, err := parseDailyRecord(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", keys[i], err)
		}
		records = append(records, *record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records, nil
}

// Clear removes every day, week bucket and the week index; settings are kept
func (s *recordStore) Clear(ctx context.Context) error {
	days, err := s.scanKeys(ctx, dayKey("*"))
	if err != nil {
		return err
	}

	weeks, err := s.scanKeys(ctx, weekKey("*"))
	if err != nil {
		return err
	}

	keys := append(days, weeks...)
	keys = append(keys, weekIndexKey())

	// Delete in batches to keep individual commands small
	for len(keys) > 0 {
		n := min(len(keys), 500)
		if err := s.client.Del(ctx, keys[:n]...).Err(); err != nil {
			return err
		}
		keys = keys[n:]
	}

	return nil
}

func (s *recordStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}

		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
