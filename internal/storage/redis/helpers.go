package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/snuskoll/internal/storage"
)

// parseDailyRecord converts a Redis hash to DailyRecord
func parseDailyRecord(data map[string]string) (*storage.DailyRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	count, err := strconv.Atoi(data["count"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse count: %w", err)
	}

	limit, err := strconv.Atoi(data["limit"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse limit: %w", err)
	}

	longestPause, err := strconv.ParseInt(data["longest_pause"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse longest_pause: %w", err)
	}

	record := &storage.DailyRecord{
		Date:         data["date"],
		Count:        count,
		Limit:        limit,
		LongestPause: longestPause,
	}

	if record.CurrentSessionStart, err = parseMillis(data["current_session_start"]); err != nil {
		return nil, fmt.Errorf("failed to parse current_session_start: %w", err)
	}
	if record.LastSessionEnd, err = parseMillis(data["last_session_end"]); err != nil {
		return nil, fmt.Errorf("failed to parse last_session_end: %w", err)
	}
	if record.NextAllowedAt, err = parseMillis(data["next_allowed_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse next_allowed_at: %w", err)
	}

	return record, nil
}

// formatMillis renders an optional timestamp as epoch milliseconds
func formatMillis(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(ms)
	return &t, nil
}
