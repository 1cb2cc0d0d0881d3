package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestSetRecordScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	tests := []struct {
		name     string
		date     string
		week     string
		count    string
		nextAt   string
		wantNext string
	}{
		{
			name:     "idle day",
			date:     "2024-05-06",
			week:     "2024-05-06",
			count:    "0",
			nextAt:   "",
			wantNext: "",
		},
		{
			name:     "waiting day",
			date:     "2024-05-08",
			week:     "2024-05-06",
			count:    "3",
			nextAt:   "1715160000000",
			wantNext: "1715160000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := []string{dayKey(tt.date), weekKey(tt.week), weekIndexKey()}
			err := client.Eval(ctx, setRecordScript, keys,
				tt.date, tt.count, "10", "0", "", "", tt.nextAt, tt.week, `{"count":`+tt.count+`}`,
			).Err()
			if err != nil {
				t.Fatalf("Script failed: %v", err)
			}

			count := mr.HGet(dayKey(tt.date), "count")
			if count != tt.count {
				t.Errorf("Expected count %s, got %s", tt.count, count)
			}
			if got := mr.HGet(dayKey(tt.date), "next_allowed_at"); got != tt.wantNext {
				t.Errorf("Expected next_allowed_at %q, got %q", tt.wantNext, got)
			}
			if got := mr.HGet(weekKey(tt.week), tt.date); got == "" {
				t.Error("Expected week bucket entry to be written")
			}

			isMember, err := client.SIsMember(ctx, weekIndexKey(), tt.week).Result()
			if err != nil || !isMember {
				t.Errorf("Expected %s in week index", tt.week)
			}
		})
	}

	// Both days landed in the same bucket
	fields, err := mr.HKeys(weekKey("2024-05-06"))
	if err != nil {
		t.Fatalf("HKeys failed: %v", err)
	}
	if len(fields) != 2 {
		t.Errorf("Expected 2 bucket entries, got %d", len(fields))
	}
}
