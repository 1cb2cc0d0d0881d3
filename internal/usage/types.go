package usage

import (
	"time"

	"github.com/goodtune/snuskoll/internal/storage"
)

// Status is today's usage as seen by the tracker at one instant.
type Status struct {
	Date  string               `json:"date"`
	Count int                  `json:"count"`
	Limit int                  `json:"limit"`
	State storage.SessionState `json:"state"`

	SessionStart     *time.Time `json:"session_start,omitempty"`
	SessionRemaining int64      `json:"session_remaining"` // seconds
	NextAllowedAt    *time.Time `json:"next_allowed_at,omitempty"`
	WaitRemaining    int64      `json:"wait_remaining"` // seconds
	CurrentPause     int64      `json:"current_pause"`  // seconds
	LongestPause     int64      `json:"longest_pause"`  // seconds
}

// OverLimit reports whether today's count exceeds the day's limit.
func (s Status) OverLimit() bool {
	return s.Count > s.Limit
}
