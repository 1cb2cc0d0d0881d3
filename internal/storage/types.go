package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Goal is the user's chosen objective.
type Goal string

const (
	GoalQuit   Goal = "quit"
	GoalReduce Goal = "reduce"
	GoalTrack  Goal = "track"
)

// UnmarshalJSON implements json.Unmarshaler to normalize goal to lowercase.
func (g *Goal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := Goal(strings.ToLower(s))
	switch normalized {
	case GoalQuit, GoalReduce, GoalTrack:
		*g = normalized
		return nil
	default:
		return fmt.Errorf("invalid goal: %s (must be quit, reduce, or track)", s)
	}
}

// Pace is how quickly the user wants to approach their targets.
type Pace string

const (
	PaceFast   Pace = "fast"
	PaceMedium Pace = "medium"
	PaceSlow   Pace = "slow"
)

// UnmarshalJSON implements json.Unmarshaler to normalize pace to lowercase.
func (p *Pace) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := Pace(strings.ToLower(s))
	switch normalized {
	case PaceFast, PaceMedium, PaceSlow:
		*p = normalized
		return nil
	default:
		return fmt.Errorf("invalid pace: %s (must be fast, medium, or slow)", s)
	}
}

// SessionState describes where a day currently is in the use/wait cycle.
type SessionState string

const (
	StateIdle    SessionState = "idle"
	StateActive  SessionState = "active"
	StateWaiting SessionState = "waiting"
)

// DailyRecord is the usage tracked for one calendar day.
// Timestamps carry millisecond precision.
type DailyRecord struct {
	Date                string     `json:"date"`
	Count               int        `json:"count"`
	Limit               int        `json:"limit"`
	LongestPause        int64      `json:"longest_pause"` // seconds
	CurrentSessionStart *time.Time `json:"current_session_start,omitempty"`
	LastSessionEnd      *time.Time `json:"last_session_end,omitempty"`
	NextAllowedAt       *time.Time `json:"next_allowed_at,omitempty"`
}

// State reports whether a session is running, the wait period is still in
// effect at now, or neither.
func (r DailyRecord) State(now time.Time) SessionState {
	if r.CurrentSessionStart != nil {
		return StateActive
	}
	if r.NextAllowedAt != nil && r.NextAllowedAt.After(now) {
		return StateWaiting
	}
	return StateIdle
}

// Entry returns the reduced form stored in week buckets.
func (r DailyRecord) Entry() WeekEntry {
	return WeekEntry{
		Count:               r.Count,
		Limit:               r.Limit,
		LongestPause:        r.LongestPause,
		CurrentSessionStart: r.CurrentSessionStart,
		LastSessionEnd:      r.LastSessionEnd,
		NextAllowedAt:       r.NextAllowedAt,
	}
}

// Equal reports whether two records hold the same values.
func (r DailyRecord) Equal(o DailyRecord) bool {
	return r.Date == o.Date &&
		r.Count == o.Count &&
		r.Limit == o.Limit &&
		r.LongestPause == o.LongestPause &&
		timesEqual(r.CurrentSessionStart, o.CurrentSessionStart) &&
		timesEqual(r.LastSessionEnd, o.LastSessionEnd) &&
		timesEqual(r.NextAllowedAt, o.NextAllowedAt)
}

// WeekEntry is a DailyRecord without its date, as kept in a WeekBucket.
type WeekEntry struct {
	Count               int        `json:"count"`
	Limit               int        `json:"limit"`
	LongestPause        int64      `json:"longest_pause"`
	CurrentSessionStart *time.Time `json:"current_session_start,omitempty"`
	LastSessionEnd      *time.Time `json:"last_session_end,omitempty"`
	NextAllowedAt       *time.Time `json:"next_allowed_at,omitempty"`
}

// Record expands the entry back into a DailyRecord for date.
func (e WeekEntry) Record(date string) DailyRecord {
	return DailyRecord{
		Date:                date,
		Count:               e.Count,
		Limit:               e.Limit,
		LongestPause:        e.LongestPause,
		CurrentSessionStart: e.CurrentSessionStart,
		LastSessionEnd:      e.LastSessionEnd,
		NextAllowedAt:       e.NextAllowedAt,
	}
}

// WeekBucket maps dates within one Monday-anchored week to their entries.
type WeekBucket map[string]WeekEntry

// Settings holds the user's configured limits, prices and timings.
type Settings struct {
	DailyIntake       int     `json:"daily_intake" mapstructure:"daily_intake"`
	TargetDailyIntake int     `json:"target_daily_intake,omitempty" mapstructure:"target_daily_intake"`
	CostPerCan        float64 `json:"cost_per_can" mapstructure:"cost_per_can"`
	PortionsPerCan    int     `json:"portions_per_can" mapstructure:"portions_per_can"`
	SessionTime       int     `json:"session_time" mapstructure:"session_time"` // minutes
	TargetSessionTime int     `json:"target_session_time,omitempty" mapstructure:"target_session_time"`
	WaitTime          int     `json:"wait_time" mapstructure:"wait_time"` // minutes
	TargetWaitTime    int     `json:"target_wait_time,omitempty" mapstructure:"target_wait_time"`
	NicotineContent   float64 `json:"nicotine_content" mapstructure:"nicotine_content"` // mg per portion
	Goal              Goal    `json:"goal" mapstructure:"goal"`
	Pace              Pace    `json:"pace" mapstructure:"pace"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		DailyIntake:     10,
		CostPerCan:      50,
		PortionsPerCan:  24,
		SessionTime:     30,
		WaitTime:        30,
		NicotineContent: 8.0,
		Goal:            GoalReduce,
		Pace:            PaceMedium,
	}
}

// PortionCost is the price of a single portion.
func (s Settings) PortionCost() float64 {
	if s.PortionsPerCan <= 0 {
		return 0
	}
	return s.CostPerCan / float64(s.PortionsPerCan)
}

// SessionDuration is the target session length.
func (s Settings) SessionDuration() time.Duration {
	return time.Duration(s.SessionTime) * time.Minute
}

// WaitDuration is the target cool-down between sessions.
func (s Settings) WaitDuration() time.Duration {
	return time.Duration(s.WaitTime) * time.Minute
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
