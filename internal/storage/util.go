package storage

import (
	"os"
	"time"
)

// DateLayout is the key format for daily records.
const DateLayout = "2006-01-02"

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// DateKey formats t as a local calendar date.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a date key as local midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.Local)
}

// StartOfDay returns midnight of the day containing t, in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns the Monday that starts the week containing t.
func WeekStart(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// WeekKey returns the bucket key (Monday's date) of the week containing t.
func WeekKey(t time.Time) string {
	return DateKey(WeekStart(t))
}

// WeekKeyOf returns the bucket key for a date key.
func WeekKeyOf(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return WeekKey(t), nil
}

// Days returns every calendar day in [start, end], inclusive, as local
// midnights. Stepping is by calendar day, so DST transitions do not skip
// or repeat dates.
func Days(start, end time.Time) []time.Time {
	from := StartOfDay(start)
	to := StartOfDay(end)
	if from.After(to) {
		return nil
	}

	days := make([]time.Time, 0, int(to.Sub(from).Hours()/24)+2)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Millis truncates t to the millisecond precision records are stored with.
func Millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).In(t.Location())
}
