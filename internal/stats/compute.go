package stats

import (
	"math"
	"time"

	"github.com/goodtune/snuskoll/internal/storage"
)

// Streak is the current and longest run of days with 0 < count <= limit.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// StreakOf walks days oldest first. An unused asOf day keeps the run that
// ended yesterday alive; any other day outside the limit breaks the run.
// Days after asOf are ignored.
func StreakOf(days []storage.DailyRecord, asOf string, limit int) Streak {
	var s Streak
	run := 0

	for _, d := range days {
		if d.Date > asOf {
			continue
		}
		isToday := d.Date == asOf

		if isToday && d.Count == 0 {
			s.Current = run
			break
		}

		if d.Count > 0 && d.Count <= limit {
			run++
			s.Longest = max(s.Longest, run)
			if isToday {
				s.Current = run
			}
			continue
		}

		run = 0
		if isToday {
			s.Current = 0
		}
	}

	return s
}

// Direction of a trend.
type Direction string

const (
	Up     Direction = "up"
	Down   Direction = "down"
	Stable Direction = "stable"
)

// Trend compares the mean of the newer half of a window to the older half.
type Trend struct {
	Direction  Direction `json:"direction"`
	Percentage int       `json:"percentage"`
}

// TrendOf splits counts (oldest first) into halves, giving the extra value
// of an odd-length window to the older half.
func TrendOf(counts []int) Trend {
	if len(counts) < 2 {
		return Trend{Direction: Stable}
	}

	split := (len(counts) + 1) / 2
	first := mean(counts[:split])
	second := mean(counts[split:])
	if first == 0 {
		return Trend{Direction: Stable}
	}

	t := Trend{
		Direction:  Stable,
		Percentage: int(math.Round(math.Abs(second-first) / first * 100)),
	}
	switch {
	case second < first:
		t.Direction = Down
	case second > first:
		t.Direction = Up
	}
	return t
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// Rollup aggregates a range of days. Over and under limit use each day's
// own recorded limit; a day is under only when it had some usage.
type Rollup struct {
	TotalCount     int
	AveragePerDay  float64
	Cost           float64
	Nicotine       float64
	DaysOverLimit  int
	DaysUnderLimit int
	SavedPortions  int
}

// RollupOf aggregates days using the prices in s.
func RollupOf(days []storage.DailyRecord, s storage.Settings) Rollup {
	var r Rollup
	for _, d := range days {
		r.TotalCount += d.Count
		switch {
		case d.Count > d.Limit:
			r.DaysOverLimit++
		case d.Count > 0:
			r.DaysUnderLimit++
		}
	}
	if len(days) > 0 {
		r.AveragePerDay = float64(r.TotalCount) / float64(len(days))
	}
	r.Cost = float64(r.TotalCount) * s.PortionCost()
	r.Nicotine = float64(r.TotalCount) * s.NicotineContent
	r.SavedPortions = SavedPortions(days)
	return r
}

// DailySavings is max(0, (limit - count) * portionCost).
func DailySavings(count, limit int, portionCost float64) float64 {
	return math.Max(0, float64(limit-count)*portionCost)
}

// TotalSavings sums DailySavings over days with usage. Unused days earn nothing.
func TotalSavings(days []storage.DailyRecord, portionCost float64) float64 {
	total := 0.0
	for _, d := range days {
		if d.Count > 0 {
			total += DailySavings(d.Count, d.Limit, portionCost)
		}
	}
	return total
}

// SavedPortions counts portions left under the limit on days with usage.
func SavedPortions(days []storage.DailyRecord) int {
	saved := 0
	for _, d := range days {
		if d.Count > 0 {
			saved += max(0, d.Limit-d.Count)
		}
	}
	return saved
}

// Projection extrapolates a daily saving.
type Projection struct {
	ThreeMonths float64 `json:"three_months"`
	SixMonths   float64 `json:"six_months"`
	OneYear     float64 `json:"one_year"`
}

// Project multiplies daily by 90, 180 and 365 days.
func Project(daily float64) Projection {
	return Projection{
		ThreeMonths: daily * 90,
		SixMonths:   daily * 180,
		OneYear:     daily * 365,
	}
}

// CurrentPause is the whole seconds since the last session ended, or 0.
func CurrentPause(r storage.DailyRecord, now time.Time) int64 {
	if r.LastSessionEnd == nil || r.CurrentSessionStart != nil {
		return 0
	}
	d := now.Sub(*r.LastSessionEnd)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
