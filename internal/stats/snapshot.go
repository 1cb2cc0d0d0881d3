package stats

import (
	"math"

	"github.com/goodtune/snuskoll/internal/storage"
)

// Snapshot is the complete set of derived statistics for one pass. It is
// built fresh every time and never modified after Build returns.
type Snapshot struct {
	Date        string              `json:"date"`
	Daily       storage.DailyRecord `json:"daily"`
	Weekly      WeeklyStats         `json:"weekly"`
	Monthly     MonthlyStats        `json:"monthly"`
	Yearly      YearlyStats         `json:"yearly"`
	Consumption ConsumptionStats    `json:"consumption"`
	Progress    ProgressStats       `json:"progress"`
	Savings     SavingsStats        `json:"savings"`
	Health      HealthStats         `json:"health"`
}

type WeeklyStats struct {
	TotalCount     int            `json:"total_count"`
	AveragePerDay  float64        `json:"average_per_day"`
	DaysOverLimit  int            `json:"days_over_limit"`
	DaysUnderLimit int            `json:"days_under_limit"`
	LongestStreak  int            `json:"longest_streak"`
	BestPause      int64          `json:"best_pause"` // seconds
	DailyCounts    map[string]int `json:"daily_counts"`
	Limit          int            `json:"limit"`
}

type MonthlyStats struct {
	TotalCount     int       `json:"total_count"`
	AveragePerDay  float64   `json:"average_per_day"`
	TotalCost      float64   `json:"total_cost"`
	TotalNicotine  float64   `json:"total_nicotine"`
	DaysOverLimit  int       `json:"days_over_limit"`
	DaysUnderLimit int       `json:"days_under_limit"`
	Trend          Direction `json:"trend"`
}

// MonthTotal is the usage total of one calendar month, keyed YYYY-MM.
type MonthTotal struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type YearlyStats struct {
	TotalCount    int        `json:"total_count"`
	TotalCost     float64    `json:"total_cost"`
	TotalNicotine float64    `json:"total_nicotine"`
	AveragePerDay float64    `json:"average_per_day"`
	BestMonth     MonthTotal `json:"best_month"`
	WorstMonth    MonthTotal `json:"worst_month"`
}

type DailyConsumption struct {
	Count       int     `json:"count"`
	Saved       int     `json:"saved"`
	Cost        float64 `json:"cost"`
	Nicotine    float64 `json:"nicotine"`
	SessionTime int     `json:"session_time"` // minutes
	WaitTime    int     `json:"wait_time"`    // minutes
}

type PeriodConsumption struct {
	Count         int     `json:"count"`
	Saved         int     `json:"saved"`
	Cost          float64 `json:"cost"`
	Nicotine      float64 `json:"nicotine"`
	AveragePerDay float64 `json:"average_per_day"`
}

type ConsumptionStats struct {
	Daily   DailyConsumption  `json:"daily"`
	Weekly  PeriodConsumption `json:"weekly"`
	Monthly PeriodConsumption `json:"monthly"`
	Yearly  PeriodConsumption `json:"yearly"`
}

type ProgressStats struct {
	CurrentStreak   int     `json:"current_streak"`
	LongestStreak   int     `json:"longest_streak"`
	DaysWithinLimit int     `json:"days_within_limit"`
	DaysOverLimit   int     `json:"days_over_limit"`
	GoalProgress    float64 `json:"goal_progress"` // percent
	Trend           Trend   `json:"trend"`
}

type SavingsStats struct {
	Daily     float64    `json:"daily"`
	Total     float64    `json:"total"`
	Projected Projection `json:"projected"`
}

type NicotineDay struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"` // mg
}

// HealthStats pauses are in seconds, session and wait times in minutes.
type HealthStats struct {
	NicotineDaily      float64     `json:"nicotine_daily"`
	NicotineWeekly     float64     `json:"nicotine_weekly"`
	NicotineMonthly    float64     `json:"nicotine_monthly"`
	AverageSessionTime int         `json:"average_session_time"`
	AverageWaitTime    int         `json:"average_wait_time"`
	MaxNicotineDay     NicotineDay `json:"max_nicotine_day"`
	ReductionDays      int         `json:"reduction_days"`
	CurrentPause       int64       `json:"current_pause"`
	LongestPause       int64       `json:"longest_pause"`
}

// Build derives a snapshot from ds. It performs no I/O and does not modify ds.
func Build(ds *Dataset) *Snapshot {
	s := ds.Settings
	today := ds.Record
	portionCost := s.PortionCost()

	week := RollupOf(ds.Week, s)
	month := RollupOf(ds.Month, s)
	year := RollupOf(ds.Year, s)
	streak := StreakOf(ds.Streak, ds.Today, s.DailyIntake)
	trend := TrendOf(counts(ds.Trend))

	dailyCounts := make(map[string]int, len(ds.Week))
	var bestPause int64
	for _, d := range ds.Week {
		dailyCounts[d.Date] = d.Count
		bestPause = max(bestPause, d.LongestPause)
	}

	best, worst := monthExtremes(ds.Year)
	dailySavings := DailySavings(today.Count, s.DailyIntake, portionCost)

	goalProgress := 0.0
	if s.Goal == storage.GoalReduce && s.DailyIntake > 0 {
		goalProgress = math.Max(0, float64(s.DailyIntake-today.Count)/float64(s.DailyIntake)*100)
	}

	return &Snapshot{
		Date:  ds.Today,
		Daily: today,
		Weekly: WeeklyStats{
			TotalCount:     week.TotalCount,
			AveragePerDay:  week.AveragePerDay,
			DaysOverLimit:  week.DaysOverLimit,
			DaysUnderLimit: week.DaysUnderLimit,
			LongestStreak:  streak.Longest,
			BestPause:      bestPause,
			DailyCounts:    dailyCounts,
			Limit:          s.DailyIntake,
		},
		Monthly: MonthlyStats{
			TotalCount:     month.TotalCount,
			AveragePerDay:  month.AveragePerDay,
			TotalCost:      month.Cost,
			TotalNicotine:  month.Nicotine,
			DaysOverLimit:  month.DaysOverLimit,
			DaysUnderLimit: month.DaysUnderLimit,
			Trend:          trend.Direction,
		},
		Yearly: YearlyStats{
			TotalCount:    year.TotalCount,
			TotalCost:     year.Cost,
			TotalNicotine: year.Nicotine,
			AveragePerDay: year.AveragePerDay,
			BestMonth:     best,
			WorstMonth:    worst,
		},
		Consumption: ConsumptionStats{
			Daily: DailyConsumption{
				Count:       today.Count,
				Saved:       max(0, s.DailyIntake-today.Count),
				Cost:        float64(today.Count) * portionCost,
				Nicotine:    float64(today.Count) * s.NicotineContent,
				SessionTime: s.SessionTime,
				WaitTime:    s.WaitTime,
			},
			Weekly:  period(week),
			Monthly: period(month),
			Yearly:  period(year),
		},
		Progress: ProgressStats{
			CurrentStreak:   streak.Current,
			LongestStreak:   streak.Longest,
			DaysWithinLimit: week.DaysUnderLimit,
			DaysOverLimit:   week.DaysOverLimit,
			GoalProgress:    goalProgress,
			Trend:           trend,
		},
		Savings: SavingsStats{
			Daily:     dailySavings,
			Total:     TotalSavings(ds.Year, portionCost),
			Projected: Project(dailySavings),
		},
		Health: HealthStats{
			NicotineDaily:      float64(today.Count) * s.NicotineContent,
			NicotineWeekly:     week.Nicotine,
			NicotineMonthly:    month.Nicotine,
			AverageSessionTime: s.SessionTime,
			AverageWaitTime:    s.WaitTime,
			MaxNicotineDay:     maxNicotineDay(ds.Year, ds.Today, s.NicotineContent),
			ReductionDays:      week.DaysUnderLimit,
			CurrentPause:       CurrentPause(today, ds.Now),
			LongestPause:       today.LongestPause,
		},
	}
}

func period(r Rollup) PeriodConsumption {
	return PeriodConsumption{
		Count:         r.TotalCount,
		Saved:         r.SavedPortions,
		Cost:          r.Cost,
		Nicotine:      r.Nicotine,
		AveragePerDay: r.AveragePerDay,
	}
}

// monthExtremes returns the lowest and highest monthly totals among months
// with usage. Ties go to the earlier month.
func monthExtremes(days []storage.DailyRecord) (best, worst MonthTotal) {
	var (
		order  []string
		totals = make(map[string]int)
	)
	for _, d := range days {
		if len(d.Date) < 7 || d.Count <= 0 {
			continue
		}
		month := d.Date[:7]
		if _, ok := totals[month]; !ok {
			order = append(order, month)
		}
		totals[month] += d.Count
	}

	for i, month := range order {
		mt := MonthTotal{Month: month, Count: totals[month]}
		if i == 0 {
			best, worst = mt, mt
			continue
		}
		if mt.Count < best.Count {
			best = mt
		}
		if mt.Count > worst.Count {
			worst = mt
		}
	}
	return best, worst
}

func maxNicotineDay(days []storage.DailyRecord, today string, nicotine float64) NicotineDay {
	top := NicotineDay{Date: today}
	maxCount := 0
	for _, d := range days {
		if d.Count > maxCount {
			maxCount = d.Count
			top.Date = d.Date
		}
	}
	top.Amount = float64(maxCount) * nicotine
	return top
}
