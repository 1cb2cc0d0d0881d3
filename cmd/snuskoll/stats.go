package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/goodtune/snuskoll/internal/stats"
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print current statistics",
	Long:  `Run one aggregation pass against storage and print the resulting statistics.`,
	Example: `  snuskoll stats
  snuskoll -c config.yaml stats --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the snapshot as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.engine.Assemble(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute statistics: %w", err)
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	printSnapshot(os.Stdout, snap)
	return nil
}

// printSnapshot renders the snapshot for a terminal.
func printSnapshot(w io.Writer, snap *stats.Snapshot) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed, color.Bold)

	countColor := green
	if snap.Daily.Count > snap.Daily.Limit {
		countColor = red
	}

	_, _ = cyan.Fprintf(w, "Today (%s)\n", snap.Date)
	_, _ = countColor.Fprintf(w, "  portions        %d / %d\n", snap.Daily.Count, snap.Daily.Limit)
	fmt.Fprintf(w, "  saved           %d (%.2f)\n", snap.Consumption.Daily.Saved, snap.Savings.Daily)
	fmt.Fprintf(w, "  nicotine        %.1f mg\n", snap.Health.NicotineDaily)
	fmt.Fprintf(w, "  current pause   %s\n", remainingString(snap.Health.CurrentPause))
	fmt.Fprintf(w, "  longest pause   %s\n", remainingString(snap.Health.LongestPause))

	_, _ = cyan.Fprintln(w, "\nThis week")
	fmt.Fprintf(w, "  total           %d (%.1f/day)\n", snap.Weekly.TotalCount, snap.Weekly.AveragePerDay)
	fmt.Fprintf(w, "  within limit    %d days, over %d\n", snap.Weekly.DaysUnderLimit, snap.Weekly.DaysOverLimit)
	fmt.Fprintf(w, "  best pause      %s\n", remainingString(snap.Weekly.BestPause))
	dates := make([]string, 0, len(snap.Weekly.DailyCounts))
	for date := range snap.Weekly.DailyCounts {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		fmt.Fprintf(w, "    %s  %d\n", date, snap.Weekly.DailyCounts[date])
	}

	_, _ = cyan.Fprintln(w, "\nThis month")
	fmt.Fprintf(w, "  total           %d (%.1f/day)\n", snap.Monthly.TotalCount, snap.Monthly.AveragePerDay)
	fmt.Fprintf(w, "  cost            %.2f\n", snap.Monthly.TotalCost)
	fmt.Fprintf(w, "  trend           %s\n", snap.Monthly.Trend)

	_, _ = cyan.Fprintln(w, "\nLast year")
	fmt.Fprintf(w, "  total           %d (%.1f/day)\n", snap.Yearly.TotalCount, snap.Yearly.AveragePerDay)
	fmt.Fprintf(w, "  cost            %.2f\n", snap.Yearly.TotalCost)
	if snap.Yearly.BestMonth.Month != "" {
		fmt.Fprintf(w, "  best month      %s (%d)\n", snap.Yearly.BestMonth.Month, snap.Yearly.BestMonth.Count)
		fmt.Fprintf(w, "  worst month     %s (%d)\n", snap.Yearly.WorstMonth.Month, snap.Yearly.WorstMonth.Count)
	}

	_, _ = cyan.Fprintln(w, "\nProgress")
	fmt.Fprintf(w, "  streak          %d (longest %d)\n", snap.Progress.CurrentStreak, snap.Progress.LongestStreak)
	fmt.Fprintf(w, "  trend           %s %d%%\n", snap.Progress.Trend.Direction, snap.Progress.Trend.Percentage)
	fmt.Fprintf(w, "  goal progress   %.0f%%\n", snap.Progress.GoalProgress)

	_, _ = cyan.Fprintln(w, "\nSavings")
	fmt.Fprintf(w, "  total           %.2f\n", snap.Savings.Total)
	fmt.Fprintf(w, "  projected       %.2f / %.2f / %.2f (3m / 6m / 1y)\n",
		snap.Savings.Projected.ThreeMonths, snap.Savings.Projected.SixMonths, snap.Savings.Projected.OneYear)
}
