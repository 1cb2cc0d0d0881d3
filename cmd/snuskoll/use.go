package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/goodtune/snuskoll/internal/usage"
	"github.com/spf13/cobra"
)

var logOverride bool

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log a portion and start a session",
	Example: `  snuskoll log
  snuskoll log --override`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active session and start the wait",
	Args:  cobra.NoArgs,
	RunE:  runEnd,
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Clear any session or wait in progress",
	Args:  cobra.NoArgs,
	RunE:  runOverride,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's count and session timers",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	logCmd.Flags().BoolVar(&logOverride, "override", false, "Start even while the wait period is running")

	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(endCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(statusCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.tracker.Start(ctx, logOverride); err != nil {
		return err
	}
	return printStatus(ctx, a.tracker)
}

func runEnd(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.tracker.End(ctx); err != nil {
		return err
	}
	return printStatus(ctx, a.tracker)
}

func runOverride(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.tracker.Override(ctx); err != nil {
		return err
	}
	return printStatus(ctx, a.tracker)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Settle anything that ran out while nobody was watching
	if _, err := a.tracker.Expire(ctx); err != nil {
		return err
	}
	return printStatus(ctx, a.tracker)
}

func printStatus(ctx context.Context, tracker *usage.Tracker) error {
	status, err := tracker.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	writeStatus(os.Stdout, status)
	return nil
}

func writeStatus(w io.Writer, s *usage.Status) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	countColor := green
	if s.OverLimit() {
		countColor = red
	}
	_, _ = countColor.Fprintf(w, "%s  %d / %d\n", s.Date, s.Count, s.Limit)

	switch s.State {
	case storage.StateActive:
		_, _ = yellow.Fprintf(w, "session active, %s left\n", remainingString(s.SessionRemaining))
	case storage.StateWaiting:
		_, _ = yellow.Fprintf(w, "waiting, next portion in %s\n", remainingString(s.WaitRemaining))
	default:
		_, _ = green.Fprintln(w, "ready")
	}

	if s.CurrentPause > 0 {
		fmt.Fprintf(w, "pause %s (longest today %s)\n", remainingString(s.CurrentPause), remainingString(s.LongestPause))
	}
}

func remainingString(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}
