package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change tracking settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY=VALUE...",
	Short: "Change one or more settings",
	Example: `  snuskoll settings set daily_intake=8
  snuskoll settings set goal=reduce target_daily_intake=6 wait_time=45`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := a.settings.Get(ctx)
	if err != nil {
		return err
	}
	printSettings(current, &a.cfg.Defaults)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	// Parse every pair before touching storage
	v := viper.New()
	valid := settingsKeys()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("expected KEY=VALUE, got %q", arg)
		}
		if !valid[key] {
			return fmt.Errorf("unknown setting %q", key)
		}
		v.Set(key, strings.TrimSpace(value))
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	updated, err := a.settings.Get(ctx)
	if err != nil {
		return err
	}
	// Weak decoding turns "8" into 8; keys not given keep their values
	if err := v.Unmarshal(updated); err != nil {
		return fmt.Errorf("invalid setting value: %w", err)
	}
	if err := a.settings.Save(ctx, *updated); err != nil {
		return err
	}

	printSettings(updated, &a.cfg.Defaults)
	return nil
}

// settingsKeys returns the mapstructure key of every Settings field.
func settingsKeys() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(storage.Settings{})
	for i := range t.NumField() {
		if tag := t.Field(i).Tag.Get("mapstructure"); tag != "" {
			keys[tag] = true
		}
	}
	return keys
}

// printSettings lists settings, highlighting values that differ from the
// configured defaults.
func printSettings(s, defaults *storage.Settings) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)

	current := reflect.ValueOf(*s)
	def := reflect.ValueOf(*defaults)
	t := current.Type()

	type row struct {
		key          string
		value, deflt any
	}
	rows := make([]row, 0, t.NumField())
	for i := range t.NumField() {
		rows = append(rows, row{
			key:   t.Field(i).Tag.Get("mapstructure"),
			value: current.Field(i).Interface(),
			deflt: def.Field(i).Interface(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	for _, r := range rows {
		dumpField(os.Stdout, r.key, r.value, r.deflt, yellow, green)
	}
}
