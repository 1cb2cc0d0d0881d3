package main

import (
	"fmt"
	"os"

	"github.com/goodtune/snuskoll/internal/backup"
	"github.com/spf13/cobra"
)

var importYes bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export or restore tracked data",
}

var backupExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write settings and all records to a compressed archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupExport,
}

var backupImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace all records and settings with an archive's contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupImport,
}

var backupNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Write a backup into backup.dir and prune old ones",
	Args:  cobra.NoArgs,
	RunE:  runBackupNow,
}

func init() {
	backupImportCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "Replace existing data without asking")

	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
	backupCmd.AddCommand(backupNowCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	archive, err := backup.Export(ctx, a.store.Records(), a.settings, a.clock.Now())
	if err != nil {
		return err
	}
	if err := backup.WriteFile(args[0], archive); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "✅ Exported %d records to %s\n", len(archive.Records), args[0])
	return nil
}

func runBackupImport(cmd *cobra.Command, args []string) error {
	archive, err := backup.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	if !importYes {
		return fmt.Errorf("import replaces every stored record with %d records from %s; rerun with --yes to continue", len(archive.Records), args[0])
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := backup.Import(ctx, a.store.Records(), a.settings, archive); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "✅ Imported %d records from %s\n", len(archive.Records), args[0])
	return nil
}

func runBackupNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := loadCLI(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := backup.NewScheduler(a.store.Records(), a.settings, a.cfg.Backup.Dir, a.cfg.Backup.Time, a.cfg.Backup.Keep, a.clock, a.logger)
	if err != nil {
		return err
	}
	path, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "✅ Backup written to %s\n", path)
	return nil
}
