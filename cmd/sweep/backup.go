package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/backup"
)

var (
	backupDropForce   bool
	backupRestorePath []string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage run backups",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all backups",
	RunE:  listBackups,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [backup-id]",
	Short: "Restore targets from a backup",
	Long:  "Restores every snapshotted target, or only the paths given with --path for a partial restore.",
	Args:  cobra.ExactArgs(1),
	RunE:  restoreBackup,
}

var backupDropCmd = &cobra.Command{
	Use:   "drop [backup-id]",
	Short: "Delete a backup (refused inside its retention window)",
	Args:  cobra.ExactArgs(1),
	RunE:  dropBackup,
}

func init() {
	backupRestoreCmd.Flags().StringSliceVar(&backupRestorePath, "path", nil, "Restore only these original paths")
	backupDropCmd.Flags().BoolVar(&backupDropForce, "force", false, "Delete even inside the retention window")
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDropCmd)
	rootCmd.AddCommand(backupCmd)
}

func backupManager() (*backup.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return backup.NewManager(cfg.BackupDir()), nil
}

func listBackups(cmd *cobra.Command, args []string) error {
	m, err := backupManager()
	if err != nil {
		return err
	}
	records, err := m.List()
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No backups found.")
		return nil
	}

	fmt.Printf("%-36s %-20s %-8s %s\n", "ID", "CREATED", "SIZE", "TARGETS")
	for _, r := range records {
		fmt.Printf("%-36s %-20s %-8s %d\n", r.ID, r.CreatedAt, formatBytes(r.Bytes), len(r.Entries))
	}
	return nil
}

func restoreBackup(cmd *cobra.Command, args []string) error {
	m, err := backupManager()
	if err != nil {
		return err
	}
	id := args[0]

	if len(backupRestorePath) > 0 {
		if err := m.RestoreSubset(id, backupRestorePath); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("%s %d path(s) from %s\n", styleSuccess.Render("Restored"), len(backupRestorePath), id)
		return nil
	}

	if err := m.Restore(id); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	fmt.Printf("%s all targets from %s\n", styleSuccess.Render("Restored"), id)
	return nil
}

func dropBackup(cmd *cobra.Command, args []string) error {
	m, err := backupManager()
	if err != nil {
		return err
	}
	if err := m.Drop(args[0], backupDropForce); err != nil {
		return err
	}
	fmt.Printf("Dropped backup %s\n", args[0])
	return nil
}
