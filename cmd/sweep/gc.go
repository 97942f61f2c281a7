package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/backup"
	"github.com/lyndonlyu/sweep/internal/gc"
)

var (
	gcDryRun   bool
	gcMaxAudit int
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Clean up expired backups and old audit logs",
	Long:  "Remove backups past their retention window and audit log files older than the audit retention period. Backups inside retention are never touched.",
	RunE:  runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "Show what would be deleted without deleting")
	gcCmd.Flags().IntVar(&gcMaxAudit, "max-audit", 0, "Keep audit logs for N days (default: config value)")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	policy := gc.Policy{
		MaxAuditDays: cfg.Backup.MaxAuditDays,
		DryRun:       gcDryRun,
	}
	if gcMaxAudit > 0 {
		policy.MaxAuditDays = gcMaxAudit
	}

	if gcDryRun {
		fmt.Println("[GC] Dry run mode - no files will be deleted")
	}

	result, err := gc.Run(backup.NewManager(cfg.BackupDir()), cfg.AuditDir(), policy)
	if err != nil {
		return fmt.Errorf("gc failed: %w", err)
	}

	if result.BackupsRemoved > 0 {
		fmt.Printf("[GC] Removed %d expired backups\n", result.BackupsRemoved)
	}
	if result.AuditFilesRemoved > 0 {
		fmt.Printf("[GC] Removed %d audit log files\n", result.AuditFilesRemoved)
	}
	if result.BytesFreed > 0 {
		fmt.Printf("[GC] Freed %s\n", formatBytes(result.BytesFreed))
	}
	if result.BackupsRemoved == 0 && result.AuditFilesRemoved == 0 {
		fmt.Println("[GC] Nothing to clean up")
	}
	return nil
}
