package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/audit"
)

var (
	auditShowN   int
	auditShowRun string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent audit records",
	RunE:  showAudit,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	RunE:  verifyAudit,
}

func init() {
	auditShowCmd.Flags().IntVarP(&auditShowN, "limit", "n", 20, "Number of records to show")
	auditShowCmd.Flags().StringVar(&auditShowRun, "run", "", "Show all records for one run ID")
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func auditLogger() (*audit.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return audit.NewLogger(cfg.AuditDir())
}

func showAudit(cmd *cobra.Command, args []string) error {
	l, err := auditLogger()
	if err != nil {
		return err
	}

	var records []audit.Record
	if auditShowRun != "" {
		records, err = l.ForRun(auditShowRun)
	} else {
		records, err = l.Recent(auditShowN)
	}
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No audit records.")
		return nil
	}
	fmt.Print(audit.FormatRecords(records))
	return nil
}

func verifyAudit(cmd *cobra.Command, args []string) error {
	l, err := auditLogger()
	if err != nil {
		return err
	}
	ok, bad, err := l.Verify()
	if err != nil {
		return fmt.Errorf("verify audit log: %w", err)
	}
	if !ok {
		fmt.Println(styleError.Render(fmt.Sprintf("Audit chain BROKEN at record %d", bad)))
		return fmt.Errorf("audit chain broken")
	}
	fmt.Println(styleSuccess.Render("Audit chain intact."))
	return nil
}
