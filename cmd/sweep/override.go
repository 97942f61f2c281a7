package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/audit"
	"github.com/lyndonlyu/sweep/internal/override"
)

var overrideReason string

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage the emergency override",
	Long:  "While active, the override lets a CRITICAL-risk operation proceed through a coded confirmation instead of being blocked. It expires automatically and never skips backups.",
}

var overrideActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate the emergency override",
	RunE:  activateOverride,
}

var overrideClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the emergency override",
	RunE:  clearOverride,
}

var overrideStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show override status",
	RunE:  overrideStatus,
}

func init() {
	overrideActivateCmd.Flags().StringVar(&overrideReason, "reason", "", "Why the override is needed (required)")
	overrideActivateCmd.MarkFlagRequired("reason")
	overrideCmd.AddCommand(overrideActivateCmd)
	overrideCmd.AddCommand(overrideClearCmd)
	overrideCmd.AddCommand(overrideStatusCmd)
	rootCmd.AddCommand(overrideCmd)
}

func overrideSwitch() (*override.Switch, *audit.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}
	logger, err := audit.NewLogger(cfg.AuditDir())
	if err != nil {
		return nil, nil, err
	}
	return override.New(cfg.OverridePath()), logger, nil
}

func activateOverride(cmd *cobra.Command, args []string) error {
	sw, auditLog, err := overrideSwitch()
	if err != nil {
		return err
	}
	if err := sw.Activate(overrideReason); err != nil {
		return err
	}
	if err := auditLog.Log(audit.Entry{Gate: "override", Outcome: "activated", Detail: overrideReason}); err != nil {
		return err
	}
	fmt.Println(styleError.Render("Emergency override ACTIVE.") + " CRITICAL operations now require a coded confirmation instead of being blocked.")
	fmt.Println(styleDim.Render(fmt.Sprintf("Expires automatically after %s.", override.DefaultMaxAge)))
	return nil
}

func clearOverride(cmd *cobra.Command, args []string) error {
	sw, auditLog, err := overrideSwitch()
	if err != nil {
		return err
	}
	if err := sw.Clear(); err != nil {
		return err
	}
	if err := auditLog.Log(audit.Entry{Gate: "override", Outcome: "cleared"}); err != nil {
		return err
	}
	fmt.Println("Override cleared.")
	return nil
}

func overrideStatus(cmd *cobra.Command, args []string) error {
	sw, _, err := overrideSwitch()
	if err != nil {
		return err
	}
	state, err := sw.Status()
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Println("Override inactive.")
		return nil
	}
	fmt.Println(styleError.Render("Override ACTIVE"))
	fmt.Printf("  reason:       %s\n", state.Reason)
	fmt.Printf("  activated by: %s\n", state.ActivatedBy)
	fmt.Printf("  activated at: %s\n", state.ActivatedAt)
	return nil
}
