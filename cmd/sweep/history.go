package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/statedb"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past runs, or the execution log of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyN, "limit", "n", 20, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := statedb.Open(cfg.StateDBPath())
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	if len(args) == 1 {
		return showRun(db, args[0])
	}

	runs, err := db.RecentRuns(historyN)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-36s %-12s %-10s %-8s %s\n", "RUN_ID", "STATUS", "RISK", "TARGETS", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-36s %-12s %-10s %-8d %s\n", r.ID, r.Status, r.RiskLevel, r.TargetCount, r.StartedAt)
	}
	return nil
}

func showRun(db *statedb.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  status:  %s\n", run.Status)
	if run.RiskLevel != "" {
		fmt.Printf("  risk:    %s\n", renderRisk(run.RiskLevel))
	}
	fmt.Printf("  targets: %d\n", run.TargetCount)
	fmt.Printf("  started: %s\n", run.StartedAt)
	if run.EndedAt != "" {
		fmt.Printf("  ended:   %s\n", run.EndedAt)
	}

	if bk, err := db.BackupForRun(runID); err == nil {
		fmt.Printf("  backup:  %s (%s)\n", bk.ID, formatBytes(bk.Bytes))
	}

	steps, err := db.StepsForRun(runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	fmt.Println("\nExecution log:")
	for _, s := range steps {
		mark := styleSuccess.Render("ok")
		if s.Status != "SUCCESS" {
			mark = styleError.Render("FAIL")
		}
		fmt.Printf("  %2d. [%s] %s", s.Seq, mark, s.Description)
		if s.Error != "" {
			fmt.Printf("  (%s)", s.Error)
		}
		fmt.Println()
	}
	return nil
}
