package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/confirm"
	"github.com/lyndonlyu/sweep/internal/logging"
	"github.com/lyndonlyu/sweep/internal/pipeline"
)

var (
	runRoot    string
	runVerbose bool
)

var runCmd = &cobra.Command{
	Use:   "run [path | path=>dest ...]",
	Short: "Run a cleanup request through the full gate pipeline",
	Long:  "Each argument is a path to delete, or path=>dest to move. Nothing is touched until every gate has passed and the operation is confirmed.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runRoot, "root", "", "Project root to scan for dependencies (default: working directory)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose logging")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	targets, err := parseTargets(args)
	if err != nil {
		return err
	}

	root := runRoot
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}

	logger, err := logging.New(runVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	responder := confirm.NewStdioResponder(os.Stdin, os.Stdout)
	responder.SetRenderer(renderMarkdown)

	summary, err := pipeline.New(cfg, responder, logger).Run(context.Background(), root, targets)
	if err != nil {
		if summary != nil && summary.Execution != nil && summary.Execution.RolledBack {
			fmt.Println(styleError.Render("Execution failed. All targets restored from backup " + summary.Execution.BackupID + "."))
		}
		return err
	}

	switch summary.Outcome {
	case pipeline.OutcomeCompleted:
		fmt.Printf("%s run %s\n", styleSuccess.Render("Completed:"), summary.RunID)
		if summary.Execution != nil {
			fmt.Printf("  risk %s, backup %s\n",
				renderRisk(summary.Risk.Pipeline.String()), summary.Execution.BackupID)
		}
	case pipeline.OutcomeBlocked:
		fmt.Println(styleError.Render("Blocked by pre-flight: " + summary.Preflight.Failure.Error()))
		return fmt.Errorf("pre-flight failed")
	case pipeline.OutcomeDenied:
		fmt.Println(styleDim.Render("Denied. Nothing was changed."))
	case pipeline.OutcomeStopped:
		fmt.Println(styleDim.Render("Stopped. Nothing was changed."))
	case pipeline.OutcomeReviewRequired:
		fmt.Println(styleError.Render("CRITICAL risk: operation blocked pending manual review."))
		fmt.Println(styleDim.Render("Activate the emergency override to proceed with a coded confirmation: sweep override activate --reason \"...\""))
		return fmt.Errorf("manual review required")
	case pipeline.OutcomeRolledBack:
		fmt.Println(styleError.Render("Post-operation validation failed; targets restored from backup."))
	}

	if summary.OverrideUsed {
		fmt.Println(styleDim.Render("Emergency override was in effect for this run."))
	}
	return nil
}
