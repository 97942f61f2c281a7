package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/checker"
	"github.com/lyndonlyu/sweep/internal/depgraph"
	"github.com/lyndonlyu/sweep/internal/logging"
	"github.com/lyndonlyu/sweep/internal/risk"
)

var (
	riskRoot string
	riskJSON bool
)

var riskCmd = &cobra.Command{
	Use:   "risk [path | path=>dest ...]",
	Short: "Assess the risk of removing the given targets",
	Long:  "Runs dependency analysis and risk scoring without touching anything. The same assessment the run command would present for confirmation.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRisk,
}

func init() {
	riskCmd.Flags().StringVar(&riskRoot, "root", "", "Project root to scan (default: working directory)")
	riskCmd.Flags().BoolVar(&riskJSON, "json", false, "JSON output")
	rootCmd.AddCommand(riskCmd)
}

func runRisk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	targets, err := parseTargets(args)
	if err != nil {
		return err
	}

	root := riskRoot
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}

	logger := logging.Nop()
	opts := checker.Options{
		ExcludeGlobs: cfg.Scan.ExcludeGlobs,
		MaxFileBytes: cfg.Scan.MaxFileBytes,
		Logger:       logger,
	}
	report := depgraph.New(checker.All(opts), logger).Analyze(context.Background(), root, targets)
	result := risk.New(cfg.Scan.CriticalFiles).Assess(report)

	if riskJSON {
		out, err := risk.FormatResultJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	for _, a := range result.Assessments {
		fmt.Printf("%s %s (score %d, %d references)\n",
			renderRisk(a.Level.String()), a.Target, a.Score, a.RefCount)
	}
	fmt.Printf("\nPipeline level: %s\n", renderRisk(result.Pipeline.String()))
	return nil
}
