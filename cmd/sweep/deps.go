package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/checker"
	"github.com/lyndonlyu/sweep/internal/depgraph"
	"github.com/lyndonlyu/sweep/internal/logging"
)

var (
	depsRoot    string
	depsJSON    bool
	depsVerbose bool
)

var depsCmd = &cobra.Command{
	Use:   "deps [path | path=>dest ...]",
	Short: "Scan the project for references to the given targets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDeps,
}

func init() {
	depsCmd.Flags().StringVar(&depsRoot, "root", "", "Project root to scan (default: working directory)")
	depsCmd.Flags().BoolVar(&depsJSON, "json", false, "JSON output")
	depsCmd.Flags().BoolVarP(&depsVerbose, "verbose", "v", false, "Verbose logging")
	rootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	targets, err := parseTargets(args)
	if err != nil {
		return err
	}

	root := depsRoot
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}

	logger, err := logging.New(depsVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := checker.Options{
		ExcludeGlobs: cfg.Scan.ExcludeGlobs,
		MaxFileBytes: cfg.Scan.MaxFileBytes,
		Logger:       logger,
	}
	report := depgraph.New(checker.All(opts), logger).Analyze(context.Background(), root, targets)

	if depsJSON {
		out, err := depgraph.FormatReportJSON(report)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(depgraph.FormatReport(report))
	return nil
}
