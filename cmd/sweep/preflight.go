package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweep/internal/preflight"
)

var preflightJSON bool

var preflightCmd = &cobra.Command{
	Use:   "preflight [path | path=>dest ...]",
	Short: "Run only the pre-flight checks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPreflight,
}

func init() {
	preflightCmd.Flags().BoolVar(&preflightJSON, "json", false, "JSON output")
	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	targets, err := parseTargets(args)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	result := preflight.New(cfg.BackupDir()).Run(targets)

	if preflightJSON {
		out, err := preflight.FormatResultJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	} else {
		fmt.Print(preflight.FormatResult(result))
	}

	if !result.Passed {
		return fmt.Errorf("pre-flight failed")
	}
	return nil
}
