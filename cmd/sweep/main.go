package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Safety gate pipeline for bulk file cleanup",
	Long:  "Sweep runs delete and move requests through a fail-closed gate pipeline: pre-flight checks, dependency analysis, risk assessment, human confirmation, backup, and post-operation validation.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("sweep v0.1.0")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
