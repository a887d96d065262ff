package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/tessera/pkg/report"
)

var reportVerbose bool

var reportCmd = &cobra.Command{
	Use:   "report [run directory]",
	Short: "Render a stored run's report",
	Long: `Re-render the console report for a completed run from its artifacts
directory. Without an argument, renders the most recent run under the
artifact root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	var dir string
	if len(args) == 1 {
		dir = args[0]
	} else {
		cfg, err := loadProjectConfig()
		if err != nil {
			return err
		}
		dir, err = report.LatestRun(cfg.ArtifactDir())
		if err != nil {
			return err
		}
	}
	return report.RenderRun(os.Stdout, dir, reportVerbose)
}

func init() {
	reportCmd.Flags().BoolVar(&reportVerbose, "verbose", false, "Include per-step lines read back from the trace")
	rootCmd.AddCommand(reportCmd)
}
