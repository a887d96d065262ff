package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/tessera/pkg/replay"
	"github.com/ormasoftchile/tessera/pkg/report"
)

var replayTrace string

var replayCmd = &cobra.Command{
	Use:   "replay [suite.yaml]",
	Short: "Re-run a suite offline against a recorded trace",
	Long: `Execute the suite with web, HTTP and exec steps answered from a
recorded trace instead of live systems, then compare each case's outcome
with the recording. Without --trace, the most recent run's trace is used.

Exit codes:
  0: every case reproduced its recorded outcome
  1: at least one case diverged from the recording`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}

	tracePath := replayTrace
	if tracePath == "" {
		dir, err := report.LatestRun(cfg.ArtifactDir())
		if err != nil {
			return fmt.Errorf("no --trace given: %w", err)
		}
		tracePath = filepath.Join(dir, report.TraceFile)
	}

	result, err := replay.Run(cmd.Context(), replay.Options{
		Config: cfg,
		Out:    os.Stdout,
		Logger: newLogger(cfg),
	}, args[0], tracePath)
	if err != nil {
		return err
	}

	fmt.Printf("\nReplay of %s:\n", report.StyleDim.Render(result.Recording.RunID))
	for _, c := range result.Comparisons {
		glyph := report.StylePassed.Render("✓")
		if !c.Match {
			glyph = report.StyleFailed.Render("✗")
		}
		fmt.Printf("  %s %s  recorded %s, replayed %s\n", glyph, c.Case,
			orNone(string(c.Recorded)), orNone(string(c.Replayed)))
		if c.Error != "" {
			fmt.Printf("      %s\n", report.StyleFailed.Render(c.Error))
		}
		if c.Pending > 0 {
			fmt.Printf("      %s\n", report.StyleDim.Render(fmt.Sprintf("%d recorded step(s) never reached", c.Pending)))
		}
	}

	if result.Divergent > 0 {
		fmt.Printf("\n%s\n", report.StyleFailed.Render(fmt.Sprintf("%d case(s) diverged from the recording", result.Divergent)))
		os.Exit(1)
	}
	fmt.Printf("\n%s\n", report.StylePassed.Render("✓ replay matches the recording"))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	replayCmd.Flags().StringVar(&replayTrace, "trace", "", "Path to the trace file (default: latest run's trace)")
	rootCmd.AddCommand(replayCmd)
}
