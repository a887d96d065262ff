package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/data"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/runner"
	"github.com/ormasoftchile/tessera/pkg/schema"
)

var (
	watchInterval string
	watchParallel int
	watchFilter   string
	watchTags     []string
)

var watchCmd = &cobra.Command{
	Use:   "watch [suite.yaml]",
	Short: "Re-run a suite whenever it or its data files change",
	Long: `Run the suite, then poll the suite file and any referenced data files
for modification-time changes, re-running on each change. Every cycle
prints a one-line summary; failing cases are listed underneath.

Validation errors do not stop the watch: fix the file and the next
change triggers a fresh run. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchCmd,
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	interval, err := time.ParseDuration(watchInterval)
	if err != nil {
		return fmt.Errorf("invalid --interval: %w", err)
	}

	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	ctx := cmd.Context()

	fmt.Printf("Watching %s (every %s)\n", filePath, interval)
	snap := watchSnapshot(filePath, cfg)
	for {
		runWatchCycle(ctx, cfg, log, filePath)

		// The run may have changed which data files the suite references.
		snap = watchSnapshot(filePath, cfg)
		for {
			time.Sleep(interval)
			next := watchSnapshot(filePath, cfg)
			if snapshotChanged(snap, next) {
				snap = next
				break
			}
		}
	}
}

// runWatchCycle executes one watched run and prints its compact summary.
// Errors never stop the watch; they are reported and the polling resumes.
func runWatchCycle(ctx context.Context, cfg *config.Config, log *slog.Logger, path string) {
	ts := time.Now().Format("15:04:05")

	r := runner.New(runner.Options{
		Config:   cfg,
		Parallel: watchParallel,
		Filter:   watchFilter,
		Tags:     watchTags,
		Out:      io.Discard,
		Logger:   log,
	})
	result, err := r.Run(ctx, path)
	if err != nil {
		var vfe *runner.ValidationFailedError
		if errors.As(err, &vfe) {
			fmt.Printf("%s  %s validation failed with %d error(s); waiting for changes\n",
				ts, report.StyleError.Render("!"), len(vfe.Errors))
			for _, ve := range vfe.Errors {
				fmt.Printf("          %s\n", report.StyleDim.Render(ve.Error()))
			}
			return
		}
		fmt.Printf("%s  %s %v\n", ts, report.StyleError.Render("!"), err)
		return
	}

	elapsed := result.Ended.Sub(result.Started)
	fmt.Printf("%s  %s\n", ts, summaryLine(result.Summary, elapsed))
	for i := range result.Results {
		res := &result.Results[i]
		if res.Status == blocks.StatusFailed || res.Status == blocks.StatusError {
			fmt.Printf("          %s %s: %s\n",
				report.StatusStyle(string(res.Status)).Render(report.StatusGlyph(string(res.Status))),
				res.Name(), firstErrorLine(res.Error))
		}
	}
}

// summaryLine is the compact one-line cycle summary: a glyph, the case
// counts and the elapsed time.
func summaryLine(sum report.Summary, elapsed time.Duration) string {
	glyph := report.StylePassed.Render("✓")
	if !sum.OK() {
		glyph = report.StyleFailed.Render("✗")
	}
	parts := []string{fmt.Sprintf("%d passed", sum.Passed)}
	if sum.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", sum.Failed))
	}
	if sum.Errored > 0 {
		parts = append(parts, fmt.Sprintf("%d errored", sum.Errored))
	}
	if sum.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", sum.Skipped))
	}
	return fmt.Sprintf("%s %d cases: %s (%s)", glyph, sum.Total,
		strings.Join(parts, ", "), elapsed.Truncate(10*time.Millisecond))
}

// watchSnapshot records the modification times of every watched file.
// Missing files get a zero time so appearance counts as a change.
func watchSnapshot(path string, cfg *config.Config) map[string]time.Time {
	files := watchedFiles(path, cfg)
	snap := make(map[string]time.Time, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			snap[f] = info.ModTime()
		} else {
			snap[f] = time.Time{}
		}
	}
	return snap
}

// watchedFiles lists the suite file plus any case data files it
// references. An unparseable suite watches just the file itself.
func watchedFiles(path string, cfg *config.Config) []string {
	files := []string{path}
	doc, err := schema.LoadFile(path)
	if err != nil {
		return files
	}
	baseDir := filepath.Dir(path)
	for i := range doc.Cases {
		ds := doc.Cases[i].Data
		if ds == nil || ds.File == "" {
			continue
		}
		if p, err := data.Locate(ds.File, baseDir, cfg.DataSearchPaths()); err == nil {
			files = append(files, p)
		}
	}
	return files
}

// snapshotChanged reports whether any watched file changed, appeared or
// disappeared between two snapshots.
func snapshotChanged(old, next map[string]time.Time) bool {
	if len(old) != len(next) {
		return true
	}
	for f, mt := range next {
		prev, ok := old[f]
		if !ok || !prev.Equal(mt) {
			return true
		}
	}
	return false
}

// firstErrorLine keeps multi-line errors to their first line in the
// compact listing.
func firstErrorLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	watchCmd.Flags().StringVar(&watchInterval, "interval", "2s", "Poll interval for modification times (e.g. 2s, 500ms)")
	watchCmd.Flags().IntVar(&watchParallel, "parallel", 0, "Cases to run concurrently per cycle")
	watchCmd.Flags().StringVar(&watchFilter, "filter", "", "Run only cases whose name contains this substring")
	watchCmd.Flags().StringArrayVar(&watchTags, "tag", nil, "Run only cases carrying this tag, repeatable")
	rootCmd.AddCommand(watchCmd)
}
