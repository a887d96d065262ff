package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/tessera/pkg/debugger"
	"github.com/ormasoftchile/tessera/pkg/runner"
	"github.com/ormasoftchile/tessera/pkg/tui"
)

var (
	runParallel int
	runFailFast bool
	runFilter   string
	runTags     []string
	runVerbose  bool
	runDebug    bool
	runTUI      bool
)

var runCmd = &cobra.Command{
	Use:   "run [suite.yaml]",
	Short: "Execute a test suite",
	Long: `Validate and execute a test suite, writing run artifacts (trace,
manifest, JUnit report) under the artifact root.

Exit codes:
  0: all cases passed (skips allowed)
  1: at least one case failed or errored
  2: the suite failed validation (nothing ran)`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if runDebug && runTUI {
		return fmt.Errorf("--debug and --tui both need the terminal; pick one")
	}
	if runDebug && runParallel > 1 {
		return fmt.Errorf("--debug requires a sequential run; drop --parallel")
	}

	if runTUI {
		result, err := tui.Run(cmd.Context(), tui.Options{
			Config:   cfg,
			Parallel: runParallel,
			FailFast: runFailFast,
			Filter:   runFilter,
			Tags:     runTags,
			Logger:   log,
		}, filePath)
		return finishRun(result != nil && result.Summary.OK(), err)
	}

	opts := runner.Options{
		Config:   cfg,
		Parallel: runParallel,
		FailFast: runFailFast,
		Filter:   runFilter,
		Tags:     runTags,
		Verbose:  runVerbose,
		Out:      os.Stdout,
		Logger:   log,
	}

	if runDebug {
		d := debugger.New(os.Stdout)
		opts.Parallel = 1
		opts.FailFast = true
		opts.Gate = d.Gate
		opts.Events = d
	}

	result, err := runner.New(opts).Run(cmd.Context(), filePath)
	return finishRun(result != nil && result.Summary.OK(), err)
}

// finishRun maps a run outcome to the documented exit codes. Validation
// failures print their findings and exit 2; anything else non-OK exits 1.
func finishRun(ok bool, err error) error {
	var vfe *runner.ValidationFailedError
	if errors.As(err, &vfe) {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
	if err != nil {
		return err
	}
	if !ok {
		os.Exit(1)
	}
	return nil
}

func init() {
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Cases to run concurrently (default: project config, else 1)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Cancel remaining cases after the first failure")
	runCmd.Flags().StringVar(&runFilter, "filter", "", "Run only cases whose name contains this substring")
	runCmd.Flags().StringArrayVar(&runTags, "tag", nil, "Run only cases carrying this tag, repeatable")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print every step result, not just cases")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Pause before each statement in an interactive debugger")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live terminal view instead of console output")
	rootCmd.AddCommand(runCmd)
}
