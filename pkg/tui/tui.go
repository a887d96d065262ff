// Package tui implements the live terminal view for suite runs: a Bubble
// Tea program showing per-case progress, the executing step, a scrollable
// step log, and the final summary. Styles and glyphs are shared with the
// console reporter.
package tui

import (
	"context"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/engine"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/runner"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// Options configures a TUI run.
type Options struct {
	Config   *config.Config
	Parallel int
	FailFast bool
	Filter   string
	Tags     []string
	Logger   *slog.Logger
}

// Run executes the suite at path with the live view attached. The runner
// executes in a goroutine and streams events through a channel the model
// drains; console output is discarded because the screen belongs to the
// program. Returns the run result so callers can derive an exit code.
func Run(ctx context.Context, opts Options, path string) (*runner.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan tea.Msg, 64)
	r := runner.New(runner.Options{
		Config:   opts.Config,
		Parallel: opts.Parallel,
		FailFast: opts.FailFast,
		Filter:   opts.Filter,
		Tags:     opts.Tags,
		Out:      io.Discard,
		Logger:   opts.Logger,
		Events:   &runFeed{ch: ch},
		OnRunStart: func(suite, runID string, names []string) {
			ch <- runStartedMsg{suite: suite, runID: runID, names: names}
		},
		OnCase: func(res *report.TestResult) {
			ch <- caseFinishedMsg{res: *res}
		},
	})

	var (
		result *runner.RunResult
		runErr error
	)
	go func() {
		result, runErr = r.Run(ctx, path)
		ch <- runFinishedMsg{result: result, err: runErr}
		close(ch)
	}()

	p := tea.NewProgram(newModel(path, ch, cancel), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cancel()
		for range ch {
		}
		return nil, err
	}

	// Quitting mid-run cancels the context; wait for the runner to wind
	// down so result and runErr are settled.
	cancel()
	for range ch {
	}
	return result, runErr
}

// runFeed forwards interpreter step notifications into the program's
// event channel. Runs on worker goroutines; the channel serializes.
type runFeed struct {
	ch chan<- tea.Msg
}

func (f *runFeed) StepStarted(ec *blocks.ExecContext, node *step.Node) {
	f.ch <- stepStartedMsg{caseName: ec.Case, stepID: node.ID, block: node.Type}
}

func (f *runFeed) StepFinished(ec *blocks.ExecContext, res *blocks.StepResult) {
	f.ch <- stepFinishedMsg{caseName: ec.Case, res: *res}
}

var _ engine.Events = (*runFeed)(nil)
