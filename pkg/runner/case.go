package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ormasoftchile/tessera/pkg/assert"
	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/data"
	"github.com/ormasoftchile/tessera/pkg/engine"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/schema"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// caseJob is one schedulable unit: a test case, or one row of a
// data-driven case. Step trees are read-only and shared across rows.
type caseJob struct {
	idx     int
	name    string
	steps   []*step.Node
	vars    map[string]any
	row     data.Row
	rowIdx  int // 1-based when the case has a data source
	skip    string
	soft    bool
	timeout time.Duration
}

func (j *caseJob) displayName() string {
	if j.rowIdx > 0 {
		return fmt.Sprintf("%s[%d]", j.name, j.rowIdx)
	}
	return j.name
}

// expand turns the document's cases into jobs: filters apply first, then
// data sources multiply a case into one job per row.
func (r *Runner) expand(doc *schema.Document, path string) ([]caseJob, error) {
	suiteDir := filepath.Dir(path)
	searchPaths := r.cfg.DataSearchPaths()
	defTimeout := defaultTimeout(doc)

	var jobs []caseJob
	for i := range doc.Cases {
		c := &doc.Cases[i]
		if !matchCase(c, doc.Suite.Tags, r.opts.Filter, r.opts.Tags) {
			continue
		}

		steps, err := schema.Steps(c.Steps)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", c.Name, err)
		}
		caseVars := mergeVars(doc.Suite.Vars, c.Vars)
		timeout := parseTimeout(c.Timeout, defTimeout)

		rows, err := data.Resolve(c.Data, suiteDir, searchPaths)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", c.Name, err)
		}
		if len(rows) == 0 {
			jobs = append(jobs, caseJob{
				idx: len(jobs), name: c.Name, steps: steps, vars: caseVars,
				skip: c.Skip, soft: c.SoftAssertions, timeout: timeout,
			})
			continue
		}
		for ri, row := range rows {
			jobs = append(jobs, caseJob{
				idx: len(jobs), name: c.Name, steps: steps, vars: caseVars,
				row: row, rowIdx: ri + 1,
				skip: c.Skip, soft: c.SoftAssertions, timeout: timeout,
			})
		}
	}
	return jobs, nil
}

// runCase executes one job in a fresh execution context and maps the
// outcome to a result. It never returns an error; failures become the
// result's status.
func (r *Runner) runCase(ctx context.Context, env *environment, console *report.Console, job caseJob) report.TestResult {
	res := report.TestResult{
		Case:      job.name,
		Row:       job.rowIdx,
		StartedAt: time.Now(),
	}
	finish := func() report.TestResult {
		res.EndedAt = time.Now()
		res.Duration = res.EndedAt.Sub(res.StartedAt)
		return res
	}

	if job.skip != "" {
		res.Status = blocks.StatusSkipped
		res.SkipReason = job.skip
		return finish()
	}

	if err := env.trace.CaseStarted(job.displayName()); err != nil {
		r.log.Warn("trace case start", "case", job.displayName(), "error", err)
	}

	ec := blocks.NewExecContext(env.procs.Snapshot())
	ec.RunID = env.runID
	// Data-driven rows carry their row index ("case[2]") so trace and
	// streamed step events stay attributable per iteration.
	ec.Case = job.displayName()
	ec.Soft = job.soft
	ec.Vars = copyVars(job.vars)
	ec.Row = job.row
	ec.HTTP = env.http
	ec.Artifacts = env.sink
	ec.Logger = r.log.With("case", job.displayName())

	caseCtx := ctx
	if job.timeout > 0 {
		var cancel context.CancelFunc
		caseCtx, cancel = context.WithTimeout(ctx, job.timeout)
		defer cancel()
	}

	ev := &caseEvents{runner: r, env: env, console: console, extra: r.opts.Events}
	eng := engine.New(engine.Config{
		Blocks:        env.reg,
		Events:        ev,
		Gate:          r.opts.Gate,
		OnLeafFailure: captureScreenshot,
	})

	err := eng.RunSteps(caseCtx, ec, job.steps)
	closeBrowser(ec)

	res.SoftFailures = append([]blocks.SoftFailure(nil), ec.SoftFailures...)
	if flushErr := assert.Flush(ec); err == nil {
		err = flushErr
	}
	res.Steps = eng.Results()
	res.Status, res.Error, res.SkipReason = statusOf(err)
	return finish()
}

// statusOf maps an execution error to a result status. Assertion and leaf
// failures fail the case; skips skip it; everything else (unknown blocks,
// missing procedures, timeouts, cancellation) is an error.
func statusOf(err error) (blocks.Status, string, string) {
	if err == nil {
		return blocks.StatusPassed, "", ""
	}
	var skip *blocks.SkipError
	if errors.As(err, &skip) {
		return blocks.StatusSkipped, "", skip.Reason
	}
	var hard *assert.HardError
	var agg *assert.AggregateError
	var leaf *engine.LeafError
	if errors.As(err, &hard) || errors.As(err, &agg) || errors.As(err, &leaf) {
		return blocks.StatusFailed, err.Error(), ""
	}
	return blocks.StatusError, err.Error(), ""
}

// closeBrowser tears down a session the case left open. Cleanup gets its
// own deadline so a timed-out case still releases the browser.
func closeBrowser(ec *blocks.ExecContext) {
	if ec.Browser == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ec.Browser.Close(ctx); err != nil && ec.Logger != nil {
		ec.Logger.Warn("close browser session", "error", err)
	}
	ec.Browser = nil
}

// captureScreenshot grabs the browser screen for a failed leaf step.
// Returns the stored artifact path, or "" when no session is open.
func captureScreenshot(ctx context.Context, ec *blocks.ExecContext, node *step.Node, _ *blocks.Descriptor) string {
	if ec.Browser == nil || ec.Artifacts == nil {
		return ""
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	png, err := ec.Browser.Screenshot(sctx)
	if err != nil {
		if ec.Logger != nil {
			ec.Logger.Warn("failure screenshot", "step", node.ID, "error", err)
		}
		return ""
	}
	path, err := ec.Artifacts.SaveScreenshot(node.ID, png)
	if err != nil {
		if ec.Logger != nil {
			ec.Logger.Warn("save screenshot", "step", node.ID, "error", err)
		}
		return ""
	}
	return path
}

// caseEvents fans step notifications out to the trace, the console (in
// sequential verbose runs) and any extra sink.
type caseEvents struct {
	runner  *Runner
	env     *environment
	console *report.Console
	extra   engine.Events
}

func (ev *caseEvents) StepStarted(ec *blocks.ExecContext, node *step.Node) {
	if err := ev.env.trace.StepStarted(ec.Case, node.ID, node.Type); err != nil {
		ev.runner.log.Warn("trace step start", "step", node.ID, "error", err)
	}
	if ev.extra != nil {
		ev.extra.StepStarted(ec, node)
	}
}

func (ev *caseEvents) StepFinished(ec *blocks.ExecContext, res *blocks.StepResult) {
	if err := ev.env.trace.StepResult(ec.Case, res); err != nil {
		ev.runner.log.Warn("trace step result", "step", res.StepID, "error", err)
	}
	if ev.console != nil {
		ev.console.StepFinished(res)
	}
	if ev.extra != nil {
		ev.extra.StepFinished(ec, res)
	}
}

func defaultTimeout(doc *schema.Document) time.Duration {
	if doc.Suite.Defaults == nil {
		return 0
	}
	return parseTimeout(doc.Suite.Defaults.Timeout, 0)
}

// parseTimeout trusts validation: a malformed duration here falls back to
// the default rather than failing the run.
func parseTimeout(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func mergeVars(suite, c map[string]any) map[string]any {
	out := make(map[string]any, len(suite)+len(c))
	for k, v := range suite {
		out[k] = v
	}
	for k, v := range c {
		out[k] = v
	}
	return out
}

func copyVars(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
