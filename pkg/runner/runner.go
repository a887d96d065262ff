// Package runner orchestrates suite execution: it assembles the block
// environment from project config, schedules test cases across a worker
// pool, and persists run artifacts (trace, manifest, JUnit, screenshots).
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/ctxlog"
	"github.com/ormasoftchile/tessera/pkg/engine"
	"github.com/ormasoftchile/tessera/pkg/governance"
	"github.com/ormasoftchile/tessera/pkg/library"
	"github.com/ormasoftchile/tessera/pkg/plugins"
	"github.com/ormasoftchile/tessera/pkg/procedures"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/schema"
	"github.com/ormasoftchile/tessera/pkg/webdriver"
)

// Options configures one suite run.
type Options struct {
	Config   *config.Config
	Parallel int      // worker count; 0 takes the project config
	FailFast bool     // cancel remaining cases after the first failure
	Filter   string   // run only cases whose name contains this substring
	Tags     []string // run only cases carrying one of these tags
	Verbose  bool     // per-step console lines, sequential runs only

	Out    io.Writer    // console destination; nil means os.Stdout
	Logger *slog.Logger // nil builds one from the project log config

	// Events receives step notifications beyond the built-in trace and
	// console sinks (TUI, serve mode).
	Events engine.Events
	// OnCase runs on the collector goroutine as each case result lands,
	// before the next result is drained.
	OnCase func(res *report.TestResult)
	// OnRunStart fires once after validation and expansion, with the case
	// display names in schedule order. The TUI seeds its rows from it.
	OnRunStart func(suite, runID string, names []string)
	// Gate pauses before each statement; the debugger uses it. Forces a
	// sequential run.
	Gate engine.Gate
	// Registry, when set, replaces catalog assembly entirely: no providers
	// start and no governance filter applies. Replay injects its playback
	// catalog here.
	Registry *blocks.Registry
}

// RunResult is the outcome of one suite run.
type RunResult struct {
	RunID   string
	Dir     string // run artifacts directory
	Suite   string // suite display name
	Results []report.TestResult
	Summary report.Summary
	Started time.Time
	Ended   time.Time
}

// ValidationFailedError aborts a run whose document failed validation.
type ValidationFailedError struct {
	Errors []*schema.ValidationError
}

func (e *ValidationFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "suite validation failed with %d error(s)", len(e.Errors))
	for _, ve := range e.Errors {
		b.WriteString("\n  ")
		b.WriteString(ve.Error())
	}
	return b.String()
}

// Runner executes suites against one project configuration.
type Runner struct {
	opts Options
	cfg  *config.Config
	log  *slog.Logger
}

// New creates a runner. A nil Options.Config falls back to defaults
// rooted in the working directory.
func New(opts Options) *Runner {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default(".")
	}
	log := opts.Logger
	if log == nil {
		log = ctxlog.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Runner{opts: opts, cfg: cfg, log: log}
}

// environment is the shared, read-only state workers execute against.
type environment struct {
	reg   *blocks.Registry
	procs *procedures.Registry
	http  *http.Client
	sink  blocks.ArtifactSink
	trace *report.TraceWriter
	runID string
}

// Run validates, expands and executes the suite at path. The returned
// error covers setup and validation problems; test failures land in the
// summary, not the error.
func (r *Runner) Run(ctx context.Context, path string) (*RunResult, error) {
	reg := r.opts.Registry
	if reg == nil {
		built, mgr, err := BuildRegistry(ctx, r.cfg, r.log)
		if err != nil {
			return nil, err
		}
		if mgr != nil {
			defer mgr.Stop()
		}
		reg = built
	}

	doc, verrs := schema.ValidateFile(path, reg)
	var hard []*schema.ValidationError
	for _, ve := range verrs {
		if ve.Severity == "error" {
			hard = append(hard, ve)
		} else {
			r.log.Warn("suite validation", "path", ve.Path, "message", ve.Message)
		}
	}
	if len(hard) > 0 {
		return nil, &ValidationFailedError{Errors: hard}
	}

	procs := procedures.NewRegistry()
	for i := range doc.Procedures {
		p, err := schema.Procedure(doc.Procedures[i])
		if err != nil {
			return nil, fmt.Errorf("procedure %q: %w", doc.Procedures[i].Name, err)
		}
		procs.Define(p)
	}

	jobs, err := r.expand(doc, path)
	if err != nil {
		return nil, err
	}

	runID := report.GenerateRunID()
	dir, err := makeRunDir(r.cfg.ArtifactDir(), runID)
	if err != nil {
		return nil, err
	}
	redact, err := governance.CompileRedactionRules(r.cfg.Redact)
	if err != nil {
		return nil, err
	}
	trace, err := report.NewTraceWriter(filepath.Join(dir, report.TraceFile), runID, redact)
	if err != nil {
		return nil, err
	}
	defer trace.Close()

	workers := r.opts.Parallel
	if workers <= 0 {
		workers = r.cfg.Parallelism
	}
	if workers < 1 || r.opts.Gate != nil {
		workers = 1
	}

	env := &environment{
		reg:   reg,
		procs: procs,
		http:  &http.Client{Timeout: 30 * time.Second},
		sink:  &screenshotSink{dir: dir},
		trace: trace,
		runID: runID,
	}

	console := report.NewConsole(r.opts.Out)
	console.Verbose = r.opts.Verbose && workers == 1
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.displayName()
	}
	console.RunStarted(doc.Suite.Name, runID, names)
	if r.opts.OnRunStart != nil {
		r.opts.OnRunStart(doc.Suite.Name, runID, names)
	}
	if err := trace.RunStarted(path); err != nil {
		return nil, err
	}

	started := time.Now()
	results := r.runPool(ctx, env, console, jobs, workers)
	ended := time.Now()

	summary := report.Summarize(results)
	if err := trace.RunFinished(summary); err != nil {
		r.log.Warn("trace summary", "error", err)
	}
	console.RunFinished(summary, ended.Sub(started))
	fmt.Fprintf(r.opts.Out, "%s\n", report.StyleDim.Render("artifacts: "+dir))

	m := report.NewManifest(runID, path, doc.Suite.Name, started, ended, results)
	m.Parallelism = workers
	m.Filter = r.opts.Filter
	m.Tags = r.opts.Tags
	if err := m.Write(dir); err != nil {
		return nil, err
	}
	if err := report.WriteJUnitFile(dir, doc.Suite.Name, results); err != nil {
		return nil, err
	}

	return &RunResult{
		RunID:   runID,
		Dir:     dir,
		Suite:   doc.Suite.Name,
		Results: results,
		Summary: summary,
		Started: started,
		Ended:   ended,
	}, nil
}

// BuildRegistry assembles the block catalog for a project: the built-in
// library, subprocess providers, then the governance filter over the
// result. The manager is nil when no providers are configured; the caller
// owns Stop on a non-nil one.
func BuildRegistry(ctx context.Context, cfg *config.Config, log *slog.Logger) (*blocks.Registry, *plugins.Manager, error) {
	gov := governance.NewEngine(cfg)

	var wd *webdriver.Client
	if cfg.WebDriver.Endpoint != "" {
		wd = webdriver.New(cfg.WebDriver.Endpoint, nil)
	}

	reg := blocks.NewRegistry()
	library.Install(reg, library.Options{
		WebDriver:    wd,
		Capabilities: cfg.WebDriver.Capabilities,
		AllowExec:    gov.ExecAllowed(),
		EnvFilter:    gov.FilterEnvVars,
	})

	var mgr *plugins.Manager
	if len(cfg.Providers) > 0 {
		mgr = plugins.NewManager(cfg.Providers, log)
		if err := mgr.Start(ctx, reg); err != nil {
			mgr.Stop()
			return nil, nil, err
		}
	}

	filtered, dropped := gov.FilterRegistry(reg)
	for _, name := range dropped {
		log.Debug("block removed by project policy", "block", name)
	}
	return filtered, mgr, nil
}

// runPool fans jobs out to workers and collects results in document
// order. Fail-fast cancels the pool context; queued jobs then never run
// and in-flight cases abort with a cancellation error.
func (r *Runner) runPool(ctx context.Context, env *environment, console *report.Console, jobs []caseJob, workers int) []report.TestResult {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexed struct {
		idx int
		res report.TestResult
	}

	jobCh := make(chan caseJob)
	resCh := make(chan indexed)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if runCtx.Err() != nil {
					continue
				}
				resCh <- indexed{job.idx, r.runCase(runCtx, env, console, job)}
			}
		}()
	}
	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-runCtx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(resCh)
	}()

	byIdx := make([]*report.TestResult, len(jobs))
	for ir := range resCh {
		res := ir.res
		byIdx[ir.idx] = &res
		console.CaseFinished(&res)
		if err := env.trace.CaseFinished(&res); err != nil {
			r.log.Warn("trace case result", "case", res.Name(), "error", err)
		}
		if r.opts.OnCase != nil {
			r.opts.OnCase(&res)
		}
		if r.opts.FailFast && res.Status != blocks.StatusPassed && res.Status != blocks.StatusSkipped {
			cancel()
		}
	}

	var results []report.TestResult
	for _, res := range byIdx {
		if res != nil {
			results = append(results, *res)
		}
	}
	return results
}
