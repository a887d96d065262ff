package replay

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/library"
	"github.com/ormasoftchile/tessera/pkg/runner"
)

// Options configures a replay run.
type Options struct {
	Config *config.Config
	Out    io.Writer    // console destination; nil means os.Stdout
	Logger *slog.Logger // nil means slog.Default
}

// Comparison pairs one replayed case outcome with its recorded outcome.
// An empty Recorded status means the case is not in the recording; an
// empty Replayed status means the replay never produced it.
type Comparison struct {
	Case     string        `json:"case"`
	Recorded blocks.Status `json:"recorded,omitempty"`
	Replayed blocks.Status `json:"replayed,omitempty"`
	Match    bool          `json:"match"`

	// Pending counts recorded steps the replay never consumed; nonzero
	// means the replay took a shorter path than the recording.
	Pending int `json:"pending_steps,omitempty"`

	// Error carries the step-sequence divergence, when the case hit one.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a replayed run: the fresh run artifacts plus
// the per-case comparison against the recording.
type Result struct {
	Run         *runner.RunResult
	Recording   *Recording
	Comparisons []Comparison
	Divergent   int
}

// Run re-executes the suite at path against the trace at tracePath. The
// replay writes a fresh run directory, so reports can be regenerated from
// a recording without touching the systems under test.
func Run(ctx context.Context, opts Options, path, tracePath string) (*Result, error) {
	rec, err := LoadRecording(tracePath)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if rec.Suite != "" && filepath.Base(rec.Suite) != filepath.Base(path) {
		log.Warn("replaying against a different suite file", "recorded", rec.Suite, "suite", path)
	}

	base := blocks.NewRegistry()
	library.Install(base, library.Options{AllowExec: true})
	catalog, player := rec.Catalog(base)

	r := runner.New(runner.Options{
		Config:   opts.Config,
		Parallel: 1,
		Out:      opts.Out,
		Logger:   opts.Logger,
		Registry: catalog,
	})
	res, err := r.Run(ctx, path)
	if err != nil {
		return nil, err
	}

	out := &Result{Run: res, Recording: rec}
	seen := make(map[string]bool)
	for i := range res.Results {
		tr := &res.Results[i]
		name := tr.Name()
		seen[name] = true

		cmp := Comparison{Case: name, Replayed: tr.Status, Pending: player.Remaining(name)}
		if recorded, ok := rec.results[name]; ok {
			cmp.Recorded = recorded.Status
			cmp.Match = recorded.Status == tr.Status && cmp.Pending == 0
		}
		// A sequence divergence is never a match, even when both sides
		// report the same status.
		if seq := player.SequenceFailure(name); seq != nil {
			cmp.Match = false
			cmp.Error = seq.Error()
		}
		if !cmp.Match {
			out.Divergent++
		}
		out.Comparisons = append(out.Comparisons, cmp)
	}

	// Recorded cases the replay never reached (the document changed).
	var missing []string
	for name := range rec.results {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		out.Comparisons = append(out.Comparisons, Comparison{
			Case:     name,
			Recorded: rec.results[name].Status,
		})
		out.Divergent++
	}
	return out, nil
}
