package report

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

// RenderRun prints a stored run from its artifacts directory. The compact
// view comes from the manifest; verbose adds per-step lines read back from
// the trace.
func RenderRun(w io.Writer, dir string, verbose bool) error {
	m, err := LoadManifest(dir)
	if err != nil {
		return err
	}

	c := NewConsole(w)
	c.Verbose = verbose
	names := make([]string, len(m.Cases))
	for i := range m.Cases {
		names[i] = m.Cases[i].Name()
	}
	c.RunStarted(m.Suite, m.RunID, names)

	var stepsByCase map[string][]blocks.StepResult
	var softByCase map[string][]blocks.SoftFailure
	if verbose {
		stepsByCase, softByCase, err = traceDetail(filepath.Join(dir, TraceFile))
		if err != nil {
			return err
		}
	}

	for _, ref := range m.Cases {
		res := TestResult{
			Case:       ref.Case,
			Row:        ref.Row,
			Status:     ref.Status,
			Error:      ref.Error,
			SkipReason: ref.SkipReason,
			Duration:   time.Duration(ref.DurationMS) * time.Millisecond,
		}
		if verbose {
			for _, sr := range stepsByCase[ref.Name()] {
				c.StepFinished(&sr)
			}
			res.SoftFailures = softByCase[ref.Name()]
		}
		c.CaseFinished(&res)
	}

	started, errS := time.Parse(time.RFC3339, m.StartedAt)
	ended, errE := time.Parse(time.RFC3339, m.EndedAt)
	var elapsed time.Duration
	if errS == nil && errE == nil {
		elapsed = ended.Sub(started)
	}
	c.RunFinished(m.Summary, elapsed)
	return nil
}

// traceDetail reads the trace back into per-case step results and soft
// failures, keyed by display name.
func traceDetail(path string) (map[string][]blocks.StepResult, map[string][]blocks.SoftFailure, error) {
	events, err := ReadTrace(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read trace: %w", err)
	}
	steps := make(map[string][]blocks.StepResult)
	soft := make(map[string][]blocks.SoftFailure)
	for _, ev := range events {
		switch ev.Type {
		case EventCaseFinished:
			if ev.Result == nil {
				continue
			}
			name := ev.Result.Name()
			steps[name] = ev.Result.Steps
			soft[name] = ev.Result.SoftFailures
		}
	}
	return steps, soft, nil
}
