package replay

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/step"
)

const replaySuite = `apiVersion: tessera/v0
kind: TestSuite
suite:
  name: Replay suite
cases:
  - name: checkout
    steps:
      - block: util.sleep
        with:
          duration: 30s
      - block: util.log
        with:
          message: after the pause
      - block: assert.equals
        with:
          actual: 1
          expected: 1
`

// writeTrace records a minimal run trace for the suite above.
func writeTrace(t *testing.T, dir string, sleep blocks.StepResult, outcome blocks.Status) string {
	t.Helper()
	path := filepath.Join(dir, report.TraceFile)
	w, err := report.NewTraceWriter(path, "20260825T120000-deadbeef", nil)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}
	defer w.Close()

	if err := w.RunStarted("replay.yaml"); err != nil {
		t.Fatalf("RunStarted: %v", err)
	}
	if err := w.CaseStarted("checkout"); err != nil {
		t.Fatalf("CaseStarted: %v", err)
	}
	if err := w.StepResult("checkout", &sleep); err != nil {
		t.Fatalf("StepResult: %v", err)
	}
	res := &report.TestResult{Case: "checkout", Status: outcome}
	if err := w.CaseFinished(res); err != nil {
		t.Fatalf("CaseFinished: %v", err)
	}
	var sum report.Summary
	sum.Add(outcome)
	if err := w.RunFinished(sum); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}
	return path
}

func writeSuite(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "replay.yaml")
	if err := os.WriteFile(path, []byte(replaySuite), 0644); err != nil {
		t.Fatalf("write suite: %v", err)
	}
	return path
}

// TestRunMatchesRecording replays a recorded pass and verifies the sleep
// is answered from the trace instead of waiting.
func TestRunMatchesRecording(t *testing.T) {
	dir := t.TempDir()
	suite := writeSuite(t, dir)
	trace := writeTrace(t, dir, blocks.StepResult{
		StepID: "0", Type: "util.sleep", Status: blocks.StatusPassed,
	}, blocks.StatusPassed)

	start := time.Now()
	res, err := Run(context.Background(), Options{
		Config: config.Default(dir),
		Out:    io.Discard,
	}, suite, trace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("replay slept for real: %v", elapsed)
	}

	if res.Divergent != 0 {
		t.Fatalf("divergent = %d, comparisons %+v", res.Divergent, res.Comparisons)
	}
	if len(res.Comparisons) != 1 {
		t.Fatalf("comparisons = %d", len(res.Comparisons))
	}
	cmp := res.Comparisons[0]
	if cmp.Case != "checkout" || !cmp.Match || cmp.Pending != 0 {
		t.Errorf("comparison = %+v", cmp)
	}
	if cmp.Recorded != blocks.StatusPassed || cmp.Replayed != blocks.StatusPassed {
		t.Errorf("statuses = %s / %s", cmp.Recorded, cmp.Replayed)
	}
	if res.Run.Summary.Passed != 1 {
		t.Errorf("summary = %+v", res.Run.Summary)
	}
}

// TestRunSequenceMismatch replays against a recording whose step ids do
// not line up and expects the case to error out.
func TestRunSequenceMismatch(t *testing.T) {
	dir := t.TempDir()
	suite := writeSuite(t, dir)
	trace := writeTrace(t, dir, blocks.StepResult{
		StepID: "9", Type: "util.sleep", Status: blocks.StatusPassed,
	}, blocks.StatusPassed)

	res, err := Run(context.Background(), Options{
		Config: config.Default(dir),
		Out:    io.Discard,
	}, suite, trace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Divergent != 1 {
		t.Fatalf("divergent = %d", res.Divergent)
	}
	cmp := res.Comparisons[0]
	if cmp.Match || cmp.Replayed != blocks.StatusFailed {
		t.Errorf("comparison = %+v", cmp)
	}
	if !strings.Contains(cmp.Error, "does not match recorded step") {
		t.Errorf("comparison error = %q", cmp.Error)
	}
	if got := res.Run.Results[0].Error; !strings.Contains(got, "does not match recorded step") {
		t.Errorf("case error = %q", got)
	}
}

// TestRunReproducesRecordedFailure verifies a recorded leaf failure fails
// the replayed case the same way.
func TestRunReproducesRecordedFailure(t *testing.T) {
	dir := t.TempDir()
	suite := writeSuite(t, dir)
	trace := writeTrace(t, dir, blocks.StepResult{
		StepID: "0", Type: "util.sleep", Status: blocks.StatusFailed, Error: "network down",
	}, blocks.StatusFailed)

	res, err := Run(context.Background(), Options{
		Config: config.Default(dir),
		Out:    io.Discard,
	}, suite, trace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Divergent != 0 {
		t.Fatalf("divergent = %d, comparisons %+v", res.Divergent, res.Comparisons)
	}
	cmp := res.Comparisons[0]
	if !cmp.Match || cmp.Recorded != blocks.StatusFailed || cmp.Replayed != blocks.StatusFailed {
		t.Errorf("comparison = %+v", cmp)
	}
	if got := res.Run.Results[0].Error; !strings.Contains(got, "network down") {
		t.Errorf("case error = %q", got)
	}
}

func TestPlayerAnswersAndExhausts(t *testing.T) {
	rec := &Recording{
		steps: map[string][]blocks.StepResult{
			"c": {
				{StepID: "0", Type: "web.click", Status: blocks.StatusPassed, Output: "clicked"},
				{StepID: "1", Type: "custom.echo", Status: blocks.StatusPassed, Output: "hi"},
			},
		},
		results: map[string]*report.TestResult{},
	}

	base := blocks.NewRegistry()
	base.Register(&blocks.Descriptor{
		Type: "web.click", Category: "web", Statement: true,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			t.Fatal("live executor ran during replay")
			return nil, nil
		},
	})
	catalog, player := rec.Catalog(base)

	// Provider block absent from the base catalog gets synthesized.
	if d, ok := catalog.Lookup("custom.echo"); !ok || d.Category != "custom" {
		t.Fatalf("synthesized descriptor missing: %+v", d)
	}

	ec := blocks.NewExecContext(nil)
	ec.Case = "c"
	click, _ := catalog.Lookup("web.click")

	out, err := click.Exec(context.Background(), ec, &blocks.Call{Step: &step.Node{ID: "0", Type: "web.click"}})
	if err != nil || out != "clicked" {
		t.Fatalf("exec = %v, %v", out, err)
	}
	if got := player.Remaining("c"); got != 1 {
		t.Errorf("remaining = %d", got)
	}

	echo, _ := catalog.Lookup("custom.echo")
	if out, err = echo.Exec(context.Background(), ec, &blocks.Call{Step: &step.Node{ID: "1", Type: "custom.echo"}}); err != nil || out != "hi" {
		t.Fatalf("exec = %v, %v", out, err)
	}

	_, err = click.Exec(context.Background(), ec, &blocks.Call{Step: &step.Node{ID: "2", Type: "web.click"}})
	var seq *SequenceError
	if !errors.As(err, &seq) || seq.WantID != "" {
		t.Fatalf("exhausted queue error = %v", err)
	}
}

func TestLoadRecordingEmptyTrace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, report.TraceFile)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRecording(path); err == nil {
		t.Fatal("expected error for an empty trace")
	}
}
