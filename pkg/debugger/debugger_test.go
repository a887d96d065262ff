package debugger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// TestHelpListsCommands verifies help output names every command.
func TestHelpListsCommands(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.handleHelp()
	out := buf.String()
	for _, cmd := range []string{"next", "continue", "vars", "print", "steps", "help", "quit"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output missing %q:\n%s", cmd, out)
		}
	}
}

func TestVarsListsBothScopes(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	ec := blocks.NewExecContext(nil)
	ec.Row = map[string]any{"flavor": "mango"}
	ec.Vars["service"] = "api"
	ec.Vars["retries"] = 3
	d.handleVars(ec)
	out := buf.String()
	for _, want := range []string{"row:", `flavor = "mango"`, "vars:", "retries = 3", `service = "api"`} {
		if !strings.Contains(out, want) {
			t.Errorf("vars output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "retries") > strings.Index(out, "service") {
		t.Errorf("vars not sorted:\n%s", out)
	}
}

func TestVarsEmpty(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.handleVars(blocks.NewExecContext(nil))
	if !strings.Contains(buf.String(), "No variables defined") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestPrintResolvesPath(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	ec := blocks.NewExecContext(nil)
	ec.Vars["user"] = map[string]any{"name": "ada"}

	d.handlePrint(ec, []string{"print", "user.name"})
	if !strings.Contains(buf.String(), `user.name = "ada"`) {
		t.Errorf("print output: %s", buf.String())
	}

	buf.Reset()
	d.handlePrint(ec, []string{"print", "user.missing"})
	if !strings.Contains(buf.String(), "not defined") {
		t.Errorf("print output: %s", buf.String())
	}

	buf.Reset()
	d.handlePrint(ec, []string{"print"})
	if !strings.Contains(buf.String(), "Usage: print") {
		t.Errorf("print output: %s", buf.String())
	}
}

// TestPrintPrefersRow checks that data-row fields shadow variables, the
// same precedence steps see.
func TestPrintPrefersRow(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	ec := blocks.NewExecContext(nil)
	ec.Row = map[string]any{"env": "staging"}
	ec.Vars["env"] = "prod"
	d.handlePrint(ec, []string{"print", "env"})
	if !strings.Contains(buf.String(), `"staging"`) {
		t.Errorf("print output: %s", buf.String())
	}
}

func TestStepsHistory(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.handleSteps()
	if !strings.Contains(buf.String(), "No steps executed yet") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	d.StepFinished(nil, &blocks.StepResult{StepID: "s1", Type: "util.log", Status: blocks.StatusPassed})
	d.StepFinished(nil, &blocks.StepResult{StepID: "s2", Type: "assert.equals", Status: blocks.StatusFailed, Error: "boom"})

	buf.Reset()
	d.handleSteps()
	out := buf.String()
	for _, want := range []string{"✓ s1 (util.log) passed", "✗ s2 (assert.equals) failed", "error: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("steps output missing %q:\n%s", want, out)
		}
	}
}

func TestStepFinishedEchoes(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.StepFinished(nil, &blocks.StepResult{StepID: "s1", Status: blocks.StatusPassed})
	if !strings.Contains(buf.String(), "✓ s1 passed") {
		t.Errorf("echo output: %s", buf.String())
	}

	buf.Reset()
	d.StepFinished(nil, &blocks.StepResult{StepID: "s2", Status: blocks.StatusFailed, Error: "want 2, got 3"})
	if !strings.Contains(buf.String(), "✗ s2 failed: want 2, got 3") {
		t.Errorf("echo output: %s", buf.String())
	}
}

func TestPromptShowsPosition(t *testing.T) {
	d := New(nil)
	p := d.prompt("login flow", &step.Node{ID: "s3", Type: "web.click"})
	for _, want := range []string{"tessera[", "login flow", "s3", "web.click"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt %q missing %q", p, want)
		}
	}
}

// TestGateSkipsAfterContinue verifies that once continue is issued the gate
// returns immediately without touching the terminal.
func TestGateSkipsAfterContinue(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.running = true
	if err := d.Gate(context.Background(), nil, nil); err != nil {
		t.Fatalf("Gate: %v", err)
	}
	if d.rl != nil {
		t.Error("readline initialized for a non-pausing gate")
	}
}

func TestDisplayTruncates(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := display(long)
	if len(got) > 210 || !strings.HasSuffix(got, `..."`) {
		t.Errorf("display did not truncate: %d chars", len(got))
	}
	if display(42) != "42" {
		t.Errorf("display(42) = %q", display(42))
	}
}
