// Package debugger implements the interactive step debugger for suite runs.
//
// The debugger attaches to the interpreter as a step gate: before each
// statement executes, the gate pauses and reads commands from the terminal
// until the user advances. It doubles as the event sink so that executed
// steps are echoed and recorded for the steps command. Because a gated run
// is always sequential, no locking is needed.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// ErrQuit is returned by the gate when the user exits the session,
// aborting the run.
var ErrQuit = errors.New("debug session ended")

// Debugger pauses a run before each statement and reads commands from the
// terminal.
type Debugger struct {
	out io.Writer
	rl  *readline.Instance

	running bool // continue was issued; stop pausing
	history []*blocks.StepResult
}

// New creates a debugger writing to out. A nil out means os.Stdout.
func New(out io.Writer) *Debugger {
	if out == nil {
		out = os.Stdout
	}
	return &Debugger{out: out}
}

// Gate blocks before a statement until the user advances past it. It is
// wired in as the interpreter's step gate.
func (d *Debugger) Gate(ctx context.Context, ec *blocks.ExecContext, node *step.Node) error {
	if d.running {
		return nil
	}
	if err := d.ensureReadline(); err != nil {
		return err
	}

	d.rl.SetPrompt(d.prompt(ec.Case, node))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := d.rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			fmt.Fprintf(d.out, "Exiting debugger.\n")
			return ErrQuit
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "next", "n":
			return nil
		case "continue", "c":
			d.running = true
			return nil
		case "vars", "v":
			d.handleVars(ec)
		case "print", "p":
			d.handlePrint(ec, parts)
		case "steps", "s":
			d.handleSteps()
		case "help", "?":
			d.handleHelp()
		case "quit", "q":
			fmt.Fprintf(d.out, "Exiting debugger.\n")
			return ErrQuit
		default:
			fmt.Fprintf(d.out, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
		}
	}
}

// StepStarted satisfies the interpreter's event sink; the gate prompt
// already shows the paused position.
func (d *Debugger) StepStarted(ec *blocks.ExecContext, node *step.Node) {}

// StepFinished records the result for the steps command and echoes it.
func (d *Debugger) StepFinished(ec *blocks.ExecContext, res *blocks.StepResult) {
	d.history = append(d.history, res)
	switch res.Status {
	case blocks.StatusPassed:
		fmt.Fprintf(d.out, "  ✓ %s passed\n", res.StepID)
	case blocks.StatusSkipped:
		fmt.Fprintf(d.out, "  ⊘ %s skipped\n", res.StepID)
	default:
		fmt.Fprintf(d.out, "  ✗ %s %s: %s\n", res.StepID, res.Status, res.Error)
	}
}

// Close releases the terminal.
func (d *Debugger) Close() error {
	if d.rl == nil {
		return nil
	}
	return d.rl.Close()
}

func (d *Debugger) prompt(caseName string, node *step.Node) string {
	return fmt.Sprintf("tessera[%s | %s %s]> ", caseName, node.ID, node.Type)
}

// ensureReadline defers terminal setup to the first pause so that a
// debugger constructed for a run that never gates (or a test) does not
// touch the TTY.
func (d *Debugger) ensureReadline() error {
	if d.rl != nil {
		return nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "tessera> ",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("next"),
			readline.PcItem("continue"),
			readline.PcItem("vars"),
			readline.PcItem("print"),
			readline.PcItem("steps"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	d.rl = rl

	fmt.Fprintf(d.out, "tessera step debugger\n")
	fmt.Fprintf(d.out, "Type 'next' to execute the paused step, 'help' for all commands.\n\n")
	return nil
}
