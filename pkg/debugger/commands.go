package debugger

import (
	"fmt"
	"sort"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/vars"
)

// handleVars lists the current bindings, data-row fields before variables,
// matching the interpreter's resolution order.
func (d *Debugger) handleVars(ec *blocks.ExecContext) {
	if len(ec.Row) == 0 && len(ec.Vars) == 0 {
		fmt.Fprintf(d.out, "No variables defined.\n")
		return
	}
	d.printScope("row", ec.Row)
	d.printScope("vars", ec.Vars)
}

func (d *Debugger) printScope(label string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(d.out, "%s:\n", label)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(d.out, "  %s = %s\n", k, display(m[k]))
	}
}

// handlePrint resolves a dotted path the same way step parameters do.
func (d *Debugger) handlePrint(ec *blocks.ExecContext, parts []string) {
	if len(parts) != 2 {
		fmt.Fprintf(d.out, "Usage: print <path>\n")
		return
	}
	v, ok := vars.Lookup(parts[1], ec.Row, ec.Vars)
	if !ok {
		fmt.Fprintf(d.out, "  %s is not defined\n", parts[1])
		return
	}
	fmt.Fprintf(d.out, "  %s = %s\n", parts[1], display(v))
}

// handleSteps lists the steps executed so far in this session.
func (d *Debugger) handleSteps() {
	if len(d.history) == 0 {
		fmt.Fprintf(d.out, "No steps executed yet.\n")
		return
	}
	for _, r := range d.history {
		glyph := "✓"
		if r.Status != blocks.StatusPassed {
			glyph = "✗"
		}
		fmt.Fprintf(d.out, "  %s %s (%s) %s\n", glyph, r.StepID, r.Type, r.Status)
		if r.Error != "" {
			fmt.Fprintf(d.out, "      error: %s\n", r.Error)
		}
	}
}

// handleHelp displays available commands.
func (d *Debugger) handleHelp() {
	fmt.Fprintln(d.out, "Available commands:")
	fmt.Fprintln(d.out, "  next (n)      Execute the paused step")
	fmt.Fprintln(d.out, "  continue (c)  Run to the end without pausing again")
	fmt.Fprintln(d.out, "  vars (v)      Show data-row fields and variables")
	fmt.Fprintln(d.out, "  print <path>  Resolve a dotted path, e.g. print user.name")
	fmt.Fprintln(d.out, "  steps (s)     List steps executed so far")
	fmt.Fprintln(d.out, "  help (?)      Show this help")
	fmt.Fprintln(d.out, "  quit (q)      Abort the run")
}

// display renders a value for the terminal, truncating long output.
func display(v any) string {
	s, isStr := v.(string)
	if !isStr {
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if isStr {
		return fmt.Sprintf("%q", s)
	}
	return s
}
