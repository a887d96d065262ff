package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

// Console prints run progress and the final summary in a compact,
// glyph-per-case format. Callers must serialize calls; the runner funnels
// worker results through a single collector before printing.
type Console struct {
	out       io.Writer
	Verbose   bool
	nameWidth int
}

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, nameWidth: 20}
}

// RunStarted prints the run header and sizes the name column so durations
// line up across cases.
func (c *Console) RunStarted(suite, runID string, names []string) {
	width := 20
	for _, n := range names {
		if w := runewidth.StringWidth(n); w > width {
			width = w
		}
	}
	c.nameWidth = width
	fmt.Fprintf(c.out, "%s %s\n", StyleHeader.Render(suite), StyleDim.Render("run "+runID))
}

// StepFinished prints one step line in verbose mode.
func (c *Console) StepFinished(res *blocks.StepResult) {
	if !c.Verbose {
		return
	}
	glyph := StatusStyle(string(res.Status)).Render(StatusGlyph(string(res.Status)))
	line := fmt.Sprintf("    %s %s %s %s", glyph, res.StepID,
		StyleDim.Render(res.Type), StyleDim.Render(formatDuration(res.Duration)))
	fmt.Fprintln(c.out, line)
}

// CaseFinished prints the per-case line, followed by the error detail and
// the soft-failure table when the case did not pass.
func (c *Console) CaseFinished(res *TestResult) {
	name := res.Name()
	glyph := StatusStyle(string(res.Status)).Render(StatusGlyph(string(res.Status)))

	switch res.Status {
	case blocks.StatusSkipped:
		reason := res.SkipReason
		if reason == "" {
			reason = "skipped"
		}
		fmt.Fprintf(c.out, "  %s %s %s\n", glyph, c.pad(name), StyleSkipped.Render(reason))
	default:
		fmt.Fprintf(c.out, "  %s %s %s\n", glyph, c.pad(name),
			StyleDim.Render(formatDuration(res.Duration)))
	}

	if res.Status == blocks.StatusFailed || res.Status == blocks.StatusError {
		if res.Error != "" {
			for _, line := range strings.Split(res.Error, "\n") {
				fmt.Fprintf(c.out, "      %s\n", StyleFailed.Render(line))
			}
		}
		if step := failedStep(res.Steps); step != nil && step.Artifact != "" {
			fmt.Fprintf(c.out, "      %s\n", StyleDim.Render("screenshot: "+step.Artifact))
		}
	}

	if len(res.SoftFailures) > 0 {
		c.softTable(res.SoftFailures)
	}
}

// softTable prints collected soft failures, one aligned row each.
func (c *Console) softTable(failures []blocks.SoftFailure) {
	fmt.Fprintf(c.out, "      %s\n", StyleSoft.Render(fmt.Sprintf("%d soft failure(s):", len(failures))))
	width := 0
	for _, f := range failures {
		if w := runewidth.StringWidth(f.StepID); w > width {
			width = w
		}
	}
	for _, f := range failures {
		id := f.StepID
		if id == "" {
			id = "-"
		}
		pad := strings.Repeat(" ", width-runewidth.StringWidth(id)+2)
		fmt.Fprintf(c.out, "        %s %s%s%s\n",
			StyleSoft.Render(GlyphSoft), StyleDim.Render(id), pad, f.Message)
	}
}

// RunFinished prints the summary line and total elapsed time.
func (c *Console) RunFinished(sum Summary, elapsed time.Duration) {
	parts := []string{
		StylePassed.Render(fmt.Sprintf("%d passed", sum.Passed)),
	}
	if sum.Failed > 0 {
		parts = append(parts, StyleFailed.Render(fmt.Sprintf("%d failed", sum.Failed)))
	}
	if sum.Errored > 0 {
		parts = append(parts, StyleError.Render(fmt.Sprintf("%d errored", sum.Errored)))
	}
	if sum.Skipped > 0 {
		parts = append(parts, StyleSkipped.Render(fmt.Sprintf("%d skipped", sum.Skipped)))
	}
	fmt.Fprintf(c.out, "\n%s %s %s\n",
		StyleBold.Render(fmt.Sprintf("%d cases:", sum.Total)),
		strings.Join(parts, ", "),
		StyleDim.Render("in "+formatDuration(elapsed)))
}

func (c *Console) pad(s string) string {
	w := runewidth.StringWidth(s)
	if w >= c.nameWidth {
		return s
	}
	return s + strings.Repeat(" ", c.nameWidth-w)
}

// failedStep returns the first non-passing step, which carries the
// failure artifact when one was captured.
func failedStep(steps []blocks.StepResult) *blocks.StepResult {
	for i := range steps {
		if steps[i].Status != blocks.StatusPassed {
			return &steps[i]
		}
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
