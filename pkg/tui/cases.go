package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/report"
)

// caseRow is the display state of one case (one data row each).
type caseRow struct {
	name    string
	status  blocks.Status // empty until the result lands
	stream  []blocks.Status
	current string // "stepID type" while a step executes
	lines   []string
	dur     time.Duration
	errMsg  string
	started bool
}

// caseList renders the windowed per-case progress panel. The cursor
// follows the executing case; arrow keys move it for browsing.
type caseList struct {
	rows    []caseRow
	index   map[string]int
	cursor  int
	offset  int
	visible int
	width   int
}

func newCaseList() caseList {
	return caseList{index: make(map[string]int)}
}

// Seed creates pending rows for the scheduled case names.
func (l *caseList) Seed(names []string) {
	for _, n := range names {
		l.ensure(n)
	}
}

// ensure returns the row index for a case, appending a pending row the
// first time the name appears.
func (l *caseList) ensure(name string) int {
	if i, ok := l.index[name]; ok {
		return i
	}
	l.rows = append(l.rows, caseRow{name: name})
	i := len(l.rows) - 1
	l.index[name] = i
	return i
}

// StepStarted marks a case active and points the cursor at it.
func (l *caseList) StepStarted(name, stepID, block string) int {
	i := l.ensure(name)
	l.rows[i].started = true
	l.rows[i].current = stepID + " " + block
	l.cursor = i
	l.ensureVisible()
	return i
}

// StepFinished extends the case's glyph stream and step log.
func (l *caseList) StepFinished(name string, res *blocks.StepResult) int {
	i := l.ensure(name)
	row := &l.rows[i]
	row.started = true
	row.stream = append(row.stream, res.Status)

	glyph := report.StatusStyle(string(res.Status)).Render(report.StatusGlyph(string(res.Status)))
	line := fmt.Sprintf("%s %s %s %s", glyph, res.StepID,
		report.StyleDim.Render(res.Type), report.StyleDim.Render(formatDuration(res.Duration)))
	row.lines = append(row.lines, line)
	if res.Error != "" {
		row.lines = append(row.lines, report.StyleFailed.Render("  "+res.Error))
	}
	return i
}

// CaseFinished records the case outcome.
func (l *caseList) CaseFinished(res *report.TestResult) int {
	i := l.ensure(res.Name())
	row := &l.rows[i]
	row.status = res.Status
	row.current = ""
	row.dur = res.Duration
	row.errMsg = res.Error
	if res.Status == blocks.StatusSkipped && res.SkipReason != "" {
		row.errMsg = res.SkipReason
	}
	for _, sf := range res.SoftFailures {
		row.lines = append(row.lines,
			report.StyleSoft.Render(report.GlyphSoft+" "+sf.StepID)+" "+sf.Message)
	}
	return i
}

// Counts tallies finished and total rows for the header.
func (l *caseList) Counts() (done, total int) {
	for _, r := range l.rows {
		if r.status != "" {
			done++
		}
	}
	return done, len(l.rows)
}

func (l *caseList) CursorUp() {
	if l.cursor > 0 {
		l.cursor--
		l.ensureVisible()
	}
}

func (l *caseList) CursorDown() {
	if l.cursor < len(l.rows)-1 {
		l.cursor++
		l.ensureVisible()
	}
}

func (l *caseList) ensureVisible() {
	if l.visible < 1 {
		return
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.visible {
		l.offset = l.cursor - l.visible + 1
	}
}

// Selected returns the row under the cursor, or nil before any rows exist.
func (l *caseList) Selected() *caseRow {
	if l.cursor < 0 || l.cursor >= len(l.rows) {
		return nil
	}
	return &l.rows[l.cursor]
}

// View renders the visible window of case rows.
func (l *caseList) View() string {
	if len(l.rows) == 0 {
		return report.StyleDim.Render("  waiting for the schedule...")
	}

	nameWidth := 20
	for _, r := range l.rows {
		if w := runewidth.StringWidth(r.name); w > nameWidth {
			nameWidth = w
		}
	}

	end := l.offset + l.visible
	if end > len(l.rows) || l.visible < 1 {
		end = len(l.rows)
	}

	var b strings.Builder
	for i := l.offset; i < end; i++ {
		r := l.rows[i]

		marker := "  "
		if i == l.cursor {
			marker = report.StyleBold.Render(report.GlyphRunning) + " "
		}

		var glyph string
		switch {
		case r.status != "":
			glyph = report.StatusStyle(string(r.status)).Render(report.StatusGlyph(string(r.status)))
		case r.started:
			glyph = styleCurrent.Render(report.GlyphRunning)
		default:
			glyph = report.StyleDim.Render(report.GlyphPending)
		}

		name := r.name
		if pad := nameWidth - runewidth.StringWidth(name); pad > 0 {
			name += strings.Repeat(" ", pad)
		}
		if i == l.cursor {
			name = report.StyleBold.Render(name)
		}

		var stream strings.Builder
		for _, st := range r.stream {
			stream.WriteString(report.StatusStyle(string(st)).Render(report.StatusGlyph(string(st))))
		}

		tail := ""
		switch {
		case r.status == blocks.StatusSkipped:
			tail = report.StyleSkipped.Render(r.errMsg)
		case r.status != "":
			tail = report.StyleDim.Render(formatDuration(r.dur))
		case r.current != "":
			tail = styleCurrent.Render(r.current)
		}

		fmt.Fprintf(&b, "%s%s %s %s %s\n", marker, glyph, name, stream.String(), tail)
	}
	if end < len(l.rows) {
		fmt.Fprintf(&b, "  %s\n", report.StyleDim.Render(fmt.Sprintf("... %d more", len(l.rows)-end)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
