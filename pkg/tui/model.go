package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/runner"
)

// Messages carried on the event channel.

type runStartedMsg struct {
	suite string
	runID string
	names []string
}

type stepStartedMsg struct {
	caseName string
	stepID   string
	block    string
}

type stepFinishedMsg struct {
	caseName string
	res      blocks.StepResult
}

type caseFinishedMsg struct {
	res report.TestResult
}

type runFinishedMsg struct {
	result *runner.RunResult
	err    error
}

// feedClosedMsg arrives once the runner goroutine closes the channel.
type feedClosedMsg struct{}

// Panel chrome. Status colors come from the report styles.
var (
	styleCurrent = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleBorder  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	PgUp   key.Binding
	PgDown key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "case up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "case down"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Model is the Bubble Tea model for a suite run.
type Model struct {
	path  string
	suite string
	runID string

	cases caseList

	vp      viewport.Model
	vpReady bool

	spin spinner.Model

	width  int
	height int

	running bool
	done    bool
	fatal   string
	summary report.Summary
	elapsed time.Duration
	started time.Time

	events <-chan tea.Msg
	cancel context.CancelFunc
}

func newModel(path string, events <-chan tea.Msg, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleCurrent
	return Model{
		path:   path,
		cases:  newCaseList(),
		spin:   sp,
		events: events,
		cancel: cancel,
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.listen())
}

// listen waits for the next runner event. Re-armed after every event; a
// closed channel ends the pump.
func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.events
		if !ok {
			return feedClosedMsg{}
		}
		return msg
	}
}

// Update processes messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.cases.CursorUp()
			m.refreshLog()
		case key.Matches(msg, keys.Down):
			m.cases.CursorDown()
			m.refreshLog()
		case key.Matches(msg, keys.PgUp):
			if m.vpReady {
				m.vp.HalfViewUp()
			}
		case key.Matches(msg, keys.PgDown):
			if m.vpReady {
				m.vp.HalfViewDown()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case spinner.TickMsg:
		if !m.done {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}

	case runStartedMsg:
		m.suite = msg.suite
		m.runID = msg.runID
		m.started = time.Now()
		m.running = true
		m.cases.Seed(msg.names)
		m.layout()
		cmds = append(cmds, m.listen())

	case stepStartedMsg:
		m.cases.StepStarted(msg.caseName, msg.stepID, msg.block)
		m.refreshLog()
		cmds = append(cmds, m.listen())

	case stepFinishedMsg:
		i := m.cases.StepFinished(msg.caseName, &msg.res)
		if i == m.cases.cursor {
			m.refreshLog()
		}
		cmds = append(cmds, m.listen())

	case caseFinishedMsg:
		i := m.cases.CaseFinished(&msg.res)
		if i == m.cases.cursor {
			m.refreshLog()
		}
		cmds = append(cmds, m.listen())

	case runFinishedMsg:
		m.done = true
		m.running = false
		if msg.result != nil {
			m.summary = msg.result.Summary
			m.elapsed = msg.result.Ended.Sub(msg.result.Started)
		} else if msg.err != nil {
			m.fatal = msg.err.Error()
		}
		cmds = append(cmds, m.listen())

	case feedClosedMsg:
		// Pump drained; nothing left to re-arm.
	}

	return m, tea.Batch(cmds...)
}

// layout sizes the case window and the log viewport for the terminal.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	visible := len(m.cases.rows)
	maxRows := (m.height - 8) / 2
	if maxRows < 3 {
		maxRows = 3
	}
	if visible > maxRows {
		visible = maxRows
	}
	if visible < 1 {
		visible = 1
	}
	m.cases.visible = visible
	m.cases.width = m.width
	m.cases.ensureVisible()

	vpHeight := m.height - visible - 7
	if vpHeight < 3 {
		vpHeight = 3
	}
	vpWidth := m.width - 2
	if vpWidth < 10 {
		vpWidth = 10
	}
	if !m.vpReady {
		m.vp = viewport.New(vpWidth, vpHeight)
		m.vpReady = true
		m.refreshLog()
	} else {
		m.vp.Width = vpWidth
		m.vp.Height = vpHeight
	}
}

// refreshLog points the viewport at the selected case's step log.
func (m *Model) refreshLog() {
	if !m.vpReady {
		return
	}
	row := m.cases.Selected()
	if row == nil {
		m.vp.SetContent("")
		return
	}
	m.vp.SetContent(strings.Join(row.lines, "\n"))
	m.vp.GotoBottom()
}

// View renders the whole screen: header, case panel, step log, footer.
func (m Model) View() string {
	var b strings.Builder

	title := m.suite
	if title == "" {
		title = filepath.Base(m.path)
	}
	header := report.StyleHeader.Render(title)
	if m.runID != "" {
		header += " " + report.StyleDim.Render("run "+m.runID)
	}
	if m.running {
		done, total := m.cases.Counts()
		header += "  " + m.spin.View() + report.StyleDim.Render(fmt.Sprintf(" %d/%d", done, total))
	}
	b.WriteString(" " + header + "\n\n")

	b.WriteString(m.cases.View())
	b.WriteString("\n\n")

	if m.vpReady {
		logTitle := "steps"
		if row := m.cases.Selected(); row != nil {
			logTitle = row.name
		}
		b.WriteString(" " + report.StyleDim.Render(logTitle) + "\n")
		b.WriteString(styleBorder.Width(m.vp.Width).Render(m.vp.View()))
		b.WriteString("\n")
	}

	b.WriteString(" " + m.statusLine() + "\n")
	b.WriteString(" " + report.StyleDim.Render("q quit · ↑/↓ case · pgup/pgdn scroll"))
	return b.String()
}

// statusLine is the footer: live progress while running, the summary
// afterwards, matching the console reporter's wording.
func (m Model) statusLine() string {
	if m.fatal != "" {
		return report.StyleError.Render("! " + m.fatal)
	}
	if !m.done {
		if row := m.cases.Selected(); row != nil && row.errMsg != "" {
			return report.StyleFailed.Render(row.errMsg)
		}
		return report.StyleDim.Render("running...")
	}

	sum := m.summary
	parts := []string{
		report.StylePassed.Render(fmt.Sprintf("%d passed", sum.Passed)),
	}
	if sum.Failed > 0 {
		parts = append(parts, report.StyleFailed.Render(fmt.Sprintf("%d failed", sum.Failed)))
	}
	if sum.Errored > 0 {
		parts = append(parts, report.StyleError.Render(fmt.Sprintf("%d errored", sum.Errored)))
	}
	if sum.Skipped > 0 {
		parts = append(parts, report.StyleSkipped.Render(fmt.Sprintf("%d skipped", sum.Skipped)))
	}
	return fmt.Sprintf("%s %s %s",
		report.StyleBold.Render(fmt.Sprintf("%d cases:", sum.Total)),
		strings.Join(parts, ", "),
		report.StyleDim.Render("in "+formatDuration(m.elapsed)))
}
