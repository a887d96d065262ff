package report

import "github.com/charmbracelet/lipgloss"

// Status glyphs convey meaning without relying on color alone.
const (
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphSkipped = "⊘"
	GlyphError   = "!"
	GlyphRunning = "▸"
	GlyphPending = "○"
	GlyphSoft    = "~"
)

// Palette adapts to terminal capabilities via lipgloss. Shared between
// the console reporter and the TUI.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var (
	StylePassed  = lipgloss.NewStyle().Foreground(colorGreen)
	StyleFailed  = lipgloss.NewStyle().Foreground(colorRed)
	StyleSkipped = lipgloss.NewStyle().Faint(true)
	StyleError   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	StyleSoft    = lipgloss.NewStyle().Foreground(colorYellow)
	StyleHeader  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleBold    = lipgloss.NewStyle().Bold(true)
)

// StatusGlyph maps a result status to its glyph.
func StatusGlyph(st string) string {
	switch st {
	case "passed":
		return GlyphPassed
	case "failed":
		return GlyphFailed
	case "skipped":
		return GlyphSkipped
	default:
		return GlyphError
	}
}

// StatusStyle maps a result status to its lipgloss style.
func StatusStyle(st string) lipgloss.Style {
	switch st {
	case "passed":
		return StylePassed
	case "failed":
		return StyleFailed
	case "skipped":
		return StyleSkipped
	default:
		return StyleError
	}
}
