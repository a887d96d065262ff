// Package diagram renders suite documents as diagrams. Supports Mermaid
// flowchart and ASCII formats. Each case becomes one flowchart subgraph;
// statement slots are drawn as labeled edges from the parent block to the
// slot's first statement, and nested value blocks as dotted edges labeled
// with the parameter they feed.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/tessera/pkg/schema"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// slotOrder fixes slot edge order regardless of map iteration.
var slotOrder = []string{step.SlotDo, step.SlotElse, step.SlotTry, step.SlotCatch, step.SlotBody}

// Generate produces a diagram string from a parsed suite document.
func Generate(doc *schema.Document, format Format) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("nil document")
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(doc)
	case FormatASCII:
		return generateASCII(doc)
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

type mermaidWriter struct {
	b       strings.Builder
	asserts []string // node ids styled after the walk
}

func generateMermaid(doc *schema.Document) (string, error) {
	w := &mermaidWriter{}
	w.b.WriteString("flowchart TD\n")

	for i, c := range doc.Cases {
		nodes, err := schema.Steps(c.Steps)
		if err != nil {
			return "", fmt.Errorf("case %s: %w", c.Name, err)
		}
		prefix := fmt.Sprintf("c%d", i)
		fmt.Fprintf(&w.b, "    subgraph %s[%q]\n", prefix, c.Name)
		w.writeList(prefix, nodes)
		w.b.WriteString("    end\n")
	}

	for i, p := range doc.Procedures {
		proc, err := schema.Procedure(p)
		if err != nil {
			return "", err
		}
		prefix := fmt.Sprintf("p%d", i)
		fmt.Fprintf(&w.b, "    subgraph %s[%q]\n", prefix, "procedure: "+p.Name)
		w.writeList(prefix, proc.Body)
		w.b.WriteString("    end\n")
	}

	for _, id := range w.asserts {
		fmt.Fprintf(&w.b, "    style %s fill:#1a3a4a,stroke:#0af\n", id)
	}
	return w.b.String(), nil
}

func (w *mermaidWriter) writeList(prefix string, nodes []*step.Node) {
	for i, n := range nodes {
		id := mermaidID(prefix, n.ID)
		w.b.WriteString("        " + nodeDefinition(id, n) + "\n")
		if category(n.Type) == "assert" {
			w.asserts = append(w.asserts, id)
		}

		if i < len(nodes)-1 {
			fmt.Fprintf(&w.b, "        %s --> %s\n", id, mermaidID(prefix, nodes[i+1].ID))
		}

		w.writeNestedParams(prefix, id, n)

		for _, slot := range slotOrder {
			children := n.Slot(slot)
			if len(children) == 0 {
				continue
			}
			fmt.Fprintf(&w.b, "        %s -->|%q| %s\n", id, slot, mermaidID(prefix, children[0].ID))
			w.writeList(prefix, children)
		}
	}
}

// writeNestedParams draws value-block inputs as dotted edges labeled with
// the parameter name they feed.
func (w *mermaidWriter) writeNestedParams(prefix, parentID string, n *step.Node) {
	for _, name := range sortedParamNames(n) {
		nested, ok := n.Params[name].(step.Nested)
		if !ok {
			continue
		}
		id := mermaidID(prefix, nested.Node.ID)
		w.b.WriteString("        " + nodeDefinition(id, nested.Node) + "\n")
		fmt.Fprintf(&w.b, "        %s -.->|%q| %s\n", parentID, name, id)
		w.writeNestedParams(prefix, id, nested.Node)
	}
}

func nodeDefinition(id string, n *step.Node) string {
	icon := blockIcon(n.Type)
	label := escMermaid(n.Type)
	if ps := paramSummary(n, 40); ps != "" {
		label += "<br/>" + escMermaid(ps)
	}

	switch category(n.Type) {
	case "flow":
		return fmt.Sprintf(`%s{{"%s %s"}}`, id, icon, label)
	case "assert":
		return fmt.Sprintf(`%s[/"%s %s"/]`, id, icon, label)
	case "proc":
		return fmt.Sprintf(`%s[["%s %s"]]`, id, icon, label)
	default:
		return fmt.Sprintf(`%s["%s %s"]`, id, icon, label)
	}
}

func mermaidID(prefix, stepID string) string {
	return prefix + "_" + safeID(stepID)
}

// --- ASCII ---

func generateASCII(doc *schema.Document) (string, error) {
	var b strings.Builder
	for ci, c := range doc.Cases {
		if ci > 0 {
			b.WriteString("\n")
		}
		nodes, err := schema.Steps(c.Steps)
		if err != nil {
			return "", fmt.Errorf("case %s: %w", c.Name, err)
		}
		writeASCIICase(&b, c.Name, nodes)
	}
	return b.String(), nil
}

func writeASCIICase(b *strings.Builder, name string, nodes []*step.Node) {
	if name == "" {
		name = "Case"
	}
	if len(nodes) == 0 {
		b.WriteString(name + " (empty)\n")
		return
	}

	// Compute uniform box width so every box and connector aligns.
	const indent = 8
	boxWidth := computeUniformBoxWidth(nodes, name)
	connCol := indent + 1 + boxWidth/2 // +1 accounts for the └/┌ border character
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)

	// Header box, same width as step boxes, name centered.
	headerText := centerPad(name, boxWidth)
	mid := boxWidth / 2
	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + headerText + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")
	b.WriteString(connPad + "│\n")

	for i, n := range nodes {
		writeASCIIStep(b, n, indent, boxWidth)

		if hasSlots(n) {
			b.WriteString(connPad + "│\n")
			writeSlotBox(b, n, connCol)
		}

		if i < len(nodes)-1 {
			b.WriteString(connPad + "│\n")
		}
	}
}

// writeSlotBox renders a block's statement slots as one diamond-topped box
// listing the nested statements.
func writeSlotBox(b *strings.Builder, n *step.Node, connCol int) {
	var lines []string
	for _, slot := range slotOrder {
		children := n.Slot(slot)
		if len(children) == 0 {
			continue
		}
		lines = append(lines, " "+slot+": ")
		appendSlotLines(&lines, children, 1)
	}

	// Box width = widest content line, minimum 9 so the diamond centers.
	width := 9
	for _, l := range lines {
		if w := runewidth.StringWidth(l); w > width {
			width = w
		}
	}
	// Ensure odd width so ◇ and ┬ land at center.
	if width%2 == 0 {
		width++
	}
	half := width / 2

	pad := strings.Repeat(" ", connCol-half-1)
	b.WriteString(pad + "┌" + strings.Repeat("─", half) + "◇" + strings.Repeat("─", half) + "┐\n")
	for _, l := range lines {
		lw := runewidth.StringWidth(l)
		b.WriteString(pad + "│" + l + strings.Repeat(" ", width-lw) + "│\n")
	}
	b.WriteString(pad + "└" + strings.Repeat("─", half) + "┬" + strings.Repeat("─", half) + "┘\n")
}

func appendSlotLines(lines *[]string, nodes []*step.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		*lines = append(*lines, " "+indent+blockIcon(n.Type)+" "+n.Type+" ")
		for _, slot := range slotOrder {
			children := n.Slot(slot)
			if len(children) == 0 {
				continue
			}
			*lines = append(*lines, " "+indent+"  "+slot+": ")
			appendSlotLines(lines, children, depth+2)
		}
	}
}

// computeUniformBoxWidth returns the widest interior width needed across
// all top-level steps and the header name.
func computeUniformBoxWidth(nodes []*step.Node, name string) int {
	minWidth := 22
	w := minWidth

	nameWidth := runewidth.StringWidth(name) + 4 // "  name  "
	if nameWidth > w {
		w = nameWidth
	}

	for _, n := range nodes {
		if sw := stepContentWidth(n); sw > w {
			w = sw
		}
	}
	return w
}

// stepContentWidth returns the interior width a single step box needs.
func stepContentWidth(n *step.Node) int {
	content := fmt.Sprintf(" %s %s ", blockIcon(n.Type), n.Type)
	w := runewidth.StringWidth(content)
	if ps := paramSummary(n, 40); ps != "" {
		if pw := runewidth.StringWidth(" → " + ps + " "); pw > w {
			w = pw
		}
	}
	return w
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	right := total - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

func writeASCIIStep(b *strings.Builder, n *step.Node, indent, boxWidth int) {
	content := fmt.Sprintf(" %s %s ", blockIcon(n.Type), n.Type)
	contentWidth := runewidth.StringWidth(content)

	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	b.WriteString(pad + "┌" + strings.Repeat("─", boxWidth) + "┐\n")
	b.WriteString(pad + "│" + content + strings.Repeat(" ", boxWidth-contentWidth) + "│\n")
	if ps := paramSummary(n, 40); ps != "" {
		line := " → " + ps + " "
		lw := runewidth.StringWidth(line)
		b.WriteString(pad + "│" + line + strings.Repeat(" ", boxWidth-lw) + "│\n")
	}
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

// --- shared helpers ---

func blockIcon(blockType string) string {
	switch category(blockType) {
	case "web":
		return "🌐"
	case "http":
		return "🔗"
	case "flow":
		return "◇"
	case "assert":
		return "✓"
	case "data":
		return "📄"
	case "util":
		return "🔧"
	case "proc":
		return "📎"
	default:
		return "○"
	}
}

func category(blockType string) string {
	if i := strings.Index(blockType, "."); i > 0 {
		return blockType[:i]
	}
	return blockType
}

func hasSlots(n *step.Node) bool {
	for _, slot := range slotOrder {
		if len(n.Slot(slot)) > 0 {
			return true
		}
	}
	return false
}

// paramSummary joins a node's literal inputs into "name=value, ..." for
// labels. Nested value blocks are drawn as their own nodes and skipped.
func paramSummary(n *step.Node, max int) string {
	if len(n.Params) == 0 {
		return ""
	}
	var parts []string
	for _, name := range sortedParamNames(n) {
		lit, ok := n.Params[name].(step.Literal)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, lit.Value))
	}
	return truncate(strings.Join(parts, ", "), max)
}

func sortedParamNames(n *step.Node) []string {
	names := make([]string, 0, len(n.Params))
	for name := range n.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
