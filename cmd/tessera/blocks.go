package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/plugins"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/runner"
)

var blocksCategory string

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List the available block catalog",
	Args:  cobra.NoArgs,
	RunE:  runBlocksList,
}

var blocksShowCmd = &cobra.Command{
	Use:   "show [block type]",
	Short: "Show one block's inputs and documentation",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlocksShow,
}

// buildCatalog assembles the governed block catalog, including any
// configured provider subprocesses. Callers stop a non-nil manager.
func buildCatalog(cmd *cobra.Command, cfg *config.Config) (*blocks.Registry, *plugins.Manager, error) {
	return runner.BuildRegistry(cmd.Context(), cfg, newLogger(cfg))
}

func runBlocksList(cmd *cobra.Command, args []string) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}
	reg, mgr, err := buildCatalog(cmd, cfg)
	if err != nil {
		return err
	}
	if mgr != nil {
		defer mgr.Stop()
	}

	categories := reg.Categories()
	if blocksCategory != "" {
		if len(reg.ByCategory(blocksCategory)) == 0 {
			return fmt.Errorf("unknown category %q; available: %s", blocksCategory, strings.Join(categories, ", "))
		}
		categories = []string{blocksCategory}
	}

	width := 0
	for _, d := range reg.All() {
		if w := runewidth.StringWidth(d.Type); w > width {
			width = w
		}
	}

	for _, cat := range categories {
		ds := reg.ByCategory(cat)
		fmt.Printf("%s (%d blocks)\n", report.StyleHeader.Render(cat), len(ds))
		for _, d := range ds {
			pad := strings.Repeat(" ", width-runewidth.StringWidth(d.Type))
			tag := ""
			if !d.Statement {
				tag = " " + report.StyleDim.Render("value")
			}
			fmt.Printf("  %s%s  %s%s\n", d.Type, pad, d.Summary, tag)
		}
		fmt.Println()
	}
	return nil
}

func runBlocksShow(cmd *cobra.Command, args []string) error {
	blockType := args[0]

	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}
	reg, mgr, err := buildCatalog(cmd, cfg)
	if err != nil {
		return err
	}
	if mgr != nil {
		defer mgr.Stop()
	}

	d, ok := reg.Lookup(blockType)
	if !ok {
		return fmt.Errorf("unknown block %q; try: tessera blocks", blockType)
	}

	fmt.Printf("%s\n", report.StyleHeader.Render(d.Type))
	if d.Summary != "" {
		fmt.Printf("  %s\n", d.Summary)
	}
	fmt.Printf("  %s\n\n", report.StyleDim.Render(descriptorTraits(d)))

	if len(d.Inputs) > 0 {
		fmt.Println("Inputs:")
		nameW, kindW := 0, 0
		for _, in := range d.Inputs {
			if w := runewidth.StringWidth(in.Name); w > nameW {
				nameW = w
			}
			if w := len(string(in.Kind)); w > kindW {
				kindW = w
			}
		}
		for _, in := range d.Inputs {
			fmt.Printf("  %-*s  %-*s  %s\n", nameW, in.Name, kindW, in.Kind, inputTraits(in))
		}
		fmt.Println()
	}

	if d.Doc != "" {
		fmt.Println(renderMarkdown(d.Doc))
	}
	return nil
}

// descriptorTraits summarizes a descriptor's category, role and output on
// one line.
func descriptorTraits(d *blocks.Descriptor) string {
	parts := []string{"category: " + d.Category}
	if d.Statement {
		parts = append(parts, "statement")
	} else {
		parts = append(parts, "value")
	}
	if d.Output != "" {
		parts = append(parts, "output: "+d.Output)
	}
	return strings.Join(parts, "   ")
}

// inputTraits renders the type, requiredness, default and doc of one input.
func inputTraits(in blocks.InputSpec) string {
	var parts []string
	if in.Type != "" {
		parts = append(parts, in.Type)
	}
	if in.Required {
		parts = append(parts, "required")
	}
	if in.Default != nil {
		parts = append(parts, fmt.Sprintf("default %v", in.Default))
	}
	if in.Doc != "" {
		parts = append(parts, report.StyleDim.Render(in.Doc))
	}
	return strings.Join(parts, "  ")
}

// renderer is a package-level glamour renderer for block documentation.
var renderer *glamour.TermRenderer

func init() {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		renderer = r
	}

	blocksCmd.Flags().StringVar(&blocksCategory, "category", "", "List only this category")
	blocksCmd.AddCommand(blocksShowCmd)
	rootCmd.AddCommand(blocksCmd)
}

// renderMarkdown converts markdown to styled terminal output, falling back
// to the raw text if glamour is unavailable or rendering fails.
func renderMarkdown(md string) string {
	if renderer == nil || strings.TrimSpace(md) == "" {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
