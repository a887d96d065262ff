package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/tessera/pkg/diagram"
	"github.com/ormasoftchile/tessera/pkg/schema"
)

var (
	graphFormat string
	graphOut    string
)

var graphCmd = &cobra.Command{
	Use:   "graph [suite.yaml]",
	Short: "Render a suite's block tree as a diagram",
	Long: `Render each case's block tree as a diagram: Mermaid flowchart
(paste into docs or a live editor) or plain ASCII boxes for the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	doc, err := schema.LoadFile(args[0])
	if err != nil {
		return err
	}

	out, err := diagram.Generate(doc, diagram.Format(graphFormat))
	if err != nil {
		return err
	}

	if graphOut != "" {
		if err := os.WriteFile(graphOut, []byte(out), 0644); err != nil {
			return fmt.Errorf("write diagram: %w", err)
		}
		fmt.Printf("✓ Diagram written to %s\n", graphOut)
		return nil
	}
	fmt.Print(out)
	return nil
}

func init() {
	graphCmd.Flags().StringVar(&graphFormat, "format", "mermaid", "Diagram format: mermaid or ascii")
	graphCmd.Flags().StringVar(&graphOut, "out", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(graphCmd)
}
