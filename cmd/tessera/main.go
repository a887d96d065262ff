package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/ctxlog"
	"github.com/ormasoftchile/tessera/pkg/schema"
	"github.com/ormasoftchile/tessera/pkg/serve"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	config.LoadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Block-composed end-to-end test automation",
	Long: `tessera runs test suites composed from blocks: YAML documents that
nest control flow, assertions, web and HTTP actions into executable
test cases.`,
}

// loadProjectConfig honors --config, otherwise walks up from the working
// directory looking for tessera.yaml.
func loadProjectConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Discover(".")
}

// newLogger builds the CLI logger; flags override the project config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	format := cfg.Log.Format
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	return ctxlog.New(level, format, os.Stderr)
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [suite.yaml]",
	Short: "Validate a suite file against the schema and block catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]

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

	doc, errs := schema.ValidateFile(filePath, reg)
	printValidationWarnings(errs)
	if hasValidationErrors(errs) {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", countValidationErrors(errs))
		i := 0
		for _, e := range errs {
			if e.Severity == "warning" {
				continue
			}
			i++
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", countValidationErrors(errs))
	}
	fmt.Printf("✓ %s is valid (%d cases, %d procedures)\n", doc.Suite.Name, len(doc.Cases), len(doc.Procedures))
	return nil
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the suite JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON-RPC server for editor integration (stdio)",
	Long: `Start a JSON-RPC server that communicates over stdin/stdout.
Used by the visual suite editor to validate documents and drive runs.
Messages are newline-delimited JSON-RPC 2.0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProjectConfig()
		if err != nil {
			return err
		}
		s := serve.New(cfg, version, newLogger(cfg))
		return s.Run()
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tessera %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to tessera.yaml (default: discovered upward from the working directory)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// hasValidationErrors returns true if any error (non-warning) is present.
func hasValidationErrors(errs []*schema.ValidationError) bool {
	for _, e := range errs {
		if e.Severity != "warning" {
			return true
		}
	}
	return false
}

// countValidationErrors counts non-warning errors.
func countValidationErrors(errs []*schema.ValidationError) int {
	n := 0
	for _, e := range errs {
		if e.Severity != "warning" {
			n++
		}
	}
	return n
}

// printValidationWarnings prints any warnings to stderr.
func printValidationWarnings(errs []*schema.ValidationError) {
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
		}
	}
}
