package blocks

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ormasoftchile/tessera/pkg/procedures"
	"github.com/ormasoftchile/tessera/pkg/vars"
	"github.com/ormasoftchile/tessera/pkg/webdriver"
)

// SoftFailure is one collected soft-assertion failure. It is data, not an
// error: it becomes part of an error only when the accumulator is flushed
// at the test-case boundary.
type SoftFailure struct {
	Message   string    `json:"message"`
	StepID    string    `json:"step_id,omitempty"`
	BlockType string    `json:"block_type,omitempty"`
	Expected  any       `json:"expected,omitempty"`
	Actual    any       `json:"actual,omitempty"`
	At        time.Time `json:"at"`
}

// ArtifactSink stores run artifacts (failure screenshots). Implemented by
// the runner's artifact directory; nil disables artifact capture.
type ArtifactSink interface {
	SaveScreenshot(stepID string, png []byte) (path string, err error)
}

// ExecContext is the per-run mutable state handed to every leaf executor.
// One context belongs to exactly one test-case run; nothing in it is shared
// across concurrent runs.
type ExecContext struct {
	RunID string
	Case  string

	// Vars holds the variable bindings. Row holds the current data-row for
	// one data-driven iteration; the resolver consults Row before Vars.
	Vars map[string]any
	Row  map[string]any

	// Soft enables soft-assertion mode; SoftFailures accumulates while it
	// is on. The list must be drained via the assert package's Flush
	// before it is read as a test outcome.
	Soft         bool
	SoftFailures []SoftFailure

	// Procs is this run's procedure registry snapshot. proc.define writes
	// here and never into the shared suite registry.
	Procs *procedures.Registry

	Logger *slog.Logger

	// Leaf capabilities. The interpreter never touches these; only block
	// executors do.
	HTTP      *http.Client
	Browser   webdriver.Session
	Artifacts ArtifactSink
}

// NewExecContext returns a context with initialized bindings and the given
// procedure snapshot. Logger defaults to slog.Default.
func NewExecContext(procs *procedures.Registry) *ExecContext {
	if procs == nil {
		procs = procedures.NewRegistry()
	}
	return &ExecContext{
		Vars:   make(map[string]any),
		Procs:  procs,
		Logger: slog.Default(),
	}
}

// Resolve substitutes ${...} placeholders against the current data-row and
// variable bindings.
func (ec *ExecContext) Resolve(text string) string {
	return vars.Resolve(text, ec.Row, ec.Vars)
}

// ResolveValue applies Resolve through nested mappings and lists.
func (ec *ExecContext) ResolveValue(v any) any {
	return vars.ResolveValue(v, ec.Row, ec.Vars)
}

// LookupVar resolves a dotted variable path (data-row first).
func (ec *ExecContext) LookupVar(path string) (any, bool) {
	return vars.Lookup(path, ec.Row, ec.Vars)
}

// Env merges the data-row over the variable bindings into one flat map for
// expression evaluation.
func (ec *ExecContext) Env() map[string]any {
	env := make(map[string]any, len(ec.Vars)+len(ec.Row))
	for k, v := range ec.Vars {
		env[k] = v
	}
	for k, v := range ec.Row {
		env[k] = v
	}
	return env
}
