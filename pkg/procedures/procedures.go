// Package procedures implements the procedure registry: named, parameterized
// statement lists defined in suite documents or at run time by proc.define.
package procedures

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ormasoftchile/tessera/pkg/step"
)

// NotFoundError reports a call to a procedure that is not registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("procedure %q not found", e.Name)
}

// ResolveError reports call-argument text that is neither a structured
// object literal nor mappable positionally onto the procedure's parameters.
type ResolveError struct {
	Text   string
	Reason string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("cannot resolve call arguments %q: %s", e.Text, e.Reason)
}

// Registry maps procedure names to definitions. Writes happen at suite load
// or through proc.define; concurrent runs use per-run snapshots so one
// run's defines never leak into another.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*step.Procedure
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*step.Procedure)}
}

// Define registers a procedure, overwriting any previous definition of the
// same name.
func (r *Registry) Define(p *step.Procedure) {
	if p == nil || p.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[p.Name] = p
}

// Lookup returns the procedure registered under name.
func (r *Registry) Lookup(name string) (*step.Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Clear removes every definition. Used between isolated runs.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*step.Procedure)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered procedures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Snapshot returns an independent copy-on-write view of the registry.
// Definitions are shared (they are read-only once registered); the map is
// copied, so Define/Clear on the snapshot never affects the source.
func (r *Registry) Snapshot() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName := make(map[string]*step.Procedure, len(r.byName))
	for name, p := range r.byName {
		byName[name] = p
	}
	return &Registry{byName: byName}
}

// ResolveCallArguments turns call-argument text into a name→value mapping
// for the procedure's parameters. The text is parsed as a JSON object
// first; on parse failure it is split on commas into positional values
// matched against the declared parameter order, with unmatched trailing
// parameters filled from their defaults.
func ResolveCallArguments(argsText string, p *step.Procedure) (map[string]any, error) {
	args := make(map[string]any, len(p.Params))

	trimmed := strings.TrimSpace(argsText)
	if trimmed != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			for k, v := range obj {
				args[k] = v
			}
			fillDefaults(args, p)
			return args, nil
		}

		// Positional fallback: comma-separated values in declared order.
		values := strings.Split(trimmed, ",")
		if len(values) > len(p.Params) {
			return nil, &ResolveError{
				Text:   argsText,
				Reason: fmt.Sprintf("%d positional values for %d parameters", len(values), len(p.Params)),
			}
		}
		for i, raw := range values {
			args[p.Params[i].Name] = coerceScalar(strings.TrimSpace(raw))
		}
	}

	fillDefaults(args, p)
	return args, nil
}

func fillDefaults(args map[string]any, p *step.Procedure) {
	for _, param := range p.Params {
		if _, ok := args[param.Name]; !ok && param.Default != nil {
			args[param.Name] = param.Default
		}
	}
}

// coerceScalar interprets a positional argument the way a JSON literal
// would read: numbers and booleans become typed values, everything else
// stays a string.
func coerceScalar(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool, nil:
			return v
		}
	}
	return raw
}
