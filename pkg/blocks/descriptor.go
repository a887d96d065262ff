// Package blocks defines the block capability model: descriptors, the block
// registry, the leaf executor contract, and the per-run execution context
// that executors see.
package blocks

import (
	"context"

	"github.com/ormasoftchile/tessera/pkg/step"
)

// InputKind classifies a declared block input.
type InputKind string

const (
	// InputField is a literal-valued input (text, number, option).
	InputField InputKind = "field"
	// InputValue is an input that accepts a nested value-producing step.
	InputValue InputKind = "value"
	// InputSlot is a named statement slot holding child steps.
	InputSlot InputKind = "slot"
)

// InputSpec declares one block input.
type InputSpec struct {
	Name     string    `json:"name"`
	Kind     InputKind `json:"kind"`
	Type     string    `json:"type,omitempty"` // string, number, bool, list, map, any
	Required bool      `json:"required,omitempty"`
	Default  any       `json:"default,omitempty"`
	Doc      string    `json:"doc,omitempty"`
}

// ExecFunc is the leaf executor contract. It receives the resolved
// parameters and the run's execution context, and returns either a plain
// value or a step.Signal instructing the interpreter to perform control
// flow. Executors performing I/O must honor ctx.
type ExecFunc func(ctx context.Context, ec *ExecContext, call *Call) (any, error)

// Descriptor describes a registered block type.
type Descriptor struct {
	Type     string      `json:"type"`
	Category string      `json:"category"`
	Summary  string      `json:"summary,omitempty"`
	Doc      string      `json:"doc,omitempty"` // markdown, rendered by `tessera blocks show`
	Inputs   []InputSpec `json:"inputs,omitempty"`
	Output   string      `json:"output,omitempty"` // declared output type, empty when none

	// Statement marks blocks that chain into statement lists. Pure value
	// producers (Statement=false) are meant for nested value positions.
	Statement bool `json:"statement"`

	Exec ExecFunc `json:"-"`
}

// SlotNames returns the declared statement slot names, in declaration order.
func (d *Descriptor) SlotNames() []string {
	var names []string
	for _, in := range d.Inputs {
		if in.Kind == InputSlot {
			names = append(names, in.Name)
		}
	}
	return names
}

// Input returns the spec for the named input.
func (d *Descriptor) Input(name string) (InputSpec, bool) {
	for _, in := range d.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputSpec{}, false
}

// Call is one leaf invocation: the step being executed and its resolved
// parameter values. Control blocks reach their statement slots through
// Step; value parameters arrive fully resolved in Params.
type Call struct {
	Step   *step.Node
	Params map[string]any
}
