// Package step defines the tree that the interpreter executes: nodes, their
// input bindings, statement slots, and procedure definitions. Nodes are
// produced by the suite loader (pkg/schema) or synthesized by blocks at run
// time; the interpreter treats them as read-only.
package step

import "fmt"

// Well-known statement slot names. A slot holds child statements that the
// interpreter evaluates only when a control signal asks for them.
const (
	SlotDo    = "do"
	SlotElse  = "else"
	SlotTry   = "try"
	SlotCatch = "catch"
	SlotBody  = "body"
)

// Node is one block instantiation within a test: a block type plus bound
// inputs and statement slots. Nodes form a tree, never a cycle.
type Node struct {
	// ID identifies the node within its case. Loader-generated IDs encode
	// the node's position ("2.do.0"); explicit IDs come from the document.
	ID string

	// Type is the block type identifier, e.g. "flow.if" or "web.click".
	Type string

	// Params maps input names to bound values. Statement slots are not
	// params; they live in Slots.
	Params map[string]Input

	// Slots maps slot names (do, else, try, catch, body) to child
	// statement lists.
	Slots map[string][]*Node
}

// Input is a bound step input: either a literal value or a nested
// value-producing node, never both.
type Input interface {
	isInput()
}

// Literal is an input bound to a plain value (scalar, list or mapping).
// String literals pass through the variable resolver before the block
// executor sees them.
type Literal struct {
	Value any
}

// Nested is an input bound to another node whose evaluated result becomes
// the parameter value.
type Nested struct {
	Node *Node
}

func (Literal) isInput() {}
func (Nested) isInput()  {}

// Param returns the input bound to name, or nil when unbound.
func (n *Node) Param(name string) Input {
	if n.Params == nil {
		return nil
	}
	in, ok := n.Params[name]
	if !ok {
		return nil
	}
	return in
}

// Slot returns the child list for the named slot. A missing slot is an
// empty list.
func (n *Node) Slot(name string) []*Node {
	if n.Slots == nil {
		return nil
	}
	return n.Slots[name]
}

// String renders a short identity for error messages.
func (n *Node) String() string {
	if n.ID != "" {
		return fmt.Sprintf("%s (%s)", n.ID, n.Type)
	}
	return n.Type
}

// Copy returns a deep copy of the node. Used when a body is captured into a
// registry (proc.define) so later document reuse cannot alias live trees.
func (n *Node) Copy() *Node {
	if n == nil {
		return nil
	}
	out := &Node{ID: n.ID, Type: n.Type}
	if n.Params != nil {
		out.Params = make(map[string]Input, len(n.Params))
		for name, in := range n.Params {
			switch v := in.(type) {
			case Literal:
				out.Params[name] = Literal{Value: copyValue(v.Value)}
			case Nested:
				out.Params[name] = Nested{Node: v.Node.Copy()}
			}
		}
	}
	if n.Slots != nil {
		out.Slots = make(map[string][]*Node, len(n.Slots))
		for name, children := range n.Slots {
			out.Slots[name] = CopyList(children)
		}
	}
	return out
}

// CopyList deep-copies a statement list.
func CopyList(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Copy()
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

// Procedure is a named, parameterized, reusable statement list.
type Procedure struct {
	Name   string
	Params []Param
	Body   []*Node
}

// Param declares one procedure parameter.
type Param struct {
	Name    string
	Type    string // "string", "number", "bool", "any"; empty means any
	Default any    // nil when the parameter has no default
}

// Copy deep-copies the procedure, including its body.
func (p *Procedure) Copy() *Procedure {
	if p == nil {
		return nil
	}
	out := &Procedure{Name: p.Name, Body: CopyList(p.Body)}
	out.Params = make([]Param, len(p.Params))
	copy(out.Params, p.Params)
	return out
}
