package library

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/procedures"
	"github.com/ormasoftchile/tessera/pkg/step"
)

func registerProc(reg *blocks.Registry) {
	reg.Register(&blocks.Descriptor{
		Type:     "proc.define",
		Category: "proc",
		Summary:  "Define a reusable procedure from the body slot.",
		Doc: "Params are declared as a list of names or `{name, type, default}` " +
			"mappings. Redefining a name replaces the previous definition.",
		Inputs: []blocks.InputSpec{
			{Name: "name", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "params", Kind: blocks.InputField, Type: "list"},
			{Name: "body", Kind: blocks.InputSlot},
		},
		Statement: true,
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			name := call.String("name")
			params, err := parseParamSpecs(call.List("params"))
			if err != nil {
				return nil, fmt.Errorf("proc.define %s: %w", name, err)
			}
			// The body is captured by deep copy so later mutation of the
			// document tree cannot alias the registered definition.
			ec.Procs.Define(&step.Procedure{
				Name:   name,
				Params: params,
				Body:   step.CopyList(call.Step.Slot(step.SlotBody)),
			})
			return map[string]any{"defined": name}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "proc.call",
		Category: "proc",
		Summary:  "Call a procedure, discarding its return value.",
		Inputs: []blocks.InputSpec{
			{Name: "name", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "args", Kind: blocks.InputField, Type: "string"},
		},
		Statement: true,
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			return procedureCall(ec, call, false, "")
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "proc.call_return",
		Category: "proc",
		Summary:  "Call a procedure and adopt its return value.",
		Doc: "The call's output is the procedure's `proc.return` value. With " +
			"`into`, the value is also stored as a variable.",
		Inputs: []blocks.InputSpec{
			{Name: "name", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "args", Kind: blocks.InputField, Type: "string"},
			{Name: "into", Kind: blocks.InputField, Type: "string"},
		},
		Statement: true,
		Output:    "any",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			return procedureCall(ec, call, true, call.String("into"))
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "proc.return",
		Category: "proc",
		Summary:  "Return a value from the enclosing procedure.",
		Inputs: []blocks.InputSpec{
			{Name: "value", Kind: blocks.InputValue, Type: "any"},
		},
		Statement: true,
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return &step.ProcedureReturn{Value: call.Params["value"]}, nil
		},
	})
}

// procedureCall resolves the callee and its arguments into a ProcedureCall
// signal. Arguments given as a mapping are used directly; argument text is
// resolved per the call-argument grammar (object literal, else positional).
func procedureCall(ec *blocks.ExecContext, call *blocks.Call, wantReturn bool, into string) (any, error) {
	name := call.String("name")
	proc, ok := ec.Procs.Lookup(name)
	if !ok {
		return nil, &procedures.NotFoundError{Name: name}
	}

	var args map[string]any
	switch bound := call.Params["args"].(type) {
	case map[string]any:
		args = bound
	case nil:
		args = map[string]any{}
	default:
		resolved, err := procedures.ResolveCallArguments(call.String("args"), proc)
		if err != nil {
			return nil, err
		}
		args = resolved
	}

	return &step.ProcedureCall{
		Name:       name,
		Args:       args,
		Procedure:  proc,
		WantReturn: wantReturn,
		Into:       into,
	}, nil
}

// parseParamSpecs reads procedure parameter declarations: bare names or
// {name, type, default} mappings.
func parseParamSpecs(raw []any) ([]step.Param, error) {
	params := make([]step.Param, 0, len(raw))
	for i, item := range raw {
		switch spec := item.(type) {
		case string:
			params = append(params, step.Param{Name: spec})
		case map[string]any:
			name, _ := spec["name"].(string)
			if name == "" {
				return nil, fmt.Errorf("param %d: missing name", i)
			}
			typ, _ := spec["type"].(string)
			params = append(params, step.Param{Name: name, Type: typ, Default: spec["default"]})
		default:
			return nil, fmt.Errorf("param %d: want name or mapping, got %T", i, item)
		}
	}
	return params, nil
}
