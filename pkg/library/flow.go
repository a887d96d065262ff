package library

import (
	"context"
	"errors"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// whileDefaultMax bounds flow.while when the document gives no max.
const whileDefaultMax = 100

func registerFlow(reg *blocks.Registry) {
	reg.Register(&blocks.Descriptor{
		Type:     "flow.if",
		Category: "flow",
		Summary:  "Run the do slot when the condition holds, else the else slot.",
		Doc: "The condition accepts a boolean (typically a nested `value.compare`) " +
			"or an expression string such as `status == \"active\"` evaluated " +
			"against the current variables.",
		Inputs: []blocks.InputSpec{
			{Name: "condition", Kind: blocks.InputValue, Type: "bool", Required: true},
			{Name: "do", Kind: blocks.InputSlot},
			{Name: "else", Kind: blocks.InputSlot},
		},
		Statement: true,
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			ok, err := truthy(ec, call.Params["condition"])
			if err != nil {
				return nil, err
			}
			if ok {
				return &step.Branch{Slot: step.SlotDo}, nil
			}
			return &step.Branch{Slot: step.SlotElse}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "flow.repeat",
		Category: "flow",
		Summary:  "Run the do slot a fixed number of times.",
		Inputs: []blocks.InputSpec{
			{Name: "times", Kind: blocks.InputValue, Type: "number", Required: true},
			{Name: "do", Kind: blocks.InputSlot},
		},
		Statement: true,
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			times, ok := call.Int("times")
			if !ok || times < 0 {
				return nil, errors.New("flow.repeat: times must be a non-negative number")
			}
			return &step.CountedLoop{Times: times, Slot: step.SlotDo}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "flow.for_each",
		Category: "flow",
		Summary:  "Run the do slot once per item, binding each to a variable.",
		Inputs: []blocks.InputSpec{
			{Name: "items", Kind: blocks.InputValue, Type: "list", Required: true},
			{Name: "as", Kind: blocks.InputField, Type: "string", Default: "item"},
			{Name: "do", Kind: blocks.InputSlot},
		},
		Statement: true,
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			items, err := itemsOf(call.Params["items"])
			if err != nil {
				return nil, err
			}
			return &step.CollectionLoop{
				Items:   items,
				Binding: call.StringOr("as", "item"),
				Slot:    step.SlotDo,
			}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "flow.while",
		Category: "flow",
		Summary:  "Run the do slot while the condition holds, up to max iterations.",
		Doc: "The condition is re-evaluated before every iteration. Exceeding " +
			"`max` while the condition still holds fails the step.",
		Inputs: []blocks.InputSpec{
			{Name: "condition", Kind: blocks.InputValue, Type: "bool", Required: true},
			{Name: "max", Kind: blocks.InputField, Type: "number", Default: whileDefaultMax},
			{Name: "do", Kind: blocks.InputSlot},
		},
		Statement: true,
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			ok, err := truthy(ec, call.Params["condition"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			remaining := call.IntOr("max", whileDefaultMax)
			if remaining <= 0 {
				return nil, errors.New("flow.while: exceeded max iterations")
			}
			// Expand into one body pass followed by a fresh copy of this
			// step with a decremented budget. The copy re-resolves the
			// condition against the variables the body just changed.
			next := call.Step.Copy()
			next.Params["max"] = step.Literal{Value: remaining - 1}
			steps := append(step.CopyList(call.Step.Slot(step.SlotDo)), next)
			return &step.InlineExpand{Steps: steps}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "flow.try",
		Category: "flow",
		Summary:  "Run the try slot; on failure run the catch slot instead.",
		Doc: "A swallowed failure's message is bound to the `error` variable " +
			"before the catch slot runs. Failures inside catch propagate.",
		Inputs: []blocks.InputSpec{
			{Name: "try", Kind: blocks.InputSlot},
			{Name: "catch", Kind: blocks.InputSlot},
		},
		Statement: true,
		Exec: func(_ context.Context, _ *blocks.ExecContext, _ *blocks.Call) (any, error) {
			return &step.TryCatch{}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "flow.group",
		Category: "flow",
		Summary:  "Run the do slot as an inline sequence.",
		Inputs: []blocks.InputSpec{
			{Name: "do", Kind: blocks.InputSlot},
		},
		Statement: true,
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return &step.InlineExpand{Steps: call.Step.Slot(step.SlotDo)}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "flow.fail",
		Category: "flow",
		Summary:  "Fail the current statement list with a message.",
		Inputs: []blocks.InputSpec{
			{Name: "message", Kind: blocks.InputField, Type: "string", Default: "failed"},
		},
		Statement: true,
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return nil, errors.New(call.StringOr("message", "failed"))
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "flow.skip",
		Category: "flow",
		Summary:  "Skip the rest of the test case.",
		Inputs: []blocks.InputSpec{
			{Name: "reason", Kind: blocks.InputField, Type: "string"},
		},
		Statement: true,
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return nil, &blocks.SkipError{Reason: call.String("reason")}
		},
	})
}

func itemsOf(v any) ([]any, error) {
	switch items := v.(type) {
	case nil:
		return nil, errors.New("flow.for_each: items is required")
	case []any:
		return items, nil
	default:
		return nil, errors.New("flow.for_each: items must be a list")
	}
}
