package library

import (
	"context"

	"github.com/ormasoftchile/tessera/pkg/assert"
	"github.com/ormasoftchile/tessera/pkg/blocks"
)

func registerAssert(reg *blocks.Registry) {
	reg.Register(&blocks.Descriptor{
		Type:     "assert.that",
		Category: "assert",
		Summary:  "Assert that a condition holds.",
		Inputs: []blocks.InputSpec{
			{Name: "condition", Kind: blocks.InputValue, Type: "bool", Required: true},
			{Name: "message", Kind: blocks.InputField, Type: "string", Default: "condition not met"},
		},
		Statement: true,
		Output:    "bool",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			ok, err := truthy(ec, call.Params["condition"])
			if err != nil {
				return nil, err
			}
			return checkResult(ec, call, ok, call.StringOr("message", "condition not met"), nil)
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "assert.equals",
		Category: "assert",
		Summary:  "Assert two values are equal.",
		Doc: "Numbers compare numerically regardless of concrete type; lists " +
			"and mappings compare deeply.",
		Inputs: []blocks.InputSpec{
			{Name: "actual", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "expected", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "message", Kind: blocks.InputField, Type: "string"},
		},
		Statement: true,
		Output:    "bool",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			r := assert.Equals(call.Params["actual"], call.Params["expected"])
			return checkResult(ec, call, r.Passed, call.StringOr("message", r.Message), r)
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "assert.contains",
		Category: "assert",
		Summary:  "Assert a string contains a substring or a list contains an element.",
		Inputs: []blocks.InputSpec{
			{Name: "actual", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "expected", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "message", Kind: blocks.InputField, Type: "string"},
		},
		Statement: true,
		Output:    "bool",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			r := assert.Contains(call.Params["actual"], call.Params["expected"])
			return checkResult(ec, call, r.Passed, call.StringOr("message", r.Message), r)
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "assert.matches",
		Category: "assert",
		Summary:  "Assert a value matches a regular expression.",
		Inputs: []blocks.InputSpec{
			{Name: "actual", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "pattern", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "message", Kind: blocks.InputField, Type: "string"},
		},
		Statement: true,
		Output:    "bool",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			r := assert.Matches(call.Params["actual"], call.String("pattern"))
			return checkResult(ec, call, r.Passed, call.StringOr("message", r.Message), r)
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "assert.soft_mode",
		Category: "assert",
		Summary:  "Switch soft-assertion mode on or off.",
		Doc: "While soft mode is on, failing assertions are collected instead " +
			"of aborting; the runner flushes them at the end of the case.",
		Inputs: []blocks.InputSpec{
			{Name: "enabled", Kind: blocks.InputField, Type: "bool", Default: true},
		},
		Statement: true,
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			enabled := call.Bool("enabled")
			ec.Soft = enabled
			return map[string]any{"soft": enabled}, nil
		},
	})
}

// checkResult routes an assertion verdict through the hard/soft policy and
// shapes the step output.
func checkResult(ec *blocks.ExecContext, call *blocks.Call, passed bool, message string, r *assert.Result) (any, error) {
	d := assert.Details{StepID: call.Step.ID, BlockType: call.Step.Type}
	if r != nil {
		d.Expected = r.Expected
		d.Actual = r.Actual
	}
	if err := assert.Check(ec, passed, message, d); err != nil {
		return nil, err
	}
	return map[string]any{"passed": passed}, nil
}
