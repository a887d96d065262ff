package library

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/tessera/pkg/assert"
	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/vars"
)

func registerValue(reg *blocks.Registry) {
	reg.Register(&blocks.Descriptor{
		Type:     "value.literal",
		Category: "value",
		Summary:  "Produce a literal value.",
		Inputs: []blocks.InputSpec{
			{Name: "value", Kind: blocks.InputValue, Type: "any", Required: true},
		},
		Output: "any",
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return call.Params["value"], nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.var",
		Category: "value",
		Summary:  "Read a variable, optionally by dotted path.",
		Inputs: []blocks.InputSpec{
			{Name: "name", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "default", Kind: blocks.InputValue, Type: "any"},
		},
		Output: "any",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			name := call.String("name")
			if v, ok := ec.LookupVar(name); ok {
				return v, nil
			}
			if def, ok := call.Any("default"); ok {
				return def, nil
			}
			return nil, fmt.Errorf("value.var: %q is not set", name)
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.set",
		Category: "value",
		Summary:  "Store a value in a variable.",
		Inputs: []blocks.InputSpec{
			{Name: "name", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "value", Kind: blocks.InputValue, Type: "any", Required: true},
		},
		Statement: true,
		Output:    "any",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			v := call.Params["value"]
			ec.Vars[call.String("name")] = v
			return v, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.template",
		Category: "value",
		Summary:  "Render text with ${...} placeholders substituted.",
		Inputs: []blocks.InputSpec{
			{Name: "text", Kind: blocks.InputField, Type: "string", Required: true},
		},
		Output: "string",
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			// Placeholders were substituted during parameter resolution.
			return call.String("text"), nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.expr",
		Category: "value",
		Summary:  "Evaluate an expression against the current variables.",
		Doc: "Expressions use expr-lang syntax: `items[0].price * 1.2`, " +
			"`len(rows) > 0 ? \"some\" : \"none\"`.",
		Inputs: []blocks.InputSpec{
			{Name: "expression", Kind: blocks.InputField, Type: "string", Required: true},
		},
		Output: "any",
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			code := call.String("expression")
			env := ec.Env()
			program, err := expr.Compile(code, expr.Env(env), expr.AllowUndefinedVariables())
			if err != nil {
				return nil, fmt.Errorf("compile expression %q: %w", code, err)
			}
			out, err := expr.Run(program, env)
			if err != nil {
				return nil, fmt.Errorf("eval expression %q: %w", code, err)
			}
			return out, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.compare",
		Category: "value",
		Summary:  "Compare two values, producing a boolean.",
		Inputs: []blocks.InputSpec{
			{Name: "left", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "op", Kind: blocks.InputField, Type: "string", Default: "=="},
			{Name: "right", Kind: blocks.InputValue, Type: "any", Required: true},
		},
		Output: "bool",
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return compare(call.Params["left"], call.StringOr("op", "=="), call.Params["right"])
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.json_path",
		Category: "value",
		Summary:  "Extract a value from JSON by path ($.a.b.0).",
		Inputs: []blocks.InputSpec{
			{Name: "source", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "path", Kind: blocks.InputField, Type: "string", Required: true},
		},
		Output: "any",
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return jsonPath(call.Params["source"], call.String("path"))
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.len",
		Category: "value",
		Summary:  "Length of a string, list or mapping.",
		Inputs: []blocks.InputSpec{
			{Name: "of", Kind: blocks.InputValue, Type: "any", Required: true},
		},
		Output: "number",
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			switch v := call.Params["of"].(type) {
			case string:
				return len(v), nil
			case []any:
				return len(v), nil
			case map[string]any:
				return len(v), nil
			case nil:
				return 0, nil
			default:
				return nil, fmt.Errorf("value.len: no length for %T", v)
			}
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "value.now",
		Category: "value",
		Summary:  "Current time, formatted.",
		Inputs: []blocks.InputSpec{
			{Name: "format", Kind: blocks.InputField, Type: "string", Default: time.RFC3339},
		},
		Output: "string",
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return time.Now().Format(call.StringOr("format", time.RFC3339)), nil
		},
	})
}

// compare implements value.compare's operators. Equality and containment
// reuse the assertion comparators; ordering coerces both sides to numbers.
func compare(left any, op string, right any) (bool, error) {
	switch op {
	case "==", "eq":
		return assert.Equals(left, right).Passed, nil
	case "!=", "ne":
		return assert.NotEquals(left, right).Passed, nil
	case "contains":
		return assert.Contains(left, right).Passed, nil
	case "matches":
		pattern, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("value.compare: matches needs a string pattern, got %T", right)
		}
		return assert.Matches(left, pattern).Passed, nil
	case "<", "<=", ">", ">=":
		l, lok := numeric(left)
		r, rok := numeric(right)
		if !lok || !rok {
			return false, fmt.Errorf("value.compare: %q needs numeric operands (got %T, %T)", op, left, right)
		}
		switch op {
		case "<":
			return l < r, nil
		case "<=":
			return l <= r, nil
		case ">":
			return l > r, nil
		default:
			return l >= r, nil
		}
	default:
		return false, fmt.Errorf("value.compare: unknown operator %q", op)
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// jsonPath navigates $.seg.seg paths. A string source is parsed as JSON
// first; structured sources are traversed directly. List segments are
// numeric indices.
func jsonPath(source any, path string) (any, error) {
	data := source
	if text, ok := source.(string); ok {
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			return nil, fmt.Errorf("value.json_path: invalid JSON source: %w", err)
		}
	}

	trimmed := strings.TrimPrefix(strings.TrimPrefix(path, "$."), "$")
	if trimmed == "" {
		return data, nil
	}
	out, ok := vars.Traverse(data, strings.Split(trimmed, "."))
	if !ok {
		return nil, fmt.Errorf("value.json_path: path %s not found", path)
	}
	return out, nil
}
