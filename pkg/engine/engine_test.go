package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ormasoftchile/tessera/pkg/assert"
	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/procedures"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// testRegistry builds a minimal block set exercising every signal case
// without pulling in the full library.
func testRegistry() *blocks.Registry {
	reg := blocks.NewRegistry()

	reg.Register(&blocks.Descriptor{
		Type: "t.echo", Category: "test",
		Inputs: []blocks.InputSpec{{Name: "value", Kind: blocks.InputValue}},
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return call.Params["value"], nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.fail", Category: "test",
		Inputs: []blocks.InputSpec{{Name: "message", Kind: blocks.InputField}},
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return nil, errors.New(call.StringOr("message", "boom"))
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.branch", Category: "test",
		Inputs: []blocks.InputSpec{
			{Name: "condition", Kind: blocks.InputValue},
			{Name: "do", Kind: blocks.InputSlot},
			{Name: "else", Kind: blocks.InputSlot},
		},
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			if call.Bool("condition") {
				return &step.Branch{Slot: step.SlotDo}, nil
			}
			return &step.Branch{Slot: step.SlotElse}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.repeat", Category: "test",
		Inputs: []blocks.InputSpec{
			{Name: "times", Kind: blocks.InputValue},
			{Name: "do", Kind: blocks.InputSlot},
		},
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return &step.CountedLoop{Times: call.IntOr("times", 0), Slot: step.SlotDo}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.each", Category: "test",
		Inputs: []blocks.InputSpec{
			{Name: "items", Kind: blocks.InputValue},
			{Name: "as", Kind: blocks.InputField},
			{Name: "do", Kind: blocks.InputSlot},
		},
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return &step.CollectionLoop{
				Items:   call.List("items"),
				Binding: call.String("as"),
				Slot:    step.SlotDo,
			}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.try", Category: "test",
		Inputs: []blocks.InputSpec{
			{Name: "try", Kind: blocks.InputSlot},
			{Name: "catch", Kind: blocks.InputSlot},
		},
		Exec: func(_ context.Context, _ *blocks.ExecContext, _ *blocks.Call) (any, error) {
			return &step.TryCatch{}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.read", Category: "test",
		Inputs: []blocks.InputSpec{{Name: "name", Kind: blocks.InputField}},
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			v, _ := ec.LookupVar(call.String("name"))
			return v, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.sum", Category: "test",
		Exec: func(_ context.Context, ec *blocks.ExecContext, _ *blocks.Call) (any, error) {
			a, _ := ec.LookupVar("a")
			b, _ := ec.LookupVar("b")
			return toNumber(a) + toNumber(b), nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.check", Category: "test",
		Inputs: []blocks.InputSpec{
			{Name: "ok", Kind: blocks.InputValue},
			{Name: "message", Kind: blocks.InputField},
		},
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			ok := call.Bool("ok")
			err := assert.Check(ec, ok, call.StringOr("message", "check failed"), assert.Details{
				StepID: call.Step.ID, BlockType: call.Step.Type,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"passed": ok}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.call_return", Category: "test",
		Inputs: []blocks.InputSpec{
			{Name: "name", Kind: blocks.InputField},
			{Name: "args", Kind: blocks.InputField},
		},
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			name := call.String("name")
			proc, ok := ec.Procs.Lookup(name)
			if !ok {
				return nil, &procedures.NotFoundError{Name: name}
			}
			args, err := procedures.ResolveCallArguments(call.String("args"), proc)
			if err != nil {
				return nil, err
			}
			return &step.ProcedureCall{Name: name, Args: args, Procedure: proc, WantReturn: true}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type: "t.return", Category: "test",
		Inputs: []blocks.InputSpec{{Name: "value", Kind: blocks.InputValue}},
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			return &step.ProcedureReturn{Value: call.Params["value"]}, nil
		},
	})

	return reg
}

func toNumber(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func lit(v any) step.Input { return step.Literal{Value: v} }

func nested(n *step.Node) step.Input { return step.Nested{Node: n} }

func newContext() *blocks.ExecContext {
	return blocks.NewExecContext(procedures.NewRegistry())
}

func TestEvaluate_LiteralLeaf(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()

	node := &step.Node{ID: "s0", Type: "t.echo", Params: map[string]step.Input{"value": lit(42)}}
	out, err := eng.Evaluate(context.Background(), ec, node)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != 42 {
		t.Errorf("out = %v, want 42", out)
	}
	if len(eng.Results()) != 1 {
		t.Errorf("results = %d, want 1", len(eng.Results()))
	}
}

func TestEvaluate_NestedValueResolvedOnceBeforeOuter(t *testing.T) {
	reg := testRegistry()

	var producerCalls int
	var outerSaw any
	reg.Register(&blocks.Descriptor{
		Type: "t.producer", Category: "test",
		Exec: func(_ context.Context, _ *blocks.ExecContext, _ *blocks.Call) (any, error) {
			producerCalls++
			return "produced", nil
		},
	})
	reg.Register(&blocks.Descriptor{
		Type: "t.outer", Category: "test",
		Inputs: []blocks.InputSpec{{Name: "value", Kind: blocks.InputValue}},
		Exec: func(_ context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			outerSaw = call.Params["value"]
			return nil, nil
		},
	})

	eng := New(Config{Blocks: reg})
	node := &step.Node{
		ID: "s0", Type: "t.outer",
		Params: map[string]step.Input{
			"value": nested(&step.Node{ID: "s0.value", Type: "t.producer"}),
		},
	}
	if _, err := eng.Evaluate(context.Background(), newContext(), node); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if producerCalls != 1 {
		t.Errorf("producer invoked %d times, want 1", producerCalls)
	}
	if outerSaw != "produced" {
		t.Errorf("outer saw %v, want the produced value", outerSaw)
	}
}

func TestEvaluate_BranchRunsOnlyMatchingSlot(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()

	branch := func(cond bool) *step.Node {
		return &step.Node{
			ID: "if", Type: "t.branch",
			Params: map[string]step.Input{"condition": lit(cond)},
			Slots: map[string][]*step.Node{
				step.SlotDo: {
					{ID: "a", Type: "t.echo", Params: map[string]step.Input{"value": lit("A")}},
					{ID: "b", Type: "t.echo", Params: map[string]step.Input{"value": lit("B")}},
				},
				step.SlotElse: {
					{ID: "c", Type: "t.echo", Params: map[string]step.Input{"value": lit("C")}},
				},
			},
		}
	}

	if _, err := eng.Evaluate(context.Background(), ec, branch(true)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	got := executedIDs(eng)
	want := []string{"a", "b"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("executed %v, want %v", got, want)
	}

	eng.Reset()
	if _, err := eng.Evaluate(context.Background(), ec, branch(false)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	got = executedIDs(eng)
	want = []string{"c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("executed %v, want %v", got, want)
	}
}

func executedIDs(eng *Engine) []string {
	var ids []string
	for _, r := range eng.Results() {
		ids = append(ids, r.StepID)
	}
	return ids
}

func TestEvaluate_CountedLoop(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})

	node := &step.Node{
		ID: "loop", Type: "t.repeat",
		Params: map[string]step.Input{"times": lit(3)},
		Slots: map[string][]*step.Node{
			step.SlotDo: {
				{ID: "body", Type: "t.echo", Params: map[string]step.Input{"value": lit("x")}},
			},
		},
	}
	if _, err := eng.Evaluate(context.Background(), newContext(), node); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if n := len(eng.Results()); n != 3 {
		t.Errorf("recorded %d results, want 3", n)
	}
}

func TestEvaluate_CountedLoopStopsOnFailure(t *testing.T) {
	reg := testRegistry()
	calls := 0
	reg.Register(&blocks.Descriptor{
		Type: "t.failsecond", Category: "test",
		Exec: func(_ context.Context, _ *blocks.ExecContext, _ *blocks.Call) (any, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("iteration 2 failed")
			}
			return "ok", nil
		},
	})

	eng := New(Config{Blocks: reg})
	node := &step.Node{
		ID: "loop", Type: "t.repeat",
		Params: map[string]step.Input{"times": lit(3)},
		Slots: map[string][]*step.Node{
			step.SlotDo: {{ID: "body", Type: "t.failsecond"}},
		},
	}
	_, err := eng.Evaluate(context.Background(), newContext(), node)
	if err == nil {
		t.Fatal("expected failure from iteration 2")
	}
	if n := len(eng.Results()); n != 2 {
		t.Errorf("recorded %d results, want 2", n)
	}
	if calls != 2 {
		t.Errorf("body invoked %d times, want 2", calls)
	}
}

func TestEvaluate_CollectionLoop(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()

	node := &step.Node{
		ID: "each", Type: "t.each",
		Params: map[string]step.Input{
			"items": lit([]any{1, 2, 3}),
			"as":    lit("x"),
		},
		Slots: map[string][]*step.Node{
			step.SlotDo: {
				{ID: "read", Type: "t.read", Params: map[string]step.Input{"name": lit("x")}},
			},
		},
	}
	if _, err := eng.Evaluate(context.Background(), ec, node); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	var outputs []any
	for _, r := range eng.Results() {
		outputs = append(outputs, r.Output)
	}
	if fmt.Sprint(outputs) != fmt.Sprint([]any{1, 2, 3}) {
		t.Errorf("outputs = %v, want [1 2 3]", outputs)
	}
	if v := ec.Vars["x"]; v != 3 {
		t.Errorf("x after loop = %v, want 3 (last item persists)", v)
	}
}

func TestEvaluate_TryCatch(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()

	failing := &step.Node{
		ID: "try", Type: "t.try",
		Slots: map[string][]*step.Node{
			step.SlotTry: {
				{ID: "boom", Type: "t.fail", Params: map[string]step.Input{"message": lit("inside try")}},
			},
			step.SlotCatch: {
				{ID: "recover", Type: "t.echo", Params: map[string]step.Input{"value": lit("recovered")}},
			},
		},
	}
	if _, err := eng.Evaluate(context.Background(), ec, failing); err != nil {
		t.Fatalf("try/catch should swallow the try failure, got %v", err)
	}
	ids := executedIDs(eng)
	if fmt.Sprint(ids) != fmt.Sprint([]string{"boom", "recover"}) {
		t.Errorf("executed %v, want [boom recover]", ids)
	}

	eng.Reset()
	passing := &step.Node{
		ID: "try", Type: "t.try",
		Slots: map[string][]*step.Node{
			step.SlotTry: {
				{ID: "fine", Type: "t.echo", Params: map[string]step.Input{"value": lit("ok")}},
			},
			step.SlotCatch: {
				{ID: "never", Type: "t.echo", Params: map[string]step.Input{"value": lit("no")}},
			},
		},
	}
	if _, err := eng.Evaluate(context.Background(), ec, passing); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, id := range executedIDs(eng) {
		if id == "never" {
			t.Error("catch slot ran although try succeeded")
		}
	}
}

func TestEvaluate_CatchFailurePropagates(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})

	node := &step.Node{
		ID: "try", Type: "t.try",
		Slots: map[string][]*step.Node{
			step.SlotTry: {
				{ID: "boom", Type: "t.fail"},
			},
			step.SlotCatch: {
				{ID: "boom2", Type: "t.fail", Params: map[string]step.Input{"message": lit("catch failed too")}},
			},
		},
	}
	_, err := eng.Evaluate(context.Background(), newContext(), node)
	if err == nil {
		t.Fatal("failure inside catch must propagate")
	}
}

func TestProcedure_RoundTrip(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()

	ec.Procs.Define(&step.Procedure{
		Name: "add",
		Params: []step.Param{
			{Name: "a", Type: "number"},
			{Name: "b", Type: "number"},
		},
		Body: []*step.Node{
			{
				ID: "ret", Type: "t.return",
				Params: map[string]step.Input{
					"value": nested(&step.Node{ID: "sum", Type: "t.sum"}),
				},
			},
		},
	})

	for _, args := range []string{`{"a":2,"b":3}`, "2,3"} {
		call := &step.Node{
			ID: "call", Type: "t.call_return",
			Params: map[string]step.Input{"name": lit("add"), "args": lit(args)},
		}
		out, err := eng.Evaluate(context.Background(), ec, call)
		if err != nil {
			t.Fatalf("args %q: %v", args, err)
		}
		if toNumber(out) != 5 {
			t.Errorf("args %q: result = %v, want 5", args, out)
		}
	}
}

func TestProcedure_ReturnBubblesThroughControlFrames(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()

	ec.Procs.Define(&step.Procedure{
		Name: "pick",
		Body: []*step.Node{
			{
				ID: "if", Type: "t.branch",
				Params: map[string]step.Input{"condition": lit(true)},
				Slots: map[string][]*step.Node{
					step.SlotDo: {
						{ID: "ret", Type: "t.return", Params: map[string]step.Input{"value": lit("early")}},
						{ID: "after", Type: "t.fail", Params: map[string]step.Input{"message": lit("must not run")}},
					},
				},
			},
			{ID: "tail", Type: "t.fail", Params: map[string]step.Input{"message": lit("skipped by return")}},
		},
	})

	call := &step.Node{
		ID: "call", Type: "t.call_return",
		Params: map[string]step.Input{"name": lit("pick"), "args": lit("")},
	}
	out, err := eng.Evaluate(context.Background(), ec, call)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != "early" {
		t.Errorf("out = %v, want early", out)
	}
}

func TestProcedure_ReturnOutsideBodyIsError(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})

	steps := []*step.Node{
		{ID: "ret", Type: "t.return", Params: map[string]step.Input{"value": lit(1)}},
	}
	if err := eng.RunSteps(context.Background(), newContext(), steps); err == nil {
		t.Fatal("proc.return at top level must fail")
	}
}

func TestProcedure_NotFound(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})

	call := &step.Node{
		ID: "call", Type: "t.call_return",
		Params: map[string]step.Input{"name": lit("missing"), "args": lit("")},
	}
	_, err := eng.Evaluate(context.Background(), newContext(), call)
	var notFound *procedures.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestSoftAssertions_CollectAndFlush(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()
	ec.Soft = true

	steps := []*step.Node{
		{ID: "a1", Type: "t.check", Params: map[string]step.Input{"ok": lit(false), "message": lit("first")}},
		{ID: "a2", Type: "t.check", Params: map[string]step.Input{"ok": lit(false), "message": lit("second")}},
		{ID: "s3", Type: "t.echo", Params: map[string]step.Input{"value": lit("still runs")}},
	}
	if err := eng.RunSteps(context.Background(), ec, steps); err != nil {
		t.Fatalf("soft mode must continue past failures, got %v", err)
	}

	results := eng.Results()
	if len(results) != 3 {
		t.Fatalf("recorded %d results, want 3", len(results))
	}
	if results[0].Status != blocks.StatusFailed || results[1].Status != blocks.StatusFailed {
		t.Errorf("assert results = %s/%s, want failed/failed", results[0].Status, results[1].Status)
	}
	if results[2].Status != blocks.StatusPassed {
		t.Errorf("non-assert result = %s, want passed", results[2].Status)
	}

	err := assert.Flush(ec)
	var agg *assert.AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("flush err = %v, want AggregateError", err)
	}
	if len(agg.Failures) != 2 {
		t.Errorf("aggregate carries %d failures, want 2", len(agg.Failures))
	}
	if err := assert.Flush(ec); err != nil {
		t.Errorf("second flush = %v, want nil (already drained)", err)
	}
}

func TestHardAssertions_AbortStatementList(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()

	steps := []*step.Node{
		{ID: "a1", Type: "t.check", Params: map[string]step.Input{"ok": lit(false), "message": lit("first")}},
		{ID: "a2", Type: "t.check", Params: map[string]step.Input{"ok": lit(false), "message": lit("second")}},
	}
	err := eng.RunSteps(context.Background(), ec, steps)
	var hard *assert.HardError
	if !errors.As(err, &hard) {
		t.Fatalf("err = %v, want HardError", err)
	}

	results := eng.Results()
	if len(results) != 1 {
		t.Fatalf("recorded %d results, want 1", len(results))
	}
	if results[0].Status != blocks.StatusFailed {
		t.Errorf("result status = %s, want failed", results[0].Status)
	}
}

func TestEvaluate_UnknownBlockType(t *testing.T) {
	reg := testRegistry()
	invoked := false
	reg.Register(&blocks.Descriptor{
		Type: "t.spy", Category: "test",
		Exec: func(_ context.Context, _ *blocks.ExecContext, _ *blocks.Call) (any, error) {
			invoked = true
			return nil, nil
		},
	})

	eng := New(Config{Blocks: reg})
	node := &step.Node{ID: "s0", Type: "t.nope"}
	_, err := eng.Evaluate(context.Background(), newContext(), node)

	var unknown *UnknownBlockTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownBlockTypeError", err)
	}
	if unknown.Type != "t.nope" {
		t.Errorf("unknown.Type = %q", unknown.Type)
	}
	if invoked {
		t.Error("no executor may run for an unknown block type")
	}
	if len(eng.Results()) != 0 {
		t.Errorf("recorded %d results, want 0", len(eng.Results()))
	}
}

func TestEvaluate_UnresolvedPlaceholderPassesThrough(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})

	node := &step.Node{
		ID: "s0", Type: "t.echo",
		Params: map[string]step.Input{"value": lit("${missing}")},
	}
	out, err := eng.Evaluate(context.Background(), newContext(), node)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != "${missing}" {
		t.Errorf("out = %v, want the literal placeholder text", out)
	}
}

func TestEvaluate_CancellationNotSwallowedByTryCatch(t *testing.T) {
	reg := testRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	reg.Register(&blocks.Descriptor{
		Type: "t.cancel", Category: "test",
		Exec: func(ctx context.Context, _ *blocks.ExecContext, _ *blocks.Call) (any, error) {
			cancel()
			return nil, ctx.Err()
		},
	})

	eng := New(Config{Blocks: reg})
	node := &step.Node{
		ID: "try", Type: "t.try",
		Slots: map[string][]*step.Node{
			step.SlotTry:   {{ID: "c", Type: "t.cancel"}},
			step.SlotCatch: {{ID: "r", Type: "t.echo", Params: map[string]step.Input{"value": lit("x")}}},
		},
	}
	_, err := eng.Evaluate(ctx, newContext(), node)
	if err == nil {
		t.Fatal("cancellation must propagate through try/catch")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunSteps_FailureStopsSiblings(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})

	steps := []*step.Node{
		{ID: "ok", Type: "t.echo", Params: map[string]step.Input{"value": lit(1)}},
		{ID: "boom", Type: "t.fail"},
		{ID: "never", Type: "t.echo", Params: map[string]step.Input{"value": lit(2)}},
	}
	if err := eng.RunSteps(context.Background(), newContext(), steps); err == nil {
		t.Fatal("expected failure")
	}
	ids := executedIDs(eng)
	if fmt.Sprint(ids) != fmt.Sprint([]string{"ok", "boom"}) {
		t.Errorf("executed %v, want [ok boom]", ids)
	}
}

func TestEvaluate_CollectionLoopRebindsNotMerges(t *testing.T) {
	eng := New(Config{Blocks: testRegistry()})
	ec := newContext()
	ec.Vars["x"] = "before"

	node := &step.Node{
		ID: "each", Type: "t.each",
		Params: map[string]step.Input{
			"items": lit([]any{map[string]any{"k": 1}, map[string]any{"j": 2}}),
			"as":    lit("x"),
		},
		Slots: map[string][]*step.Node{
			step.SlotDo: {
				{ID: "read", Type: "t.read", Params: map[string]step.Input{"name": lit("x")}},
			},
		},
	}
	if _, err := eng.Evaluate(context.Background(), ec, node); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	last, ok := ec.Vars["x"].(map[string]any)
	if !ok {
		t.Fatalf("x = %T, want map", ec.Vars["x"])
	}
	if _, merged := last["k"]; merged {
		t.Error("binding was merged across iterations; each iteration must overwrite")
	}
}
