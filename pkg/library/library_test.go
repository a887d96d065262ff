package library

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ormasoftchile/tessera/pkg/assert"
	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/engine"
	"github.com/ormasoftchile/tessera/pkg/procedures"
	"github.com/ormasoftchile/tessera/pkg/step"
	"github.com/ormasoftchile/tessera/pkg/webdriver"
)

func testEnv(t *testing.T, opts Options) (*engine.Engine, *blocks.ExecContext) {
	t.Helper()
	reg := blocks.NewRegistry()
	Install(reg, opts)
	return engine.New(engine.Config{Blocks: reg}), blocks.NewExecContext(procedures.NewRegistry())
}

func lit(v any) step.Input { return step.Literal{Value: v} }

func nested(n *step.Node) step.Input { return step.Nested{Node: n} }

func node(id, typ string, params map[string]step.Input, slots map[string][]*step.Node) *step.Node {
	return &step.Node{ID: id, Type: typ, Params: params, Slots: slots}
}

func TestFlowIf_ExpressionCondition(t *testing.T) {
	eng, ec := testEnv(t, Options{})
	ec.Vars["status"] = "active"

	tree := node("if", "flow.if",
		map[string]step.Input{"condition": lit(`status == "active"`)},
		map[string][]*step.Node{
			step.SlotDo: {node("set", "value.set", map[string]step.Input{
				"name": lit("seen"), "value": lit("do"),
			}, nil)},
			step.SlotElse: {node("set2", "value.set", map[string]step.Input{
				"name": lit("seen"), "value": lit("else"),
			}, nil)},
		})

	if _, err := eng.Evaluate(context.Background(), ec, tree); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ec.Vars["seen"] != "do" {
		t.Errorf("seen = %v, want do", ec.Vars["seen"])
	}
}

func TestFlowIf_NestedCompareCondition(t *testing.T) {
	eng, ec := testEnv(t, Options{})
	ec.Vars["count"] = 7

	tree := node("if", "flow.if",
		map[string]step.Input{
			"condition": nested(node("cmp", "value.compare", map[string]step.Input{
				"left": nested(node("rd", "value.var", map[string]step.Input{"name": lit("count")}, nil)),
				"op":   lit(">"),
				"right": lit(5),
			}, nil)),
		},
		map[string][]*step.Node{
			step.SlotDo: {node("set", "value.set", map[string]step.Input{
				"name": lit("big"), "value": lit(true),
			}, nil)},
		})

	if _, err := eng.Evaluate(context.Background(), ec, tree); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ec.Vars["big"] != true {
		t.Error("do slot did not run for a true nested comparison")
	}
}

func TestFlowWhile_ReevaluatesCondition(t *testing.T) {
	eng, ec := testEnv(t, Options{})
	ec.Vars["n"] = 0

	// Increment n until the condition turns false. The condition must be
	// re-resolved every iteration or this would never terminate.
	tree := node("while", "flow.while",
		map[string]step.Input{
			"condition": lit("n < 3"),
			"max":       lit(10),
		},
		map[string][]*step.Node{
			step.SlotDo: {node("inc", "value.set", map[string]step.Input{
				"name": lit("n"),
				"value": nested(node("expr", "value.expr", map[string]step.Input{
					"expression": lit("n + 1"),
				}, nil)),
			}, nil)},
		})

	if _, err := eng.Evaluate(context.Background(), ec, tree); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if n := ec.Vars["n"]; n != 3 {
		t.Errorf("n = %v, want 3", n)
	}
}

func TestFlowWhile_MaxGuard(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	tree := node("while", "flow.while",
		map[string]step.Input{
			"condition": lit("true"),
			"max":       lit(2),
		},
		map[string][]*step.Node{
			step.SlotDo: {node("noop", "value.literal", map[string]step.Input{"value": lit(1)}, nil)},
		})

	_, err := eng.Evaluate(context.Background(), ec, tree)
	if err == nil {
		t.Fatal("unbounded while must fail at the max guard")
	}
	if !strings.Contains(err.Error(), "max iterations") {
		t.Errorf("err = %v", err)
	}
}

func TestFlowForEach_BindsItems(t *testing.T) {
	eng, ec := testEnv(t, Options{})
	ec.Vars["total"] = 0

	tree := node("each", "flow.for_each",
		map[string]step.Input{
			"items": lit([]any{1, 2, 3}),
			"as":    lit("n"),
		},
		map[string][]*step.Node{
			step.SlotDo: {node("add", "value.set", map[string]step.Input{
				"name": lit("total"),
				"value": nested(node("expr", "value.expr", map[string]step.Input{
					"expression": lit("total + n"),
				}, nil)),
			}, nil)},
		})

	if _, err := eng.Evaluate(context.Background(), ec, tree); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if total := ec.Vars["total"]; total != 6 {
		t.Errorf("total = %v, want 6", total)
	}
}

func TestFlowGroup_RunsChildrenInline(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	tree := node("grp", "flow.group", nil, map[string][]*step.Node{
		step.SlotDo: {
			node("a", "value.set", map[string]step.Input{"name": lit("a"), "value": lit(1)}, nil),
			node("b", "value.set", map[string]step.Input{"name": lit("b"), "value": lit(2)}, nil),
		},
	})
	if _, err := eng.Evaluate(context.Background(), ec, tree); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ec.Vars["a"] != 1 || ec.Vars["b"] != 2 {
		t.Errorf("vars after group: a=%v b=%v", ec.Vars["a"], ec.Vars["b"])
	}
}

func TestFlowFailAndSkip(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	_, err := eng.Evaluate(context.Background(), ec,
		node("f", "flow.fail", map[string]step.Input{"message": lit("deliberate")}, nil))
	if err == nil || !strings.Contains(err.Error(), "deliberate") {
		t.Errorf("flow.fail err = %v", err)
	}

	_, err = eng.Evaluate(context.Background(), ec,
		node("s", "flow.skip", map[string]step.Input{"reason": lit("env missing")}, nil))
	var skip *blocks.SkipError
	if !errors.As(err, &skip) {
		t.Fatalf("flow.skip err = %v, want SkipError", err)
	}
	if skip.Reason != "env missing" {
		t.Errorf("Reason = %q", skip.Reason)
	}
}

func TestProcBlocks_DefineCallReturn(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	define := node("def", "proc.define",
		map[string]step.Input{
			"name": lit("double"),
			"params": lit([]any{
				map[string]any{"name": "x", "type": "number"},
			}),
		},
		map[string][]*step.Node{
			step.SlotBody: {node("ret", "proc.return", map[string]step.Input{
				"value": nested(node("expr", "value.expr", map[string]step.Input{
					"expression": lit("x * 2"),
				}, nil)),
			}, nil)},
		})

	call := node("call", "proc.call_return",
		map[string]step.Input{
			"name": lit("double"),
			"args": lit(`{"x": 21}`),
			"into": lit("answer"),
		}, nil)

	if err := eng.RunSteps(context.Background(), ec, []*step.Node{define, call}); err != nil {
		t.Fatalf("RunSteps: %v", err)
	}
	if got := ec.Vars["answer"]; got != 42.0 {
		t.Errorf("answer = %v (%T), want 42", got, got)
	}
}

func TestProcBlocks_CallUnknown(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	_, err := eng.Evaluate(context.Background(), ec,
		node("c", "proc.call", map[string]step.Input{"name": lit("ghost")}, nil))
	var notFound *procedures.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestValueBlocks(t *testing.T) {
	eng, ec := testEnv(t, Options{})
	ec.Vars["user"] = map[string]any{"name": "alice", "roles": []any{"qa"}}
	ctx := context.Background()

	t.Run("literal", func(t *testing.T) {
		out, err := eng.Evaluate(ctx, ec, node("v", "value.literal",
			map[string]step.Input{"value": lit(3.5)}, nil))
		if err != nil || out != 3.5 {
			t.Errorf("out = %v, %v", out, err)
		}
	})

	t.Run("var path", func(t *testing.T) {
		out, err := eng.Evaluate(ctx, ec, node("v", "value.var",
			map[string]step.Input{"name": lit("user.name")}, nil))
		if err != nil || out != "alice" {
			t.Errorf("out = %v, %v", out, err)
		}
	})

	t.Run("var missing", func(t *testing.T) {
		_, err := eng.Evaluate(ctx, ec, node("v", "value.var",
			map[string]step.Input{"name": lit("ghost")}, nil))
		if err == nil {
			t.Error("missing variable without default must fail")
		}
	})

	t.Run("var default", func(t *testing.T) {
		out, err := eng.Evaluate(ctx, ec, node("v", "value.var",
			map[string]step.Input{"name": lit("ghost"), "default": lit("dflt")}, nil))
		if err != nil || out != "dflt" {
			t.Errorf("out = %v, %v", out, err)
		}
	})

	t.Run("template", func(t *testing.T) {
		out, err := eng.Evaluate(ctx, ec, node("v", "value.template",
			map[string]step.Input{"text": lit("hi ${user.name}")}, nil))
		if err != nil || out != "hi alice" {
			t.Errorf("out = %v, %v", out, err)
		}
	})

	t.Run("json_path", func(t *testing.T) {
		out, err := eng.Evaluate(ctx, ec, node("v", "value.json_path",
			map[string]step.Input{
				"source": lit(`{"items":[{"id":7}]}`),
				"path":   lit("$.items.0.id"),
			}, nil))
		if err != nil || out != 7.0 {
			t.Errorf("out = %v, %v", out, err)
		}
	})

	t.Run("len", func(t *testing.T) {
		out, err := eng.Evaluate(ctx, ec, node("v", "value.len",
			map[string]step.Input{"of": lit([]any{1, 2, 3})}, nil))
		if err != nil || out != 3 {
			t.Errorf("out = %v, %v", out, err)
		}
	})

	t.Run("compare matches", func(t *testing.T) {
		out, err := eng.Evaluate(ctx, ec, node("v", "value.compare",
			map[string]step.Input{
				"left":  lit("release-2.4"),
				"op":    lit("matches"),
				"right": lit(`^release-\d+\.\d+$`),
			}, nil))
		if err != nil || out != true {
			t.Errorf("out = %v, %v", out, err)
		}
	})

	t.Run("compare unknown op", func(t *testing.T) {
		_, err := eng.Evaluate(ctx, ec, node("v", "value.compare",
			map[string]step.Input{"left": lit(1), "op": lit("~="), "right": lit(2)}, nil))
		if err == nil {
			t.Error("unknown operator must fail")
		}
	})
}

func TestAssertBlocks_HardAndSoft(t *testing.T) {
	eng, ec := testEnv(t, Options{})
	ctx := context.Background()

	// Hard failure carries expected/actual details.
	_, err := eng.Evaluate(ctx, ec, node("a", "assert.equals",
		map[string]step.Input{"actual": lit("red"), "expected": lit("green")}, nil))
	var hard *assert.HardError
	if !errors.As(err, &hard) {
		t.Fatalf("err = %v, want HardError", err)
	}

	// Soft mode: the same assertion collects instead.
	steps := []*step.Node{
		node("soft", "assert.soft_mode", nil, nil),
		node("a1", "assert.equals", map[string]step.Input{
			"actual": lit("red"), "expected": lit("green"),
		}, nil),
		node("a2", "assert.contains", map[string]step.Input{
			"actual": lit("hello"), "expected": lit("xyz"),
		}, nil),
	}
	eng.Reset()
	if err := eng.RunSteps(ctx, ec, steps); err != nil {
		t.Fatalf("soft-mode run failed hard: %v", err)
	}
	if len(ec.SoftFailures) != 2 {
		t.Fatalf("collected %d soft failures, want 2", len(ec.SoftFailures))
	}
	if ec.SoftFailures[0].BlockType != "assert.equals" {
		t.Errorf("failure block type = %q", ec.SoftFailures[0].BlockType)
	}
}

func TestAssertMatches(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	out, err := eng.Evaluate(context.Background(), ec, node("a", "assert.matches",
		map[string]step.Input{"actual": lit("v1.2.3"), "pattern": lit(`^v\d+\.\d+\.\d+$`)}, nil))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.(map[string]any)["passed"] != true {
		t.Errorf("out = %v", out)
	}
}

func TestHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true,"version":"1.4.0"}`))
		case "/echo":
			body, _ := json.Marshal(map[string]any{
				"method":       r.Method,
				"content_type": r.Header.Get("Content-Type"),
				"auth":         r.Header.Get("Authorization"),
			})
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	eng, ec := testEnv(t, Options{HTTP: srv.Client()})
	ctx := context.Background()

	out, err := eng.Evaluate(ctx, ec, node("get", "http.get",
		map[string]step.Input{"url": lit(srv.URL + "/health")}, nil))
	if err != nil {
		t.Fatalf("http.get: %v", err)
	}
	resp := out.(map[string]any)
	if resp["status"] != 200 {
		t.Errorf("status = %v", resp["status"])
	}
	parsed, ok := resp["json"].(map[string]any)
	if !ok || parsed["version"] != "1.4.0" {
		t.Errorf("json = %v", resp["json"])
	}

	out, err = eng.Evaluate(ctx, ec, node("post", "http.request",
		map[string]step.Input{
			"method":  lit("POST"),
			"url":     lit(srv.URL + "/echo"),
			"headers": lit(map[string]any{"Authorization": "Bearer tok"}),
			"body":    lit(map[string]any{"k": "v"}),
		}, nil))
	if err != nil {
		t.Fatalf("http.request: %v", err)
	}
	echo := out.(map[string]any)["json"].(map[string]any)
	if echo["method"] != "POST" || echo["content_type"] != "application/json" || echo["auth"] != "Bearer tok" {
		t.Errorf("echo = %v", echo)
	}
}

func TestWebBlocks_DriveFakeSession(t *testing.T) {
	fake := &webdriver.Fake{
		TextFunc: func(by, selector string) (string, error) {
			return "Welcome, alice", nil
		},
	}
	eng, ec := testEnv(t, Options{})
	ec.Browser = fake
	ctx := context.Background()

	steps := []*step.Node{
		node("nav", "web.navigate", map[string]step.Input{"url": lit("https://app.test/login")}, nil),
		node("user", "web.type", map[string]step.Input{
			"selector": lit("#user"), "text": lit("alice"),
		}, nil),
		node("pass", "web.type", map[string]step.Input{
			"selector": lit("#pass"), "text": lit("hunter2"), "secret": lit(true),
		}, nil),
		node("submit", "web.click", map[string]step.Input{"selector": lit("css=#login-btn")}, nil),
		node("wait", "web.wait_for", map[string]step.Input{
			"selector": lit("#banner"), "timeout": lit("2s"),
		}, nil),
		node("check", "assert.contains", map[string]step.Input{
			"actual": nested(node("read", "web.read",
				map[string]step.Input{"selector": lit("#banner")}, nil)),
			"expected": lit("alice"),
		}, nil),
		node("bye", "web.close", nil, nil),
	}
	if err := eng.RunSteps(ctx, ec, steps); err != nil {
		t.Fatalf("RunSteps: %v", err)
	}

	wantCalls := []string{
		"navigate https://app.test/login",
		"send_keys css selector=#user",
		"send_keys css selector=#pass",
		"click css selector=#login-btn",
		"wait_for css selector=#banner",
		"text css selector=#banner",
		"close",
	}
	if len(fake.Calls) != len(wantCalls) {
		t.Fatalf("calls = %v", fake.Calls)
	}
	for i, want := range wantCalls {
		if fake.Calls[i] != want {
			t.Errorf("call %d = %q, want %q", i, fake.Calls[i], want)
		}
	}
	if ec.Browser != nil {
		t.Error("web.close must drop the session from the context")
	}

	// The secret text is masked in the recorded output.
	for _, r := range eng.Results() {
		if r.StepID == "pass" {
			if r.Output.(map[string]any)["text"] != maskedSecret {
				t.Errorf("secret output = %v", r.Output)
			}
		}
	}
}

func TestWebSession_RequiresEndpoint(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	_, err := eng.Evaluate(context.Background(), ec, node("s", "web.session", nil, nil))
	if err == nil || !strings.Contains(err.Error(), "no WebDriver endpoint") {
		t.Errorf("err = %v", err)
	}
}

func TestWebBlocks_RequireSession(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	_, err := eng.Evaluate(context.Background(), ec,
		node("c", "web.click", map[string]step.Input{"selector": lit("#x")}, nil))
	if err == nil || !strings.Contains(err.Error(), "no browser session") {
		t.Errorf("err = %v", err)
	}
}

func TestUtilExec_Gated(t *testing.T) {
	eng, ec := testEnv(t, Options{})

	_, err := eng.Evaluate(context.Background(), ec,
		node("x", "util.exec", map[string]step.Input{"command": lit("echo hi")}, nil))
	if err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("err = %v", err)
	}
}

func TestUtilExec_RunsWhenAllowed(t *testing.T) {
	eng, ec := testEnv(t, Options{AllowExec: true})

	out, err := eng.Evaluate(context.Background(), ec,
		node("x", "util.exec", map[string]step.Input{"command": lit("echo tessera")}, nil))
	if err != nil {
		t.Fatalf("util.exec: %v", err)
	}
	res := out.(map[string]any)
	if res["exit_code"] != 0 {
		t.Errorf("exit_code = %v", res["exit_code"])
	}
	if !strings.Contains(res["stdout"].(string), "tessera") {
		t.Errorf("stdout = %q", res["stdout"])
	}
}

func TestUtilExec_EnvFilter(t *testing.T) {
	t.Setenv("TESSERA_HIDDEN_SECRET", "do-not-print")
	filter := func(env []string) ([]string, []string) {
		var kept, blocked []string
		for _, e := range env {
			if strings.HasPrefix(e, "TESSERA_HIDDEN_") {
				blocked = append(blocked, strings.SplitN(e, "=", 2)[0])
				continue
			}
			kept = append(kept, e)
		}
		return kept, blocked
	}
	eng, ec := testEnv(t, Options{AllowExec: true, EnvFilter: filter})

	out, err := eng.Evaluate(context.Background(), ec,
		node("x", "util.exec", map[string]step.Input{"command": lit("env")}, nil))
	if err != nil {
		t.Fatalf("util.exec: %v", err)
	}
	stdout := out.(map[string]any)["stdout"].(string)
	if strings.Contains(stdout, "TESSERA_HIDDEN_SECRET") {
		t.Error("filtered variable leaked into the subprocess")
	}
}

func TestUtilSleep_Cancellable(t *testing.T) {
	eng, ec := testEnv(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Evaluate(ctx, ec,
		node("z", "util.sleep", map[string]step.Input{"duration": lit("10s")}, nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestInstall_CatalogComplete(t *testing.T) {
	reg := blocks.NewRegistry()
	Install(reg, Options{})

	want := []string{
		"flow.if", "flow.repeat", "flow.for_each", "flow.while", "flow.try",
		"flow.group", "flow.fail", "flow.skip",
		"proc.define", "proc.call", "proc.call_return", "proc.return",
		"value.literal", "value.var", "value.set", "value.template",
		"value.expr", "value.compare", "value.json_path", "value.len", "value.now",
		"assert.that", "assert.equals", "assert.contains", "assert.matches",
		"assert.soft_mode",
		"http.request", "http.get",
		"web.session", "web.navigate", "web.click", "web.type", "web.read",
		"web.attribute", "web.wait_for", "web.screenshot", "web.close",
		"util.log", "util.sleep", "util.exec",
	}
	for _, typ := range want {
		if _, ok := reg.Lookup(typ); !ok {
			t.Errorf("catalog is missing %s", typ)
		}
	}
	if reg.Len() != len(want) {
		t.Errorf("catalog has %d blocks, want %d", reg.Len(), len(want))
	}
}
