package schema

import (
	"strings"
	"testing"

	"github.com/ormasoftchile/tessera/pkg/step"
)

func TestStepsPositionalIDs(t *testing.T) {
	defs := []StepDef{
		{Block: "util.log", With: map[string]any{"message": "a"}},
		{Block: "flow.if", With: map[string]any{"condition": "true"},
			Do:   []StepDef{{Block: "util.log"}, {Block: "util.log"}},
			Else: []StepDef{{Block: "util.log"}},
		},
	}
	nodes, err := Steps(defs)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got := nodes[0].ID; got != "0" {
		t.Errorf("first ID = %q, want 0", got)
	}
	branch := nodes[1]
	if branch.ID != "1" {
		t.Errorf("branch ID = %q, want 1", branch.ID)
	}
	if got := branch.Slots[step.SlotDo][1].ID; got != "1.do.1" {
		t.Errorf("do child ID = %q, want 1.do.1", got)
	}
	if got := branch.Slots[step.SlotElse][0].ID; got != "1.else.0" {
		t.Errorf("else child ID = %q, want 1.else.0", got)
	}
}

func TestStepsExplicitIDPrefixesChildren(t *testing.T) {
	defs := []StepDef{
		{ID: "retry", Block: "flow.repeat", With: map[string]any{"times": 2},
			Do: []StepDef{{Block: "util.log"}},
		},
	}
	nodes, err := Steps(defs)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if nodes[0].ID != "retry" {
		t.Errorf("ID = %q, want retry", nodes[0].ID)
	}
	if got := nodes[0].Slots[step.SlotDo][0].ID; got != "retry.do.0" {
		t.Errorf("child ID = %q, want retry.do.0", got)
	}
}

func TestStepsNestedBlockParam(t *testing.T) {
	defs := []StepDef{
		{Block: "assert.equals", With: map[string]any{
			"expected": 3,
			"actual": map[string]any{
				"block": "value.var",
				"with":  map[string]any{"name": "total"},
			},
		}},
	}
	nodes, err := Steps(defs)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	in, ok := nodes[0].Params["actual"].(step.Nested)
	if !ok {
		t.Fatalf("actual translated as %T, want step.Nested", nodes[0].Params["actual"])
	}
	if in.Node.Type != "value.var" {
		t.Errorf("nested type = %q", in.Node.Type)
	}
	if in.Node.ID != "0.actual" {
		t.Errorf("nested ID = %q, want 0.actual", in.Node.ID)
	}
	if lit, ok := nodes[0].Params["expected"].(step.Literal); !ok || lit.Value != 3 {
		t.Errorf("expected param = %#v, want literal 3", nodes[0].Params["expected"])
	}
}

func TestStepsPlainMapParamStaysLiteral(t *testing.T) {
	defs := []StepDef{
		{Block: "http.request", With: map[string]any{
			"headers": map[string]any{"Accept": "text/plain"},
			// block key holding a non-string stays data
			"body": map[string]any{"block": 7},
		}},
	}
	nodes, err := Steps(defs)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	lit, ok := nodes[0].Params["headers"].(step.Literal)
	if !ok {
		t.Fatalf("headers translated as %T, want literal", nodes[0].Params["headers"])
	}
	if m := lit.Value.(map[string]any); m["Accept"] != "text/plain" {
		t.Errorf("headers literal = %#v", lit.Value)
	}
	if _, ok := nodes[0].Params["body"].(step.Literal); !ok {
		t.Errorf("body translated as %T, want literal", nodes[0].Params["body"])
	}
}

func TestStepsRejectsSlotInsideNestedBlock(t *testing.T) {
	defs := []StepDef{
		{Block: "util.log", With: map[string]any{
			"message": map[string]any{
				"block": "flow.if",
				"do":    []any{map[string]any{"block": "util.log"}},
			},
		}},
	}
	_, err := Steps(defs)
	if err == nil || !strings.Contains(err.Error(), "statement slots") {
		t.Fatalf("err = %v, want slot rejection", err)
	}
}

func TestStepsRejectsMissingBlock(t *testing.T) {
	_, err := Steps([]StepDef{{With: map[string]any{"x": 1}}})
	if err == nil || !strings.Contains(err.Error(), "missing block") {
		t.Fatalf("err = %v, want missing block", err)
	}
}

func TestProcedureTranslation(t *testing.T) {
	def := ProcedureDef{
		Name: "login",
		Params: []ParamDef{
			{Name: "user"},
			{Name: "retries", Type: "number", Default: 1},
		},
		Body: []StepDef{
			{Block: "util.log", With: map[string]any{"message": "as ${user}"}},
			{Block: "proc.return", With: map[string]any{"value": true}},
		},
	}
	proc, err := Procedure(def)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if proc.Name != "login" {
		t.Errorf("name = %q", proc.Name)
	}
	if len(proc.Params) != 2 || proc.Params[1].Default != 1 {
		t.Errorf("params = %#v", proc.Params)
	}
	if got := proc.Body[0].ID; got != "login.0" {
		t.Errorf("body ID = %q, want login.0", got)
	}
	if got := proc.Body[1].ID; got != "login.1" {
		t.Errorf("body ID = %q, want login.1", got)
	}
}

func TestProcedureRequiresName(t *testing.T) {
	if _, err := Procedure(ProcedureDef{Body: []StepDef{{Block: "util.log"}}}); err == nil {
		t.Fatal("expected error for unnamed procedure")
	}
}

// TestTranslateLoadedFixture exercises the whole path: strict load, then
// translation of every case and procedure.
func TestTranslateLoadedFixture(t *testing.T) {
	doc, err := LoadFile("../../testdata/valid/checkout.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, p := range doc.Procedures {
		if _, err := Procedure(p); err != nil {
			t.Errorf("procedure %s: %v", p.Name, err)
		}
	}
	for _, c := range doc.Cases {
		nodes, err := Steps(c.Steps)
		if err != nil {
			t.Errorf("case %s: %v", c.Name, err)
			continue
		}
		if len(nodes) != len(c.Steps) {
			t.Errorf("case %s: %d nodes from %d steps", c.Name, len(nodes), len(c.Steps))
		}
	}
}
