package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ormasoftchile/tessera/pkg/step"
)

// slotNames are the StepDef fields that hold child statement lists, in
// document order.
var slotNames = []string{step.SlotDo, step.SlotElse, step.SlotTry, step.SlotCatch, step.SlotBody}

// nestedKeys are the keys a nested value-block mapping may carry. Nested
// blocks are value producers and have no statement slots.
var nestedKeys = map[string]bool{"id": true, "block": true, "with": true}

// Steps translates a case's statement list into interpreter nodes.
// Generated IDs encode position: "1", "1.do.0", "1.do.0.else.2". Explicit
// IDs replace the generated one for that node and prefix its descendants.
func Steps(defs []StepDef) ([]*step.Node, error) {
	return translateList(defs, "")
}

// Procedure translates a procedure declaration. Body step IDs are prefixed
// with the procedure name.
func Procedure(def ProcedureDef) (*step.Procedure, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("procedure without a name")
	}
	body, err := translateList(def.Body, def.Name)
	if err != nil {
		return nil, fmt.Errorf("procedure %s: %w", def.Name, err)
	}
	params := make([]step.Param, len(def.Params))
	for i, p := range def.Params {
		params[i] = step.Param{Name: p.Name, Type: p.Type, Default: p.Default}
	}
	return &step.Procedure{Name: def.Name, Params: params, Body: body}, nil
}

func translateList(defs []StepDef, prefix string) ([]*step.Node, error) {
	nodes := make([]*step.Node, 0, len(defs))
	for i, def := range defs {
		id := joinID(prefix, strconv.Itoa(i))
		node, err := translateStep(def, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func translateStep(def StepDef, genID string) (*step.Node, error) {
	if def.Block == "" {
		return nil, fmt.Errorf("step %s: missing block", genID)
	}
	id := genID
	if def.ID != "" {
		id = def.ID
	}
	node := &step.Node{ID: id, Type: def.Block}

	if len(def.With) > 0 {
		node.Params = make(map[string]step.Input, len(def.With))
		for name, raw := range def.With {
			in, err := translateParam(raw, id+"."+name)
			if err != nil {
				return nil, fmt.Errorf("step %s: param %s: %w", id, name, err)
			}
			node.Params[name] = in
		}
	}

	for _, slot := range slotNames {
		children := def.slot(slot)
		if len(children) == 0 {
			continue
		}
		translated, err := translateList(children, id+"."+slot)
		if err != nil {
			return nil, err
		}
		if node.Slots == nil {
			node.Slots = make(map[string][]*step.Node)
		}
		node.Slots[slot] = translated
	}
	return node, nil
}

// translateParam turns a document param value into a step input. A mapping
// with a string-valued block key is a nested value step; everything else is
// a literal.
func translateParam(raw any, nestedID string) (step.Input, error) {
	def, nested, err := nestedStepDef(raw)
	if err != nil {
		return nil, err
	}
	if !nested {
		return step.Literal{Value: raw}, nil
	}
	node, err := translateStep(def, nestedID)
	if err != nil {
		return nil, err
	}
	return step.Nested{Node: node}, nil
}

// nestedStepDef reports whether raw is a nested value-block mapping and
// converts it. A mapping qualifies when its block key holds a string; it
// must then carry only id/block/with keys.
func nestedStepDef(raw any) (StepDef, bool, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return StepDef{}, false, nil
	}
	blockType, ok := m["block"].(string)
	if !ok {
		return StepDef{}, false, nil
	}

	var extras []string
	for key := range m {
		if !nestedKeys[key] {
			extras = append(extras, key)
		}
	}
	if len(extras) > 0 {
		sort.Strings(extras)
		return StepDef{}, false, fmt.Errorf(
			"nested block %q does not allow key %q (statement slots cannot nest)", blockType, strings.Join(extras, ", "))
	}

	def := StepDef{Block: blockType}
	if id, ok := m["id"].(string); ok {
		def.ID = id
	}
	if with, ok := m["with"]; ok {
		wm, ok := with.(map[string]any)
		if !ok {
			return StepDef{}, false, fmt.Errorf("nested block %q: with must be a mapping, got %T", blockType, with)
		}
		def.With = wm
	}
	return def, true, nil
}

func (d *StepDef) slot(name string) []StepDef {
	switch name {
	case step.SlotDo:
		return d.Do
	case step.SlotElse:
		return d.Else
	case step.SlotTry:
		return d.Try
	case step.SlotCatch:
		return d.Catch
	case step.SlotBody:
		return d.Body
	default:
		return nil
	}
}

func joinID(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}
