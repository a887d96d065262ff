package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "cases[0].steps[2].with")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile performs the full 3-phase validation pipeline on a suite file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules, block catalog checks when reg != nil)
func ValidateFile(path string, reg *blocks.Registry) (*Document, []*ValidationError) {
	var allErrors []*ValidationError

	doc, err := LoadFile(path)
	if err != nil {
		allErrors = append(allErrors, &ValidationError{
			Phase:    "structural",
			Path:     "",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, allErrors
	}

	allErrors = append(allErrors, validateSemantic(doc)...)

	baseDir := ""
	if path != "" {
		baseDir = filepath.Dir(path)
	}
	allErrors = append(allErrors, validateDomainWithPath(doc, reg, baseDir)...)

	if len(allErrors) > 0 {
		return doc, allErrors
	}
	return doc, nil
}

// validateSemantic validates the suite document against the JSON Schema.
func validateSemantic(doc *Document) []*ValidationError {
	data, err := json.Marshal(doc)
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Path:     "",
			Message:  fmt.Sprintf("marshal for schema validation: %v", err),
			Severity: "error",
		}}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Path:     "",
			Message:  fmt.Sprintf("generate schema: %v", err),
			Severity: "error",
		}}
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Path:     "",
			Message:  fmt.Sprintf("unmarshal schema: %v", err),
			Severity: "error",
		}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("suite-v0.json", schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Path:     "",
			Message:  fmt.Sprintf("add schema resource: %v", err),
			Severity: "error",
		}}
	}

	sch, err := c.Compile("suite-v0.json")
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Path:     "",
			Message:  fmt.Sprintf("compile schema: %v", err),
			Severity: "error",
		}}
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Path:     "",
			Message:  fmt.Sprintf("unmarshal document: %v", err),
			Severity: "error",
		}}
	}

	if err := sch.Validate(generic); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				instancePath := strings.Join(cause.InstanceLocation, "/")
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     instancePath,
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     "",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation. A nil registry
// skips block catalog checks (unknown blocks, slot support, required inputs)
// so that documents can be linted before providers are loaded.
func ValidateDomain(doc *Document, reg *blocks.Registry) []*ValidationError {
	return validateDomainWithPath(doc, reg, "")
}

// validateDomainWithPath extends ValidateDomain with path-aware checks
// (data files resolved relative to the suite file).
func validateDomainWithPath(doc *Document, reg *blocks.Registry, baseDir string) []*ValidationError {
	var errs []*ValidationError

	if doc.APIVersion != APIVersion {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "apiVersion",
			Message:  fmt.Sprintf("unrecognized apiVersion %q, expected %q", doc.APIVersion, APIVersion),
			Severity: "error",
		})
	}
	if doc.Kind != Kind {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "kind",
			Message:  fmt.Sprintf("unrecognized kind %q, expected %q", doc.Kind, Kind),
			Severity: "error",
		})
	}

	if doc.Suite.Name == "" {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "suite.name",
			Message:  "suite requires a name",
			Severity: "error",
		})
	}

	if doc.Suite.Defaults != nil && doc.Suite.Defaults.Timeout != "" {
		if _, err := time.ParseDuration(doc.Suite.Defaults.Timeout); err != nil {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     "suite.defaults.timeout",
				Message:  fmt.Sprintf("invalid timeout %q: %v", doc.Suite.Defaults.Timeout, err),
				Severity: "error",
			})
		}
	}

	if len(doc.Cases) == 0 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "cases",
			Message:  "suite must contain at least one case",
			Severity: "error",
		})
	}

	errs = append(errs, validateProcedures(doc, reg)...)

	seen := make(map[string]int)
	for i, c := range doc.Cases {
		casePath := fmt.Sprintf("cases[%d]", i)
		if c.Name == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     casePath + ".name",
				Message:  "case requires a name",
				Severity: "error",
			})
		} else if prev, ok := seen[c.Name]; ok {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     casePath + ".name",
				Message:  fmt.Sprintf("duplicate case name %q (first at cases[%d])", c.Name, prev),
				Severity: "error",
			})
		} else {
			seen[c.Name] = i
		}

		if c.Timeout != "" {
			if _, err := time.ParseDuration(c.Timeout); err != nil {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     casePath + ".timeout",
					Message:  fmt.Sprintf("invalid timeout %q: %v", c.Timeout, err),
					Severity: "error",
				})
			}
		}

		errs = append(errs, validateDataSource(c.Data, casePath+".data", baseDir)...)

		if len(c.Steps) == 0 {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     casePath + ".steps",
				Message:  fmt.Sprintf("case %q has no steps", c.Name),
				Severity: "error",
			})
		}

		stepIDs := make(map[string]string)
		errs = append(errs, validateSteps(c.Steps, casePath+".steps", reg, stepIDs)...)
	}

	return errs
}

func validateDataSource(ds *DataSource, path, baseDir string) []*ValidationError {
	if ds == nil {
		return nil
	}
	var errs []*ValidationError
	switch {
	case ds.File != "" && len(ds.Rows) > 0:
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  "data source must set either 'file' or 'rows', not both",
			Severity: "error",
		})
	case ds.File == "" && len(ds.Rows) == 0:
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  "data source must set 'file' or 'rows'",
			Severity: "error",
		})
	case ds.File != "" && baseDir != "":
		resolved := ds.File
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		if _, err := os.Stat(resolved); err != nil {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".file",
				Message:  fmt.Sprintf("data file %q not found", ds.File),
				Severity: "error",
			})
		}
	}
	return errs
}

func validateProcedures(doc *Document, reg *blocks.Registry) []*ValidationError {
	var errs []*ValidationError
	seen := make(map[string]int)
	for i, p := range doc.Procedures {
		procPath := fmt.Sprintf("procedures[%d]", i)
		if p.Name == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     procPath + ".name",
				Message:  "procedure requires a name",
				Severity: "error",
			})
		} else if prev, ok := seen[p.Name]; ok {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     procPath + ".name",
				Message:  fmt.Sprintf("duplicate procedure name %q (first at procedures[%d])", p.Name, prev),
				Severity: "error",
			})
		} else {
			seen[p.Name] = i
		}

		paramNames := make(map[string]bool)
		for j, param := range p.Params {
			if param.Name == "" {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     fmt.Sprintf("%s.params[%d]", procPath, j),
					Message:  "parameter requires a name",
					Severity: "error",
				})
				continue
			}
			if paramNames[param.Name] {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     fmt.Sprintf("%s.params[%d]", procPath, j),
					Message:  fmt.Sprintf("duplicate parameter %q in procedure %q", param.Name, p.Name),
					Severity: "error",
				})
			}
			paramNames[param.Name] = true
		}

		if len(p.Body) == 0 {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     procPath + ".body",
				Message:  fmt.Sprintf("procedure %q has an empty body", p.Name),
				Severity: "warning",
			})
		}
		stepIDs := make(map[string]string)
		errs = append(errs, validateSteps(p.Body, procPath+".body", reg, stepIDs)...)
	}
	return errs
}

// validateSteps walks a statement list recursively, checking each step
// against the block catalog and collecting explicit-ID duplicates.
func validateSteps(defs []StepDef, path string, reg *blocks.Registry, stepIDs map[string]string) []*ValidationError {
	var errs []*ValidationError
	for i, def := range defs {
		stepPath := fmt.Sprintf("%s[%d]", path, i)

		if def.Block == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     stepPath + ".block",
				Message:  "step requires a block",
				Severity: "error",
			})
			continue
		}

		if def.ID != "" {
			if prev, ok := stepIDs[def.ID]; ok {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     stepPath + ".id",
					Message:  fmt.Sprintf("duplicate step ID %q (first at %s)", def.ID, prev),
					Severity: "error",
				})
			} else {
				stepIDs[def.ID] = stepPath
			}
		}

		errs = append(errs, validateStepAgainstCatalog(def, stepPath, reg, true)...)
		errs = append(errs, validatePatternParams(def, stepPath)...)

		for _, slot := range slotNames {
			children := def.slot(slot)
			if len(children) > 0 {
				errs = append(errs, validateSteps(children, stepPath+"."+slot, reg, stepIDs)...)
			}
		}

		errs = append(errs, validateNestedParams(def, stepPath, reg)...)
	}
	return errs
}

func validateNestedParams(def StepDef, stepPath string, reg *blocks.Registry) []*ValidationError {
	var errs []*ValidationError
	for name, raw := range def.With {
		paramPath := stepPath + ".with." + name
		nestedDef, nested, err := nestedStepDef(raw)
		if err != nil {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     paramPath,
				Message:  err.Error(),
				Severity: "error",
			})
			continue
		}
		if !nested {
			continue
		}
		errs = append(errs, validateStepAgainstCatalog(nestedDef, paramPath, reg, false)...)
		errs = append(errs, validateNestedParams(nestedDef, paramPath, reg)...)
	}
	return errs
}

// validateStepAgainstCatalog checks one step against its block descriptor.
// statement says whether the step sits in a statement slot (as opposed to a
// nested value position).
func validateStepAgainstCatalog(def StepDef, stepPath string, reg *blocks.Registry, statement bool) []*ValidationError {
	if reg == nil {
		return nil
	}
	d, ok := reg.Lookup(def.Block)
	if !ok {
		return []*ValidationError{{
			Phase:    "domain",
			Path:     stepPath + ".block",
			Message:  fmt.Sprintf("unknown block %q", def.Block),
			Severity: "error",
		}}
	}

	var errs []*ValidationError
	if !statement && d.Statement && d.Output == "" {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     stepPath,
			Message:  fmt.Sprintf("block %q produces no value and cannot be nested", def.Block),
			Severity: "error",
		})
	}
	if statement && !d.Statement {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     stepPath,
			Message:  fmt.Sprintf("value block %q in statement position; its result is discarded", def.Block),
			Severity: "warning",
		})
	}

	declaredSlots := make(map[string]bool)
	for _, name := range d.SlotNames() {
		declaredSlots[name] = true
	}
	for _, slot := range slotNames {
		if len(def.slot(slot)) > 0 && !declaredSlots[slot] {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     stepPath + "." + slot,
				Message:  fmt.Sprintf("block %q does not accept a %q slot", def.Block, slot),
				Severity: "error",
			})
		}
	}

	for _, in := range d.Inputs {
		if in.Kind == blocks.InputSlot || !in.Required || in.Default != nil {
			continue
		}
		if _, ok := def.With[in.Name]; !ok {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     stepPath + ".with",
				Message:  fmt.Sprintf("block %q requires input %q", def.Block, in.Name),
				Severity: "error",
			})
		}
	}
	return errs
}

// validatePatternParams compiles regex-valued params of the matching blocks
// so bad patterns surface at validation time instead of mid-run. Params that
// contain placeholders are skipped; they resolve at runtime.
func validatePatternParams(def StepDef, stepPath string) []*ValidationError {
	pattern, ok := regexParam(def)
	if !ok {
		return nil
	}
	if strings.Contains(pattern, "${") {
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return []*ValidationError{{
			Phase:    "domain",
			Path:     stepPath + ".with",
			Message:  fmt.Sprintf("invalid regex %q: %v", pattern, err),
			Severity: "error",
		}}
	}
	return nil
}

func regexParam(def StepDef) (string, bool) {
	switch def.Block {
	case "assert.matches":
		if v, ok := def.With["pattern"].(string); ok {
			return v, true
		}
	case "value.compare":
		if op, _ := def.With["op"].(string); op == "matches" {
			if v, ok := def.With["right"].(string); ok {
				return v, true
			}
		}
	}
	return "", false
}
