// Package schema defines the Go struct types for the tessera suite YAML
// schema, strict parsing, and translation into the interpreter's step
// trees.
package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// APIVersion is the document version this build reads and writes.
	APIVersion = "tessera/v0"
	// Kind is the only document kind this build accepts.
	Kind = "TestSuite"
)

// Document is the top-level suite file: shared variables and procedures
// plus the test cases.
type Document struct {
	APIVersion string         `yaml:"apiVersion" json:"apiVersion" jsonschema:"required,enum=tessera/v0"`
	Kind       string         `yaml:"kind"       json:"kind"       jsonschema:"required,enum=TestSuite"`
	Suite      Suite          `yaml:"suite"      json:"suite"      jsonschema:"required"`
	Procedures []ProcedureDef `yaml:"procedures,omitempty" json:"procedures,omitempty"`
	Cases      []Case         `yaml:"cases,omitempty" json:"cases,omitempty"`
}

// Suite carries suite-wide metadata and defaults.
type Suite struct {
	Name        string         `yaml:"name"                  json:"name" jsonschema:"required"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string       `yaml:"tags,omitempty"        json:"tags,omitempty"`
	Vars        map[string]any `yaml:"vars,omitempty"        json:"vars,omitempty"`
	Defaults    *Defaults      `yaml:"defaults,omitempty"    json:"defaults,omitempty"`
}

// Defaults are execution settings applied to every case unless overridden.
type Defaults struct {
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
}

// Case is one test case: a statement list plus optional data-driven rows.
type Case struct {
	Name string   `yaml:"name"           json:"name" jsonschema:"required"`
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Skip marks the case as skipped without running it; the value is the
	// reason shown in reports.
	Skip string `yaml:"skip,omitempty" json:"skip,omitempty"`

	// SoftAssertions starts the case in soft-assertion mode.
	SoftAssertions bool `yaml:"soft_assertions,omitempty" json:"soft_assertions,omitempty"`

	Timeout string         `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
	Data    *DataSource    `yaml:"data,omitempty"    json:"data,omitempty"`
	Vars    map[string]any `yaml:"vars,omitempty"    json:"vars,omitempty"`
	Steps   []StepDef      `yaml:"steps"             json:"steps" jsonschema:"required"`
}

// DataSource feeds data-driven iteration: either a file (csv, yaml, json)
// or inline rows, not both.
type DataSource struct {
	File string           `yaml:"file,omitempty" json:"file,omitempty"`
	Rows []map[string]any `yaml:"rows,omitempty" json:"rows,omitempty"`
}

// StepDef is one block instantiation in document form. Statement slots
// (do, else, try, catch, body) hold child statement lists; with holds
// params whose values are literals or nested value blocks, recognized by
// their own block key.
type StepDef struct {
	ID    string         `yaml:"id,omitempty" json:"id,omitempty"`
	Block string         `yaml:"block"        json:"block" jsonschema:"required"`
	With  map[string]any `yaml:"with,omitempty" json:"with,omitempty"`

	Do    []StepDef `yaml:"do,omitempty"    json:"do,omitempty"`
	Else  []StepDef `yaml:"else,omitempty"  json:"else,omitempty"`
	Try   []StepDef `yaml:"try,omitempty"   json:"try,omitempty"`
	Catch []StepDef `yaml:"catch,omitempty" json:"catch,omitempty"`
	Body  []StepDef `yaml:"body,omitempty"  json:"body,omitempty"`
}

// ProcedureDef declares a reusable procedure at suite level.
type ProcedureDef struct {
	Name   string     `yaml:"name"             json:"name" jsonschema:"required"`
	Params []ParamDef `yaml:"params,omitempty" json:"params,omitempty"`
	Body   []StepDef  `yaml:"body"             json:"body" jsonschema:"required"`
}

// ParamDef declares one procedure parameter.
type ParamDef struct {
	Name    string `yaml:"name"              json:"name" jsonschema:"required"`
	Type    string `yaml:"type,omitempty"    json:"type,omitempty" jsonschema:"enum=string,enum=number,enum=bool,enum=any"`
	Default any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// LoadFile reads and parses a suite YAML file with strict unknown-field
// rejection.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open suite: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a suite document from an io.Reader with strict unknown-field
// rejection (yaml.v3 KnownFields).
func Load(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode suite: %w", err)
	}
	return &doc, nil
}
