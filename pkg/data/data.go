// Package data loads row sets for data-driven test cases. A case bound to
// a data source runs once per row, with the row installed as the execution
// context's current data-row.
package data

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/tessera/pkg/schema"
)

// Row is one data-row binding set: column name to value. CSV cells stay
// strings; YAML and JSON rows keep their decoded types.
type Row = map[string]any

// Resolve returns the rows for a case's data source. Inline rows pass
// through; files are located relative to baseDir, then each searchPath in
// order. A nil source yields nil rows.
func Resolve(ds *schema.DataSource, baseDir string, searchPaths []string) ([]Row, error) {
	if ds == nil {
		return nil, nil
	}
	if len(ds.Rows) > 0 {
		rows := make([]Row, len(ds.Rows))
		for i, r := range ds.Rows {
			rows[i] = Row(r)
		}
		return rows, nil
	}

	path, err := Locate(ds.File, baseDir, searchPaths)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads rows from a CSV, YAML or JSON file, dispatching on the
// extension.
func LoadFile(path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".json":
		return loadJSON(path)
	default:
		return nil, fmt.Errorf("data file %q: unsupported extension (want .csv, .yaml, .yml or .json)", path)
	}
}

// Locate resolves a data file reference to an existing path: absolute
// paths pass through, relative ones are tried under baseDir and then each
// search path in order.
func Locate(file, baseDir string, searchPaths []string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	candidates := make([]string, 0, len(searchPaths)+1)
	if baseDir != "" {
		candidates = append(candidates, filepath.Join(baseDir, file))
	} else {
		candidates = append(candidates, file)
	}
	for _, dir := range searchPaths {
		candidates = append(candidates, filepath.Join(dir, file))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("data file %q not found (searched %s)", file, strings.Join(candidates, ", "))
}

// loadCSV reads a header row followed by data rows. Every cell stays a
// string; blocks compare loosely, so "42" still equals 42 downstream.
func loadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %q has no header row", path)
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func loadYAML(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	var rows []Row
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse yaml rows %q: %w", path, err)
	}
	return rows, nil
}

func loadJSON(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse json rows %q: %w", path, err)
	}
	return rows, nil
}
