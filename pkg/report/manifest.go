package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Manifest records the metadata of one suite run. Written as manifest.json
// in the run directory after the run completes (or fails). Per-step detail
// lives in the trace, not here.
type Manifest struct {
	RunID       string    `json:"run_id"`
	Suite       string    `json:"suite"`
	SuiteName   string    `json:"suite_name,omitempty"`
	StartedAt   string    `json:"started_at"`
	EndedAt     string    `json:"ended_at"`
	Parallelism int       `json:"parallelism,omitempty"`
	Filter      string    `json:"filter,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Summary     Summary   `json:"summary"`
	Cases       []CaseRef `json:"cases"`
}

// NewManifest assembles a manifest from run metadata and results.
func NewManifest(runID, suitePath, suiteName string, started, ended time.Time, results []TestResult) *Manifest {
	m := &Manifest{
		RunID:     runID,
		Suite:     suitePath,
		SuiteName: suiteName,
		StartedAt: started.UTC().Format(time.RFC3339),
		EndedAt:   ended.UTC().Format(time.RFC3339),
		Summary:   Summarize(results),
	}
	for i := range results {
		m.Cases = append(m.Cases, results[i].Ref())
	}
	return m
}

// Write stores the manifest as manifest.json in the run directory.
func (m *Manifest) Write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads manifest.json from a run directory.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// LatestRun returns the run directory with the newest run ID under the
// artifact root. Run IDs sort chronologically by construction.
func LatestRun(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read artifact root: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs found under %s", root)
	}
	sort.Strings(runs)
	return filepath.Join(root, runs[len(runs)-1]), nil
}
