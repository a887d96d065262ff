package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)
	results := []TestResult{
		{Case: "a", Status: blocks.StatusPassed, Duration: 300 * time.Millisecond},
		{Case: "b", Row: 1, Status: blocks.StatusFailed, Error: "nope"},
	}

	m := NewManifest("20260825T153000-11223344", "suites/s.yaml", "Smoke",
		started, started.Add(2*time.Second), results)
	if err := m.Write(dir); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	loaded, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if loaded.RunID != m.RunID || loaded.SuiteName != "Smoke" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.StartedAt != "2026-08-25T15:30:00Z" {
		t.Errorf("started_at = %q", loaded.StartedAt)
	}
	if loaded.Summary != (Summary{Total: 2, Passed: 1, Failed: 1}) {
		t.Errorf("summary = %+v", loaded.Summary)
	}
	if len(loaded.Cases) != 2 || loaded.Cases[1].Name() != "b[1]" {
		t.Errorf("cases = %+v", loaded.Cases)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := LoadManifest(t.TempDir()); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestLatestRun(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{
		"20260825T100000-aaaaaaaa",
		"20260825T120000-bbbbbbbb",
		"20260825T110000-cccccccc",
	} {
		if err := os.Mkdir(filepath.Join(root, id), 0755); err != nil {
			t.Fatal(err)
		}
	}
	// Stray files are ignored.
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	dir, err := LatestRun(root)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if filepath.Base(dir) != "20260825T120000-bbbbbbbb" {
		t.Errorf("latest = %q", dir)
	}
}

func TestLatestRunEmpty(t *testing.T) {
	if _, err := LatestRun(t.TempDir()); err == nil {
		t.Fatal("expected error for empty artifact root")
	}
}
