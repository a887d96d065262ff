// Package report persists and renders run artifacts: the JSONL trace, the
// run manifest, console output, and JUnit XML. The runner produces the
// result model defined here; the TUI and serve mode consume it.
package report

import (
	"fmt"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

// Artifact file names inside a run directory.
const (
	TraceFile     = "trace.jsonl"
	ManifestFile  = "manifest.json"
	JUnitFile     = "junit.xml"
	ScreenshotDir = "screenshots"
)

// TestResult is the outcome of one test-case execution. A data-driven case
// produces one result per row, distinguished by Row.
type TestResult struct {
	Case         string               `json:"case"`
	Row          int                  `json:"row,omitempty"` // 1-based data-row index, 0 without a data source
	Status       blocks.Status        `json:"status"`
	Error        string               `json:"error,omitempty"`
	SkipReason   string               `json:"skip_reason,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	EndedAt      time.Time            `json:"ended_at"`
	Duration     time.Duration        `json:"duration_ns"`
	Steps        []blocks.StepResult  `json:"steps,omitempty"`
	SoftFailures []blocks.SoftFailure `json:"soft_failures,omitempty"`
}

// Name returns the display name, "case" or "case[row]" for data rows.
func (r *TestResult) Name() string {
	if r.Row > 0 {
		return fmt.Sprintf("%s[%d]", r.Case, r.Row)
	}
	return r.Case
}

// Ref returns the compact form stored in the run manifest. Step detail
// stays in the trace.
func (r *TestResult) Ref() CaseRef {
	return CaseRef{
		Case:       r.Case,
		Row:        r.Row,
		Status:     r.Status,
		Error:      r.Error,
		SkipReason: r.SkipReason,
		DurationMS: r.Duration.Milliseconds(),
	}
}

// CaseRef is a per-case summary line in the run manifest.
type CaseRef struct {
	Case       string        `json:"case"`
	Row        int           `json:"row,omitempty"`
	Status     blocks.Status `json:"status"`
	Error      string        `json:"error,omitempty"`
	SkipReason string        `json:"skip_reason,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// Name mirrors TestResult.Name for manifest rendering.
func (c *CaseRef) Name() string {
	if c.Row > 0 {
		return fmt.Sprintf("%s[%d]", c.Case, c.Row)
	}
	return c.Case
}

// Summary counts test results by status.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// Add counts one result.
func (s *Summary) Add(st blocks.Status) {
	s.Total++
	switch st {
	case blocks.StatusPassed:
		s.Passed++
	case blocks.StatusFailed:
		s.Failed++
	case blocks.StatusSkipped:
		s.Skipped++
	default:
		s.Errored++
	}
}

// OK reports whether the run had no failures and no errors.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Errored == 0
}

// Summarize folds a result list into a Summary.
func Summarize(results []TestResult) Summary {
	var s Summary
	for i := range results {
		s.Add(results[i].Status)
	}
	return s
}
