package blocks

import (
	"fmt"
	"time"
)

// SkipError marks a test case as intentionally skipped. The runner turns
// it into StatusSkipped instead of a failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	if e.Reason == "" {
		return "skipped"
	}
	return fmt.Sprintf("skipped: %s", e.Reason)
}

// Status is the outcome of one step or test case.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// StepResult records one leaf invocation. The interpreter appends a result
// for every leaf step it actually invokes; steps that only produce control
// signals are not recorded.
type StepResult struct {
	StepID    string        `json:"step_id"`
	Type      string        `json:"type"`
	Status    Status        `json:"status"`
	Output    any           `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Artifact  string        `json:"artifact,omitempty"` // failure screenshot path
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration_ns"`
}
