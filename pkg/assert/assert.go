// Package assert implements the dual-policy assertion subsystem: hard
// failures abort the current statement list immediately, soft failures are
// collected on the execution context and flushed into one aggregate at the
// test-case boundary.
package assert

import (
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

// Details carries the origin of an assertion for failure records.
type Details struct {
	StepID    string
	BlockType string
	Expected  any
	Actual    any
}

// HardError is an immediate assertion failure. The interpreter treats it
// like any other step failure: remaining siblings in the statement list do
// not run.
type HardError struct {
	Message string
	Details Details
}

func (e *HardError) Error() string {
	return fmt.Sprintf("assertion failed: %s", e.Message)
}

// AggregateError is the flushed soft-assertion accumulator: one failure
// enumerating every collected entry.
type AggregateError struct {
	Failures []blocks.SoftFailure
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d soft assertion failure(s):", len(e.Failures))
	for i, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %d) %s", i+1, f.Message)
	}
	return b.String()
}

// Check applies the assertion policy to an evaluated condition.
//
// A passing condition is a no-op. A failing condition in soft mode appends
// a SoftFailure to the context and logs a warning; execution continues. A
// failing condition in hard mode returns a HardError.
func Check(ec *blocks.ExecContext, ok bool, message string, d Details) error {
	if ok {
		return nil
	}

	if ec.Soft {
		ec.SoftFailures = append(ec.SoftFailures, blocks.SoftFailure{
			Message:   message,
			StepID:    d.StepID,
			BlockType: d.BlockType,
			Expected:  d.Expected,
			Actual:    d.Actual,
			At:        time.Now(),
		})
		if ec.Logger != nil {
			ec.Logger.Warn("soft assertion failed",
				"step", d.StepID,
				"message", message)
		}
		return nil
	}

	return &HardError{Message: message, Details: d}
}

// Flush drains the soft-assertion accumulator. A non-empty accumulator
// becomes one AggregateError; an empty one returns nil. A second flush on
// the same context returns nil since the list is already drained.
func Flush(ec *blocks.ExecContext) error {
	if len(ec.SoftFailures) == 0 {
		return nil
	}
	failures := ec.SoftFailures
	ec.SoftFailures = nil
	return &AggregateError{Failures: failures}
}
