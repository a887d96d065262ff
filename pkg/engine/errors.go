package engine

import "fmt"

// UnknownBlockTypeError reports a step whose type has no registered
// descriptor. No executor runs for such a step.
type UnknownBlockTypeError struct {
	Type   string
	StepID string
}

func (e *UnknownBlockTypeError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("step %s: unknown block type %q", e.StepID, e.Type)
	}
	return fmt.Sprintf("unknown block type %q", e.Type)
}

// LeafError wraps a failure from a leaf executor, preserving the underlying
// driver or I/O error.
type LeafError struct {
	StepID    string
	BlockType string
	Err       error
}

func (e *LeafError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.StepID, e.BlockType, e.Err)
}

func (e *LeafError) Unwrap() error {
	return e.Err
}
