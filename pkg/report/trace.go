package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/governance"
)

// Trace event types, one per run/case/step transition.
const (
	EventRunStarted   = "run_started"
	EventCaseStarted  = "case_started"
	EventStepStarted  = "step_started"
	EventStepResult   = "step_result"
	EventCaseFinished = "case_finished"
	EventRunFinished  = "run_finished"
)

// TraceEvent is one JSONL line in the trace file. Fields beyond Type,
// Timestamp and RunID depend on the event type.
type TraceEvent struct {
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	RunID     string             `json:"run_id"`
	Suite     string             `json:"suite,omitempty"`   // run_started
	Case      string             `json:"case,omitempty"`    // case and step events
	StepID    string             `json:"step_id,omitempty"` // step_started
	Block     string             `json:"block,omitempty"`   // step_started
	Step      *blocks.StepResult `json:"step,omitempty"`    // step_result
	Result    *TestResult        `json:"result,omitempty"`  // case_finished
	Summary   *Summary           `json:"summary,omitempty"` // run_finished
}

// TraceWriter appends run events to a JSONL trace file. Redaction rules
// are applied to recorded outputs before anything reaches disk. Safe for
// concurrent use; runner workers share one writer.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
	runID  string
	redact []*governance.CompiledRedaction
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path, runID string, redact []*governance.CompiledRedaction) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
		runID:  runID,
		redact: redact,
	}, nil
}

// RunStarted records the start of a suite run.
func (tw *TraceWriter) RunStarted(suite string) error {
	return tw.write(TraceEvent{Type: EventRunStarted, Suite: suite})
}

// CaseStarted records the start of one test-case execution.
func (tw *TraceWriter) CaseStarted(caseName string) error {
	return tw.write(TraceEvent{Type: EventCaseStarted, Case: caseName})
}

// StepStarted records a leaf step about to execute.
func (tw *TraceWriter) StepStarted(caseName, stepID, block string) error {
	return tw.write(TraceEvent{Type: EventStepStarted, Case: caseName, StepID: stepID, Block: block})
}

// StepResult records a finished leaf step.
func (tw *TraceWriter) StepResult(caseName string, res *blocks.StepResult) error {
	return tw.write(TraceEvent{Type: EventStepResult, Case: caseName, Step: tw.redactStep(res)})
}

// CaseFinished records a completed test-case result, step detail included.
func (tw *TraceWriter) CaseFinished(res *TestResult) error {
	return tw.write(TraceEvent{Type: EventCaseFinished, Case: res.Case, Result: tw.redactResult(res)})
}

// RunFinished records the final summary.
func (tw *TraceWriter) RunFinished(sum Summary) error {
	return tw.write(TraceEvent{Type: EventRunFinished, Summary: &sum})
}

// write stamps, encodes and flushes one event. Flush and sync at event
// boundaries so a crashed run leaves a readable trace.
func (tw *TraceWriter) write(event TraceEvent) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	event.Timestamp = time.Now()
	event.RunID = tw.runID
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}

func (tw *TraceWriter) redactStep(res *blocks.StepResult) *blocks.StepResult {
	if len(tw.redact) == 0 || res == nil {
		return res
	}
	c := *res
	c.Output = redactValue(c.Output, tw.redact)
	c.Error = governance.RedactOutput(c.Error, tw.redact)
	return &c
}

func (tw *TraceWriter) redactResult(res *TestResult) *TestResult {
	if len(tw.redact) == 0 || res == nil {
		return res
	}
	c := *res
	c.Error = governance.RedactOutput(c.Error, tw.redact)
	if len(res.Steps) > 0 {
		c.Steps = make([]blocks.StepResult, len(res.Steps))
		for i := range res.Steps {
			c.Steps[i] = *tw.redactStep(&res.Steps[i])
		}
	}
	if len(res.SoftFailures) > 0 {
		c.SoftFailures = make([]blocks.SoftFailure, len(res.SoftFailures))
		for i, sf := range res.SoftFailures {
			sf.Message = governance.RedactOutput(sf.Message, tw.redact)
			sf.Expected = redactValue(sf.Expected, tw.redact)
			sf.Actual = redactValue(sf.Actual, tw.redact)
			c.SoftFailures[i] = sf
		}
	}
	return &c
}

// redactValue applies redaction rules to every string reachable from v.
// Non-string scalars pass through untouched.
func redactValue(v any, rules []*governance.CompiledRedaction) any {
	switch t := v.(type) {
	case string:
		return governance.RedactOutput(t, rules)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = redactValue(el, rules)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = redactValue(el, rules)
		}
		return out
	default:
		return v
	}
}

// ReadTrace loads every event from a JSONL trace file, in order.
func ReadTrace(path string) ([]TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	var events []TraceEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev TraceEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return events, nil
}
