// Package replay re-executes a suite against the trace of an earlier run.
// Blocks that touch the outside world are answered from the recorded step
// outputs instead of performing live I/O; control flow, values and
// assertions recompute live, so a completed replay confirms the engine
// reproduces the recorded outcome from the same inputs.
package replay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/report"
)

// Recording is the replayable content of one run trace: per-case step
// results in evaluation order, plus the recorded case outcomes.
type Recording struct {
	RunID string
	Suite string // suite path as recorded

	steps   map[string][]blocks.StepResult
	results map[string]*report.TestResult
}

// LoadRecording reads a trace file into a Recording.
func LoadRecording(path string) (*Recording, error) {
	events, err := report.ReadTrace(path)
	if err != nil {
		return nil, err
	}

	rec := &Recording{
		steps:   make(map[string][]blocks.StepResult),
		results: make(map[string]*report.TestResult),
	}
	for _, ev := range events {
		if rec.RunID == "" {
			rec.RunID = ev.RunID
		}
		switch ev.Type {
		case report.EventRunStarted:
			rec.Suite = ev.Suite
		case report.EventStepResult:
			if ev.Step != nil {
				rec.steps[ev.Case] = append(rec.steps[ev.Case], *ev.Step)
			}
		case report.EventCaseFinished:
			if ev.Result != nil {
				rec.results[ev.Result.Name()] = ev.Result
			}
		}
	}
	if len(rec.steps) == 0 && len(rec.results) == 0 {
		return nil, fmt.Errorf("trace %s holds no recorded steps", path)
	}
	return rec, nil
}

// RecordedResult returns the recorded outcome for a case display name.
func (rec *Recording) RecordedResult(name string) (*report.TestResult, bool) {
	res, ok := rec.results[name]
	return res, ok
}

// SequenceError reports a replayed step diverging from the recorded step
// sequence, usually because control flow took a different path.
type SequenceError struct {
	Case     string
	WantID   string // empty when the recording is exhausted
	WantType string
	GotID    string
	GotType  string
}

func (e *SequenceError) Error() string {
	if e.WantID == "" {
		return fmt.Sprintf("replay: case %s: step %s (%s) has no recorded counterpart", e.Case, e.GotID, e.GotType)
	}
	return fmt.Sprintf("replay: case %s: step %s (%s) does not match recorded step %s (%s)",
		e.Case, e.GotID, e.GotType, e.WantID, e.WantType)
}

// Player answers intercepted block executions from the recording. One
// cursor per case display name; the lock keeps the cursor maps safe even
// though replays run sequentially.
type Player struct {
	mu       sync.Mutex
	queues   map[string][]blocks.StepResult
	pos      map[string]int
	failures map[string]*SequenceError
}

func (p *Player) exec(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.queues[ec.Case]
	i := p.pos[ec.Case]
	if i >= len(q) {
		return nil, p.fail(&SequenceError{Case: ec.Case, GotID: call.Step.ID, GotType: call.Step.Type})
	}
	next := q[i]
	p.pos[ec.Case] = i + 1

	if next.StepID != call.Step.ID || next.Type != call.Step.Type {
		return nil, p.fail(&SequenceError{
			Case: ec.Case, WantID: next.StepID, WantType: next.Type,
			GotID: call.Step.ID, GotType: call.Step.Type,
		})
	}
	if next.Status != blocks.StatusPassed {
		msg := next.Error
		if msg == "" {
			msg = "recorded failure"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return next.Output, nil
}

// fail records the first sequence divergence of a case. The caller holds
// the lock.
func (p *Player) fail(e *SequenceError) *SequenceError {
	if _, seen := p.failures[e.Case]; !seen {
		p.failures[e.Case] = e
	}
	return e
}

// SequenceFailure returns the first sequence divergence the case hit, or
// nil. The comparison consults this so a mismatch never passes for a
// faithfully reproduced failure.
func (p *Player) SequenceFailure(caseName string) *SequenceError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[caseName]
}

// Remaining returns how many recorded steps of a case the replay has not
// consumed. A nonzero count after a passed case means the replay took a
// shorter path than the recording.
func (p *Player) Remaining(caseName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[caseName]) - p.pos[caseName]
}

// replayed reports whether executions of a block type are answered from
// the recording: the live-I/O categories plus the time-dependent
// built-ins, so replays are deterministic and fast.
func replayed(blockType, category string) bool {
	switch category {
	case "web", "http":
		return true
	}
	switch blockType {
	case "util.exec", "util.sleep", "value.now":
		return true
	}
	return false
}

// Catalog builds the playback block registry over base. Intercepted types
// keep their descriptor but execute from the recording; recorded types the
// base catalog lacks (provider blocks) get a synthesized descriptor so a
// suite that used them still validates offline.
func (rec *Recording) Catalog(base *blocks.Registry) (*blocks.Registry, *Player) {
	p := &Player{
		queues:   make(map[string][]blocks.StepResult),
		pos:      make(map[string]int),
		failures: make(map[string]*SequenceError),
	}

	out := blocks.NewRegistry()
	intercepted := make(map[string]bool)
	for _, d := range base.All() {
		if !replayed(d.Type, d.Category) {
			out.Register(d)
			continue
		}
		pb := *d
		pb.Exec = p.exec
		out.Register(&pb)
		intercepted[d.Type] = true
	}

	for _, steps := range rec.steps {
		for _, s := range steps {
			if _, known := out.Lookup(s.Type); known {
				continue
			}
			out.Register(&blocks.Descriptor{
				Type:      s.Type,
				Category:  strings.SplitN(s.Type, ".", 2)[0],
				Summary:   "replayed from the recorded trace",
				Statement: true,
				Exec:      p.exec,
			})
			intercepted[s.Type] = true
		}
	}

	for name, steps := range rec.steps {
		for _, s := range steps {
			if intercepted[s.Type] {
				p.queues[name] = append(p.queues[name], s)
			}
		}
	}
	return out, p
}
