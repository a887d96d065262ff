// Package engine implements the step interpreter: recursive evaluation of
// block trees, nested value resolution, dispatch through the block
// registry, and consumption of the control signals executors return.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ormasoftchile/tessera/pkg/assert"
	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/procedures"
	"github.com/ormasoftchile/tessera/pkg/step"
	"github.com/ormasoftchile/tessera/pkg/vars"
)

// Events receives step lifecycle notifications. Implementations must be
// fast; they run inline on the interpreter goroutine.
type Events interface {
	StepStarted(ec *blocks.ExecContext, node *step.Node)
	StepFinished(ec *blocks.ExecContext, res *blocks.StepResult)
}

// Gate runs before each statement in a list. The debugger uses it to pause;
// an error aborts the run.
type Gate func(ctx context.Context, ec *blocks.ExecContext, node *step.Node) error

// ArtifactHook captures a failure artifact for a failed leaf step and
// returns its path, or "" when nothing was captured.
type ArtifactHook func(ctx context.Context, ec *blocks.ExecContext, node *step.Node, d *blocks.Descriptor) string

// Config wires an engine.
type Config struct {
	Blocks        *blocks.Registry
	Events        Events
	Gate          Gate
	OnLeafFailure ArtifactHook
}

// Engine evaluates step trees for one test-case run. It is single-threaded:
// one engine, one goroutine, one ExecContext.
type Engine struct {
	cfg     Config
	results []blocks.StepResult
}

// New creates an engine. A nil Blocks registry is replaced with an empty
// one, in which every dispatch fails as an unknown block type.
func New(cfg Config) *Engine {
	if cfg.Blocks == nil {
		cfg.Blocks = blocks.NewRegistry()
	}
	return &Engine{cfg: cfg}
}

// Results returns the step results recorded so far, in execution order.
// Only leaf steps that actually invoked their executor are recorded;
// control-signal steps are not.
func (e *Engine) Results() []blocks.StepResult {
	return e.results
}

// Reset clears recorded results so the engine can run another list.
func (e *Engine) Reset() {
	e.results = nil
}

// RunSteps evaluates a statement list from the top of a test case. A
// proc.return bubbling past the outermost frame is an error here, since no
// procedure call encloses it.
func (e *Engine) RunSteps(ctx context.Context, ec *blocks.ExecContext, steps []*step.Node) error {
	out, err := e.runList(ctx, ec, steps)
	if err != nil {
		return err
	}
	if ret, ok := out.(*step.ProcedureReturn); ok {
		return fmt.Errorf("proc.return outside a procedure body (value %v)", ret.Value)
	}
	return nil
}

// runList evaluates statements in order. The first failure stops the list
// and propagates. A bubbling ProcedureReturn also stops the list and is
// returned as the list's output for the enclosing procedure frame.
func (e *Engine) runList(ctx context.Context, ec *blocks.ExecContext, steps []*step.Node) (any, error) {
	for _, child := range steps {
		if e.cfg.Gate != nil {
			if err := e.cfg.Gate(ctx, ec, child); err != nil {
				return nil, err
			}
		}
		out, err := e.Evaluate(ctx, ec, child)
		if err != nil {
			return nil, err
		}
		if ret, ok := out.(*step.ProcedureReturn); ok {
			return ret, nil
		}
	}
	return nil, nil
}

// Evaluate runs one step: resolve params depth-first, dispatch, invoke the
// executor, then interpret its result. Statement slots are never touched
// during parameter resolution; they are consumed by control signals only.
//
// The returned value is the step's terminal output, except that a
// *step.ProcedureReturn bubbles up unchanged for the enclosing procedure
// call frame to consume.
func (e *Engine) Evaluate(ctx context.Context, ec *blocks.ExecContext, node *step.Node) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	desc, ok := e.cfg.Blocks.Lookup(node.Type)
	if !ok {
		err := &UnknownBlockTypeError{Type: node.Type, StepID: node.ID}
		e.emitStarted(ec, node)
		e.emitFinished(ec, &blocks.StepResult{
			StepID: node.ID, Type: node.Type, Status: blocks.StatusError,
			Error: err.Error(), StartedAt: time.Now(), EndedAt: time.Now(),
		})
		return nil, err
	}

	e.emitStarted(ec, node)

	params, err := e.resolveParams(ctx, ec, node, desc)
	if err != nil {
		e.emitFinished(ec, &blocks.StepResult{
			StepID: node.ID, Type: node.Type, Status: blocks.StatusError,
			Error: err.Error(), StartedAt: time.Now(), EndedAt: time.Now(),
		})
		return nil, err
	}

	softBefore := len(ec.SoftFailures)
	start := time.Now()
	out, execErr := desc.Exec(ctx, ec, &blocks.Call{Step: node, Params: params})
	end := time.Now()

	if execErr != nil {
		res := blocks.StepResult{
			StepID: node.ID, Type: node.Type, Status: blocks.StatusFailed,
			Error: execErr.Error(), StartedAt: start, EndedAt: end, Duration: end.Sub(start),
		}
		if e.cfg.OnLeafFailure != nil {
			res.Artifact = e.cfg.OnLeafFailure(ctx, ec, node, desc)
		}
		e.results = append(e.results, res)
		e.emitFinished(ec, &res)
		return nil, e.wrapExecError(node, execErr)
	}

	if sig, ok := out.(step.Signal); ok {
		sigOut, sigErr := e.applySignal(ctx, ec, node, sig)
		res := blocks.StepResult{
			StepID: node.ID, Type: node.Type, Status: blocks.StatusPassed,
			StartedAt: start, EndedAt: time.Now(),
		}
		if sigErr != nil {
			res.Status = blocks.StatusFailed
			res.Error = sigErr.Error()
		}
		res.Duration = res.EndedAt.Sub(res.StartedAt)
		// Control steps are observed through events but not recorded as
		// executed leaves.
		e.emitFinished(ec, &res)
		return sigOut, sigErr
	}

	res := blocks.StepResult{
		StepID: node.ID, Type: node.Type, Status: blocks.StatusPassed,
		Output: out, StartedAt: start, EndedAt: end, Duration: end.Sub(start),
	}
	if len(ec.SoftFailures) > softBefore {
		// The leaf tripped soft assertions: execution continues but the
		// step is marked failed.
		last := ec.SoftFailures[len(ec.SoftFailures)-1]
		res.Status = blocks.StatusFailed
		res.Error = last.Message
	}
	e.results = append(e.results, res)
	e.emitFinished(ec, &res)
	return out, nil
}

// resolveParams produces the resolved parameter mapping for a step:
// declared inputs first, in declaration order, then any extra bound params
// (open plugin specs) by name. Nested value steps are evaluated depth-first
// exactly once; literal strings pass through the variable resolver.
func (e *Engine) resolveParams(ctx context.Context, ec *blocks.ExecContext, node *step.Node, desc *blocks.Descriptor) (map[string]any, error) {
	params := make(map[string]any)

	for _, spec := range desc.Inputs {
		if spec.Kind == blocks.InputSlot {
			continue
		}
		in := node.Param(spec.Name)
		if in == nil {
			if spec.Default != nil {
				params[spec.Name] = spec.Default
			} else if spec.Required {
				return nil, fmt.Errorf("step %s: required input %q missing", node.ID, spec.Name)
			}
			continue
		}
		v, err := e.resolveInput(ctx, ec, node, spec.Name, in)
		if err != nil {
			return nil, err
		}
		params[spec.Name] = v
	}

	var extras []string
	for name := range node.Params {
		if _, declared := desc.Input(name); !declared {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		v, err := e.resolveInput(ctx, ec, node, name, node.Params[name])
		if err != nil {
			return nil, err
		}
		params[name] = v
	}

	return params, nil
}

func (e *Engine) resolveInput(ctx context.Context, ec *blocks.ExecContext, node *step.Node, name string, in step.Input) (any, error) {
	switch b := in.(type) {
	case step.Literal:
		return vars.ResolveValue(b.Value, ec.Row, ec.Vars), nil
	case step.Nested:
		out, err := e.Evaluate(ctx, ec, b.Node)
		if err != nil {
			return nil, err
		}
		if _, ok := out.(*step.ProcedureReturn); ok {
			return nil, fmt.Errorf("step %s: input %q: proc.return outside a procedure body", node.ID, name)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("step %s: input %q: unsupported binding %T", node.ID, name, in)
	}
}

// applySignal realizes the control flow a signal asks for. The switch is
// exhaustive over the signal union; the default arm guards against a new
// case being added without interpreter support.
func (e *Engine) applySignal(ctx context.Context, ec *blocks.ExecContext, node *step.Node, sig step.Signal) (any, error) {
	switch s := sig.(type) {
	case *step.Branch:
		return e.runList(ctx, ec, node.Slot(s.Slot))

	case *step.CountedLoop:
		children := node.Slot(s.Slot)
		for i := 0; i < s.Times; i++ {
			out, err := e.runList(ctx, ec, children)
			if err != nil {
				return nil, err
			}
			if out != nil {
				return out, nil
			}
		}
		return nil, nil

	case *step.CollectionLoop:
		children := node.Slot(s.Slot)
		for _, item := range s.Items {
			ec.Vars[s.Binding] = item
			out, err := e.runList(ctx, ec, children)
			if err != nil {
				return nil, err
			}
			if out != nil {
				return out, nil
			}
		}
		// The last item's binding persists by design of the loop contract.
		return nil, nil

	case *step.TryCatch:
		out, err := e.runList(ctx, ec, node.Slot(step.SlotTry))
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			// Cancellation is not a catchable failure.
			return nil, err
		}
		ec.Vars["error"] = err.Error()
		return e.runList(ctx, ec, node.Slot(step.SlotCatch))

	case *step.InlineExpand:
		return e.runList(ctx, ec, s.Steps)

	case *step.ProcedureCall:
		return e.runProcedureCall(ctx, ec, s)

	case *step.ProcedureReturn:
		// Bubbles to the nearest procedure call frame via runList.
		return s, nil

	default:
		return nil, fmt.Errorf("step %s: unhandled control signal %T", node.ID, sig)
	}
}

// runProcedureCall binds arguments into context variables and evaluates the
// procedure body. With WantReturn, the first ProcedureReturn among the
// body's step outputs supplies the result and skips the remaining steps.
func (e *Engine) runProcedureCall(ctx context.Context, ec *blocks.ExecContext, s *step.ProcedureCall) (any, error) {
	proc := s.Procedure
	if proc == nil {
		return nil, &procedures.NotFoundError{Name: s.Name}
	}

	args := s.Args
	if args == nil {
		args = make(map[string]any)
	}
	for _, p := range proc.Params {
		if _, ok := args[p.Name]; !ok && p.Default != nil {
			args[p.Name] = p.Default
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := args[name]
		if text, ok := v.(string); ok {
			v = vars.Resolve(text, ec.Row, ec.Vars)
		}
		ec.Vars[name] = v
	}

	for _, body := range proc.Body {
		out, err := e.Evaluate(ctx, ec, body)
		if err != nil {
			return nil, err
		}
		if ret, ok := out.(*step.ProcedureReturn); ok {
			if s.Into != "" {
				ec.Vars[s.Into] = ret.Value
			}
			if s.WantReturn {
				return ret.Value, nil
			}
			return nil, nil
		}
	}
	return nil, nil
}

// wrapExecError preserves typed failures and wraps everything else as a
// LeafError carrying the step identity.
func (e *Engine) wrapExecError(node *step.Node, err error) error {
	var hard *assert.HardError
	var notFound *procedures.NotFoundError
	var resolveErr *procedures.ResolveError
	var unknown *UnknownBlockTypeError
	var leaf *LeafError
	var skip *blocks.SkipError
	if errors.As(err, &hard) || errors.As(err, &notFound) || errors.As(err, &resolveErr) ||
		errors.As(err, &unknown) || errors.As(err, &leaf) || errors.As(err, &skip) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("step %s: %w", node.ID, err)
	}
	return &LeafError{StepID: node.ID, BlockType: node.Type, Err: err}
}

func (e *Engine) emitStarted(ec *blocks.ExecContext, node *step.Node) {
	if e.cfg.Events != nil {
		e.cfg.Events.StepStarted(ec, node)
	}
}

func (e *Engine) emitFinished(ec *blocks.ExecContext, res *blocks.StepResult) {
	if e.cfg.Events != nil {
		e.cfg.Events.StepFinished(ec, res)
	}
}
