// Package serve implements the JSON-RPC server for the tessera visual
// editor. It communicates over stdio (stdin/stdout) using newline-delimited
// JSON messages: requests carry an id, notifications do not. Step and case
// progress streams as notifications while a suite runs; the run's result
// message closes the exchange.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/plugins"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/runner"
	"github.com/ormasoftchile/tessera/pkg/schema"
	"github.com/ormasoftchile/tessera/pkg/step"
)

// Message is a JSON-RPC 2.0 message (request, response, or notification).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"` // nil for notifications
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RunParams are the parameters for suite/run.
type RunParams struct {
	Suite    string   `json:"suite"`
	Parallel int      `json:"parallel,omitempty"`
	FailFast bool     `json:"failFast,omitempty"`
	Filter   string   `json:"filter,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ValidateParams are the parameters for suite/validate.
type ValidateParams struct {
	Suite string `json:"suite"`
}

// Server is the JSON-RPC server that wraps the suite runner.
type Server struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex // serializes writes to the stream

	cfg     *config.Config
	log     *slog.Logger
	version string

	ctx    context.Context
	cancel context.CancelFunc

	// Lazily built block catalog for suite/validate and blocks/list.
	regOnce sync.Once
	reg     *blocks.Registry
	regMgr  *plugins.Manager
	regErr  error

	// One run at a time per session.
	runMu     sync.Mutex
	runCancel context.CancelFunc // non-nil while a suite run is active
}

// New creates a server reading from stdin and writing to stdout.
func New(cfg *config.Config, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		reader:  bufio.NewReader(os.Stdin),
		writer:  os.Stdout,
		cfg:     cfg,
		log:     log,
		version: version,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run starts the server main loop: it reads messages from stdin and
// dispatches them until the stream ends.
func (s *Server) Run() error {
	defer s.cancel()
	defer func() {
		if s.regMgr != nil {
			s.regMgr.Stop()
		}
	}()

	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.sendError(nil, -32700, fmt.Sprintf("parse error: %v", err))
			continue
		}

		s.dispatch(&msg)
	}

	return scanner.Err()
}

// dispatch routes a message to the appropriate handler.
func (s *Server) dispatch(msg *Message) {
	switch msg.Method {
	case "initialize":
		s.handleInitialize(msg)
	case "suite/validate":
		s.handleValidate(msg)
	case "suite/run":
		s.handleRun(msg)
	case "run/cancel":
		s.handleCancel(msg)
	case "blocks/list":
		s.handleBlocksList(msg)
	case "shutdown":
		s.cancel()
		s.sendResult(msg.ID, map[string]string{"status": "shutting down"})
	default:
		s.sendError(msg.ID, -32601, fmt.Sprintf("unknown method: %s", msg.Method))
	}
}

// handleInitialize reports server identity and the project root.
func (s *Server) handleInitialize(msg *Message) {
	s.sendResult(msg.ID, map[string]any{
		"name":    "tessera",
		"version": s.version,
		"root":    s.cfg.Root,
	})
}

// handleValidate runs the full validation pipeline on a suite file and
// returns every finding. Warnings do not make the suite invalid.
func (s *Server) handleValidate(msg *Message) {
	var params ValidateParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendError(msg.ID, -32602, fmt.Sprintf("invalid params: %v", err))
		return
	}
	if params.Suite == "" {
		s.sendError(msg.ID, -32602, "suite is required")
		return
	}

	reg, err := s.registry()
	if err != nil {
		s.sendError(msg.ID, -32603, fmt.Sprintf("build block catalog: %v", err))
		return
	}

	_, verrs := schema.ValidateFile(params.Suite, reg)
	valid := true
	for _, ve := range verrs {
		if ve.Severity == "error" {
			valid = false
			break
		}
	}
	if verrs == nil {
		verrs = []*schema.ValidationError{}
	}
	s.sendResult(msg.ID, map[string]any{
		"valid":  valid,
		"errors": verrs,
	})
}

// handleRun starts a suite run in a goroutine. Step and case progress
// streams as notifications; the result message arrives when the run ends.
func (s *Server) handleRun(msg *Message) {
	var params RunParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendError(msg.ID, -32602, fmt.Sprintf("invalid params: %v", err))
		return
	}
	if params.Suite == "" {
		s.sendError(msg.ID, -32602, "suite is required")
		return
	}

	s.runMu.Lock()
	if s.runCancel != nil {
		s.runMu.Unlock()
		s.sendError(msg.ID, -32608, "a run is already active")
		return
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	s.runCancel = cancel
	s.runMu.Unlock()

	// Console output goes nowhere: stdout is the protocol channel and the
	// editor renders from the streamed events instead.
	r := runner.New(runner.Options{
		Config:   s.cfg,
		Parallel: params.Parallel,
		FailFast: params.FailFast,
		Filter:   params.Filter,
		Tags:     params.Tags,
		Out:      io.Discard,
		Logger:   s.log,
		Events:   &serveEvents{server: s},
		OnCase: func(res *report.TestResult) {
			s.sendEvent("case/finished", res.Ref())
		},
	})

	id := msg.ID
	go func() {
		defer func() {
			cancel()
			s.runMu.Lock()
			s.runCancel = nil
			s.runMu.Unlock()
		}()

		result, err := r.Run(runCtx, params.Suite)
		if err != nil {
			s.sendError(id, -32603, err.Error())
			return
		}
		s.sendResult(id, map[string]any{
			"runId":   result.RunID,
			"dir":     result.Dir,
			"suite":   result.Suite,
			"summary": result.Summary,
		})
	}()
}

// handleCancel aborts the active run. The suite/run result message still
// arrives once in-flight cases wind down.
func (s *Server) handleCancel(msg *Message) {
	s.runMu.Lock()
	cancel := s.runCancel
	s.runMu.Unlock()

	if cancel == nil {
		s.sendError(msg.ID, -32607, "no active run; call suite/run first")
		return
	}
	cancel()
	s.sendResult(msg.ID, map[string]string{"status": "canceling"})
}

// handleBlocksList returns every registered block descriptor, providers
// included.
func (s *Server) handleBlocksList(msg *Message) {
	reg, err := s.registry()
	if err != nil {
		s.sendError(msg.ID, -32603, fmt.Sprintf("build block catalog: %v", err))
		return
	}
	s.sendResult(msg.ID, map[string]any{"blocks": reg.All()})
}

// registry builds the block catalog on first use and keeps it for the
// session. Provider subprocesses started here live until the server exits.
func (s *Server) registry() (*blocks.Registry, error) {
	s.regOnce.Do(func() {
		s.reg, s.regMgr, s.regErr = runner.BuildRegistry(s.ctx, s.cfg, s.log)
	})
	return s.reg, s.regErr
}

// serveEvents streams interpreter step notifications to the client.
type serveEvents struct {
	server *Server
}

func (ev *serveEvents) StepStarted(ec *blocks.ExecContext, node *step.Node) {
	ev.server.sendEvent("step/started", map[string]any{
		"case":   ec.Case,
		"stepId": node.ID,
		"block":  node.Type,
	})
}

func (ev *serveEvents) StepFinished(ec *blocks.ExecContext, res *blocks.StepResult) {
	ev.server.sendEvent("step/finished", map[string]any{
		"case": ec.Case,
		"step": res,
	})
}

// --- Message sending ---

func (s *Server) sendResult(id *int, result any) {
	data, _ := json.Marshal(result)
	s.send(&Message{
		JSONRPC: "2.0",
		ID:      id,
		Result:  json.RawMessage(data),
	})
}

func (s *Server) sendError(id *int, code int, message string) {
	s.send(&Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

func (s *Server) sendEvent(method string, params any) {
	data, _ := json.Marshal(params)
	s.send(&Message{
		JSONRPC: "2.0",
		Method:  method,
		Params:  json.RawMessage(data),
	})
}

func (s *Server) send(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := json.Marshal(msg)
	fmt.Fprintf(s.writer, "%s\n", data)
}
