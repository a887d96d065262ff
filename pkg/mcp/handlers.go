package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
	"github.com/ormasoftchile/tessera/pkg/ctxlog"
	"github.com/ormasoftchile/tessera/pkg/plugins"
	"github.com/ormasoftchile/tessera/pkg/report"
	"github.com/ormasoftchile/tessera/pkg/runner"
	"github.com/ormasoftchile/tessera/pkg/schema"
)

// Handlers implements the tessera tools. The block catalog builds on
// first use and lives for the server's lifetime, so provider subprocesses
// stay warm across tool calls.
type Handlers struct {
	cfg *config.Config
	log *slog.Logger

	regOnce sync.Once
	reg     *blocks.Registry
	regMgr  *plugins.Manager
	regErr  error
}

// NewHandlers creates the tool set for one project configuration. A nil
// config falls back to defaults rooted in the working directory.
func NewHandlers(cfg *config.Config) *Handlers {
	if cfg == nil {
		cfg = config.Default(".")
	}
	return &Handlers{
		cfg: cfg,
		log: ctxlog.New(cfg.Log.Level, cfg.Log.Format, os.Stderr),
	}
}

// registry assembles the block catalog once. Providers started here run
// until the process exits, so the lifetime context is deliberate.
func (h *Handlers) registry() (*blocks.Registry, error) {
	h.regOnce.Do(func() {
		h.reg, h.regMgr, h.regErr = runner.BuildRegistry(context.Background(), h.cfg, h.log)
	})
	return h.reg, h.regErr
}

// HandleValidate implements the tessera/validate tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	reg, err := h.registry()
	if err != nil {
		return errorResult(fmt.Sprintf("build block catalog: %s", err)), nil
	}

	doc, verrs := schema.ValidateFile(path, reg)
	if hasErrors(verrs) {
		return errorResult(formatErrors(verrs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d cases, %d procedures)",
		doc.Suite.Name, len(doc.Cases), len(doc.Procedures))), nil
}

// HandleRun implements the tessera/run tool. Console output is discarded;
// the agent reads the JSON result instead.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	filter, _ := args["filter"].(string)
	failFast, _ := args["fail_fast"].(bool)
	parallel := 0
	if n, ok := args["parallel"].(float64); ok {
		parallel = int(n)
	}

	reg, err := h.registry()
	if err != nil {
		return errorResult(fmt.Sprintf("build block catalog: %s", err)), nil
	}

	r := runner.New(runner.Options{
		Config:   h.cfg,
		Parallel: parallel,
		FailFast: failFast,
		Filter:   filter,
		Out:      io.Discard,
		Logger:   h.log,
		Registry: reg,
	})
	result, err := r.Run(ctx, path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	cases := make([]report.CaseRef, 0, len(result.Results))
	for i := range result.Results {
		cases = append(cases, result.Results[i].Ref())
	}
	response := map[string]any{
		"run_id":  result.RunID,
		"dir":     result.Dir,
		"suite":   result.Suite,
		"summary": result.Summary,
		"cases":   cases,
	}
	data, _ := json.MarshalIndent(response, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !result.Summary.OK(),
	}, nil
}

// HandleBlocks implements the tessera/blocks tool.
func (h *Handlers) HandleBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	category, _ := args["category"].(string)

	reg, err := h.registry()
	if err != nil {
		return errorResult(fmt.Sprintf("build block catalog: %s", err)), nil
	}

	list := reg.All()
	if category != "" {
		list = reg.ByCategory(category)
		if len(list) == 0 {
			return errorResult(fmt.Sprintf("unknown category %q; available: %s",
				category, strings.Join(reg.Categories(), ", "))), nil
		}
	}
	data, _ := json.MarshalIndent(list, "", "  ")
	return textResult(string(data)), nil
}

// HandleSchema implements the tessera/schema tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func hasErrors(errs []*schema.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, e.Error())
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
