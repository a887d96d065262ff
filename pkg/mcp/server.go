// Package mcp exposes tessera to AI coding agents over the Model Context
// Protocol: suite validation, runs and catalog inspection as tools on a
// stdio transport.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/tessera/pkg/config"
)

// NewServer creates an MCP server with the tessera tools registered.
func NewServer(cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"tessera",
		version,
		server.WithToolCapabilities(true),
	)
	h := NewHandlers(cfg)

	s.AddTool(
		mcp.NewTool("tessera/validate",
			mcp.WithDescription("Validate a tessera suite YAML file against the block catalog"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the suite YAML file")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("tessera/run",
			mcp.WithDescription("Run a tessera suite and return the per-case results and summary as JSON"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the suite YAML file")),
			mcp.WithString("filter", mcp.Description("Run only cases whose name contains this substring")),
			mcp.WithBoolean("fail_fast", mcp.Description("Stop scheduling new cases after the first failure")),
			mcp.WithNumber("parallel", mcp.Description("Worker count (defaults to the project config)")),
		),
		h.HandleRun,
	)

	s.AddTool(
		mcp.NewTool("tessera/blocks",
			mcp.WithDescription("List the block catalog with input descriptors"),
			mcp.WithString("category", mcp.Description("Limit the listing to one category, e.g. web or assert")),
		),
		h.HandleBlocks,
	)

	s.AddTool(
		mcp.NewTool("tessera/schema",
			mcp.WithDescription("Export the suite document JSON Schema"),
		),
		h.HandleSchema,
	)

	return s
}
