// Package main provides the tessera-mcp binary, an MCP server exposing
// suite validation and execution to AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/tessera/pkg/config"
	tmcp "github.com/ormasoftchile/tessera/pkg/mcp"
)

var version = "dev"

func main() {
	config.LoadDotEnv()
	cfg, err := config.Discover(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	s := tmcp.NewServer(cfg, version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
