// Package governance enforces the project's block allowlist/denylist,
// redacts recorded output, and strips denied environment variables from
// subprocess blocks.
package governance

import (
	"fmt"
	"path/filepath"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
)

// Engine evaluates governance policy before and during execution.
type Engine struct {
	Allow   []string
	Deny    []string
	DenyEnv []string
}

// NewEngine creates an Engine from project config. A nil config yields a
// permissive engine (util.exec stays gated separately).
func NewEngine(cfg *config.Config) *Engine {
	if cfg == nil {
		return &Engine{}
	}
	return &Engine{
		Allow:   cfg.Blocks.Allow,
		Deny:    cfg.Blocks.Deny,
		DenyEnv: cfg.DenyEnv,
	}
}

// CheckBlock validates a block type against the allowlist/denylist.
// Deny takes precedence; patterns use glob syntax ("web.*").
func (g *Engine) CheckBlock(blockType string) error {
	for _, denied := range g.Deny {
		if matchPattern(denied, blockType) {
			return fmt.Errorf("block %q is denied by project policy", blockType)
		}
	}
	if len(g.Allow) > 0 {
		for _, allowed := range g.Allow {
			if matchPattern(allowed, blockType) {
				return nil
			}
		}
		return fmt.Errorf("block %q is not in the project allowlist", blockType)
	}
	return nil
}

// ExecAllowed reports whether util.exec may run shell commands. Shell
// execution is off unless the allowlist names it, and a deny entry always
// wins.
func (g *Engine) ExecAllowed() bool {
	const execBlock = "util.exec"
	for _, denied := range g.Deny {
		if matchPattern(denied, execBlock) {
			return false
		}
	}
	for _, allowed := range g.Allow {
		if matchPattern(allowed, execBlock) {
			return true
		}
	}
	return false
}

// FilterRegistry returns a registry holding only policy-allowed blocks,
// plus the names it dropped. Enforcement happens here, at registration
// time, so denied blocks are unknown types at run time.
func (g *Engine) FilterRegistry(reg *blocks.Registry) (*blocks.Registry, []string) {
	if len(g.Allow) == 0 && len(g.Deny) == 0 {
		return reg, nil
	}
	filtered := blocks.NewRegistry()
	var dropped []string
	for _, d := range reg.All() {
		if err := g.CheckBlock(d.Type); err != nil {
			dropped = append(dropped, d.Type)
			continue
		}
		filtered.Register(d)
	}
	return filtered, dropped
}

func matchPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
