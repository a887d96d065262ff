package governance

import (
	"fmt"
	"strings"
)

// CheckEnvVar validates an environment variable name against the deny_env
// patterns.
func (g *Engine) CheckEnvVar(name string) error {
	for _, pattern := range g.DenyEnv {
		if matchPattern(pattern, name) {
			return fmt.Errorf("environment variable %q matches denied pattern %q", name, pattern)
		}
	}
	return nil
}

// FilterEnvVars returns env with denied variables removed, plus the names
// that were blocked. Subprocess blocks (util.exec, providers) run with the
// filtered environment.
func (g *Engine) FilterEnvVars(env []string) ([]string, []string) {
	if len(g.DenyEnv) == 0 {
		return env, nil
	}
	var filtered []string
	var blocked []string
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if err := g.CheckEnvVar(name); err != nil {
			blocked = append(blocked, name)
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, blocked
}
