// Package library registers the built-in block catalog: control flow,
// procedures, values, assertions, HTTP, browser automation and utilities.
// Each block is a descriptor in the block registry; plugins may override
// any of them by registering the same type later.
package library

import (
	"fmt"
	"net/http"
	"time"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/webdriver"
)

// Options carries the external capabilities leaf blocks need. Zero values
// degrade gracefully: without a WebDriver client web.session fails with a
// configuration error, without an HTTP client a shared default is used.
type Options struct {
	// HTTP is the client http.* blocks use when the execution context does
	// not carry its own.
	HTTP *http.Client

	// WebDriver creates browser sessions for web.session. Nil means no
	// remote end is configured.
	WebDriver *webdriver.Client

	// Capabilities is the session request payload for web.session, e.g.
	// browser selection. Nil requests a plain session.
	Capabilities map[string]any

	// AllowExec enables util.exec. The governance layer keeps it off
	// unless the project config allows shell commands.
	AllowExec bool

	// EnvFilter strips denied variables from subprocess environments.
	// Nil means the child inherits the full environment.
	EnvFilter func(env []string) (kept []string, blocked []string)
}

// Install registers every built-in block.
func Install(reg *blocks.Registry, opts Options) {
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	registerFlow(reg)
	registerProc(reg)
	registerValue(reg)
	registerAssert(reg)
	registerHTTP(reg, opts)
	registerWeb(reg, opts)
	registerUtil(reg, opts)
}

// truthy interprets a resolved condition value. Booleans pass through,
// strings are expr-lang expressions evaluated against the current
// bindings, numbers are true when nonzero.
func truthy(ec *blocks.ExecContext, v any) (bool, error) {
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case int:
		return val != 0, nil
	case int64:
		return val != 0, nil
	case float64:
		return val != 0, nil
	case string:
		return evalBoolExpr(ec, val)
	default:
		return false, fmt.Errorf("condition has type %T, want bool or expression", v)
	}
}

// evalBoolExpr compiles and runs a boolean expr-lang expression against
// the merged variable environment.
func evalBoolExpr(ec *blocks.ExecContext, code string) (bool, error) {
	env := ec.Env()
	program, err := expr.Compile(code, expr.Env(env), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", code, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", code, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", code, out)
	}
	return b, nil
}
