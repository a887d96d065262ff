package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/vars"
)

func registerUtil(reg *blocks.Registry, opts Options) {
	reg.Register(&blocks.Descriptor{
		Type:     "util.log",
		Category: "util",
		Summary:  "Log a message at the chosen level.",
		Inputs: []blocks.InputSpec{
			{Name: "message", Kind: blocks.InputValue, Type: "any", Required: true},
			{Name: "level", Kind: blocks.InputField, Type: "string", Default: "info"},
		},
		Statement: true,
		Exec: func(_ context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			msg := vars.Stringify(call.Params["message"])
			switch call.StringOr("level", "info") {
			case "debug":
				ec.Logger.Debug(msg)
			case "warn":
				ec.Logger.Warn(msg)
			case "error":
				ec.Logger.Error(msg)
			default:
				ec.Logger.Info(msg)
			}
			return msg, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "util.sleep",
		Category: "util",
		Summary:  "Pause for a duration.",
		Inputs: []blocks.InputSpec{
			{Name: "duration", Kind: blocks.InputField, Type: "string", Required: true},
		},
		Statement: true,
		Exec: func(ctx context.Context, _ *blocks.ExecContext, call *blocks.Call) (any, error) {
			d := call.Duration("duration", 0)
			if d <= 0 {
				return nil, fmt.Errorf("util.sleep: invalid duration %q", call.String("duration"))
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
				return map[string]any{"slept": d.String()}, nil
			}
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "util.exec",
		Category: "util",
		Summary:  "Run a shell command.",
		Doc: "Disabled unless the project config allows shell commands. The " +
			"output carries `stdout`, `stderr` and `exit_code`; a nonzero " +
			"exit does not fail the step by itself.",
		Inputs: []blocks.InputSpec{
			{Name: "command", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "timeout", Kind: blocks.InputField, Type: "string", Default: "60s"},
		},
		Statement: true,
		Output:    "map",
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			if !opts.AllowExec {
				return nil, errors.New("util.exec: shell commands are not allowed by project config")
			}
			return runShell(ctx, ec.Logger, opts.EnvFilter, call.String("command"), call.Duration("timeout", 60*time.Second))
		},
	})
}

// runShell executes one command line through the platform shell, capturing
// both streams and the exit code.
func runShell(ctx context.Context, logger *slog.Logger, envFilter func([]string) ([]string, []string), command string, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	if envFilter != nil {
		kept, blocked := envFilter(os.Environ())
		cmd.Env = kept
		if len(blocked) > 0 {
			logger.Debug("environment variables withheld from shell", "blocked", blocked)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execute command %q: %w", command, err)
		}
	}

	logger.Debug("shell command", "command", command, "exit_code", exitCode, "duration", duration)
	return map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}
