package plugins

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ormasoftchile/tessera/pkg/config"
)

// process is one provider subprocess with its stdio pipes. The pipe pair
// is a serial channel: callMu admits one request/response exchange at a
// time, which is what keeps parallel case workers from interleaving
// frames.
type process struct {
	name   string
	cmd    *exec.Cmd
	stdin  *json.Encoder
	reader *bufio.Reader
	nextID int64
	done   chan struct{}

	callMu sync.Mutex
}

// spawn starts a provider subprocess and wires its pipes. The context
// bounds the process lifetime; cancellation kills it.
func spawn(ctx context.Context, name string, cfg config.ProviderConfig, log *slog.Logger) (*process, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = providerEnv(cfg.Env)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", cfg.Command, err)
	}

	done := make(chan struct{})
	go func() { cmd.Wait(); close(done) }()
	go func() {
		sc := bufio.NewScanner(stderrPipe)
		for sc.Scan() {
			log.Debug("provider stderr", "provider", name, "line", sc.Text())
		}
	}()

	return &process{
		name:   name,
		cmd:    cmd,
		stdin:  json.NewEncoder(stdinPipe),
		reader: bufio.NewReader(stdoutPipe),
		done:   done,
	}, nil
}

// call performs one JSON-RPC exchange and decodes the result into out.
func (p *process) call(ctx context.Context, method string, params any, out any) error {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	id := atomic.AddInt64(&p.nextID, 1)
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	if err := p.stdin.Encode(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	type readResult struct {
		data json.RawMessage
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			ch <- readResult{err: fmt.Errorf("read response: %w", err)}
			return
		}
		var resp struct {
			Result json.RawMessage `json:"result"`
			Error  *RPCError       `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			ch <- readResult{err: fmt.Errorf("decode response: %w (raw: %s)", err, strings.TrimSpace(line))}
			return
		}
		if resp.Error != nil {
			ch <- readResult{err: resp.Error}
			return
		}
		ch <- readResult{data: resp.Result}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if out == nil || len(r.data) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.data, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return fmt.Errorf("provider %q exited", p.name)
	}
}

// shutdown sends the shutdown notification, waits for a clean exit, then
// kills whatever is left.
func (p *process) shutdown(grace time.Duration) {
	notif := map[string]any{"jsonrpc": "2.0", "method": MethodShutdown}
	p.stdin.Encode(notif)

	select {
	case <-p.done:
		return
	case <-time.After(grace):
	}
	p.kill()
}

func (p *process) kill() {
	select {
	case <-p.done:
		return
	default:
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}

// providerEnv is the parent environment plus the configured overrides, in
// stable order.
func providerEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
