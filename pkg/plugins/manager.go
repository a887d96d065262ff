package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/config"
)

const (
	describeTimeout = 10 * time.Second
	shutdownGrace   = 3 * time.Second
)

// Manager owns the configured provider subprocesses for one run.
type Manager struct {
	configs map[string]config.ProviderConfig
	log     *slog.Logger
	procs   []*Provider
}

// Provider is one started block provider and its declared catalog.
type Provider struct {
	Name   string
	Blocks []BlockInfo
	proc   *process
}

// NewManager creates a manager for the configured providers. Nothing is
// spawned until Start.
func NewManager(configs map[string]config.ProviderConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{configs: configs, log: log}
}

// Start spawns every configured provider, collects its catalog via
// provider/describe, and registers proxy descriptors. Providers start in
// name order so overrides between them are deterministic; a provider
// registering a built-in's type replaces the built-in. Any failure stops
// the whole start; already-spawned providers stay tracked for Stop.
func (m *Manager) Start(ctx context.Context, reg *blocks.Registry) error {
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, err := m.startProvider(ctx, name, m.configs[name])
		if err != nil {
			return err
		}
		m.procs = append(m.procs, p)
		for _, info := range p.Blocks {
			reg.Register(proxyDescriptor(p, info))
		}
		m.log.Info("provider attached", "provider", name, "blocks", len(p.Blocks))
	}
	return nil
}

// Providers returns the started providers in start order.
func (m *Manager) Providers() []*Provider {
	return m.procs
}

// Stop shuts every provider down, politely first.
func (m *Manager) Stop() {
	for _, p := range m.procs {
		p.proc.shutdown(shutdownGrace)
	}
	m.procs = nil
}

func (m *Manager) startProvider(ctx context.Context, name string, cfg config.ProviderConfig) (*Provider, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("provider %q: command is required", name)
	}
	proc, err := spawn(ctx, name, cfg, m.log)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}

	dctx, cancel := context.WithTimeout(ctx, describeTimeout)
	defer cancel()
	var desc DescribeResult
	if err := proc.call(dctx, MethodDescribe, map[string]any{}, &desc); err != nil {
		proc.kill()
		return nil, fmt.Errorf("provider %q describe: %w", name, err)
	}
	if len(desc.Blocks) == 0 {
		proc.kill()
		return nil, fmt.Errorf("provider %q declares no blocks", name)
	}
	return &Provider{Name: name, Blocks: desc.Blocks, proc: proc}, nil
}

// proxyDescriptor turns a wire descriptor into a registry entry whose
// executor forwards to the provider subprocess.
func proxyDescriptor(p *Provider, info BlockInfo) *blocks.Descriptor {
	inputs := make([]blocks.InputSpec, len(info.Inputs))
	for i, in := range info.Inputs {
		inputs[i] = blocks.InputSpec{
			Name:     in.Name,
			Kind:     blocks.InputValue,
			Type:     in.Type,
			Required: in.Required,
			Default:  in.Default,
			Doc:      in.Doc,
		}
	}
	category := info.Category
	if category == "" {
		category = typePrefix(info.Type)
	}
	return &blocks.Descriptor{
		Type:      info.Type,
		Category:  category,
		Summary:   info.Summary,
		Doc:       info.Doc,
		Inputs:    inputs,
		Output:    info.Output,
		Statement: info.Statement,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			var res ExecuteResult
			err := p.proc.call(ctx, MethodExecute, ExecuteParams{
				Block:  info.Type,
				Params: call.Params,
				RunID:  ec.RunID,
				Case:   ec.Case,
			}, &res)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", p.Name, err)
			}
			return res.Output, nil
		},
	}
}

func typePrefix(blockType string) string {
	for i := 0; i < len(blockType); i++ {
		if blockType[i] == '.' {
			return blockType[:i]
		}
	}
	return blockType
}
