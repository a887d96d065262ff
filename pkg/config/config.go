// Package config loads tessera.yaml, the single project configuration
// surface: run defaults, artifact location, governance policy, provider
// commands and the WebDriver endpoint. Discovery walks up from the suite
// file so suites anywhere in a project tree share one config.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the project config file tessera looks for.
const FileName = "tessera.yaml"

// Config is the tessera.yaml model.
type Config struct {
	// Parallelism is the default number of cases run concurrently.
	Parallelism int `yaml:"parallelism,omitempty" json:"parallelism,omitempty"`

	// ArtifactRoot is where run directories are created.
	ArtifactRoot string `yaml:"artifact_root,omitempty" json:"artifact_root,omitempty"`

	WebDriver WebDriverConfig `yaml:"webdriver,omitempty" json:"webdriver,omitempty"`

	// Redact rules are applied to recorded outputs before persistence.
	Redact []RedactionRule `yaml:"redact,omitempty" json:"redact,omitempty"`

	Blocks BlockPolicy `yaml:"blocks,omitempty" json:"blocks,omitempty"`

	// DenyEnv lists environment variable glob patterns stripped from
	// subprocess environments (util.exec, providers).
	DenyEnv []string `yaml:"deny_env,omitempty" json:"deny_env,omitempty"`

	// Providers declares external block provider subprocesses.
	Providers map[string]ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty"`

	// DataPaths are extra directories searched for data files.
	DataPaths []string `yaml:"data_paths,omitempty" json:"data_paths,omitempty"`

	Log LogConfig `yaml:"log,omitempty" json:"log,omitempty"`

	// Root is the absolute path to the directory containing tessera.yaml.
	// Set after loading/discovery, not from YAML.
	Root string `yaml:"-" json:"-"`
}

// WebDriverConfig points web blocks at a running WebDriver remote end.
type WebDriverConfig struct {
	Endpoint     string         `yaml:"endpoint,omitempty"     json:"endpoint,omitempty"`
	Capabilities map[string]any `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// RedactionRule is a regexp replacement applied to recorded output.
type RedactionRule struct {
	Pattern string `yaml:"pattern"           json:"pattern"`
	Replace string `yaml:"replace,omitempty" json:"replace,omitempty"`
}

// BlockPolicy allows or denies block types by exact name or "category.*"
// pattern. Deny wins over allow; an empty allow list allows everything.
type BlockPolicy struct {
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"  json:"deny,omitempty"`
}

// ProviderConfig declares one block provider subprocess.
type ProviderConfig struct {
	Command string            `yaml:"command"        json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"  json:"env,omitempty"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"  json:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // text, json
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &Config{
		Parallelism:  1,
		ArtifactRoot: ".tessera/runs",
		Log:          LogConfig{Level: "info", Format: "text"},
		Root:         abs,
	}
}

// Discover walks up from startPath looking for tessera.yaml. When none is
// found it returns Default rooted at the start directory. Environment
// overrides apply either way.
func Discover(startPath string) (*Config, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return nil, err
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	start := dir
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			cfg := Default(start)
			cfg.applyEnv()
			return cfg, nil
		}
		dir = parent
	}
}

// LoadFile reads one tessera.yaml with strict unknown-field rejection,
// fills defaults and applies TESSERA_* environment overrides.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Root = filepath.Dir(abs)
	cfg.fillDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.ArtifactRoot == "" {
		c.ArtifactRoot = ".tessera/runs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// applyEnv overlays TESSERA_* environment variables. Env wins over file
// values so CI can steer runs without editing the project config.
func (c *Config) applyEnv() {
	if v := os.Getenv("TESSERA_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Parallelism = n
		}
	}
	if v := os.Getenv("TESSERA_ARTIFACT_ROOT"); v != "" {
		c.ArtifactRoot = v
	}
	if v := os.Getenv("TESSERA_WEBDRIVER_ENDPOINT"); v != "" {
		c.WebDriver.Endpoint = v
	}
	if v := os.Getenv("TESSERA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TESSERA_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// ArtifactDir resolves the artifact root against the config root.
func (c *Config) ArtifactDir() string {
	if filepath.IsAbs(c.ArtifactRoot) {
		return c.ArtifactRoot
	}
	return filepath.Join(c.Root, c.ArtifactRoot)
}

// DataSearchPaths resolves the configured data directories against the
// config root.
func (c *Config) DataSearchPaths() []string {
	paths := make([]string, 0, len(c.DataPaths))
	for _, p := range c.DataPaths {
		if filepath.IsAbs(p) {
			paths = append(paths, p)
		} else {
			paths = append(paths, filepath.Join(c.Root, p))
		}
	}
	return paths
}

// LoadDotEnv reads KEY=VALUE lines from .env in the current directory into
// the process environment. Existing variables are not overwritten.
func LoadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file, nothing to do
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}
