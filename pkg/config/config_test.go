package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
parallelism: 4
artifact_root: out/runs
webdriver:
  endpoint: http://localhost:4444
  capabilities:
    browserName: firefox
redact:
  - pattern: 'token=[A-Za-z0-9]+'
    replace: token=427
blocks:
  deny: [util.exec]
providers:
  demo:
    command: tessera-provider-example
    args: [--verbose]
data_paths: [data, shared/data]
log:
  level: debug
  format: json
`)

	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parallelism != 4 {
		t.Errorf("parallelism = %d", cfg.Parallelism)
	}
	if cfg.WebDriver.Endpoint != "http://localhost:4444" {
		t.Errorf("endpoint = %q", cfg.WebDriver.Endpoint)
	}
	if cfg.WebDriver.Capabilities["browserName"] != "firefox" {
		t.Errorf("capabilities = %v", cfg.WebDriver.Capabilities)
	}
	if len(cfg.Redact) != 1 || cfg.Redact[0].Replace != "token=427" {
		t.Errorf("redact = %v", cfg.Redact)
	}
	if len(cfg.Blocks.Deny) != 1 || cfg.Blocks.Deny[0] != "util.exec" {
		t.Errorf("deny = %v", cfg.Blocks.Deny)
	}
	if p, ok := cfg.Providers["demo"]; !ok || p.Command != "tessera-provider-example" {
		t.Errorf("providers = %v", cfg.Providers)
	}
	if cfg.Root != dir {
		t.Errorf("root = %q, want %q", cfg.Root, dir)
	}
	if got := cfg.ArtifactDir(); got != filepath.Join(dir, "out/runs") {
		t.Errorf("artifact dir = %q", got)
	}
	paths := cfg.DataSearchPaths()
	if len(paths) != 2 || paths[0] != filepath.Join(dir, "data") {
		t.Errorf("data paths = %v", paths)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "paralelism: 4\n")
	_, err := LoadFile(filepath.Join(dir, FileName))
	if err == nil || !strings.Contains(err.Error(), "field") {
		t.Fatalf("err = %v, want unknown-field rejection", err)
	}
}

func TestDefaultsFill(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "parallelism: 0\n")
	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parallelism != 1 {
		t.Errorf("parallelism = %d, want 1", cfg.Parallelism)
	}
	if cfg.ArtifactRoot != ".tessera/runs" {
		t.Errorf("artifact root = %q", cfg.ArtifactRoot)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "parallelism: 8\n")
	nested := filepath.Join(root, "suites", "web")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Discover(nested)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if cfg.Parallelism != 8 {
		t.Errorf("parallelism = %d, want the root config", cfg.Parallelism)
	}
	if cfg.Root != root {
		t.Errorf("root = %q, want %q", cfg.Root, root)
	}
}

func TestDiscoverFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if cfg.Parallelism != 1 || cfg.ArtifactRoot != ".tessera/runs" {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "parallelism: 2\nwebdriver:\n  endpoint: http://cfg:4444\n")

	t.Setenv("TESSERA_PARALLELISM", "6")
	t.Setenv("TESSERA_WEBDRIVER_ENDPOINT", "http://env:4444")
	t.Setenv("TESSERA_LOG_LEVEL", "warn")

	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parallelism != 6 {
		t.Errorf("parallelism = %d, want env override 6", cfg.Parallelism)
	}
	if cfg.WebDriver.Endpoint != "http://env:4444" {
		t.Errorf("endpoint = %q, want env override", cfg.WebDriver.Endpoint)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
}

func TestEnvOverrideIgnoresJunk(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "parallelism: 2\n")
	t.Setenv("TESSERA_PARALLELISM", "many")
	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parallelism != 2 {
		t.Errorf("parallelism = %d, want file value kept", cfg.Parallelism)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	content := "# comment\nTESSERA_TEST_TOKEN=abc123\nQUOTED='hush'\nMALFORMED\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	t.Setenv("TESSERA_TEST_TOKEN", "")
	os.Unsetenv("TESSERA_TEST_TOKEN")
	t.Setenv("QUOTED", "")
	os.Unsetenv("QUOTED")

	LoadDotEnv()
	if got := os.Getenv("TESSERA_TEST_TOKEN"); got != "abc123" {
		t.Errorf("TESSERA_TEST_TOKEN = %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "hush" {
		t.Errorf("QUOTED = %q, want quotes stripped", got)
	}

	// Existing values win.
	os.Setenv("TESSERA_TEST_TOKEN", "keep")
	LoadDotEnv()
	if got := os.Getenv("TESSERA_TEST_TOKEN"); got != "keep" {
		t.Errorf("TESSERA_TEST_TOKEN = %q, want existing value kept", got)
	}
}
