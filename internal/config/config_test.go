package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(body)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "modpath.yaml", `
version: 1
default_depth: 3
search_paths:
  - ./core
  - path: libraries
    depth: 1
  - /opt/modules
extensions: [".GO", ".so"]
exclude: ["node_modules"]
log:
  level: DEBUG
  file: logs/modpath.log
env:
  publish: false
  variable: MY_LIBS
diagnostics:
  enabled: true
  port: 9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	entries := cfg.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Path != filepath.Join(dir, "core") || entries[0].MaxDepth != 3 {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Path != filepath.Join(dir, "libraries") || entries[1].MaxDepth != 1 {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if entries[2].Path != filepath.Clean("/opt/modules") {
		t.Fatalf("absolute path changed: %q", entries[2].Path)
	}
	if strings.Join(cfg.Extensions, ",") != ".go,.so" {
		t.Fatalf("unexpected extensions %v", cfg.Extensions)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != filepath.Join(dir, "logs", "modpath.log") {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if cfg.PublishEnv() || cfg.Env.Variable != "MY_LIBS" {
		t.Fatalf("unexpected env config %+v", cfg.Env)
	}
	if !cfg.Diagnostics.Enabled || cfg.Diagnostics.Host != "127.0.0.1" || cfg.Diagnostics.Port != 9000 {
		t.Fatalf("unexpected diagnostics config %+v", cfg.Diagnostics)
	}
	if cfg.Path != path {
		t.Fatalf("expected Path %q, got %q", path, cfg.Path)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "modpath.toml", `
version = 1
search_paths = ["core", { path = "libraries", depth = 2 }]
extensions = [".so"]

[log]
level = "warn"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	entries := cfg.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].MaxDepth != DefaultDepth {
		t.Fatalf("expected default depth, got %d", entries[0].MaxDepth)
	}
	if entries[1].Path != filepath.Join(dir, "libraries") || entries[1].MaxDepth != 2 {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected warn level, got %q", cfg.Log.Level)
	}
	if !cfg.PublishEnv() {
		t.Fatal("expected env publishing to default on")
	}
}

func TestLoadAcceptsLegacyJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "assembly.json", `
{
  "AssemblySearchPaths": ["plugins", "../shared"]
}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	entries := cfg.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Path != filepath.Clean(filepath.Join(dir, "..", "shared")) {
		t.Fatalf("unexpected legacy entry %+v", entries[1])
	}
	if entries[0].MaxDepth != DefaultDepth {
		t.Fatalf("expected default depth, got %d", entries[0].MaxDepth)
	}
}

func TestLoadLegacyJSONIsLenient(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "assembly.json", `
{
	// base directories, probed in order
	"assemblySearchPaths": [
		"plugins", /* core */
		"vendor",
	],
}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	entries := cfg.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != filepath.Join(dir, "plugins") || entries[1].Path != filepath.Join(dir, "vendor") {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestParseLegacyKeyIgnoresCase(t *testing.T) {
	cfg, err := Parse([]byte("assemblysearchpaths:\n  - path: /opt/mods\n    depth: 2\n"), FormatYAML)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cfg.AssemblySearchPaths) != 1 || cfg.AssemblySearchPaths[0].Path != "/opt/mods" {
		t.Fatalf("unexpected legacy paths %+v", cfg.AssemblySearchPaths)
	}

	if _, err := Parse([]byte(`{"AssemblySearchPaths": [1, 2`), FormatJSON); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestLoadDefaultDepthZero(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "modpath.yml", `
default_depth: 0
search_paths: [a]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.Entries()[0].MaxDepth; got != 0 {
		t.Fatalf("expected depth 0, got %d", got)
	}
}

func TestLoadErrorsWrapErrConfiguration(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing":          filepath.Join(dir, "absent.yaml"),
		"bad yaml":         writeConfig(t, dir, "bad.yaml", "search_paths: [unclosed"),
		"bad toml":         writeConfig(t, dir, "bad.toml", "search_paths = ["),
		"no search paths":  writeConfig(t, dir, "empty.yaml", "version: 1"),
		"negative depth":   writeConfig(t, dir, "depth.yaml", "search_paths:\n  - path: a\n    depth: -1"),
		"bad extension":    writeConfig(t, dir, "ext.yaml", "search_paths: [a]\nextensions: [so]"),
		"bad level":        writeConfig(t, dir, "level.yaml", "search_paths: [a]\nlog:\n  level: loud"),
		"bad port":         writeConfig(t, dir, "port.yaml", "search_paths: [a]\ndiagnostics:\n  port: 70000"),
		"bad exclude":      writeConfig(t, dir, "exclude.yaml", "search_paths: [a]\nexclude: ['[open']"),
		"blank entry path": writeConfig(t, dir, "blank.yaml", "search_paths:\n  - path: ''"),
		"empty path":       "",
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", DefaultFileName)

	written, err := WriteDefault(path)
	if err != nil || !written {
		t.Fatalf("WriteDefault = %v, %v", written, err)
	}
	written, err = WriteDefault(path)
	if err != nil || written {
		t.Fatalf("second WriteDefault should not overwrite: %v, %v", written, err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	entries := cfg.Entries()
	if len(entries) != 2 || entries[1].MaxDepth != 1 {
		t.Fatalf("unexpected default entries %+v", entries)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Version != 1 || *cfg.DefaultDepth != DefaultDepth {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.Entries()) != 0 {
		t.Fatal("default config should have no search paths")
	}
	if strings.Join(cfg.Extensions, ",") != ".so,.go" {
		t.Fatalf("unexpected default extensions %v", cfg.Extensions)
	}
}
