// internal/config/config.go
//
// This package loads the search path configuration. A config file names the
// base directories to index, how deep to recurse below each, which module
// file extensions to probe and the ambient logging, environment and
// diagnostics settings.

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/modpath/internal/logging"
	"github.com/kingrea/modpath/internal/pathindex"
	"github.com/kingrea/modpath/plugins"
)

// ErrConfiguration reports a missing, unreadable or invalid config file.
var ErrConfiguration = errors.New("config: invalid configuration")

const (
	// DefaultFileName is the config file name `modpath init` writes.
	DefaultFileName = "modpath.yaml"
	// DefaultDepth applies to search paths that do not set their own depth.
	DefaultDepth = 5

	// DefaultDiagnosticsHost keeps the diagnostics server on loopback.
	DefaultDiagnosticsHost = "127.0.0.1"
	// DefaultDiagnosticsPort is the diagnostics port when the config names none.
	DefaultDiagnosticsPort = 8766
)

const defaultConfigYAML = `# modpath search path configuration
version: 1

# Depth used by plain search path entries. 0 indexes only the directory itself.
default_depth: 5

# Base directories, probed in this order. Relative paths resolve against this file.
search_paths:
  - ./core
  - path: ./libraries
    depth: 1

# Module file extensions, probed in this order.
extensions: [".so", ".go"]

# Subdirectories never indexed (glob patterns).
exclude: [".git", ".svn", ".hg"]

log:
  level: info
  # file: logs/modpath.log

env:
  publish: true
  # variable: LD_LIBRARY_PATH

diagnostics:
  enabled: false
  host: 127.0.0.1
  port: 8766
`

// SearchPath is one configured base directory. In YAML and TOML it is
// either a plain path string or a table with path and depth.
type SearchPath struct {
	Path  string `yaml:"path" toml:"path"`
	Depth *int   `yaml:"depth,omitempty" toml:"depth,omitempty"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file,omitempty" toml:"file,omitempty"`
}

// EnvConfig controls publishing the index to the library search variable.
type EnvConfig struct {
	Publish  *bool  `yaml:"publish,omitempty" toml:"publish,omitempty"`
	Variable string `yaml:"variable,omitempty" toml:"variable,omitempty"`
}

// DiagnosticsConfig controls the HTTP diagnostics server.
type DiagnosticsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Host    string `yaml:"host" toml:"host"`
	Port    int    `yaml:"port" toml:"port"`
}

// Config models a modpath config file.
type Config struct {
	Version      int               `yaml:"version" toml:"version"`
	DefaultDepth *int              `yaml:"default_depth,omitempty" toml:"default_depth,omitempty"`
	SearchPaths  []SearchPath      `yaml:"search_paths" toml:"search_paths"`
	Extensions   []string          `yaml:"extensions,omitempty" toml:"extensions,omitempty"`
	Exclude      []string          `yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	Log          LogConfig         `yaml:"log" toml:"log"`
	Env          EnvConfig         `yaml:"env" toml:"env"`
	Diagnostics  DiagnosticsConfig `yaml:"diagnostics" toml:"diagnostics"`

	// AssemblySearchPaths is the key older JSON configs used for a flat
	// list of base directories. It is matched ignoring case.
	AssemblySearchPaths []SearchPath `yaml:"AssemblySearchPaths,omitempty" toml:"AssemblySearchPaths,omitempty"`

	// Path is the absolute path the config was loaded from.
	Path string `yaml:"-" toml:"-"`
}

// Default returns the built-in configuration with no search paths.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, normalizes and validates the config at path. Every failure
// wraps ErrConfiguration.
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: config path is required", ErrConfiguration)
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrConfiguration, trimmed, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfiguration, abs, err)
	}
	cfg, err := Parse(data, formatFor(abs))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfiguration, abs, err)
	}
	cfg.Path = abs
	if err := cfg.finish(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfiguration, abs, err)
	}
	return cfg, nil
}

// Format names a config encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	// FormatJSON accepts comments and trailing commas.
	FormatJSON Format = "json"
)

const legacySearchPathsKey = "AssemblySearchPaths"

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Parse decodes a config without normalizing it.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, err
		}
	case FormatJSON:
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, err
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, std); err != nil {
			return nil, err
		}
		if err := decodeYAML(compact.Bytes(), &cfg); err != nil {
			return nil, err
		}
	default:
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// decodeYAML decodes data, which may also be plain JSON, and picks up the
// legacy search path key in any letter case.
func decodeYAML(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	if cfg.SearchPaths != nil || cfg.AssemblySearchPaths != nil {
		return nil
	}
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil
	}
	for key, node := range top {
		if !strings.EqualFold(key, legacySearchPathsKey) {
			continue
		}
		var paths []SearchPath
		if err := node.Decode(&paths); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if paths == nil {
			paths = []SearchPath{}
		}
		cfg.AssemblySearchPaths = paths
		return nil
	}
	return nil
}

func (c *Config) finish(base string) error {
	if c.SearchPaths == nil && c.AssemblySearchPaths != nil {
		c.SearchPaths = c.AssemblySearchPaths
	}
	c.AssemblySearchPaths = nil
	if c.SearchPaths == nil {
		return fmt.Errorf("search_paths is required")
	}
	c.applyDefaults()
	c.normalize(base)
	return c.validate()
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.DefaultDepth == nil {
		depth := DefaultDepth
		c.DefaultDepth = &depth
	}
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), plugins.DefaultExtensions...)
	}
	if c.Exclude == nil {
		c.Exclude = append([]string(nil), pathindex.DefaultExcludes...)
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.Env.Publish == nil {
		publish := true
		c.Env.Publish = &publish
	}
	if strings.TrimSpace(c.Diagnostics.Host) == "" {
		c.Diagnostics.Host = DefaultDiagnosticsHost
	}
	if c.Diagnostics.Port == 0 {
		c.Diagnostics.Port = DefaultDiagnosticsPort
	}
}

func (c *Config) normalize(base string) {
	for i := range c.SearchPaths {
		c.SearchPaths[i].Path = resolvePath(base, c.SearchPaths[i].Path)
	}
	for i, ext := range c.Extensions {
		c.Extensions[i] = strings.ToLower(strings.TrimSpace(ext))
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.File = resolvePath(base, c.Log.File)
	c.Env.Variable = strings.TrimSpace(c.Env.Variable)
	c.Diagnostics.Host = strings.TrimSpace(c.Diagnostics.Host)
}

func (c *Config) validate() error {
	if c.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if *c.DefaultDepth < 0 {
		return fmt.Errorf("default_depth must be >= 0")
	}
	for i, sp := range c.SearchPaths {
		if sp.Path == "" {
			return fmt.Errorf("search_paths[%d]: path is required", i)
		}
		if sp.Depth != nil && *sp.Depth < 0 {
			return fmt.Errorf("search_paths[%d]: depth must be >= 0", i)
		}
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("extensions[%d]: %q must start with a dot", i, ext)
		}
	}
	if err := pathindex.ValidatePatterns(c.Exclude); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Diagnostics.Port < 0 || c.Diagnostics.Port > 65535 {
		return fmt.Errorf("diagnostics.port must be between 0 and 65535")
	}
	return nil
}

// Entries returns the search paths with their effective depth.
func (c *Config) Entries() []pathindex.Entry {
	if c == nil {
		return nil
	}
	depth := DefaultDepth
	if c.DefaultDepth != nil {
		depth = *c.DefaultDepth
	}
	entries := make([]pathindex.Entry, 0, len(c.SearchPaths))
	for _, sp := range c.SearchPaths {
		entry := pathindex.Entry{Path: sp.Path, MaxDepth: depth}
		if sp.Depth != nil {
			entry.MaxDepth = *sp.Depth
		}
		entries = append(entries, entry)
	}
	return entries
}

// PublishEnv reports whether indexed directories are published to the
// environment.
func (c *Config) PublishEnv() bool {
	if c == nil || c.Env.Publish == nil {
		return true
	}
	return *c.Env.Publish
}

// WriteDefault writes the default config to path unless a file already
// exists there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("config: ensure dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return true, nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
