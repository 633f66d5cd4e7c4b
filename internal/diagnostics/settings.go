package diagnostics

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/modpath/internal/config"
)

// Request and connection limits. The listen address comes from the config
// file's diagnostics section.
const (
	DefaultMaxBodyBytes int64 = 64 << 10
	DefaultReadTimeout        = 15 * time.Second
	// DefaultWriteTimeout covers /resolve, which may load a module.
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// Environment variables that take precedence over the config file.
const (
	EnvEnabled = "MODPATH_DIAG_ENABLED"
	EnvHost    = "MODPATH_DIAG_HOST"
	EnvPort    = "MODPATH_DIAG_PORT"
)

// Settings is the resolved diagnostics listener configuration.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig starts from cfg's diagnostics section, or the
// defaults when cfg is nil, and applies MODPATH_DIAG_* overrides. A
// malformed override is an error rather than silently ignored.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	return settingsFrom(cfg, os.LookupEnv)
}

func settingsFrom(cfg *config.Config, lookup func(string) (string, bool)) (Settings, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	section := cfg.Diagnostics
	settings := Settings{
		Enabled: section.Enabled,
		Host:    section.Host,
		Port:    section.Port,
	}.withDefaults()

	if value, ok := envValue(lookup, EnvEnabled); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Settings{}, fmt.Errorf("diagnostics: %s=%q is not a boolean", EnvEnabled, value)
		}
		settings.Enabled = enabled
	}
	if value, ok := envValue(lookup, EnvHost); ok {
		settings.Host = value
	}
	if value, ok := envValue(lookup, EnvPort); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return Settings{}, fmt.Errorf("diagnostics: %s=%q is not a port", EnvPort, value)
		}
		settings.Port = port
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func envValue(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// withDefaults fills unset limits and a blank host.
func (s Settings) withDefaults() Settings {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = config.DefaultDiagnosticsHost
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	return s
}

// Validate reports settings the server cannot listen with. Port 0 asks the
// kernel for a free port.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("diagnostics: host is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("diagnostics: port %d out of range", s.Port)
	}
	return nil
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
