package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Prefix tags every line written by the resolver subsystem.
const Prefix = "modpath"

// New returns a structured logger writing timestamped lines to w.
func New(w io.Writer, level log.Level) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
}

// NewFile appends log lines to path so failures during startup can be
// inspected after the process exits. The returned closer releases the file.
func NewFile(path string, level log.Level) (*log.Logger, io.Closer, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewWithOptions(f, log.Options{
		Prefix:          Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Formatter:       log.LogfmtFormatter,
	})
	return logger, f, nil
}

// AttachFile redirects an existing logger to append logfmt lines to path.
// The returned closer releases the file.
func AttachFile(logger *log.Logger, path string) (io.Closer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logging: logger is required")
	}
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	logger.SetFormatter(log.LogfmtFormatter)
	logger.SetOutput(f)
	return f, nil
}

func openFile(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("logging: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return f, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns logger, or a discarding logger when logger is nil.
func OrDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// ParseLevel maps a config/flag value onto a log level. Empty values default
// to info.
func ParseLevel(value string) (log.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return log.InfoLevel, nil
	}
	if trimmed == "warning" {
		trimmed = "warn"
	}
	level, err := log.ParseLevel(trimmed)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("logging: unknown level %q", value)
	}
	return level, nil
}
