// Package envpath appends indexed directories to the process's library
// search variable so native modules can find their own shared-library
// dependencies.
package envpath

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// DefaultVariable returns the library search variable for goos.
func DefaultVariable(goos string) string {
	switch goos {
	case "windows":
		return "PATH"
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}

// Publisher appends directories to an environment variable. Publish is
// idempotent: existing entries keep their order and nothing is added twice.
type Publisher struct {
	Variable  string
	Separator string
	Getenv    func(string) string
	Setenv    func(string, string) error

	mu sync.Mutex
}

// New returns a publisher for variable, or the platform default when
// variable is empty.
func New(variable string) *Publisher {
	if strings.TrimSpace(variable) == "" {
		variable = DefaultVariable(runtime.GOOS)
	}
	return &Publisher{
		Variable:  strings.TrimSpace(variable),
		Separator: string(os.PathListSeparator),
		Getenv:    os.Getenv,
		Setenv:    os.Setenv,
	}
}

// Publish appends every path not already present and reports how many were
// added.
func (p *Publisher) Publish(paths []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sep := p.Separator
	if sep == "" {
		sep = string(os.PathListSeparator)
	}
	current := p.Getenv(p.Variable)
	var entries []string
	seen := map[string]struct{}{}
	if current != "" {
		for _, entry := range strings.Split(current, sep) {
			entries = append(entries, entry)
			if entry != "" {
				seen[key(entry)] = struct{}{}
			}
		}
	}
	added := 0
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		k := key(trimmed)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		entries = append(entries, trimmed)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := p.Setenv(p.Variable, strings.Join(entries, sep)); err != nil {
		return 0, err
	}
	return added, nil
}

// Value returns the variable's current value.
func (p *Publisher) Value() string {
	return p.Getenv(p.Variable)
}

func key(path string) string {
	cleaned := filepath.Clean(path)
	if runtime.GOOS == "windows" {
		return strings.ToLower(cleaned)
	}
	return cleaned
}
