// Package moduletest provides a file-backed fake opener so tests can build
// module trees out of plain files.
//
// A fake module file contains an optional YAML manifest:
//
//	name: Core.Logging
//	requires: [Core.Config]
//
// An empty file yields a module named after the file stem.
package moduletest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/modpath/internal/module"
)

// Image is a fake module image exposing its manifest and a fixed symbol set.
type Image struct {
	manifest module.Manifest
	symbols  map[string]any
}

// Manifest implements module.Image.
func (img *Image) Manifest() module.Manifest {
	return img.manifest
}

// Lookup implements module.Image.
func (img *Image) Lookup(symbol string) (any, error) {
	value, ok := img.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("moduletest: symbol %s not found", symbol)
	}
	return value, nil
}

// Opener opens fake module files and records every path it opened.
type Opener struct {
	mu     sync.Mutex
	opened []string
}

// Open implements module.Opener.
func (o *Opener) Open(path string) (module.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.opened = append(o.opened, path)
	o.mu.Unlock()
	var manifest module.Manifest
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("moduletest: bad image %s: %w", path, err)
		}
	}
	return &Image{
		manifest: manifest,
		symbols:  map[string]any{"Path": path},
	}, nil
}

// Opened returns the paths opened so far.
func (o *Opener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

// NewRuntime returns a runtime with the fake opener registered for every
// extension in exts.
func NewRuntime(t testing.TB, exts ...string) (*module.Runtime, *Opener) {
	t.Helper()
	opener := &Opener{}
	rt := module.NewRuntime()
	for _, ext := range exts {
		if err := rt.RegisterOpener(ext, opener); err != nil {
			t.Fatalf("register opener %s: %v", ext, err)
		}
	}
	return rt, opener
}

// WriteModule writes a fake module file at dir/rel (creating directories)
// and returns its absolute path.
func WriteModule(t testing.TB, dir, rel, manifest string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("abs %s: %v", path, err)
	}
	return abs
}

// MkdirAll creates dir/rel and returns its absolute path.
func MkdirAll(t testing.TB, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("abs %s: %v", path, err)
	}
	return abs
}
