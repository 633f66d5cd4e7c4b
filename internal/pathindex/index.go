package pathindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"

	"github.com/kingrea/modpath/internal/logging"
)

// ErrPathAccess marks a directory that could not be enumerated. The builder
// records it and moves on.
var ErrPathAccess = errors.New("pathindex: directory not accessible")

// DefaultExcludes are directory names never worth probing.
var DefaultExcludes = []string{".git", ".svn", ".hg"}

// Entry is a configured base directory and how deep to recurse below it.
// MaxDepth 0 indexes only the directory itself.
type Entry struct {
	Path     string `json:"path" yaml:"path" toml:"path"`
	MaxDepth int    `json:"max_depth" yaml:"depth" toml:"depth"`
}

// Dir is one indexed directory.
type Dir struct {
	Path  string `json:"path"`
	Root  string `json:"root"`
	Depth int    `json:"depth"`
}

// Skipped is a directory the builder could not read.
type Skipped struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Index is an ordered, de-duplicated directory list. It is never mutated
// after Build returns; callers swap whole indexes instead.
type Index struct {
	dirs    []Dir
	skipped []Skipped
	lookup  map[string]int
}

// Empty returns an index with no directories.
func Empty() Index {
	return Index{}
}

// Dirs returns a copy of the indexed directories in probe order.
func (ix Index) Dirs() []Dir {
	return append([]Dir(nil), ix.dirs...)
}

// Paths returns the indexed directory paths in probe order.
func (ix Index) Paths() []string {
	paths := make([]string, len(ix.dirs))
	for i, d := range ix.dirs {
		paths[i] = d.Path
	}
	return paths
}

// Roots returns the base directories that existed at build time.
func (ix Index) Roots() []string {
	var roots []string
	for _, d := range ix.dirs {
		if d.Depth == 0 {
			roots = append(roots, d.Path)
		}
	}
	return roots
}

// Len reports the number of indexed directories.
func (ix Index) Len() int {
	return len(ix.dirs)
}

// Contains reports whether path is indexed.
func (ix Index) Contains(path string) bool {
	_, ok := ix.lookup[filepath.Clean(path)]
	return ok
}

// Skipped returns the directories that could not be enumerated.
func (ix Index) Skipped() []Skipped {
	return append([]Skipped(nil), ix.skipped...)
}

// Option customizes Build.
type Option func(*builder)

// WithLogger routes traversal warnings to l.
func WithLogger(l *log.Logger) Option {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithExclude skips subdirectories whose name, or slash-separated path
// relative to their base directory, matches one of the glob patterns.
// Base directories themselves are never excluded. Invalid patterns are
// logged and ignored; use ValidatePatterns to reject them up front.
func WithExclude(patterns ...string) Option {
	return func(b *builder) {
		b.patterns = append(b.patterns, patterns...)
	}
}

// ValidatePatterns reports the first exclude pattern that does not compile.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			return fmt.Errorf("pathindex: exclude pattern %q: %w", p, err)
		}
	}
	return nil
}

type builder struct {
	logger   *log.Logger
	patterns []string
	excludes []glob.Glob
	index    Index
}

// Build indexes every existing base entry in order. Missing base
// directories are skipped silently; unreadable subdirectories are logged
// and recorded in Index.Skipped.
func Build(entries []Entry, opts ...Option) Index {
	b := &builder{logger: logging.Discard()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.compileExcludes()
	b.index.lookup = map[string]int{}
	for _, entry := range entries {
		b.addEntry(entry)
	}
	return b.index
}

func (b *builder) compileExcludes() {
	for _, p := range b.patterns {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		g, err := glob.Compile(trimmed, '/')
		if err != nil {
			b.logger.Warn("ignoring invalid exclude pattern", "pattern", trimmed, "err", err)
			continue
		}
		b.excludes = append(b.excludes, g)
	}
}

func (b *builder) addEntry(entry Entry) {
	trimmed := strings.TrimSpace(entry.Path)
	if trimmed == "" {
		return
	}
	root, err := filepath.Abs(trimmed)
	if err != nil {
		b.logger.Warn("cannot resolve search path", "path", trimmed, "err", err)
		return
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		b.logger.Debug("search path does not exist, skipping", "path", root)
		return
	}
	b.push(Dir{Path: root, Root: root, Depth: 0})
	if entry.MaxDepth > 0 {
		b.walk(root, root, 1, entry.MaxDepth)
	}
}

func (b *builder) walk(root, dir string, depth, maxDepth int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.logger.Warn("cannot enumerate directory", "path", dir, "err", err)
		b.index.skipped = append(b.index.skipped, Skipped{
			Path: dir,
			Err:  fmt.Errorf("%w: %s: %w", ErrPathAccess, dir, err),
		})
	}
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if !isDir(entry, child) {
			continue
		}
		if b.excluded(root, child, entry.Name()) {
			continue
		}
		b.push(Dir{Path: child, Root: root, Depth: depth})
		if depth < maxDepth {
			b.walk(root, child, depth+1, maxDepth)
		}
	}
}

func (b *builder) push(d Dir) {
	key := filepath.Clean(d.Path)
	if _, ok := b.index.lookup[key]; ok {
		return
	}
	b.index.lookup[key] = len(b.index.dirs)
	b.index.dirs = append(b.index.dirs, d)
}

func (b *builder) excluded(root, path, name string) bool {
	if len(b.excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = name
	}
	rel = filepath.ToSlash(rel)
	for _, g := range b.excludes {
		if g.Match(name) || g.Match(rel) {
			return true
		}
	}
	return false
}

// isDir follows symlinks; the depth bound keeps link cycles finite.
func isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
