package module

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

var (
	// ErrNotFound reports that no loaded module, hook or search path could
	// satisfy a module name.
	ErrNotFound = errors.New("module: not found")
	// ErrDependency reports that a module loaded but one of its declared
	// requirements could not be resolved.
	ErrDependency = errors.New("module: unresolved dependency")
	// ErrNoOpener reports a file extension no opener is registered for.
	ErrNoOpener = errors.New("module: no opener for file type")
	// ErrUnsupported reports an opener that cannot run on this platform.
	ErrUnsupported = errors.New("module: unsupported on this platform")
)

// LoadMode records how a module entered the runtime.
type LoadMode string

const (
	// LoadDirect opens a file by exact path and never resolves its
	// requirements, so it cannot re-enter the resolve hooks.
	LoadDirect LoadMode = "direct"
	// LoadProbing opens a file and then loads every declared requirement by
	// name, which may invoke the installed resolve hooks.
	LoadProbing LoadMode = "probing"
)

// Manifest describes a module image: its logical name, version and the
// logical names of the modules it needs at load time.
type Manifest struct {
	Name     string   `json:"name" yaml:"name"`
	Version  string   `json:"version,omitempty" yaml:"version,omitempty"`
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// Normalized returns a trimmed copy with blank and duplicate requirements
// removed.
func (m Manifest) Normalized() Manifest {
	clone := Manifest{
		Name:    strings.TrimSpace(m.Name),
		Version: strings.TrimSpace(m.Version),
	}
	if len(m.Requires) > 0 {
		seen := make(map[string]struct{}, len(m.Requires))
		for _, req := range m.Requires {
			trimmed := strings.TrimSpace(req)
			if trimmed == "" {
				continue
			}
			key := FoldName(trimmed)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			clone.Requires = append(clone.Requires, trimmed)
		}
	}
	return clone
}

// Validate ensures the manifest is usable by the runtime.
func (m Manifest) Validate() error {
	normalized := m.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("module: manifest name is required")
	}
	for _, req := range normalized.Requires {
		if EqualNames(req, normalized.Name) {
			return fmt.Errorf("module %s: requires itself", normalized.Name)
		}
	}
	return nil
}

// Image is an opened module file.
type Image interface {
	// Manifest returns the image's declared manifest. A zero Name means the
	// runtime derives the name from the file.
	Manifest() Manifest
	// Lookup returns an exported symbol.
	Lookup(symbol string) (any, error)
}

// Opener turns a file into an Image. Openers are registered per extension.
type Opener interface {
	Open(path string) (Image, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Image, error)

// Open implements Opener.
func (f OpenerFunc) Open(path string) (Image, error) {
	return f(path)
}

// Handle is a module loaded into the runtime. Handles are never copied by
// the runtime; identity comparisons on *Handle are meaningful.
type Handle struct {
	ID       uuid.UUID
	Name     string
	Path     string
	Mode     LoadMode
	Manifest Manifest
	LoadedAt time.Time

	image Image
}

// Lookup returns an exported symbol from the module image.
func (h *Handle) Lookup(symbol string) (any, error) {
	if h == nil || h.image == nil {
		return nil, fmt.Errorf("module: handle has no image")
	}
	return h.image.Lookup(symbol)
}

// String implements fmt.Stringer.
func (h *Handle) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s)", h.Name, h.Path)
}

// Request is what resolve hooks receive. It is passed by value and never
// mutated.
type Request struct {
	// Name is the logical module name being asked for.
	Name string
	// RequestedBy is the logical name of the module whose requirement
	// triggered the request, empty for top-level loads.
	RequestedBy string
}

// ResolveFunc is a hook the runtime calls when its table cannot satisfy a
// module name. It returns the loaded handle or false.
type ResolveFunc func(req Request) (*Handle, bool)

// FoldName returns the case-insensitive key for a module name.
func FoldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// EqualNames reports whether two module names are equal ignoring case.
func EqualNames(a, b string) bool {
	return FoldName(a) == FoldName(b)
}

// NameFromPath derives a logical module name from a file path by dropping
// the directory and the final extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
