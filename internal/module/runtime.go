package module

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kingrea/modpath/internal/logging"
)

// Runtime is the host side of module loading: it owns the module table, the
// openers that turn files into images and the resolve hooks consulted when
// the table cannot satisfy a name.
type Runtime struct {
	registry *Registry
	logger   *log.Logger
	clock    func() time.Time

	openersMu sync.RWMutex
	openers   map[string]Opener

	hooksMu sync.Mutex
	hooks   []*Registration
}

// Option customizes runtime construction.
type Option func(*Runtime)

// WithLogger overrides the default discarding logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock allows tests to control load timestamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Runtime) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithOpener registers an opener for a file extension at construction time.
// Invalid extensions are ignored; use RegisterOpener to observe the error.
func WithOpener(ext string, opener Opener) Option {
	return func(r *Runtime) {
		_ = r.RegisterOpener(ext, opener)
	}
}

// NewRuntime returns a runtime with an empty module table and no openers.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		registry: NewRegistry(),
		logger:   logging.Discard(),
		clock:    func() time.Time { return time.Now().UTC() },
		openers:  map[string]Opener{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RegisterOpener installs the opener used for files ending in ext. A later
// registration for the same extension replaces the earlier one.
func (r *Runtime) RegisterOpener(ext string, opener Opener) error {
	key := strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(key, ".") || len(key) < 2 {
		return fmt.Errorf("module: extension %q must start with a dot", ext)
	}
	if opener == nil {
		return fmt.Errorf("module: opener is required for %s", key)
	}
	r.openersMu.Lock()
	defer r.openersMu.Unlock()
	r.openers[key] = opener
	return nil
}

// Extensions returns the sorted list of extensions with a registered opener.
func (r *Runtime) Extensions() []string {
	r.openersMu.RLock()
	defer r.openersMu.RUnlock()
	exts := make([]string, 0, len(r.openers))
	for ext := range r.openers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Loaded returns every module currently in the table, in load order.
func (r *Runtime) Loaded() []*Handle {
	return r.registry.All()
}

// Lookup returns an already-loaded module by name without consulting hooks.
func (r *Runtime) Lookup(name string) (*Handle, bool) {
	return r.registry.Lookup(name)
}

// LoadFile loads a module by exact path without resolving its requirements.
// It never calls a resolve hook.
func (r *Runtime) LoadFile(path string) (*Handle, error) {
	return r.load(path, LoadDirect)
}

// LoadFrom loads a module by path and then loads every module its manifest
// requires through Load. A failed requirement unloads the module again and
// returns an error wrapping ErrDependency.
func (r *Runtime) LoadFrom(path string) (*Handle, error) {
	return r.load(path, LoadProbing)
}

// Load returns the module registered under name, asking the installed hooks
// in install order when the table has no match.
func (r *Runtime) Load(name string) (*Handle, error) {
	return r.resolve(Request{Name: strings.TrimSpace(name)})
}

func (r *Runtime) resolve(req Request) (*Handle, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: empty module name", ErrNotFound)
	}
	if h, ok := r.registry.Lookup(req.Name); ok {
		return h, nil
	}
	for _, hook := range r.activeHooks() {
		h, ok := hook.fn(req)
		if ok && h != nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, req.Name)
}

func (r *Runtime) load(path string, mode LoadMode) (*Handle, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("module: path is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("module: resolve %s: %w", trimmed, err)
	}
	if h, ok := r.registry.LookupPath(abs); ok {
		return h, nil
	}
	opener, err := r.openerFor(abs)
	if err != nil {
		return nil, err
	}
	image, err := opener.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("module: open %s: %w", abs, err)
	}
	manifest := image.Manifest().Normalized()
	if manifest.Name == "" {
		manifest.Name = NameFromPath(abs)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("module: %s: %w", abs, err)
	}
	h := &Handle{
		ID:       uuid.New(),
		Name:     manifest.Name,
		Path:     abs,
		Mode:     mode,
		Manifest: manifest,
		LoadedAt: r.clock(),
		image:    image,
	}
	existing, registered, err := r.registry.Register(h)
	if err != nil {
		return nil, err
	}
	if !registered {
		if existing.Path != abs {
			r.logger.Debug("module name already loaded", "name", manifest.Name, "loaded", existing.Path, "ignored", abs)
		}
		return existing, nil
	}
	r.logger.Debug("module loaded", "name", h.Name, "path", h.Path, "mode", string(mode))
	if mode != LoadProbing {
		return h, nil
	}
	for _, dep := range manifest.Requires {
		if _, err := r.resolve(Request{Name: dep, RequestedBy: h.Name}); err != nil {
			r.registry.Unregister(h)
			return nil, fmt.Errorf("%w: %s requires %s: %w", ErrDependency, h.Name, dep, err)
		}
	}
	return h, nil
}

func (r *Runtime) openerFor(path string) (Opener, error) {
	ext := strings.ToLower(filepath.Ext(path))
	r.openersMu.RLock()
	opener, ok := r.openers[ext]
	r.openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrNoOpener, ext, path)
	}
	return opener, nil
}
