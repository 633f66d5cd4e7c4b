package module

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Registry is the process module table: every loaded handle indexed by
// folded name and by absolute path. The first handle registered for a name
// owns it.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Handle
	byPath map[string]*Handle
	order  []*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: map[string]*Handle{},
		byPath: map[string]*Handle{},
	}
}

// Register installs a handle. When the name or path is already taken the
// existing handle is returned with registered=false.
func (r *Registry) Register(h *Handle) (existing *Handle, registered bool, err error) {
	if h == nil {
		return nil, false, fmt.Errorf("module: handle is required")
	}
	if h.Name == "" {
		return nil, false, fmt.Errorf("module: name is required for %s", h.Path)
	}
	nameKey := FoldName(h.Name)
	pathKey := pathKey(h.Path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.byPath[pathKey]; ok {
		return prior, false, nil
	}
	if prior, ok := r.byName[nameKey]; ok {
		return prior, false, nil
	}
	r.byName[nameKey] = h
	if pathKey != "" {
		r.byPath[pathKey] = h
	}
	r.order = append(r.order, h)
	return h, true, nil
}

// Unregister removes a handle if it is the one registered under its name.
func (r *Registry) Unregister(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	nameKey := FoldName(h.Name)
	if current, ok := r.byName[nameKey]; !ok || current != h {
		return
	}
	delete(r.byName, nameKey)
	delete(r.byPath, pathKey(h.Path))
	for i, entry := range r.order {
		if entry == h {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the handle registered under name, ignoring case.
func (r *Registry) Lookup(name string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[FoldName(name)]
	return h, ok
}

// LookupPath returns the handle loaded from path.
func (r *Registry) LookupPath(path string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byPath[pathKey(path)]
	return h, ok
}

// All returns the loaded handles in load order.
func (r *Registry) All() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Handle(nil), r.order...)
}

// Names returns a sorted list of loaded module names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, h := range r.order {
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many modules are loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func pathKey(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}
