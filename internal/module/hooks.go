package module

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Registration is an installed resolve hook. Remove uninstalls it; the
// runtime never installs or removes hooks on its own.
type Registration struct {
	rt      *Runtime
	label   string
	fn      ResolveFunc
	removed atomic.Bool
}

// InstallHook appends fn to the hooks consulted by Load. Hooks run in
// install order and the first one returning a handle wins.
func (r *Runtime) InstallHook(label string, fn ResolveFunc) (*Registration, error) {
	if fn == nil {
		return nil, fmt.Errorf("module: resolve hook is required")
	}
	reg := &Registration{rt: r, label: strings.TrimSpace(label), fn: fn}
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, reg)
	r.logger.Debug("resolve hook installed", "hook", reg.label)
	return reg, nil
}

// Hooks returns the labels of the installed hooks in consultation order.
func (r *Runtime) Hooks() []string {
	hooks := r.activeHooks()
	labels := make([]string, 0, len(hooks))
	for _, h := range hooks {
		labels = append(labels, h.label)
	}
	return labels
}

func (r *Runtime) activeHooks() []*Registration {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	return append([]*Registration(nil), r.hooks...)
}

// Label returns the name the hook was installed under.
func (reg *Registration) Label() string {
	if reg == nil {
		return ""
	}
	return reg.label
}

// Active reports whether the hook is still installed.
func (reg *Registration) Active() bool {
	return reg != nil && !reg.removed.Load()
}

// Remove uninstalls the hook. Calling it more than once is a no-op and
// reports false.
func (reg *Registration) Remove() bool {
	if reg == nil || !reg.removed.CompareAndSwap(false, true) {
		return false
	}
	r := reg.rt
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	for i, h := range r.hooks {
		if h == reg {
			r.hooks = append(r.hooks[:i:i], r.hooks[i+1:]...)
			break
		}
	}
	r.logger.Debug("resolve hook removed", "hook", reg.label)
	return true
}
