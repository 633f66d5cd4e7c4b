// Package resolver turns a logical module name into a loaded module by
// consulting, in order, a memo cache, the runtime's loaded modules, a
// name-prefix guess over the search path index and finally every indexed
// directory.
package resolver

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"

	"github.com/kingrea/modpath/internal/cache"
	"github.com/kingrea/modpath/internal/logging"
	"github.com/kingrea/modpath/internal/metrics"
	"github.com/kingrea/modpath/internal/module"
	"github.com/kingrea/modpath/internal/pathindex"
	"github.com/kingrea/modpath/plugins"
)

// DefaultName labels a resolver in logs and metrics when none is given.
const DefaultName = "general"

// resourceSuffix marks satellite resource requests, which never map to a
// loadable module.
const resourceSuffix = ".resources"

const maxSuggestions = 3

// Prober reports whether a candidate module file exists.
type Prober interface {
	Probe(path string) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(path string) bool

// Probe implements Prober.
func (f ProberFunc) Probe(path string) bool {
	return f(path)
}

// StatProber probes the filesystem for a regular file.
type StatProber struct{}

// Probe implements Prober.
func (StatProber) Probe(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithName labels the resolver in logs and metrics.
func WithName(name string) Option {
	return func(r *Resolver) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			r.name = trimmed
		}
	}
}

// WithExtensions sets the probe order of file extensions.
func WithExtensions(exts ...string) Option {
	return func(r *Resolver) {
		if cleaned := cleanExtensions(exts); len(cleaned) > 0 {
			r.exts = cleaned
		}
	}
}

func cleanExtensions(exts []string) []string {
	var cleaned []string
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			cleaned = append(cleaned, ext)
		}
	}
	return cleaned
}

// WithLogger overrides the default discarding logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records tier hits, misses and probes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Resolver) {
		r.metrics = c
	}
}

// WithProber replaces the filesystem prober.
func WithProber(p Prober) Option {
	return func(r *Resolver) {
		if p != nil {
			r.prober = p
		}
	}
}

// WithCache shares an existing cache instead of creating a new one.
func WithCache(c *cache.Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithIndex sets the initial index.
func WithIndex(ix pathindex.Index) Option {
	return func(r *Resolver) {
		r.index = ix
	}
}

// Resolver resolves module names against a search path index. It is safe
// for concurrent use and may be re-entered while it loads a module whose
// requirements are themselves resolved through it.
type Resolver struct {
	name    string
	runtime *module.Runtime
	cache   *cache.Cache
	logger  *log.Logger
	metrics *metrics.Collector
	prober  Prober

	mu    sync.RWMutex
	index pathindex.Index
	exts  []string
}

// New returns a resolver loading modules into rt.
func New(rt *module.Runtime, opts ...Option) *Resolver {
	r := &Resolver{
		name:    DefaultName,
		runtime: rt,
		exts:    append([]string(nil), plugins.DefaultExtensions...),
		logger:  logging.Discard(),
		prober:  StatProber{},
		index:   pathindex.Empty(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.cache == nil {
		r.cache = cache.New()
	}
	return r
}

// Name returns the resolver's label.
func (r *Resolver) Name() string {
	return r.name
}

// Cache returns the resolver's memo cache.
func (r *Resolver) Cache() *cache.Cache {
	return r.cache
}

// Extensions returns the probe order of file extensions.
func (r *Resolver) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.exts...)
}

// SetExtensions replaces the probe order of file extensions. An empty list
// keeps the current order.
func (r *Resolver) SetExtensions(exts ...string) {
	cleaned := cleanExtensions(exts)
	if len(cleaned) == 0 {
		return
	}
	r.mu.Lock()
	r.exts = cleaned
	r.mu.Unlock()
}

func (r *Resolver) snapshot() (pathindex.Index, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index, r.exts
}

// Index returns the active search path index.
func (r *Resolver) Index() pathindex.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index
}

// SetIndex swaps in a new search path index. Resolutions already in flight
// finish against the index they started with.
func (r *Resolver) SetIndex(ix pathindex.Index) {
	r.mu.Lock()
	r.index = ix
	r.mu.Unlock()
	r.metrics.SetIndexSize(ix.Len())
}

// Hook adapts the resolver to a runtime resolve hook.
func (r *Resolver) Hook() module.ResolveFunc {
	return r.resolve
}

// Resolve returns the module for name, loading it from the index when it is
// neither cached nor already loaded.
func (r *Resolver) Resolve(name string) (*module.Handle, bool) {
	return r.resolve(module.Request{Name: name})
}

func (r *Resolver) resolve(req module.Request) (*module.Handle, bool) {
	name := strings.TrimSpace(req.Name)
	if skipName(name) {
		return nil, false
	}
	if h, ok := r.cache.Get(name); ok {
		r.metrics.Resolved(r.name, metrics.TierCache)
		return h, true
	}
	if h := r.fromLoaded(name); h != nil {
		return r.remember(name, h, metrics.TierLoaded), true
	}
	ix, exts := r.snapshot()
	if dir, ok := heuristicDir(name, ix); ok {
		if h := r.probeDir(dir, name, exts); h != nil {
			return r.remember(name, h, metrics.TierHeuristic), true
		}
	}
	for _, dir := range ix.Paths() {
		if h := r.probeDir(dir, name, exts); h != nil {
			return r.remember(name, h, metrics.TierScan), true
		}
	}
	r.miss(req, ix)
	return nil, false
}

func skipName(name string) bool {
	if name == "" {
		return true
	}
	return strings.HasSuffix(module.FoldName(name), resourceSuffix)
}

func (r *Resolver) fromLoaded(name string) *module.Handle {
	if r.runtime == nil {
		return nil
	}
	for _, h := range r.runtime.Loaded() {
		if module.EqualNames(h.Name, name) {
			return h
		}
	}
	return nil
}

// heuristicDir picks the first indexed directory whose path mentions the
// name's leading dot-delimited segment.
func heuristicDir(name string, ix pathindex.Index) (string, bool) {
	hint := name
	if i := strings.Index(name, "."); i > 0 {
		hint = name[:i]
	}
	hint = module.FoldName(hint)
	if hint == "" {
		return "", false
	}
	for _, dir := range ix.Paths() {
		if strings.Contains(module.FoldName(dir), hint) {
			return dir, true
		}
	}
	return "", false
}

func (r *Resolver) probeDir(dir, name string, exts []string) *module.Handle {
	if r.runtime == nil {
		return nil
	}
	for _, ext := range exts {
		candidate := filepath.Join(dir, name+ext)
		r.metrics.Probed(r.name)
		if !r.prober.Probe(candidate) {
			continue
		}
		h, err := r.runtime.LoadFrom(candidate)
		if err != nil {
			r.metrics.LoadFailed(r.name)
			r.logger.Error("module candidate failed to load", "resolver", r.name, "name", name, "path", candidate, "err", err)
			continue
		}
		return h
	}
	return nil
}

func (r *Resolver) remember(name string, h *module.Handle, tier string) *module.Handle {
	winner := r.cache.Store(name, h)
	r.metrics.Resolved(r.name, tier)
	r.metrics.SetCacheSize(r.name, r.cache.Len())
	r.logger.Debug("module resolved", "resolver", r.name, "name", name, "tier", tier, "path", winner.Path)
	return winner
}

func (r *Resolver) miss(req module.Request, ix pathindex.Index) {
	r.metrics.Missed(r.name)
	keyvals := []any{
		"resolver", r.name,
		"name", req.Name,
		"search_paths", ix.Paths(),
	}
	if req.RequestedBy != "" {
		keyvals = append(keyvals, "requested_by", req.RequestedBy)
	}
	if suggestions := r.Suggest(req.Name); len(suggestions) > 0 {
		keyvals = append(keyvals, "did_you_mean", suggestions)
	}
	r.logger.Warn("module not found", keyvals...)
}

// Suggest returns up to three known module names that fuzzily match name.
func (r *Resolver) Suggest(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	candidates := r.knownNames()
	if len(candidates) == 0 {
		return nil
	}
	matches := fuzzy.Find(name, candidates)
	sort.Stable(matches)
	var out []string
	for _, m := range matches {
		if module.EqualNames(m.Str, name) {
			continue
		}
		out = append(out, m.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func (r *Resolver) knownNames() []string {
	seen := map[string]struct{}{}
	var names []string
	add := func(name string) {
		key := module.FoldName(name)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	if r.runtime != nil {
		for _, h := range r.runtime.Loaded() {
			add(h.Name)
		}
	}
	for _, name := range r.cache.Names() {
		add(name)
	}
	return names
}
