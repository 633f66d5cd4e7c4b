// Package boot sequences module-loader startup: a core resolver serves the
// process while the configuration is read and indexed, then hands over to
// the general resolver for the rest of the process lifetime.
package boot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kingrea/modpath/internal/config"
	"github.com/kingrea/modpath/internal/envpath"
	"github.com/kingrea/modpath/internal/logging"
	"github.com/kingrea/modpath/internal/metrics"
	"github.com/kingrea/modpath/internal/module"
	"github.com/kingrea/modpath/internal/pathindex"
	"github.com/kingrea/modpath/internal/resolver"
	"github.com/kingrea/modpath/plugins"
)

// Hook labels installed on the runtime.
const (
	CoreHookLabel    = "core"
	GeneralHookLabel = "general"
)

// ErrNotInitialized is returned by operations that need a completed
// Initialize.
var ErrNotInitialized = errors.New("boot: loader is not initialized")

// Options configures a Loader.
type Options struct {
	// BaseDir anchors relative boot module paths and is the default core
	// directory. Defaults to the executable's directory.
	BaseDir string
	// CoreDirs are probed, without recursion, while configuration loads.
	CoreDirs []string
	// BootModules are loaded by exact path before configuration loads.
	BootModules []BootModule
	// CoreModules are loaded by name while only the core resolver is
	// installed, so they and their requirements come from CoreDirs.
	CoreModules []string
	// DesignMode reports whether the process is hosted by a design-time
	// tool, in which case no resolver is installed.
	DesignMode func() bool
	// AddedPathDepth is the recursion depth for AddSearchPath entries.
	AddedPathDepth int
	// LockLogLevel keeps the logger's level when the config names one.
	LockLogLevel bool

	Runtime   *module.Runtime
	Logger    *log.Logger
	Metrics   *metrics.Collector
	Prober    resolver.Prober
	Publisher *envpath.Publisher
}

// Loader owns the runtime hooks, resolvers and search paths of one process.
type Loader struct {
	opts    Options
	logger  *log.Logger
	runtime *module.Runtime
	metrics *metrics.Collector
	general *resolver.Resolver
	core    *resolver.Resolver

	coreEntries []pathindex.Entry

	// initMu serializes Initialize and Reload.
	initMu sync.Mutex
	design bool

	stateMu sync.RWMutex
	state   State

	// pathMu guards the search path lists, config and env publishing.
	pathMu     sync.Mutex
	configPath string
	cfg        *config.Config
	configured []pathindex.Entry
	added      []pathindex.Entry
	excludes   []string
	publisher  *envpath.Publisher
	publish    bool
	logFile    io.Closer
}

// New builds a loader. When opts.Runtime is nil the loader creates its own
// runtime with the built-in openers registered.
func New(opts Options) (*Loader, error) {
	logger := logging.OrDiscard(opts.Logger)
	if strings.TrimSpace(opts.BaseDir) == "" {
		opts.BaseDir = defaultBaseDir()
	}
	if abs, err := filepath.Abs(opts.BaseDir); err == nil {
		opts.BaseDir = abs
	}
	if opts.AddedPathDepth < 0 {
		return nil, fmt.Errorf("boot: added path depth must be >= 0")
	}
	rt := opts.Runtime
	if rt == nil {
		rt = module.NewRuntime(module.WithLogger(logger))
		if err := plugins.RegisterOpeners(rt, nil); err != nil {
			return nil, fmt.Errorf("boot: register openers: %w", err)
		}
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.New()
	}
	coreDirs := opts.CoreDirs
	if len(coreDirs) == 0 {
		coreDirs = []string{opts.BaseDir}
	}
	coreEntries := make([]pathindex.Entry, 0, len(coreDirs))
	for _, dir := range coreDirs {
		coreEntries = append(coreEntries, pathindex.Entry{Path: dir, MaxDepth: 0})
	}
	resolverOpts := []resolver.Option{
		resolver.WithLogger(logger),
		resolver.WithMetrics(collector),
		resolver.WithProber(opts.Prober),
	}
	l := &Loader{
		opts:     opts,
		logger:   logger,
		runtime:  rt,
		metrics:  collector,
		state:    StateUninitialized,
		excludes: append([]string(nil), pathindex.DefaultExcludes...),
		publish:  true,

		coreEntries: coreEntries,
	}
	l.general = resolver.New(rt, append(resolverOpts, resolver.WithName(GeneralHookLabel))...)
	l.core = resolver.New(rt, append(resolverOpts, resolver.WithName(CoreHookLabel))...)
	return l, nil
}

func defaultBaseDir() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// State returns the current bootstrap state.
func (l *Loader) State() State {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

func (l *Loader) setState(s State) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()
	l.logger.Debug("module loader state changed", "state", s.String())
}

// Runtime returns the runtime modules are loaded into.
func (l *Loader) Runtime() *module.Runtime {
	return l.runtime
}

// Resolver returns the general resolver.
func (l *Loader) Resolver() *resolver.Resolver {
	return l.general
}

// CoreResolver returns the resolver used while configuration loads.
func (l *Loader) CoreResolver() *resolver.Resolver {
	return l.core
}

// Metrics returns the loader's metrics collector.
func (l *Loader) Metrics() *metrics.Collector {
	return l.metrics
}

// Logger returns the loader's logger.
func (l *Loader) Logger() *log.Logger {
	return l.logger
}

// DesignMode reports whether Initialize detected a design-time host.
func (l *Loader) DesignMode() bool {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	return l.design
}

// Config returns the configuration last loaded, or nil.
func (l *Loader) Config() *config.Config {
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	return l.cfg
}

// ConfigPath returns the path passed to Initialize.
func (l *Loader) ConfigPath() string {
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	return l.configPath
}

// Publisher returns the environment publisher search paths are written to.
func (l *Loader) Publisher() *envpath.Publisher {
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	return l.publisherLocked()
}

// SearchPaths returns the base entries in index order: configured paths
// followed by paths added at runtime.
func (l *Loader) SearchPaths() []pathindex.Entry {
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	return l.entriesLocked()
}

// Initialize runs the bootstrap sequence once. Later calls are no-ops.
// Configuration problems never fail initialization; the loader continues
// with an empty search path list.
func (l *Loader) Initialize(configPath string) error {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	if l.State() == StateGeneralResolverActive {
		l.logger.Debug("module loader already initialized")
		return nil
	}
	start := time.Now()
	l.logger.Info("initializing module loader", "config", configPath)
	l.pathMu.Lock()
	l.configPath = configPath
	l.pathMu.Unlock()

	if l.opts.DesignMode != nil && l.opts.DesignMode() {
		l.design = true
		l.general.SetIndex(pathindex.Empty())
		l.setState(StateGeneralResolverActive)
		l.logger.Info("design mode detected, module resolution disabled")
		return nil
	}

	l.core.SetIndex(pathindex.Build(l.coreEntries, pathindex.WithLogger(l.logger)))
	coreHook, err := l.runtime.InstallHook(CoreHookLabel, l.core.Hook())
	if err != nil {
		return fmt.Errorf("boot: install core resolver: %w", err)
	}
	l.setState(StateCoreResolverActive)

	Preload(l.runtime, l.general.Cache(), l.opts.BaseDir, l.opts.BootModules, l.logger)
	l.metrics.SetCacheSize(GeneralHookLabel, l.general.Cache().Len())
	l.loadCoreModules()

	cfg, _ := l.loadConfig(configPath)
	l.pathMu.Lock()
	l.applyConfigLocked(cfg)
	ix := l.rebuildLocked()
	l.pathMu.Unlock()
	coreHook.Remove()
	l.setState(StatePathIndexed)

	l.pathMu.Lock()
	l.publishLocked(ix)
	l.pathMu.Unlock()
	if _, err := l.runtime.InstallHook(GeneralHookLabel, l.general.Hook()); err != nil {
		return fmt.Errorf("boot: install general resolver: %w", err)
	}
	l.setState(StateGeneralResolverActive)

	l.logger.Info("module loader initialized",
		"directories", ix.Len(),
		"cached", l.general.Cache().Len(),
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// Reload re-reads the configuration passed to Initialize and rebuilds the
// index. Paths added at runtime are kept after the configured ones. Hooks
// are not touched.
func (l *Loader) Reload() error {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	if l.State() != StateGeneralResolverActive {
		return ErrNotInitialized
	}
	if l.design {
		return nil
	}
	l.pathMu.Lock()
	path := l.configPath
	l.pathMu.Unlock()
	cfg, ok := l.loadConfig(path)
	l.metrics.Reloaded(ok)
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	l.applyConfigLocked(cfg)
	ix := l.rebuildLocked()
	l.publishLocked(ix)
	l.logger.Info("search paths reloaded", "config", path, "directories", ix.Len())
	return nil
}

// AddSearchPath appends a base directory and rebuilds the index. Relative
// paths resolve against the working directory; a path already present is
// ignored.
func (l *Loader) AddSearchPath(path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return fmt.Errorf("boot: search path is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return fmt.Errorf("boot: resolve %s: %w", trimmed, err)
	}
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	for _, entry := range l.entriesLocked() {
		if filepath.Clean(entry.Path) == abs {
			l.logger.Debug("search path already present", "path", abs)
			return nil
		}
	}
	l.added = append(l.added, pathindex.Entry{Path: abs, MaxDepth: l.opts.AddedPathDepth})
	ix := l.rebuildLocked()
	l.publishLocked(ix)
	l.logger.Info("search path added", "path", abs, "directories", ix.Len())
	return nil
}

// ClearSearchPaths drops every base directory and empties the index.
// Modules already resolved stay cached.
func (l *Loader) ClearSearchPaths() {
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	l.configured = nil
	l.added = nil
	l.rebuildLocked()
	l.logger.Info("search paths cleared")
}

// LoadModuleByName returns the module registered under name, resolving it
// through the installed hooks when needed. Misses wrap module.ErrNotFound.
func (l *Loader) LoadModuleByName(name string) (*module.Handle, error) {
	return l.runtime.Load(name)
}

// Close releases the log file opened from configuration, if any.
func (l *Loader) Close() error {
	l.pathMu.Lock()
	defer l.pathMu.Unlock()
	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// loadCoreModules runs while the core hook is the only one installed.
func (l *Loader) loadCoreModules() {
	for _, name := range l.opts.CoreModules {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		h, err := l.runtime.Load(name)
		if err != nil {
			l.logger.Error("core module failed to load", "name", name, "core_dirs", l.core.Index().Paths(), "err", err)
			continue
		}
		l.logger.Debug("core module loaded", "name", h.Name, "path", h.Path)
	}
}

func (l *Loader) loadConfig(path string) (*config.Config, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		l.logger.Error("module search configuration unavailable, continuing with no search paths", "config", path, "err", err)
		return nil, false
	}
	return cfg, true
}

func (l *Loader) applyConfigLocked(cfg *config.Config) {
	l.cfg = cfg
	if cfg == nil {
		l.configured = nil
		return
	}
	l.configured = cfg.Entries()
	l.excludes = append([]string(nil), cfg.Exclude...)
	l.ensureOpeners(cfg.Extensions)
	l.general.SetExtensions(cfg.Extensions...)
	if !l.opts.LockLogLevel {
		if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
			l.logger.SetLevel(level)
		}
	}
	if cfg.Log.File != "" && l.logFile == nil {
		closer, err := logging.AttachFile(l.logger, cfg.Log.File)
		if err != nil {
			l.logger.Warn("cannot open log file", "path", cfg.Log.File, "err", err)
		} else {
			l.logFile = closer
		}
	}
	l.publish = cfg.PublishEnv()
	if l.opts.Publisher == nil {
		l.publisher = envpath.New(cfg.Env.Variable)
	}
}

func (l *Loader) ensureOpeners(exts []string) {
	have := map[string]struct{}{}
	for _, ext := range l.runtime.Extensions() {
		have[ext] = struct{}{}
	}
	for _, ext := range exts {
		if _, ok := have[ext]; ok {
			continue
		}
		opener, ok := plugins.OpenerFor(ext)
		if !ok {
			l.logger.Warn("no opener for configured extension", "extension", ext)
			continue
		}
		if err := l.runtime.RegisterOpener(ext, opener); err != nil {
			l.logger.Warn("cannot register opener", "extension", ext, "err", err)
		}
	}
}

func (l *Loader) entriesLocked() []pathindex.Entry {
	entries := make([]pathindex.Entry, 0, len(l.configured)+len(l.added))
	entries = append(entries, l.configured...)
	entries = append(entries, l.added...)
	return entries
}

func (l *Loader) rebuildLocked() pathindex.Index {
	ix := pathindex.Build(l.entriesLocked(),
		pathindex.WithExclude(l.excludes...),
		pathindex.WithLogger(l.logger),
	)
	l.general.SetIndex(ix)
	return ix
}

func (l *Loader) publishLocked(ix pathindex.Index) {
	if !l.publish || ix.Len() == 0 {
		return
	}
	publisher := l.publisherLocked()
	added, err := publisher.Publish(ix.Paths())
	if err != nil {
		l.logger.Warn("cannot publish search paths", "variable", publisher.Variable, "err", err)
		return
	}
	if added > 0 {
		l.logger.Debug("search paths published", "variable", publisher.Variable, "added", added)
	}
}

func (l *Loader) publisherLocked() *envpath.Publisher {
	if l.publisher != nil {
		return l.publisher
	}
	if l.opts.Publisher != nil {
		l.publisher = l.opts.Publisher
		return l.publisher
	}
	variable := ""
	if l.cfg != nil {
		variable = l.cfg.Env.Variable
	}
	l.publisher = envpath.New(variable)
	return l.publisher
}
