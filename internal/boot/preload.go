package boot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kingrea/modpath/internal/cache"
	"github.com/kingrea/modpath/internal/logging"
	"github.com/kingrea/modpath/internal/module"
)

// BootModule is a module that must be loaded before any resolver runs. Its
// path is loaded directly so its own requirements never reach a hook.
type BootModule struct {
	Path string
	Mode module.LoadMode
}

// Validate rejects modes that could re-enter resolution during bootstrap.
func (m BootModule) Validate() error {
	if strings.TrimSpace(m.Path) == "" {
		return fmt.Errorf("boot: module path is required")
	}
	switch m.Mode {
	case "", module.LoadDirect:
		return nil
	default:
		return fmt.Errorf("boot: %s: load mode %q is not allowed during bootstrap", m.Path, m.Mode)
	}
}

// Preload loads every boot module by exact path, in order, and caches each
// under its logical name. Relative paths resolve against baseDir. Missing
// files are skipped and load failures are logged; neither stops the rest.
func Preload(rt *module.Runtime, c *cache.Cache, baseDir string, modules []BootModule, logger *log.Logger) []*module.Handle {
	logger = logging.OrDiscard(logger)
	if rt == nil {
		return nil
	}
	var loaded []*module.Handle
	for _, bm := range modules {
		if err := bm.Validate(); err != nil {
			logger.Error("skipping boot module", "err", err)
			continue
		}
		path := bm.Path
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("boot module not present", "path", path)
			} else {
				logger.Warn("boot module not accessible", "path", path, "err", err)
			}
			continue
		}
		h, err := rt.LoadFile(path)
		if err != nil {
			logger.Error("boot module failed to load", "path", path, "err", err)
			continue
		}
		if c != nil {
			h = c.Store(h.Name, h)
		}
		logger.Debug("boot module loaded", "name", h.Name, "path", h.Path)
		loaded = append(loaded, h)
	}
	return loaded
}
