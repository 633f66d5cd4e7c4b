//go:build !((linux || darwin || freebsd) && cgo)

package plugins

import (
	"fmt"

	"github.com/kingrea/modpath/internal/module"
)

// NativeExt is the extension of compiled Go plugin modules.
const NativeExt = ".so"

// NativeOpener reports module.ErrUnsupported: Go plugins need cgo on
// linux, darwin or freebsd.
type NativeOpener struct{}

// Open implements module.Opener.
func (NativeOpener) Open(path string) (module.Image, error) {
	return nil, fmt.Errorf("plugin: open %s: %w", path, module.ErrUnsupported)
}
