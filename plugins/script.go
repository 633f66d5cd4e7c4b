package plugins

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kingrea/modpath/internal/module"
)

// ScriptExt is the extension of interpreted Go source modules.
const ScriptExt = ".go"

// ScriptOpener loads Go source files as modules by interpreting them. The
// file's package must be main; exported functions and variables become the
// module's symbols and ModuleManifest, if present, describes it.
type ScriptOpener struct {
	// GoPath is handed to the interpreter so scripts can import packages
	// vendored under it. Empty means standard library only.
	GoPath string
}

// Open implements module.Opener.
func (o ScriptOpener) Open(path string) (module.Image, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{GoPath: o.GoPath})
	i.Use(stdlib.Symbols)
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	img := &scriptImage{interp: i}
	if fnValue, err := i.Eval(ManifestFuncName); err == nil {
		raw, callErr := invokeManifestFunc(fnValue)
		if callErr != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, callErr)
		}
		manifest, err := manifestFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, err)
		}
		img.manifest = manifest
	}
	return img, nil
}

type scriptImage struct {
	mu       sync.Mutex
	interp   *interp.Interpreter
	manifest module.Manifest
}

func (img *scriptImage) Manifest() module.Manifest {
	return img.manifest
}

func (img *scriptImage) Lookup(symbol string) (any, error) {
	name := strings.TrimSpace(symbol)
	if name == "" {
		return nil, fmt.Errorf("plugin: symbol name is required")
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	value, err := img.interp.Eval(name)
	if err != nil {
		return nil, fmt.Errorf("plugin: lookup %s: %w", name, err)
	}
	if !value.IsValid() || !value.CanInterface() {
		return nil, fmt.Errorf("plugin: symbol %s has no value", name)
	}
	return value.Interface(), nil
}
