//go:build (linux || darwin || freebsd) && cgo

package plugins

import (
	"fmt"
	"plugin"
	"reflect"

	"github.com/kingrea/modpath/internal/module"
)

// NativeExt is the extension of compiled Go plugin modules.
const NativeExt = ".so"

// NativeOpener loads Go plugins built with -buildmode=plugin.
type NativeOpener struct{}

// Open implements module.Opener.
func (NativeOpener) Open(path string) (module.Image, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: open %s: %w", path, err)
	}
	img := &nativeImage{plugin: p}
	if sym, err := p.Lookup(ManifestFuncName); err == nil {
		raw, callErr := invokeManifestFunc(reflect.ValueOf(sym))
		if callErr != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, callErr)
		}
		manifest, err := manifestFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, err)
		}
		img.manifest = manifest
		return img, nil
	}
	manifest, ok, err := LoadSidecarManifest(path)
	if err != nil {
		return nil, err
	}
	if ok {
		img.manifest = manifest
	}
	return img, nil
}

type nativeImage struct {
	plugin   *plugin.Plugin
	manifest module.Manifest
}

func (img *nativeImage) Manifest() module.Manifest {
	return img.manifest
}

func (img *nativeImage) Lookup(symbol string) (any, error) {
	sym, err := img.plugin.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("plugin: lookup %s: %w", symbol, err)
	}
	return sym, nil
}
