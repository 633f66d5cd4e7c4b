package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/modpath/internal/module"
)

// ManifestFuncName is the exported function a module defines to describe
// itself. It returns map[string]any (optionally with an error) using the
// keys name, version and requires.
const ManifestFuncName = "ModuleManifest"

// SidecarSuffix is appended to a module path to find an optional manifest
// file for images that cannot export ManifestFuncName.
const SidecarSuffix = ".manifest.yaml"

// ParseManifestYAML decodes a manifest payload. Unlike module.Manifest's
// Validate it accepts an empty name; the runtime fills it from the file.
func ParseManifestYAML(data []byte) (module.Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return module.Manifest{}, fmt.Errorf("plugin: manifest payload is empty")
	}
	var manifest module.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return module.Manifest{}, fmt.Errorf("plugin: decode manifest: %w", err)
	}
	return manifest.Normalized(), nil
}

// LoadSidecarManifest reads modulePath+SidecarSuffix. A missing sidecar
// returns ok=false without an error.
func LoadSidecarManifest(modulePath string) (manifest module.Manifest, ok bool, err error) {
	path := modulePath + SidecarSuffix
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return module.Manifest{}, false, nil
		}
		return module.Manifest{}, false, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	manifest, err = ParseManifestYAML(data)
	if err != nil {
		return module.Manifest{}, false, fmt.Errorf("plugin: %s: %w", path, err)
	}
	return manifest, true, nil
}

func manifestFromMap(raw map[string]any) (module.Manifest, error) {
	if len(raw) == 0 {
		return module.Manifest{}, nil
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return module.Manifest{}, fmt.Errorf("plugin: encode manifest: %w", err)
	}
	return ParseManifestYAML(payload)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// invokeManifestFunc calls a module's manifest function. A panic inside the
// module is returned as an error.
func invokeManifestFunc(value reflect.Value) (manifest map[string]any, err error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", ManifestFuncName)
	}
	fn := value
	if fn.Kind() == reflect.Ptr && !fn.IsNil() && fn.Elem().Kind() == reflect.Func {
		fn = fn.Elem()
	}
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", ManifestFuncName)
	}
	if fn.Type().NumIn() != 0 {
		return nil, fmt.Errorf("%s must not take arguments", ManifestFuncName)
	}
	if n := fn.Type().NumOut(); n == 0 || n > 2 {
		return nil, fmt.Errorf("%s must return (map[string]any[, error])", ManifestFuncName)
	}
	if fn.Type().NumOut() == 2 && !fn.Type().Out(1).Implements(errorType) {
		return nil, fmt.Errorf("%s second result must be an error, got %s", ManifestFuncName, fn.Type().Out(1))
	}
	defer func() {
		if rec := recover(); rec != nil {
			manifest = nil
			err = fmt.Errorf("%s panicked: %v", ManifestFuncName, rec)
		}
	}()
	results := fn.Call(nil)
	if len(results) == 2 {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
	}
	out := results[0]
	if m, ok := out.Interface().(map[string]any); ok {
		return m, nil
	}
	if out.Kind() != reflect.Map || out.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%s must return map[string]any", ManifestFuncName)
	}
	converted := make(map[string]any, out.Len())
	iter := out.MapRange()
	for iter.Next() {
		converted[iter.Key().String()] = iter.Value().Interface()
	}
	return converted, nil
}
