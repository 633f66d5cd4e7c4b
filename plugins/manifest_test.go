package plugins

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/modpath/internal/module"
)

func TestParseManifestYAML(t *testing.T) {
	manifest, err := ParseManifestYAML([]byte("name: Core.Logging\nrequires:\n  - Core.Config\n  - core.config\n"))
	require.NoError(t, err)
	assert.Equal(t, "Core.Logging", manifest.Name)
	assert.Equal(t, []string{"Core.Config"}, manifest.Requires)

	_, err = ParseManifestYAML([]byte("  "))
	require.Error(t, err)
	_, err = ParseManifestYAML([]byte("name: [unterminated"))
	require.Error(t, err)
}

func TestLoadSidecarManifest(t *testing.T) {
	dir := t.TempDir()
	modPath := writeFile(t, dir, "Native.so", "not a real plugin")

	_, ok, err := LoadSidecarManifest(modPath)
	require.NoError(t, err)
	assert.False(t, ok)

	writeFile(t, dir, "Native.so"+SidecarSuffix, "name: Native.Core\nversion: 2.0.0\n")
	manifest, ok, err := LoadSidecarManifest(modPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, module.Manifest{Name: "Native.Core", Version: "2.0.0"}, manifest)
}

func TestInvokeManifestFunc(t *testing.T) {
	raw, err := invokeManifestFunc(reflect.ValueOf(func() map[string]any {
		return map[string]any{"name": "A"}
	}))
	require.NoError(t, err)
	assert.Equal(t, "A", raw["name"])

	_, err = invokeManifestFunc(reflect.ValueOf(func() (map[string]any, error) {
		return nil, errors.New("boom")
	}))
	require.EqualError(t, err, "boom")

	_, err = invokeManifestFunc(reflect.ValueOf("not a func"))
	require.Error(t, err)
	_, err = invokeManifestFunc(reflect.ValueOf(func(int) map[string]any { return nil }))
	require.Error(t, err)
	_, err = invokeManifestFunc(reflect.Value{})
	require.Error(t, err)

	raw, err = invokeManifestFunc(reflect.ValueOf(func() (map[string]any, error) {
		return map[string]any{"name": "B"}, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "B", raw["name"])
}

func TestInvokeManifestFuncRejectsNonErrorSecondResult(t *testing.T) {
	var err error
	require.NotPanics(t, func() {
		_, err = invokeManifestFunc(reflect.ValueOf(func() (map[string]any, int) {
			return map[string]any{"name": "A"}, 0
		}))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second result must be an error")
}

func TestInvokeManifestFuncRecoversPanic(t *testing.T) {
	var err error
	require.NotPanics(t, func() {
		_, err = invokeManifestFunc(reflect.ValueOf(func() map[string]any {
			panic("manifest exploded")
		}))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest exploded")
}

func TestRegisterOpeners(t *testing.T) {
	rt := module.NewRuntime()
	require.NoError(t, RegisterOpeners(rt, nil))
	assert.Equal(t, []string{".go", ".so"}, rt.Extensions())

	require.Error(t, RegisterOpeners(rt, []string{".dll"}))
	require.Error(t, RegisterOpeners(nil, nil))
}
