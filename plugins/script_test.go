package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/modpath/internal/module"
)

const scriptModuleSource = `package main

import "strings"

func ModuleManifest() (map[string]any, error) {
	return map[string]any{
		"name":     "VendorA.Widgets",
		"version":  "1.0.0",
		"requires": []string{"VendorA.Core"},
	}, nil
}

func Shout(s string) string {
	return strings.ToUpper(s)
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScriptOpenerReadsManifestAndSymbols(t *testing.T) {
	path := writeFile(t, t.TempDir(), "widgets.go", scriptModuleSource)

	img, err := ScriptOpener{}.Open(path)
	require.NoError(t, err)
	manifest := img.Manifest()
	assert.Equal(t, "VendorA.Widgets", manifest.Name)
	assert.Equal(t, "1.0.0", manifest.Version)
	assert.Equal(t, []string{"VendorA.Core"}, manifest.Requires)

	sym, err := img.Lookup("Shout")
	require.NoError(t, err)
	shout, ok := sym.(func(string) string)
	require.True(t, ok, "unexpected symbol type %T", sym)
	assert.Equal(t, "HI", shout("hi"))

	_, err = img.Lookup("Missing")
	require.Error(t, err)
}

func TestScriptOpenerWithoutManifest(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Plain.go", "package main\n\nfunc Answer() int { return 42 }\n")

	img, err := ScriptOpener{}.Open(path)
	require.NoError(t, err)
	assert.Equal(t, module.Manifest{}, img.Manifest())
}

func TestScriptOpenerRejectsBrokenSource(t *testing.T) {
	dir := t.TempDir()
	_, err := ScriptOpener{}.Open(writeFile(t, dir, "empty.go", "  \n"))
	require.Error(t, err)
	_, err = ScriptOpener{}.Open(writeFile(t, dir, "broken.go", "package main\nfunc {"))
	require.Error(t, err)
}

func TestScriptOpenerRejectsBadManifestFunc(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"IntSecond.go": "package main\n\nfunc ModuleManifest() (map[string]any, int) {\n\treturn map[string]any{\"name\": \"IntSecond\"}, 7\n}\n",
		"Panics.go":    "package main\n\nfunc ModuleManifest() map[string]any {\n\tpanic(\"no manifest today\")\n}\n",
	}
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, name, source)
			var err error
			require.NotPanics(t, func() {
				_, err = ScriptOpener{}.Open(path)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), ManifestFuncName)
		})
	}
}

func TestRuntimeSkipsScriptWithPanickingManifest(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Fragile.go", "package main\n\nfunc ModuleManifest() map[string]any {\n\tvar m map[string]any\n\tm[\"name\"] = \"x\"\n\treturn m\n}\n")

	rt := module.NewRuntime()
	require.NoError(t, RegisterOpeners(rt, []string{ScriptExt}))
	var err error
	require.NotPanics(t, func() {
		_, err = rt.LoadFrom(path)
	})
	require.Error(t, err)
	_, ok := rt.Lookup("Fragile")
	assert.False(t, ok)
}

func TestScriptModulesThroughRuntime(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "VendorA.Widgets.go", scriptModuleSource)
	core := writeFile(t, dir, "VendorA.Core.go", "package main\n\nfunc Version() string { return \"core\" }\n")

	rt := module.NewRuntime()
	require.NoError(t, RegisterOpeners(rt, []string{ScriptExt}))
	_, err := rt.InstallHook("dir", func(req module.Request) (*module.Handle, bool) {
		if req.Name != "VendorA.Core" {
			return nil, false
		}
		h, err := rt.LoadFrom(core)
		return h, err == nil
	})
	require.NoError(t, err)

	h, err := rt.LoadFrom(app)
	require.NoError(t, err)
	assert.Equal(t, "VendorA.Widgets", h.Name)
	dep, ok := rt.Lookup("vendora.core")
	require.True(t, ok)
	assert.Equal(t, core, dep.Path)
}
