package module_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/modpath/internal/module"
	"github.com/kingrea/modpath/internal/module/moduletest"
)

func TestLoadFileRegistersByManifestName(t *testing.T) {
	dir := t.TempDir()
	path := moduletest.WriteModule(t, dir, "core/logging.dll", "name: Core.Logging\nversion: 1.2.0\n")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	h, err := rt.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Core.Logging", h.Name)
	assert.Equal(t, module.LoadDirect, h.Mode)
	assert.Equal(t, "1.2.0", h.Manifest.Version)

	found, ok := rt.Lookup("core.logging")
	require.True(t, ok)
	assert.Same(t, h, found)

	sym, err := h.Lookup("Path")
	require.NoError(t, err)
	assert.Equal(t, path, sym)
}

func TestLoadFileDefaultsNameToStem(t *testing.T) {
	dir := t.TempDir()
	path := moduletest.WriteModule(t, dir, "VendorA.Widgets.dll", "")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	h, err := rt.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "VendorA.Widgets", h.Name)
}

func TestLoadSamePathTwiceReturnsSameHandle(t *testing.T) {
	dir := t.TempDir()
	path := moduletest.WriteModule(t, dir, "A.dll", "")
	rt, opener := moduletest.NewRuntime(t, ".dll")

	first, err := rt.LoadFrom(path)
	require.NoError(t, err)
	second, err := rt.LoadFile(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, opener.Opened(), 1)
}

func TestLoadSameNameDifferentPathKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	one := moduletest.WriteModule(t, dir, "one/A.dll", "")
	two := moduletest.WriteModule(t, dir, "two/A.dll", "")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	first, err := rt.LoadFile(one)
	require.NoError(t, err)
	second, err := rt.LoadFile(two)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, len(rt.Loaded()))
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := moduletest.WriteModule(t, dir, "A.txt", "")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	_, err := rt.LoadFile(path)
	require.ErrorIs(t, err, module.ErrNoOpener)
}

func TestLoadConsultsHooksInOrder(t *testing.T) {
	dir := t.TempDir()
	path := moduletest.WriteModule(t, dir, "Plugin.dll", "")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	var calls []string
	_, err := rt.InstallHook("first", func(req module.Request) (*module.Handle, bool) {
		calls = append(calls, "first:"+req.Name)
		return nil, false
	})
	require.NoError(t, err)
	_, err = rt.InstallHook("second", func(req module.Request) (*module.Handle, bool) {
		calls = append(calls, "second:"+req.Name)
		h, err := rt.LoadFrom(path)
		return h, err == nil
	})
	require.NoError(t, err)

	h, err := rt.Load("Plugin")
	require.NoError(t, err)
	assert.Equal(t, "Plugin", h.Name)
	assert.Equal(t, []string{"first:Plugin", "second:Plugin"}, calls)

	// The table satisfies the second load without any hook.
	calls = nil
	again, err := rt.Load("plugin")
	require.NoError(t, err)
	assert.Same(t, h, again)
	assert.Empty(t, calls)
}

func TestLoadMissReportsNotFound(t *testing.T) {
	rt, _ := moduletest.NewRuntime(t, ".dll")
	_, err := rt.Load("Missing")
	require.ErrorIs(t, err, module.ErrNotFound)

	_, err = rt.Load("   ")
	require.ErrorIs(t, err, module.ErrNotFound)
}

func TestHookRemove(t *testing.T) {
	rt, _ := moduletest.NewRuntime(t, ".dll")
	reg, err := rt.InstallHook("core", func(module.Request) (*module.Handle, bool) { return nil, false })
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, rt.Hooks())
	assert.True(t, reg.Active())

	assert.True(t, reg.Remove())
	assert.False(t, reg.Remove())
	assert.False(t, reg.Active())
	assert.Empty(t, rt.Hooks())

	_, err = rt.InstallHook("nil", nil)
	require.Error(t, err)
}

func TestLoadFromResolvesRequirementsThroughHooks(t *testing.T) {
	dir := t.TempDir()
	app := moduletest.WriteModule(t, dir, "App.dll", "name: App\nrequires: [Lib]\n")
	lib := moduletest.WriteModule(t, dir, "deps/Lib.dll", "")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	var requests []module.Request
	_, err := rt.InstallHook("deps", func(req module.Request) (*module.Handle, bool) {
		requests = append(requests, req)
		if req.Name != "Lib" {
			return nil, false
		}
		h, err := rt.LoadFrom(lib)
		return h, err == nil
	})
	require.NoError(t, err)

	h, err := rt.LoadFrom(app)
	require.NoError(t, err)
	assert.Equal(t, "App", h.Name)
	require.Len(t, requests, 1)
	assert.Equal(t, module.Request{Name: "Lib", RequestedBy: "App"}, requests[0])
	_, ok := rt.Lookup("Lib")
	assert.True(t, ok)
}

func TestLoadFromUnregistersOnMissingRequirement(t *testing.T) {
	dir := t.TempDir()
	app := moduletest.WriteModule(t, dir, "App.dll", "requires: [Missing]\n")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	_, err := rt.LoadFrom(app)
	require.ErrorIs(t, err, module.ErrDependency)
	require.ErrorIs(t, err, module.ErrNotFound)
	_, ok := rt.Lookup("App")
	assert.False(t, ok)
}

func TestLoadFileSkipsRequirements(t *testing.T) {
	dir := t.TempDir()
	app := moduletest.WriteModule(t, dir, "App.dll", "requires: [Missing]\n")
	rt, _ := moduletest.NewRuntime(t, ".dll")
	called := false
	_, err := rt.InstallHook("spy", func(module.Request) (*module.Handle, bool) {
		called = true
		return nil, false
	})
	require.NoError(t, err)

	h, err := rt.LoadFile(app)
	require.NoError(t, err)
	assert.Equal(t, "App", h.Name)
	assert.False(t, called)
}

func TestLoadFromCyclicRequirementsTerminate(t *testing.T) {
	dir := t.TempDir()
	a := moduletest.WriteModule(t, dir, "A.dll", "requires: [B]\n")
	b := moduletest.WriteModule(t, dir, "B.dll", "requires: [A]\n")
	rt, _ := moduletest.NewRuntime(t, ".dll")
	_, err := rt.InstallHook("dir", func(req module.Request) (*module.Handle, bool) {
		h, err := rt.LoadFrom(filepath.Join(dir, req.Name+".dll"))
		return h, err == nil
	})
	require.NoError(t, err)

	h, err := rt.LoadFrom(a)
	require.NoError(t, err)
	assert.Equal(t, "A", h.Name)
	hb, ok := rt.Lookup("B")
	require.True(t, ok)
	assert.Equal(t, b, hb.Path)
}

func TestRegisterOpenerValidatesExtension(t *testing.T) {
	rt := module.NewRuntime()
	require.Error(t, rt.RegisterOpener("dll", &moduletest.Opener{}))
	require.Error(t, rt.RegisterOpener(".dll", nil))
	require.NoError(t, rt.RegisterOpener(".DLL", &moduletest.Opener{}))
	assert.Equal(t, []string{".dll"}, rt.Extensions())
}

func TestManifestValidate(t *testing.T) {
	m := module.Manifest{Name: " A ", Requires: []string{"B", " ", "b", "C"}}.Normalized()
	assert.Equal(t, "A", m.Name)
	assert.Equal(t, []string{"B", "C"}, m.Requires)

	require.Error(t, module.Manifest{}.Validate())
	require.Error(t, module.Manifest{Name: "A", Requires: []string{"a"}}.Validate())
}

func TestConcurrentLoadFileSamePath(t *testing.T) {
	dir := t.TempDir()
	path := moduletest.WriteModule(t, dir, "Shared.dll", "")
	rt, _ := moduletest.NewRuntime(t, ".dll")

	var wg sync.WaitGroup
	handles := make([]*module.Handle, 16)
	errs := make([]error, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = rt.LoadFile(path)
		}(i)
	}
	wg.Wait()
	for i := range handles {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
	assert.Len(t, rt.Loaded(), 1)
}

func TestNameHelpers(t *testing.T) {
	assert.True(t, module.EqualNames("VendorA.Widgets", "vendora.WIDGETS"))
	assert.Equal(t, "Foo.Bar", module.NameFromPath(filepath.Join("x", "Foo.Bar.so")))
	assert.False(t, errors.Is(module.ErrNotFound, module.ErrDependency))
}
