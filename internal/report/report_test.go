package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/modpath/internal/cache"
	"github.com/kingrea/modpath/internal/module"
	"github.com/kingrea/modpath/internal/pathindex"
)

func TestIndexListsDirectoriesInOrder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "base", "child"), 0o755))
	ix := pathindex.Build([]pathindex.Entry{{Path: filepath.Join(root, "base"), MaxDepth: 1}})

	var buf bytes.Buffer
	require.NoError(t, New(&buf, true).Index(ix, []string{".so", ".go"}))

	out := buf.String()
	assert.Contains(t, out, "SEARCH PATHS · 2 directories · .so .go")
	base := strings.Index(out, filepath.Join(root, "base")+" ")
	child := strings.Index(out, filepath.Join(root, "base", "child"))
	require.NotEqual(t, -1, base)
	require.NotEqual(t, -1, child)
	assert.Less(t, base, child)
	assert.NotContains(t, out, "SKIPPED")
}

func TestModulesAndCache(t *testing.T) {
	h := &module.Handle{
		Name:     "Core.Logging",
		Path:     "/mods/Core.Logging.so",
		Mode:     module.LoadProbing,
		Manifest: module.Manifest{Name: "Core.Logging", Version: "2.0.1"},
	}
	c := cache.New()
	c.Store("core.logging", h)

	var buf bytes.Buffer
	r := New(&buf, true)
	require.NoError(t, r.Modules([]*module.Handle{h}))
	require.NoError(t, r.Cache(c.Snapshot()))

	out := buf.String()
	assert.Contains(t, out, "LOADED MODULES · 1")
	assert.Contains(t, out, "2.0.1")
	assert.Contains(t, out, "probing")
	assert.Contains(t, out, "CACHE · 1")
	assert.Contains(t, out, "core.logging")
	assert.Contains(t, out, "/mods/Core.Logging.so")
}

func TestResolutionsMarkMisses(t *testing.T) {
	var buf bytes.Buffer
	err := New(&buf, false).Resolutions([]Resolution{
		{Name: "Found", Handle: &module.Handle{Name: "Found", Path: "/mods/Found.so"}},
		{Name: "Lost", Err: errors.New("module: not found: Lost")},
		{Name: "Quiet"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "/mods/Found.so")
	assert.Contains(t, out, "module: not found: Lost")
	assert.Equal(t, 2, strings.Count(out, "miss"))
}

func TestEnvSplitsEntries(t *testing.T) {
	sep := string(os.PathListSeparator)
	var buf bytes.Buffer
	require.NoError(t, New(&buf, true).Env("LD_LIBRARY_PATH", "/a"+sep+sep+"/b"))

	out := buf.String()
	assert.Contains(t, out, "LD_LIBRARY_PATH")
	assert.Contains(t, out, "/a")
	assert.Contains(t, out, "/b")
}
