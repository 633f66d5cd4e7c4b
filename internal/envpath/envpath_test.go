package envpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv map[string]string

func (e fakeEnv) publisher(variable string) *Publisher {
	p := New(variable)
	p.Separator = ":"
	p.Getenv = func(k string) string { return e[k] }
	p.Setenv = func(k, v string) error {
		e[k] = v
		return nil
	}
	return p
}

func TestPublishAppendsPreservingExistingOrder(t *testing.T) {
	env := fakeEnv{"MODS": "/usr/lib:/opt/a"}
	p := env.publisher("MODS")

	added, err := p.Publish([]string{"/opt/b", "/opt/a", "/opt/c", "/opt/b", ""})
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	assert.Equal(t, "/usr/lib:/opt/a:/opt/b:/opt/c", env["MODS"])
	assert.Equal(t, env["MODS"], p.Value())
}

func TestPublishIsIdempotent(t *testing.T) {
	env := fakeEnv{}
	p := env.publisher("MODS")
	paths := []string{"/opt/a", "/opt/b"}

	first, err := p.Publish(paths)
	require.NoError(t, err)
	second, err := p.Publish(paths)
	require.NoError(t, err)

	assert.Equal(t, 2, first)
	assert.Zero(t, second)
	assert.Equal(t, "/opt/a:/opt/b", env["MODS"])
}

func TestPublishTreatsCleanedPathsAsDuplicates(t *testing.T) {
	env := fakeEnv{"MODS": "/opt/a/"}
	p := env.publisher("MODS")

	added, err := p.Publish([]string{"/opt/a", "/opt/./a"})
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestPublishReportsSetenvFailure(t *testing.T) {
	p := fakeEnv{}.publisher("MODS")
	p.Setenv = func(string, string) error { return errors.New("read-only environment") }

	added, err := p.Publish([]string{"/opt/a"})
	require.Error(t, err)
	assert.Zero(t, added)
}

func TestDefaultVariable(t *testing.T) {
	assert.Equal(t, "PATH", DefaultVariable("windows"))
	assert.Equal(t, "DYLD_LIBRARY_PATH", DefaultVariable("darwin"))
	assert.Equal(t, "LD_LIBRARY_PATH", DefaultVariable("linux"))
	assert.NotEmpty(t, New("").Variable)
	assert.Equal(t, "CUSTOM", New(" CUSTOM ").Variable)
}

func TestPublishUsesRealEnvironment(t *testing.T) {
	t.Setenv("MODPATH_TEST_LIBS", "")
	p := New("MODPATH_TEST_LIBS")

	added, err := p.Publish([]string{t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.NotEmpty(t, p.Value())
}
