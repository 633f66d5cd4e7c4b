package plugins

import (
	"fmt"
	"strings"

	"github.com/kingrea/modpath/internal/module"
)

// DefaultExtensions is the probe order used when configuration does not
// name one: compiled plugins first, then interpreted sources.
var DefaultExtensions = []string{NativeExt, ScriptExt}

// OpenerFor returns the built-in opener for ext.
func OpenerFor(ext string) (module.Opener, bool) {
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case NativeExt:
		return NativeOpener{}, true
	case ScriptExt:
		return ScriptOpener{}, true
	default:
		return nil, false
	}
}

// RegisterOpeners installs the built-in opener for every extension in exts
// that has one. Extensions without a built-in opener are an error so a
// misconfigured probe list is caught at startup.
func RegisterOpeners(rt *module.Runtime, exts []string) error {
	if rt == nil {
		return fmt.Errorf("plugin: runtime is required")
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	for _, ext := range exts {
		opener, ok := OpenerFor(ext)
		if !ok {
			return fmt.Errorf("plugin: no built-in opener for %q", ext)
		}
		if err := rt.RegisterOpener(ext, opener); err != nil {
			return err
		}
	}
	return nil
}
