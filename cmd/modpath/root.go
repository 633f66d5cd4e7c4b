package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/modpath/internal/boot"
	"github.com/kingrea/modpath/internal/config"
	"github.com/kingrea/modpath/internal/logging"
	"github.com/kingrea/modpath/internal/module"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
)

// EnvDesignMode marks the process as hosted by a design-time tool.
const EnvDesignMode = "MODPATH_DESIGN_MODE"

type rootOptions struct {
	configPath  string
	baseDir     string
	logLevel    string
	coreDirs    []string
	coreModules []string
	bootFiles   []string
	designMode  bool
	noColor     bool

	out    io.Writer
	errOut io.Writer
}

// exitError carries a process exit code without printing usage.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.msg != "" {
				fmt.Fprintln(errOut, exit.msg)
			}
			return exit.code
		}
		fmt.Fprintln(errOut, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:   "modpath",
		Short: "Index module search paths and resolve modules by name",
		Long: `modpath builds a depth-bounded index of module search directories from a
config file and resolves logical module names against it: memo cache first,
then modules already loaded, then a guess from the name's leading segment,
then every indexed directory.

Examples:
  modpath init                  Write a default modpath.yaml
  modpath index                 Show the search path index
  modpath resolve Core.Logging  Resolve and load a module
  modpath serve                 Serve diagnostics and reload on config changes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultFileName, "search path config file (.yaml, .yml, .json or .toml)")
	flags.StringVar(&opts.baseDir, "base-dir", "", "application base directory (default: executable directory)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringSliceVar(&opts.coreDirs, "core-dir", nil, "directory probed while configuration loads (repeatable)")
	flags.StringSliceVar(&opts.coreModules, "core-module", nil, "module loaded by name from the core directories during startup (repeatable)")
	flags.StringSliceVar(&opts.bootFiles, "boot", nil, "module file loaded directly before configuration (repeatable)")
	flags.BoolVar(&opts.designMode, "design-mode", false, "skip resolver installation (also "+EnvDesignMode+")")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newInitCmd(opts),
		newIndexCmd(opts),
		newResolveCmd(opts),
		newEnvCmd(opts),
		newServeCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// newLoader builds and initializes a loader from the persistent flags.
func (o *rootOptions) newLoader(cmd *cobra.Command) (*boot.Loader, error) {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(o.errOut, level)
	bootModules := make([]boot.BootModule, 0, len(o.bootFiles))
	for _, path := range o.bootFiles {
		bootModules = append(bootModules, boot.BootModule{Path: path, Mode: module.LoadDirect})
	}
	loader, err := boot.New(boot.Options{
		BaseDir:      o.baseDir,
		CoreDirs:     o.coreDirs,
		CoreModules:  o.coreModules,
		BootModules:  bootModules,
		DesignMode:   o.designModeFunc(),
		Logger:       logger,
		LockLogLevel: cmd.Flags().Changed("log-level"),
	})
	if err != nil {
		return nil, err
	}
	if err := loader.Initialize(o.configPath); err != nil {
		_ = loader.Close()
		return nil, err
	}
	return loader, nil
}

func (o *rootOptions) designModeFunc() func() bool {
	return func() bool {
		if o.designMode {
			return true
		}
		value := strings.TrimSpace(os.Getenv(EnvDesignMode))
		if value == "" {
			return false
		}
		enabled, err := strconv.ParseBool(value)
		return err == nil && enabled
	}
}
