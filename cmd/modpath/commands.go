package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/modpath/internal/config"
	"github.com/kingrea/modpath/internal/diagnostics"
	"github.com/kingrea/modpath/internal/report"
	"github.com/kingrea/modpath/internal/watch"
)

const shutdownTimeout = 5 * time.Second

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if len(args) == 1 {
				path = args[0]
			}
			created, err := config.WriteDefault(path)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(opts.out, "%s already exists, left unchanged\n", path)
				return nil
			}
			fmt.Fprintf(opts.out, "wrote %s\n", path)
			return nil
		},
	}
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Show the indexed search directories in probe order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := opts.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			for _, path := range paths {
				if err := loader.AddSearchPath(path); err != nil {
					return err
				}
			}
			res := loader.Resolver()
			return report.New(opts.out, opts.noColor).Index(res.Index(), res.Extensions())
		},
	}
	cmd.Flags().StringSliceVar(&paths, "path", nil, "extra search path added after the configured ones (repeatable)")
	return cmd
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var (
		paths      []string
		showCache  bool
		showLoaded bool
	)
	cmd := &cobra.Command{
		Use:   "resolve NAME...",
		Short: "Resolve and load modules by logical name",
		Long: `Resolve each name through the module runtime and print where it was
loaded from. Exits with status 1 when any name cannot be resolved.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := opts.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			for _, path := range paths {
				if err := loader.AddSearchPath(path); err != nil {
					return err
				}
			}
			results := make([]report.Resolution, 0, len(args))
			misses := 0
			for _, name := range args {
				h, err := loader.LoadModuleByName(name)
				if err != nil {
					misses++
				}
				results = append(results, report.Resolution{Name: name, Handle: h, Err: err})
			}
			r := report.New(opts.out, opts.noColor)
			if err := r.Resolutions(results); err != nil {
				return err
			}
			if showCache {
				if err := r.Cache(loader.Resolver().Cache().Snapshot()); err != nil {
					return err
				}
			}
			if showLoaded {
				if err := r.Modules(loader.Runtime().Loaded()); err != nil {
					return err
				}
			}
			if misses > 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%d of %d modules not resolved", misses, len(args))}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&paths, "path", nil, "extra search path added after the configured ones (repeatable)")
	cmd.Flags().BoolVar(&showCache, "cache", false, "print the resolver cache after resolving")
	cmd.Flags().BoolVar(&showLoaded, "loaded", false, "print every module loaded into the runtime")
	return cmd
}

func newEnvCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the native library search variable after publishing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := opts.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			pub := loader.Publisher()
			return report.New(opts.out, opts.noColor).Env(pub.Variable, pub.Value())
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port    int
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve diagnostics and reload search paths when the config changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := opts.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			logger := loader.Logger()

			settings, err := diagnostics.SettingsFromConfig(loader.Config())
			if err != nil {
				return err
			}
			settings.Enabled = true
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			server := diagnostics.NewServer(settings, loader, diagnostics.WithLogger(logger))
			if err := server.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "diagnostics listening on %s\n", server.BaseURL())

			if !noWatch && !loader.DesignMode() {
				path, err := filepath.Abs(loader.ConfigPath())
				if err != nil {
					path = loader.ConfigPath()
				}
				watcher := watch.New(path, loader.Reload, watch.WithLogger(logger))
				if err := watcher.Start(ctx); err != nil {
					logger.Warn("config watcher unavailable", "path", path, "err", err)
				} else {
					defer watcher.Stop()
				}
			}

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintln(opts.out, "diagnostics stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", config.DefaultDiagnosticsPort, "diagnostics port (0 picks a free port)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload when the config file changes")
	return cmd
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(opts.out, "modpath %s (%s)\n", Version, Commit)
		},
	}
}
