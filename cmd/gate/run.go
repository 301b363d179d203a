package main

import (
	"context"
	"fmt"
	"log/slog"

	"personakit/gate/pkg/cli"
	"personakit/gate/pkg/config"

	"github.com/spf13/cobra"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gate server",
	Long: `Start the gate server with the specified configuration.

The server admits each generation request against the caller's sliding
window before calling the model. Admission limit, window, log level and
sweep retention are reloaded live when the config file changes.

Examples:
  # Start with default config
  gate run

  # Start with custom config
  gate run --config /etc/gate/config.yaml

  # Override listen address
  gate run --listen 0.0.0.0:8080

  # Build every component without starting the server
  gate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "build all components and exit without serving")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload configuration when the file changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{LogWriter: cmd.OutOrStdout()})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.close(shutdownCtx)
	}()
	slog.SetDefault(a.logger.Logger)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid, all components initialized")
		return nil
	}

	printBanner(cmd, cfg)

	if err := a.start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	if runFlags.watch {
		config.OnReload(a.applyConfig)

		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:   cfgFile,
			Logger: a.logger.Logger,
		})
		if err != nil {
			slog.Warn("config watcher disabled", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					slog.Error("config watcher failed", "error", err)
				}
			}()
			defer func() { _ = watcher.Stop() }()
		}
	}

	if err := a.server.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Gate v%s\n", Version)
	fmt.Fprintf(out, "✓ Configuration loaded from %s\n", cfgFile)
	fmt.Fprintf(out, "✓ Admission: %d requests per %s per user (failure policy: %s)\n",
		cfg.Admission.Limit, cfg.Admission.Window, cfg.Admission.FailurePolicy)
	fmt.Fprintf(out, "✓ Storage backend: %s\n", cfg.Storage.Backend)
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s\n", cfg.Telemetry.Metrics.Path)
	}
	if verbose {
		slog.Debug("sweep configured",
			"enabled", cfg.Sweep.Enabled,
			"schedule", cfg.Sweep.Schedule,
			"retention", cfg.SweepRetention(),
		)
	}
}
