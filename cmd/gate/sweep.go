package main

import (
	"context"
	"fmt"
	"time"

	"personakit/gate/pkg/admission"
	"personakit/gate/pkg/admission/storage"
	"personakit/gate/pkg/cli"
	"personakit/gate/pkg/config"

	"github.com/spf13/cobra"
)

var sweepFlags struct {
	retention time.Duration
	format    string
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove idle admission windows once",
	Long: `Run a single sweep against the configured storage backend and exit.

A key is deleted when none of its recorded instants is younger than the
retention (default: sweep.retention, or twice admission.window). This is
the same pass the server runs on sweep.schedule; use it for SQLite or
Redis stores when the scheduled sweep is disabled.

Examples:
  # Sweep with configured retention
  gate sweep --config config.yaml

  # Sweep with an explicit retention
  gate sweep --retention 3h --format json`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().DurationVar(&sweepFlags.retention, "retention", 0, "override retention (must be >= admission.window)")
	sweepCmd.Flags().StringVar(&sweepFlags.format, "format", "text", "output format: text, json")
}

// sweepResult is the output of the sweep command.
type sweepResult struct {
	Backend   string `json:"backend"`
	Retention string `json:"retention"`
	Deleted   int    `json:"deleted"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

func (r sweepResult) String() string {
	s := fmt.Sprintf("✓ Swept %s store: %d idle keys deleted, %d remaining (retention %s)",
		r.Backend, r.Deleted, r.Remaining, r.Retention)
	if r.Error != "" {
		s += "\n✗ Some keys could not be swept: " + r.Error
	}
	return s
}

func runSweep(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(sweepFlags.format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	retention := cfg.SweepRetention()
	if sweepFlags.retention != 0 {
		if sweepFlags.retention < cfg.Admission.Window {
			return cli.NewConfigError("", fmt.Errorf("--retention %s is shorter than admission window %s",
				sweepFlags.retention, cfg.Admission.Window))
		}
		retention = sweepFlags.retention
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := cli.SetupSignalHandler(ctx)
	defer stop()

	result, sweepErr := sweepOnce(ctx, cfg, retention)
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if sweepErr != nil {
		return cli.NewCommandError("sweep", sweepErr)
	}
	return nil
}

// sweepOnce opens the configured store, runs one sweep and reports what
// happened. Partial failures still produce a result.
func sweepOnce(ctx context.Context, cfg *config.Config, retention time.Duration) (sweepResult, error) {
	result := sweepResult{Backend: cfg.Storage.Backend, Retention: retention.String()}

	store, err := storage.Open(cfg.Storage, retention)
	if err != nil {
		return result, err
	}
	defer store.Close()

	sweeper, err := admission.NewSweeper(admission.SweeperConfig{
		Store:     store,
		Retention: retention,
	})
	if err != nil {
		return result, err
	}

	deleted, sweepErr := sweeper.RunOnce(ctx)
	result.Deleted = deleted
	if sweepErr != nil {
		result.Error = sweepErr.Error()
	}

	if n, err := store.Len(ctx); err == nil {
		result.Remaining = n
	}
	if ctx.Err() != nil {
		return result, cli.ErrInterrupted
	}
	return result, sweepErr
}
