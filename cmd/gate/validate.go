package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"personakit/gate/pkg/admission/storage"
	"personakit/gate/pkg/cli"
	"personakit/gate/pkg/config"

	"github.com/spf13/cobra"
)

var validateFlags struct {
	checkStorage bool
	format       string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file with .env and environment overrides applied,
validate it, and print the effective admission settings.

With --check-storage the configured backend is also opened and pinged.

Examples:
  # Validate the default config file
  gate validate

  # Validate and make sure Redis is reachable
  gate validate --config prod.yaml --check-storage

  # Machine-readable summary
  gate validate --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.checkStorage, "check-storage", false, "open and ping the configured storage backend")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// validationSummary is the output of the validate command.
type validationSummary struct {
	Path          string `json:"path"`
	Limit         int    `json:"limit"`
	Window        string `json:"window"`
	FailurePolicy string `json:"failure_policy"`
	Backend       string `json:"backend"`
	SweepSchedule string `json:"sweep_schedule,omitempty"`
	Retention     string `json:"retention"`
	Storage       string `json:"storage,omitempty"`
}

func (s validationSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Configuration valid: %s\n", s.Path)
	fmt.Fprintf(&b, "  Admission:      %d per %s\n", s.Limit, s.Window)
	fmt.Fprintf(&b, "  Failure policy: %s\n", s.FailurePolicy)
	fmt.Fprintf(&b, "  Storage:        %s\n", s.Backend)
	if s.SweepSchedule != "" {
		fmt.Fprintf(&b, "  Sweep:          %s (retention %s)\n", s.SweepSchedule, s.Retention)
	} else {
		fmt.Fprintf(&b, "  Sweep:          disabled\n")
	}
	if s.Storage != "" {
		fmt.Fprintf(&b, "  Storage check:  %s", s.Storage)
	}
	return strings.TrimRight(b.String(), "\n")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	summary := validationSummary{
		Path:          cfgFile,
		Limit:         cfg.Admission.Limit,
		Window:        cfg.Admission.Window.String(),
		FailurePolicy: cfg.Admission.FailurePolicy,
		Backend:       cfg.Storage.Backend,
		Retention:     cfg.SweepRetention().String(),
	}
	if cfg.Sweep.Enabled {
		summary.SweepSchedule = cfg.Sweep.Schedule
	}

	if validateFlags.checkStorage {
		if err := pingStorage(cmd.Context(), cfg); err != nil {
			return cli.NewCommandError("validate", err)
		}
		summary.Storage = "reachable"
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), summary)
}

func pingStorage(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := storage.Open(cfg.Storage, cfg.SweepRetention())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("storage backend %s unreachable: %w", cfg.Storage.Backend, err)
	}
	return nil
}
