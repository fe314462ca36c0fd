// Vera Bridge - home-automation controller polling bridge
//
// This is the main entry point for the Vera bridge. The bridge:
//   - Polls a Vera controller for device state changes
//   - Normalizes and filters them into device events
//   - Pushes events to an HTTP sink and publishes them over MQTT
//   - Answers on-demand snapshot requests received over MQTT
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/vera-bridge/internal/bridges/vera"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/vera-bridge/internal/snapshot"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default file locations, overridable by flags or VERABRIDGE_CONFIG.
const (
	defaultConfigPath = ""
	defaultEnvFile    = ".env"
)

// options holds the global command-line flags.
type options struct {
	configPath string
	envFile    string
}

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command serves.
func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "verabridge",
		Short:         "Bridge Vera controller events to an HTTP sink and MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before environment overrides")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bridge until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "snapshot",
			Short: "Print one normalized controller snapshot as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSnapshot(cmd.Context(), opts, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "verabridge %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)
	return root
}

// getConfigPath returns the configuration file path.
// Checks VERABRIDGE_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv("VERABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// snapshotTimeout bounds the one-shot snapshot command.
const snapshotTimeout = 30 * time.Second

// runSnapshot fetches, normalizes and prints one snapshot report.
func runSnapshot(ctx context.Context, opts *options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	doc, err := vera.NewClient(cfg.Controller).FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetching snapshot: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot.Normalize(doc, time.Now())); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// runServe is the bridge lifecycle, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Global flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, opts *options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Vera bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close()
	log.Info("configuration loaded",
		"path", opts.configPath,
		"controller", fmt.Sprintf("%s:%d", cfg.Controller.Host, cfg.Controller.Port),
		"level", cfg.Logging.Level,
	)

	b, err := newBridge(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	return b.serve(ctx)
}
