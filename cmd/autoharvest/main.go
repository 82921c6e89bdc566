package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/AutoHarvest/internal/config"
)

var (
	cfgFile     string
	verbose     bool
	outputPath  string
	concurrency int
	interval    string
	fetcherType string
	metricsOn   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autoharvest",
		Short: "AutoHarvest: vehicle auction listing harvester",
		Long: `AutoHarvest polls a vehicle auction listing site, fetches the detail page of
every listing it has not seen before, and keeps a newest-first CSV ledger
of normalized vehicle attributes together with a per-cycle delta file.

The first run walks every listing page (bootstrap). Later runs scan only the
first few pages and prepend what is new (incremental).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := applyCLIOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// harvestFlags registers the flags shared by run and once.
func harvestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "directory holding the ledger and delta files")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "detail fetch workers per stage")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http or browser")
	cmd.Flags().BoolVar(&metricsOn, "metrics", false, "serve Prometheus metrics")
}

// applyCLIOverrides applies command-line flag values to the config. Only
// flags the user actually set take effect.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("output") != nil && flags.Changed("output") {
		cfg.Storage.OutputPath = outputPath
	}
	if flags.Lookup("concurrency") != nil && flags.Changed("concurrency") {
		cfg.Engine.Concurrency = concurrency
	}
	if flags.Lookup("fetcher") != nil && flags.Changed("fetcher") {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if flags.Lookup("metrics") != nil && flags.Changed("metrics") {
		cfg.Metrics.Enabled = metricsOn
	}
	if flags.Lookup("interval") != nil && flags.Changed("interval") {
		d, err := parseInterval(interval)
		if err != nil {
			return err
		}
		cfg.Cycle.Interval = d
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return nil
}

// setupLogger creates a structured logger from the logging section.
func setupLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closer := func() {}
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}
