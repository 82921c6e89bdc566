package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/engine"
	"github.com/IshaanNene/AutoHarvest/internal/fetcher"
	"github.com/IshaanNene/AutoHarvest/internal/storage"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest continuously",
		Long:  "Run harvest cycles forever (or until cycle.max_cycles), sleeping cycle.interval between them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return harvest(cmd, false)
		},
	}
	harvestFlags(cmd)
	cmd.Flags().StringVar(&interval, "interval", "", "time between cycles, e.g. 30m")
	return cmd
}

// onceCmd creates the "once" subcommand.
func onceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single harvest cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return harvest(cmd, true)
		},
	}
	harvestFlags(cmd)
	return cmd
}

func harvest(cmd *cobra.Command, single bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := buildHarvester(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	logger.Info("starting harvester",
		"version", config.Version,
		"site", cfg.Site.BaseURL,
		"fetcher", cfg.Fetcher.Type,
		"concurrency", cfg.Engine.Concurrency,
		"interval", cfg.Cycle.Interval,
		"ledger", cfg.Storage.LedgerPath(),
	)

	if !single {
		return h.Run(ctx)
	}

	res := h.RunCycle(ctx, 1)
	if res.Err != nil && !errors.Is(res.Err, types.ErrHarvestStopped) {
		return fmt.Errorf("cycle %d: %w", res.Cycle.Seq, res.Err)
	}

	fmt.Printf("\n%s cycle complete in %s\n", res.Cycle.Mode, time.Since(res.Cycle.StartedAt).Round(time.Millisecond))
	fmt.Printf("   Pages:       %d\n", res.Pages)
	fmt.Printf("   Candidates:  %d\n", res.Candidates)
	fmt.Printf("   New:         %d (%d failed)\n", res.New, res.Failed)
	fmt.Printf("   Ledger:      %s\n", cfg.Storage.LedgerPath())
	fmt.Printf("   Delta:       %s\n", cfg.Storage.DeltaPath())
	return nil
}

// buildHarvester wires the fetcher, mirrors and metrics into a Harvester.
func buildHarvester(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Harvester, error) {
	h, err := engine.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create harvester: %w", err)
	}

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	h.SetFetcher(f)

	if mirrors := storage.OpenMirrors(ctx, &cfg.Storage, logger); mirrors.Len() > 0 {
		h.SetMirrors(mirrors)
	}

	if cfg.Metrics.Enabled {
		if err := h.Metrics().StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}
	return h, nil
}

func parseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return d, nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("AutoHarvest %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
