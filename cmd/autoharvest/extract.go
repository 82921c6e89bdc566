package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/extract"
	"github.com/IshaanNene/AutoHarvest/internal/fetcher"
	"github.com/IshaanNene/AutoHarvest/internal/parser"
	"github.com/IshaanNene/AutoHarvest/internal/pipeline"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// extractCmd creates the "extract" subcommand, which runs the field
// extractor against a single detail page without touching the ledger.
func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [url]",
		Short: "Extract the fields of one detail page and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.ValidateURL(args[0]); err != nil {
		return fmt.Errorf("invalid URL %q: %w", args[0], err)
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	req, err := types.NewRequest(args[0])
	if err != nil {
		return err
	}
	req.Tag = types.TagDetail
	req.Timeout = cfg.Engine.RequestTimeout

	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return err
	}
	logger.Info("detail page fetched",
		"final_url", resp.FinalURL,
		"content_type", resp.ContentType,
		"bytes", len(resp.Body),
		"duration", resp.FetchDuration,
	)

	title := ""
	if doc, err := resp.Document(); err == nil {
		title = parser.SelectionText(doc.Find("h1").First())
	}

	ext := extract.New(nil, logger)
	isolator := parser.NewBlockIsolator(cfg.Parser.Blocks, logger)
	rec := ext.Record(isolator.Isolate(args[0], title, resp.Body))

	if out, err := pipeline.Default(ext.Columns(), logger).Process(rec.Clone()); err == nil && out != nil {
		rec = out
	}

	data, err := rec.ToJSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
