// Package engine drives harvest cycles: listing discovery, detail
// fetching and ledger updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/extract"
	"github.com/IshaanNene/AutoHarvest/internal/fetcher"
	"github.com/IshaanNene/AutoHarvest/internal/observability"
	"github.com/IshaanNene/AutoHarvest/internal/parser"
	"github.com/IshaanNene/AutoHarvest/internal/pipeline"
	"github.com/IshaanNene/AutoHarvest/internal/storage"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// CycleResult summarizes one cycle.
type CycleResult struct {
	Cycle      types.Cycle
	Pages      int
	Candidates int
	New        int
	Failed     int
	Records    []*types.Record
	Err        error
}

// Harvester runs harvest cycles against one listing site.
type Harvester struct {
	cfg       *config.Config
	logger    *slog.Logger
	fetcher   fetcher.Fetcher
	listing   *parser.ListingParser
	isolator  *parser.BlockIsolator
	extractor *extract.Extractor
	pipeline  *pipeline.Pipeline
	ledger    *storage.Ledger
	mirrors   storage.Sink
	metrics   *observability.Metrics
	columns   storage.Schema
}

// New creates a Harvester from cfg. A fetcher must be attached with
// SetFetcher before cycles can run.
func New(cfg *config.Config, logger *slog.Logger) (*Harvester, error) {
	listing, err := parser.NewListingParser(&cfg.Site, logger)
	if err != nil {
		return nil, fmt.Errorf("create listing parser: %w", err)
	}

	ext := extract.New(nil, logger)
	columns := ext.Columns()

	return &Harvester{
		cfg:       cfg,
		logger:    logger.With("component", "harvester"),
		listing:   listing,
		isolator:  parser.NewBlockIsolator(cfg.Parser.Blocks, logger),
		extractor: ext,
		pipeline:  pipeline.Default(columns, logger),
		ledger:    storage.NewLedger(cfg.Storage.LedgerPath(), cfg.Storage.DeltaPath(), logger),
		metrics:   observability.NewMetrics(logger),
		columns:   storage.NewSchema(columns...),
	}, nil
}

// SetFetcher sets the fetcher used for listing and detail pages.
func (h *Harvester) SetFetcher(f fetcher.Fetcher) {
	h.fetcher = f
}

// SetMirrors sets the secondary sinks that receive each cycle's new records.
func (h *Harvester) SetMirrors(s storage.Sink) {
	h.mirrors = s
}

// SetMetrics replaces the metrics collector.
func (h *Harvester) SetMetrics(m *observability.Metrics) {
	h.metrics = m
}

// Metrics returns the metrics collector.
func (h *Harvester) Metrics() *observability.Metrics {
	return h.metrics
}

// Ledger returns the ledger the harvester writes to.
func (h *Harvester) Ledger() *storage.Ledger {
	return h.ledger
}

// Extractor returns the field extractor.
func (h *Harvester) Extractor() *extract.Extractor {
	return h.extractor
}

// Run executes cycles until ctx is cancelled or cycle.max_cycles is reached,
// sleeping cycle.interval between them.
func (h *Harvester) Run(ctx context.Context) error {
	if h.fetcher == nil {
		return types.ErrNoFetcher
	}

	interval := h.cfg.Cycle.Interval
	for seq := 1; ; seq++ {
		res := h.RunCycle(ctx, seq)
		if errors.Is(res.Err, types.ErrHarvestStopped) {
			h.logger.Info("harvester stopped", "cycles", seq)
			return nil
		}

		if limit := h.cfg.Cycle.MaxCycles; limit > 0 && seq >= limit {
			h.logger.Info("cycle limit reached", "cycles", seq)
			return nil
		}

		h.logger.Info("sleeping until next cycle", "interval", interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			h.logger.Info("harvester stopped", "cycles", seq)
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle runs a single cycle. The mode is bootstrap when no ledger exists
// and incremental otherwise.
func (h *Harvester) RunCycle(ctx context.Context, seq int) CycleResult {
	mode := types.ModeIncremental
	if !h.ledger.Exists() {
		mode = types.ModeBootstrap
	}
	cycle := types.NewCycle(seq, mode)
	res := CycleResult{Cycle: cycle}

	if h.fetcher == nil {
		res.Err = types.ErrNoFetcher
		return res
	}
	if err := stopped(ctx); err != nil {
		res.Err = err
		return res
	}

	logger := h.logger.With("cycle", seq, "cycle_id", cycle.ID, "mode", mode.String())
	logger.Info("cycle started")
	h.ledger.SetCycle(seq)

	if mode == types.ModeBootstrap {
		h.bootstrap(ctx, logger, &res)
	} else {
		h.incremental(ctx, logger, &res)
	}

	if res.Err == nil && len(res.Records) > 0 {
		h.mirror(ctx, logger, cycle, res.Records)
	}
	h.metrics.ObserveCycle(cycle.StartedAt, res.Err != nil)

	if res.Err != nil {
		logger.Error("cycle incomplete",
			"pages", res.Pages,
			"new", res.New,
			"error", res.Err,
		)
	} else {
		logger.Info("cycle finished",
			"pages", res.Pages,
			"candidates", res.Candidates,
			"new", res.New,
			"failed", res.Failed,
			"duration", time.Since(cycle.StartedAt),
		)
	}
	return res
}

// bootstrap walks the listing from page 1 until an empty page, a failed
// page or the page limit, streaming each page's records into the ledger.
func (h *Harvester) bootstrap(ctx context.Context, logger *slog.Logger, res *CycleResult) {
	bw := h.ledger.Bootstrap()
	seen := NewKnownIndex(0)
	maxPages := h.cfg.Cycle.MaxPages

	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		if err := stopped(ctx); err != nil {
			res.Err = err
			break
		}

		candidates, err := h.fetchListing(ctx, page)
		if err != nil {
			if serr := stopped(ctx); serr != nil {
				res.Err = serr
			} else {
				logger.Warn("listing page failed, ending pagination", "page", page, "error", err)
			}
			break
		}
		if len(candidates) == 0 {
			logger.Info("empty listing page, ending pagination", "page", page)
			break
		}
		res.Pages++
		res.Candidates += len(candidates)

		records := h.details().FetchAndExtract(ctx, seen.Filter(candidates))
		if err := stopped(ctx); err != nil {
			res.Err = err
			break
		}
		if err := bw.Append(records); err != nil {
			res.Err = err
			break
		}
		h.collect(res, records)
		h.metrics.RecordsWritten.Add(int64(len(records)))
		logger.Info("page harvested", "page", page, "candidates", len(candidates), "records", len(records))
	}

	if err := bw.Close(); err != nil && res.Err == nil {
		res.Err = err
	}
	if res.Err != nil {
		return
	}

	if err := h.ledger.WriteDelta(h.columns.Union(bw.Schema()), nil); err != nil {
		res.Err = err
	}
}

// incremental scans the first pages of the listing for URLs not in the
// known index, then prepends their records to the ledger.
func (h *Harvester) incremental(ctx context.Context, logger *slog.Logger, res *CycleResult) {
	known, err := LoadKnownIndex(h.ledger, h.cfg.Cycle.KnownWindow)
	if err != nil {
		res.Err = err
		return
	}
	logger.Debug("known index loaded", "urls", known.Len())

	var records []*types.Record
	for page := 1; page <= h.cfg.Cycle.IncrementalPages; page++ {
		if err := stopped(ctx); err != nil {
			res.Err = err
			return
		}

		candidates, err := h.fetchListing(ctx, page)
		if err != nil {
			if serr := stopped(ctx); serr != nil {
				res.Err = serr
				return
			}
			logger.Warn("listing page failed, skipping", "page", page, "error", err)
			continue
		}
		if len(candidates) == 0 {
			logger.Info("empty listing page, skipping", "page", page)
			continue
		}
		res.Pages++
		res.Candidates += len(candidates)

		fresh := known.Filter(candidates)
		if len(fresh) == 0 {
			continue
		}
		pageRecords := h.details().FetchAndExtract(ctx, fresh)
		if err := stopped(ctx); err != nil {
			res.Err = err
			return
		}
		records = append(records, pageRecords...)
		logger.Debug("page scanned", "page", page, "candidates", len(candidates), "new", len(fresh))
	}
	logger.Info("listing scanned", "candidates", res.Candidates, "new", len(records))

	header, err := h.ledger.Header()
	if err != nil {
		res.Err = err
		return
	}
	schema := h.columns.Union(header)

	if err := h.ledger.WriteDelta(schema, records); err != nil {
		res.Err = err
		return
	}
	merged, err := h.ledger.Merge(records, schema)
	if err != nil {
		res.Err = err
		return
	}
	h.collect(res, records)
	h.metrics.RecordsWritten.Add(int64(len(records)))
	logger.Debug("ledger merged", "records", len(records), "columns", len(merged))
}

func (h *Harvester) fetchListing(ctx context.Context, page int) ([]types.Candidate, error) {
	pageURL := parser.ListingURL(h.cfg.Site.BaseURL, h.cfg.Site.ListingPath, h.cfg.Site.PageParam, page)
	req, err := types.NewRequest(pageURL)
	if err != nil {
		return nil, err
	}
	req.Tag = types.TagListing
	req.Timeout = h.cfg.Engine.RequestTimeout

	resp, err := h.fetcher.Fetch(ctx, req)
	if err != nil {
		h.metrics.PagesFailed.Add(1)
		return nil, err
	}
	h.metrics.PagesFetched.Add(1)
	h.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	candidates, err := h.listing.Parse(resp)
	if err != nil {
		return nil, err
	}
	h.metrics.CandidatesSeen.Add(int64(len(candidates)))
	return candidates, nil
}

func (h *Harvester) details() *DetailFetcher {
	return NewDetailFetcher(
		h.fetcher,
		h.isolator,
		h.extractor,
		h.pipeline,
		h.metrics,
		h.cfg.Engine.Concurrency,
		h.cfg.Engine.RequestTimeout,
		h.logger,
	)
}

func (h *Harvester) collect(res *CycleResult, records []*types.Record) {
	for _, rec := range records {
		if rec.Status == types.StatusFetchError || rec.Status == types.StatusParseError {
			res.Failed++
		}
	}
	res.Records = append(res.Records, records...)
	res.New += len(records)
	h.metrics.NewListings.Add(int64(len(records)))
}

// mirror copies new records to the secondary sinks. Failures never affect
// the ledger.
func (h *Harvester) mirror(ctx context.Context, logger *slog.Logger, cycle types.Cycle, records []*types.Record) {
	if h.mirrors == nil {
		return
	}
	if err := h.mirrors.Store(ctx, cycle, records); err != nil {
		h.metrics.MirrorErrors.Add(1)
		logger.Warn("mirror store failed", "sink", h.mirrors.Name(), "error", err)
	}
}

// Close releases the fetcher and mirror sinks.
func (h *Harvester) Close() error {
	var errs []error
	if h.fetcher != nil {
		errs = append(errs, h.fetcher.Close())
	}
	if h.mirrors != nil {
		errs = append(errs, h.mirrors.Close())
	}
	return errors.Join(errs...)
}

func stopped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrHarvestStopped, err)
	}
	return nil
}
