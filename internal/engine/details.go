package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IshaanNene/AutoHarvest/internal/extract"
	"github.com/IshaanNene/AutoHarvest/internal/fetcher"
	"github.com/IshaanNene/AutoHarvest/internal/observability"
	"github.com/IshaanNene/AutoHarvest/internal/parser"
	"github.com/IshaanNene/AutoHarvest/internal/pipeline"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// DetailFetcher turns listing candidates into records. A failed fetch
// becomes an error record rather than being dropped.
type DetailFetcher struct {
	fetcher   fetcher.Fetcher
	isolator  *parser.BlockIsolator
	extractor *extract.Extractor
	pipeline  *pipeline.Pipeline
	metrics   *observability.Metrics
	workers   int
	timeout   time.Duration
	logger    *slog.Logger
}

// fetched is the outcome of the fetch stage for one candidate. index is
// the candidate's position in the input slice.
type fetched struct {
	index     int
	candidate types.Candidate
	body      []byte
	err       error
}

// NewDetailFetcher creates a DetailFetcher running at most workers
// goroutines per stage.
func NewDetailFetcher(
	f fetcher.Fetcher,
	isolator *parser.BlockIsolator,
	extractor *extract.Extractor,
	pl *pipeline.Pipeline,
	metrics *observability.Metrics,
	workers int,
	timeout time.Duration,
	logger *slog.Logger,
) *DetailFetcher {
	if workers <= 0 {
		workers = 1
	}
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}
	return &DetailFetcher{
		fetcher:   f,
		isolator:  isolator,
		extractor: extractor,
		pipeline:  pl,
		metrics:   metrics,
		workers:   workers,
		timeout:   timeout,
		logger:    logger.With("component", "detail_fetcher"),
	}
}

// FetchAndExtract fetches every candidate concurrently, then isolates and
// extracts their fields concurrently. Records come back in candidate order
// regardless of which fetch finishes first.
func (d *DetailFetcher) FetchAndExtract(ctx context.Context, candidates []types.Candidate) []*types.Record {
	if len(candidates) == 0 {
		return nil
	}

	start := time.Now()
	pages := d.fetchAll(ctx, candidates)
	records := d.parseAll(pages)

	d.logger.Info("details processed",
		"candidates", len(candidates),
		"records", len(records),
		"duration", time.Since(start),
	)
	return records
}

func (d *DetailFetcher) fetchAll(ctx context.Context, candidates []types.Candidate) []fetched {
	n := len(candidates)
	jobs := make(chan int, n)
	out := make([]fetched, n)

	var wg sync.WaitGroup
	for i := 0; i < min(d.workers, n); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out[idx] = d.fetchOne(ctx, idx, candidates[idx])
			}
		}()
	}

	for idx := range candidates {
		jobs <- idx
	}
	close(jobs)

	wg.Wait()
	return out
}

func (d *DetailFetcher) fetchOne(ctx context.Context, idx int, c types.Candidate) fetched {
	d.metrics.ActiveWorkers.Add(1)
	defer d.metrics.ActiveWorkers.Add(-1)
	d.metrics.DetailFetches.Add(1)

	result := fetched{index: idx, candidate: c}

	req, err := types.NewRequest(c.URL)
	if err != nil {
		result.err = &types.FetchError{URL: c.URL, Err: err}
		d.metrics.DetailFetchFailures.Add(1)
		return result
	}
	req.Tag = types.TagDetail
	req.Timeout = d.timeout

	resp, err := d.fetcher.Fetch(ctx, req)
	if err != nil {
		result.err = err
		d.metrics.DetailFetchFailures.Add(1)
		d.logger.Warn("detail fetch failed", "url", c.URL, "error", err)
		return result
	}

	d.metrics.BytesDownloaded.Add(int64(len(resp.Body)))
	d.logger.Debug("detail fetched", "url", c.URL, "bytes", len(resp.Body), "duration", resp.FetchDuration)
	result.body = resp.Body
	return result
}

func (d *DetailFetcher) parseAll(pages []fetched) []*types.Record {
	n := len(pages)
	if n == 0 {
		return nil
	}

	jobs := make(chan fetched, n)
	slots := make([]*types.Record, n)

	var wg sync.WaitGroup
	for i := 0; i < min(d.workers, n); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				slots[p.index] = d.parseOne(p)
			}
		}()
	}

	for _, p := range pages {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	records := make([]*types.Record, 0, n)
	for _, rec := range slots {
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records
}

// parseOne never lets a panic escape the worker; the candidate is turned
// into an error record instead.
func (d *DetailFetcher) parseOne(p fetched) (rec *types.Record) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.ParsePanics.Add(1)
			d.logger.Error("parse worker panic", "url", p.candidate.URL, "panic", r)
			rec = d.extractor.Record(types.DetailDocument{
				URL:    p.candidate.URL,
				Title:  p.candidate.Title,
				Blocks: types.ErrorBlocks(types.BlockError),
				Status: types.StatusParseError,
				Err:    &types.ParseError{URL: p.candidate.URL, Err: fmt.Errorf("panic: %v", r)},
			})
		}
	}()

	var doc types.DetailDocument
	if p.err != nil {
		doc = types.DetailDocument{
			URL:    p.candidate.URL,
			Title:  p.candidate.Title,
			Blocks: types.ErrorBlocks(types.BlockLoadError),
			Status: types.StatusFetchError,
			Err:    p.err,
		}
	} else {
		doc = d.isolator.Isolate(p.candidate.URL, p.candidate.Title, p.body)
	}

	rec = d.extractor.Record(doc)
	if d.pipeline == nil {
		return rec
	}

	out, err := d.pipeline.Process(rec.Clone())
	if err != nil {
		d.logger.Warn("pipeline rejected record, keeping raw fields", "url", rec.URL, "error", err)
		return rec
	}
	return out
}
