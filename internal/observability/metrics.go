package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational metrics for the harvester.
type Metrics struct {
	// Cycle metrics
	CyclesTotal     atomic.Int64
	CyclesFailed    atomic.Int64
	LastCycleUnix   atomic.Int64
	LastCycleMillis atomic.Int64

	// Listing metrics
	PagesFetched   atomic.Int64
	PagesFailed    atomic.Int64
	CandidatesSeen atomic.Int64
	NewListings    atomic.Int64

	// Detail metrics
	DetailFetches       atomic.Int64
	DetailFetchFailures atomic.Int64
	ParsePanics         atomic.Int64
	BytesDownloaded     atomic.Int64
	ActiveWorkers       atomic.Int32

	// Output metrics
	RecordsWritten atomic.Int64
	MirrorErrors   atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ObserveCycle records the completion of one cycle.
func (m *Metrics) ObserveCycle(started time.Time, failed bool) {
	m.CyclesTotal.Add(1)
	if failed {
		m.CyclesFailed.Add(1)
	}
	m.LastCycleUnix.Store(time.Now().Unix())
	m.LastCycleMillis.Store(time.Since(started).Milliseconds())
}

type metric struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) collect() []metric {
	return []metric{
		{"autoharvest_cycles_total", "Total harvest cycles run", "counter", m.CyclesTotal.Load()},
		{"autoharvest_cycles_failed_total", "Total cycles that ended incomplete", "counter", m.CyclesFailed.Load()},
		{"autoharvest_last_cycle_timestamp_seconds", "Unix time the last cycle finished", "gauge", m.LastCycleUnix.Load()},
		{"autoharvest_last_cycle_duration_milliseconds", "Duration of the last cycle", "gauge", m.LastCycleMillis.Load()},
		{"autoharvest_pages_fetched_total", "Total listing pages fetched", "counter", m.PagesFetched.Load()},
		{"autoharvest_pages_failed_total", "Total listing pages that failed to fetch", "counter", m.PagesFailed.Load()},
		{"autoharvest_candidates_seen_total", "Total listing candidates seen", "counter", m.CandidatesSeen.Load()},
		{"autoharvest_new_listings_total", "Total listings not previously in the ledger", "counter", m.NewListings.Load()},
		{"autoharvest_detail_fetches_total", "Total detail page fetches", "counter", m.DetailFetches.Load()},
		{"autoharvest_detail_fetch_failures_total", "Total failed detail page fetches", "counter", m.DetailFetchFailures.Load()},
		{"autoharvest_parse_panics_total", "Total recovered parse worker panics", "counter", m.ParsePanics.Load()},
		{"autoharvest_bytes_downloaded_total", "Total bytes downloaded", "counter", m.BytesDownloaded.Load()},
		{"autoharvest_active_workers", "Currently active detail workers", "gauge", int64(m.ActiveWorkers.Load())},
		{"autoharvest_records_written_total", "Total records written to the ledger", "counter", m.RecordsWritten.Load()},
		{"autoharvest_mirror_errors_total", "Total mirror sink failures", "counter", m.MirrorErrors.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.collect() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Handler returns a mux serving the metrics endpoint at path and /health.
func (m *Metrics) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// StartServer starts the metrics HTTP server. It shuts down when ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"cycles_total":          m.CyclesTotal.Load(),
		"cycles_failed":         m.CyclesFailed.Load(),
		"pages_fetched":         m.PagesFetched.Load(),
		"pages_failed":          m.PagesFailed.Load(),
		"candidates_seen":       m.CandidatesSeen.Load(),
		"new_listings":          m.NewListings.Load(),
		"detail_fetches":        m.DetailFetches.Load(),
		"detail_fetch_failures": m.DetailFetchFailures.Load(),
		"parse_panics":          m.ParsePanics.Load(),
		"bytes_downloaded":      m.BytesDownloaded.Load(),
		"active_workers":        int64(m.ActiveWorkers.Load()),
		"records_written":       m.RecordsWritten.Load(),
		"mirror_errors":         m.MirrorErrors.Load(),
	}
}
