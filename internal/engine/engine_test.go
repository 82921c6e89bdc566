package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/extract"
	"github.com/IshaanNene/AutoHarvest/internal/fetcher"
	"github.com/IshaanNene/AutoHarvest/internal/parser"
	"github.com/IshaanNene/AutoHarvest/internal/pipeline"
	"github.com/IshaanNene/AutoHarvest/internal/storage"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const detailTemplate = `<!DOCTYPE html>
<html><body>
  <div class="v">1 500 000 ₽</div>
  <div class="params_table">
    <div><span>Год:</span> <span>2021</span></div>
    <div><span>Пробег:</span> <span>45 000 км</span></div>
    <div><span>Номер аукциона:</span> <span>%s</span></div>
  </div>
  <div class="detail_auc__table table table_2">
    <table><tr><td>Кузов тип</td><td>Седан</td></tr></table>
  </div>
</body></html>`

// fakeSite serves listing pages at /statistic-china/?PAGE=n and one detail
// page per lot id.
type fakeSite struct {
	mu         sync.Mutex
	pages      [][]string
	failLots   map[string]bool
	failPages  map[int]bool
	detailHits atomic.Int32
}

func newFakeSite(pages ...[]string) *fakeSite {
	return &fakeSite{
		pages:     pages,
		failLots:  make(map[string]bool),
		failPages: make(map[int]bool),
	}
}

func (s *fakeSite) setPages(pages ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
}

func (s *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if r.URL.Path == "/statistic-china/" {
		page, _ := strconv.Atoi(r.URL.Query().Get("PAGE"))
		if s.failPages[page] {
			http.Error(w, "unavailable", http.StatusBadGateway)
			return
		}
		var b strings.Builder
		b.WriteString("<html><body>")
		if page >= 1 && page <= len(s.pages) {
			for _, id := range s.pages[page-1] {
				fmt.Fprintf(&b, `<div class="statistic_items_list"><a class="name" href="/statistic-china/%s/">Toyota Camry 2021 %s</a></div>`, id, id)
			}
		}
		b.WriteString("</body></html>")
		fmt.Fprint(w, b.String())
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/statistic-china/"), "/")
	s.detailHits.Add(1)
	if s.failLots[id] {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, detailTemplate, id)
}

func lots(prefix string, from, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, from+i)
	}
	return ids
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Site.BaseURL = baseURL
	cfg.Engine.Concurrency = 4
	cfg.Engine.RequestTimeout = 5 * time.Second
	cfg.Engine.RateLimit = 0
	cfg.Cycle.Interval = 10 * time.Millisecond
	cfg.Storage.OutputPath = t.TempDir()
	return cfg
}

func newTestHarvester(t *testing.T, cfg *config.Config) *Harvester {
	t.Helper()
	h, err := New(cfg, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	h.SetFetcher(f)
	t.Cleanup(func() { h.Close() })
	return h
}

func readLedger(t *testing.T, path string) (storage.Schema, []storage.Row) {
	t.Helper()
	header, rows, err := storage.NewLedger(path, "", testLogger).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return header, rows
}

func rowURLs(rows []storage.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Get(types.ColumnURL)
	}
	return out
}

// --- Known Index Tests ---

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Mado.Group/statistic-china/lot-1/", "https://mado.group/statistic-china/lot-1"},
		{"https://mado.group:443/statistic-china/lot-1#photos", "https://mado.group/statistic-china/lot-1"},
		{"https://mado.group/lot?b=2&a=1", "https://mado.group/lot?a=1&b=2"},
		{"https://mado.group", "https://mado.group/"},
	}
	for _, tt := range tests {
		if got := CanonicalizeURL(tt.in); got != tt.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKnownIndexFilter(t *testing.T) {
	idx := NewKnownIndex(0)
	idx.Add("https://mado.group/statistic-china/lot-1/")

	page1 := []types.Candidate{
		{URL: "https://mado.group/statistic-china/lot-1"},
		{URL: "https://mado.group/statistic-china/lot-2/"},
	}
	page2 := []types.Candidate{
		{URL: "https://mado.group/statistic-china/lot-2/#top"},
		{URL: "https://mado.group/statistic-china/lot-3/"},
	}

	fresh := append(idx.Filter(page1), idx.Filter(page2)...)
	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh candidates, got %d: %v", len(fresh), fresh)
	}
	if !strings.Contains(fresh[0].URL, "lot-2") || !strings.Contains(fresh[1].URL, "lot-3") {
		t.Errorf("unexpected fresh candidates: %v", fresh)
	}
	if idx.Len() != 3 {
		t.Errorf("expected index of 3, got %d", idx.Len())
	}
}

func TestLoadKnownIndexMissingLedger(t *testing.T) {
	dir := t.TempDir()
	ledger := storage.NewLedger(filepath.Join(dir, "cars.csv"), filepath.Join(dir, "new_cars.csv"), testLogger)

	idx, err := LoadKnownIndex(ledger, 100)
	if err != nil {
		t.Fatalf("LoadKnownIndex: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d", idx.Len())
	}
}

func TestLoadKnownIndexWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cars.csv")
	content := "title,url\r\n" +
		"a,https://mado.group/statistic-china/lot-1/\r\n" +
		"b,https://mado.group/statistic-china/lot-2/\r\n" +
		"c,https://mado.group/statistic-china/lot-3/\r\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := LoadKnownIndex(storage.NewLedger(path, "", testLogger), 2)
	if err != nil {
		t.Fatalf("LoadKnownIndex: %v", err)
	}
	if !idx.IsKnown("https://mado.group/statistic-china/lot-2/") {
		t.Error("lot-2 should be known")
	}
	if idx.IsKnown("https://mado.group/statistic-china/lot-3/") {
		t.Error("lot-3 is outside the window")
	}
}

func TestLoadKnownIndexCorruptLedger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cars.csv")
	if err := os.WriteFile(path, []byte("title,url,year\r\nonly-two,fields\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadKnownIndex(storage.NewLedger(path, "", testLogger), 100)
	var lerr *types.LedgerError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LedgerError, got %v", err)
	}
}

// --- Detail Fetcher Tests ---

func newTestDetailFetcher(t *testing.T, cfg *config.Config, f fetcher.Fetcher, pl *pipeline.Pipeline) *DetailFetcher {
	t.Helper()
	return NewDetailFetcher(
		f,
		parser.NewBlockIsolator(nil, testLogger),
		extract.New(nil, testLogger),
		pl,
		nil,
		cfg.Engine.Concurrency,
		cfg.Engine.RequestTimeout,
		testLogger,
	)
}

func TestDetailFetcherFaultIsolation(t *testing.T) {
	site := newFakeSite()
	site.failLots["lot-7"] = true
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	f, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var candidates []types.Candidate
	for _, id := range lots("lot", 0, 20) {
		candidates = append(candidates, types.Candidate{
			URL:   srv.URL + "/statistic-china/" + id + "/",
			Title: "Toyota Camry " + id,
		})
	}

	d := newTestDetailFetcher(t, cfg, f, nil)
	records := d.FetchAndExtract(context.Background(), candidates)
	if len(records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(records))
	}

	var failed, ok int
	for _, rec := range records {
		switch rec.Status {
		case types.StatusFetchError:
			failed++
			if !strings.Contains(rec.URL, "lot-7/") {
				t.Errorf("unexpected failed record %s", rec.URL)
			}
			if got := rec.GetString(types.ColumnPrice); got != string(types.BlockLoadError) {
				t.Errorf("failed price_rub = %q", got)
			}
			if got := rec.GetString("year"); got != string(types.NotFound) {
				t.Errorf("failed year = %q", got)
			}
			var ferr *types.FetchError
			if !errors.As(rec.Err, &ferr) || ferr.StatusCode != http.StatusInternalServerError {
				t.Errorf("expected FetchError 500, got %v", rec.Err)
			}
		case types.StatusSuccess:
			ok++
			if got := rec.GetString("year"); got != "2021" {
				t.Errorf("%s year = %q", rec.URL, got)
			}
		}
	}
	if failed != 1 || ok != 19 {
		t.Errorf("expected 1 failed and 19 successful, got %d and %d", failed, ok)
	}
	if hits := site.detailHits.Load(); hits != 20 {
		t.Errorf("expected exactly 20 detail requests, got %d", hits)
	}
}

type staticFetcher struct {
	body []byte
}

func (f *staticFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	return &types.Response{Request: req, StatusCode: 200, Body: f.body}, nil
}

func (f *staticFetcher) Close() error { return nil }
func (f *staticFetcher) Type() string { return "static" }

type panicMiddleware struct{ target string }

func (m *panicMiddleware) Name() string { return "panic" }

func (m *panicMiddleware) Process(rec *types.Record) (*types.Record, error) {
	if strings.Contains(rec.URL, m.target) {
		panic("unexpected markup")
	}
	return rec, nil
}

func TestDetailFetcherRecoversPanic(t *testing.T) {
	cfg := testConfig(t, "https://mado.group")
	pl := pipeline.New(testLogger)
	pl.Use(&panicMiddleware{target: "lot-2"})

	f := &staticFetcher{body: []byte(fmt.Sprintf(detailTemplate, "1"))}
	d := newTestDetailFetcher(t, cfg, f, pl)

	candidates := []types.Candidate{
		{URL: "https://mado.group/statistic-china/lot-1/", Title: "a"},
		{URL: "https://mado.group/statistic-china/lot-2/", Title: "b"},
		{URL: "https://mado.group/statistic-china/lot-3/", Title: "c"},
	}
	records := d.FetchAndExtract(context.Background(), candidates)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, rec := range records {
		if strings.Contains(rec.URL, "lot-2") {
			if rec.Status != types.StatusParseError {
				t.Errorf("panicking record status = %v", rec.Status)
			}
			if got := rec.GetString(types.ColumnPrice); got != string(types.BlockError) {
				t.Errorf("panicking record price_rub = %q", got)
			}
		} else if rec.Status != types.StatusSuccess {
			t.Errorf("%s status = %v", rec.URL, rec.Status)
		}
	}
}

// slowFetcher delays responses for URLs containing slow.
type slowFetcher struct {
	slow  string
	delay time.Duration
}

func (f *slowFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if strings.Contains(req.URLString(), f.slow) {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	body := fmt.Sprintf(detailTemplate, req.URLString())
	return &types.Response{Request: req, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *slowFetcher) Close() error { return nil }
func (f *slowFetcher) Type() string { return "slow" }

func TestDetailFetcherKeepsCandidateOrder(t *testing.T) {
	cfg := testConfig(t, "https://mado.group")
	f := &slowFetcher{slow: "lot-0/", delay: 200 * time.Millisecond}
	d := newTestDetailFetcher(t, cfg, f, nil)

	var candidates []types.Candidate
	for _, id := range lots("lot", 0, 6) {
		candidates = append(candidates, types.Candidate{URL: "https://mado.group/statistic-china/" + id + "/", Title: id})
	}

	records := d.FetchAndExtract(context.Background(), candidates)
	if len(records) != len(candidates) {
		t.Fatalf("expected %d records, got %d", len(candidates), len(records))
	}
	for i, rec := range records {
		if rec.URL != candidates[i].URL {
			t.Errorf("record %d = %s, want %s", i, rec.URL, candidates[i].URL)
		}
	}
}

func TestDetailFetcherEmpty(t *testing.T) {
	cfg := testConfig(t, "https://mado.group")
	d := newTestDetailFetcher(t, cfg, &staticFetcher{}, nil)
	if got := d.FetchAndExtract(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

// --- Cycle Tests ---

func TestBootstrapPagination(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 3), lots("lot", 3, 3))
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	h := newTestHarvester(t, cfg)

	res := h.RunCycle(context.Background(), 1)
	if res.Err != nil {
		t.Fatalf("RunCycle: %v", res.Err)
	}
	if res.Cycle.Mode != types.ModeBootstrap {
		t.Errorf("expected bootstrap mode, got %s", res.Cycle.Mode)
	}
	if res.Pages != 2 || res.New != 6 {
		t.Errorf("pages = %d new = %d, want 2 and 6", res.Pages, res.New)
	}

	header, rows := readLedger(t, cfg.Storage.LedgerPath())
	if len(rows) != 6 {
		t.Fatalf("expected 6 ledger rows, got %d", len(rows))
	}
	if !header.Covers(storage.NewSchema(h.Extractor().Columns()...)) {
		t.Errorf("ledger header %v lacks extractor columns", header)
	}
	if got := rows[0].Get("year"); got != "2021" {
		t.Errorf("year = %q", got)
	}

	deltaHeader, deltaRows := readLedger(t, cfg.Storage.DeltaPath())
	if len(deltaRows) != 0 {
		t.Errorf("bootstrap delta should be empty, got %d rows", len(deltaRows))
	}
	if !deltaHeader.Covers(header) {
		t.Errorf("delta header %v does not cover ledger header %v", deltaHeader, header)
	}
}

func TestBootstrapStopsAtMaxPages(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 2), lots("lot", 2, 2), lots("lot", 4, 2))
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Cycle.MaxPages = 2
	h := newTestHarvester(t, cfg)

	res := h.RunCycle(context.Background(), 1)
	if res.Err != nil {
		t.Fatalf("RunCycle: %v", res.Err)
	}
	if res.Pages != 2 || res.New != 4 {
		t.Errorf("pages = %d new = %d, want 2 and 4", res.Pages, res.New)
	}
}

func TestBootstrapStopsOnFailedPage(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 2), lots("lot", 2, 2), lots("lot", 4, 2))
	site.failPages[2] = true
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	h := newTestHarvester(t, cfg)

	res := h.RunCycle(context.Background(), 1)
	if res.Err != nil {
		t.Fatalf("RunCycle: %v", res.Err)
	}
	if res.Pages != 1 || res.New != 2 {
		t.Errorf("pages = %d new = %d, want 1 and 2", res.Pages, res.New)
	}
}

func TestIncrementalPrependsNewListings(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 5), lots("lot", 5, 5))
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	h := newTestHarvester(t, cfg)

	if res := h.RunCycle(context.Background(), 1); res.Err != nil {
		t.Fatalf("bootstrap: %v", res.Err)
	}
	_, before := readLedger(t, cfg.Storage.LedgerPath())

	// Two new lots appear at the top of page 1 and push the rest down; one
	// of them also shows up again on page 2.
	page1 := append([]string{"new-1", "new-2"}, lots("lot", 0, 3)...)
	page2 := append([]string{"new-2"}, lots("lot", 3, 4)...)
	site.setPages(page1, page2)
	hitsBefore := site.detailHits.Load()

	res := h.RunCycle(context.Background(), 2)
	if res.Err != nil {
		t.Fatalf("incremental: %v", res.Err)
	}
	if res.Cycle.Mode != types.ModeIncremental {
		t.Errorf("expected incremental mode, got %s", res.Cycle.Mode)
	}
	if res.New != 2 {
		t.Fatalf("expected 2 new listings, got %d", res.New)
	}
	if hits := site.detailHits.Load() - hitsBefore; hits != 2 {
		t.Errorf("expected 2 detail fetches, got %d", hits)
	}

	_, after := readLedger(t, cfg.Storage.LedgerPath())
	if len(after) != len(before)+2 {
		t.Fatalf("ledger rows = %d, want %d", len(after), len(before)+2)
	}
	top := strings.Join(rowURLs(after[:2]), " ")
	if !strings.Contains(top, "/new-1/") || !strings.Contains(top, "/new-2/") {
		t.Errorf("new listings not at the top: %s", top)
	}
	if strings.Join(rowURLs(after[2:]), " ") != strings.Join(rowURLs(before), " ") {
		t.Error("existing rows changed order")
	}

	_, delta := readLedger(t, cfg.Storage.DeltaPath())
	if len(delta) != 2 {
		t.Errorf("expected 2 delta rows, got %d", len(delta))
	}
}

func TestIncrementalKeepsPageOrder(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 3))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/statistic-china/p1-new/" {
			time.Sleep(300 * time.Millisecond)
		}
		site.ServeHTTP(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	h := newTestHarvester(t, cfg)

	if res := h.RunCycle(context.Background(), 1); res.Err != nil {
		t.Fatalf("bootstrap: %v", res.Err)
	}
	site.setPages(append([]string{"p1-new"}, lots("lot", 0, 3)...), []string{"p2-new"})

	res := h.RunCycle(context.Background(), 2)
	if res.Err != nil || res.New != 2 {
		t.Fatalf("incremental: new=%d err=%v", res.New, res.Err)
	}

	for _, path := range []string{cfg.Storage.LedgerPath(), cfg.Storage.DeltaPath()} {
		_, rows := readLedger(t, path)
		if len(rows) < 2 {
			t.Fatalf("%s has %d rows", path, len(rows))
		}
		urls := rowURLs(rows[:2])
		if !strings.HasSuffix(urls[0], "/p1-new/") || !strings.HasSuffix(urls[1], "/p2-new/") {
			t.Errorf("%s top rows = %v, want page 1 listing first", filepath.Base(path), urls)
		}
	}
}

func TestIncrementalIdempotent(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 4), lots("lot", 4, 4))
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	h := newTestHarvester(t, cfg)

	if res := h.RunCycle(context.Background(), 1); res.Err != nil {
		t.Fatalf("bootstrap: %v", res.Err)
	}
	site.setPages(append([]string{"new-1"}, lots("lot", 0, 4)...), lots("lot", 4, 4))
	if res := h.RunCycle(context.Background(), 2); res.Err != nil || res.New != 1 {
		t.Fatalf("first incremental: new=%d err=%v", res.New, res.Err)
	}

	ledgerBefore, err := os.ReadFile(cfg.Storage.LedgerPath())
	if err != nil {
		t.Fatal(err)
	}

	res := h.RunCycle(context.Background(), 3)
	if res.Err != nil {
		t.Fatalf("second incremental: %v", res.Err)
	}
	if res.New != 0 {
		t.Errorf("expected no new listings, got %d", res.New)
	}

	ledgerAfter, err := os.ReadFile(cfg.Storage.LedgerPath())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ledgerBefore, ledgerAfter) {
		t.Error("ledger changed on a cycle with no new listings")
	}

	deltaHeader, deltaRows := readLedger(t, cfg.Storage.DeltaPath())
	if len(deltaRows) != 0 {
		t.Errorf("expected header-only delta, got %d rows", len(deltaRows))
	}
	if len(deltaHeader) == 0 {
		t.Error("delta header missing")
	}
}

func TestIncrementalSkipsFailedPage(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 2), lots("lot", 2, 2))
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	h := newTestHarvester(t, cfg)
	if res := h.RunCycle(context.Background(), 1); res.Err != nil {
		t.Fatalf("bootstrap: %v", res.Err)
	}

	site.setPages(lots("lot", 0, 2), lots("lot", 2, 2), []string{"new-3"})
	site.mu.Lock()
	site.failPages[2] = true
	site.mu.Unlock()

	res := h.RunCycle(context.Background(), 2)
	if res.Err != nil {
		t.Fatalf("incremental: %v", res.Err)
	}
	if res.Pages != 2 || res.New != 1 {
		t.Errorf("pages = %d new = %d, want 2 and 1", res.Pages, res.New)
	}
}

func TestRunCycleCancelled(t *testing.T) {
	cfg := testConfig(t, "https://mado.group")
	h, err := New(cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	h.SetFetcher(&staticFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.RunCycle(ctx, 1)
	if !errors.Is(res.Err, types.ErrHarvestStopped) {
		t.Errorf("expected ErrHarvestStopped, got %v", res.Err)
	}
	if h.Ledger().Exists() {
		t.Error("cancelled cycle must not create a ledger")
	}
}

func TestRunHonorsMaxCycles(t *testing.T) {
	site := newFakeSite(lots("lot", 0, 2))
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Cycle.MaxCycles = 3
	h := newTestHarvester(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := h.Metrics().Snapshot()
	if snap["cycles_total"] != 3 {
		t.Errorf("cycles_total = %d, want 3", snap["cycles_total"])
	}
	if snap["new_listings"] != 2 {
		t.Errorf("new_listings = %d, want 2", snap["new_listings"])
	}
}

func TestRunWithoutFetcher(t *testing.T) {
	cfg := testConfig(t, "https://mado.group")
	h, err := New(cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Run(context.Background()); !errors.Is(err, types.ErrNoFetcher) {
		t.Errorf("expected ErrNoFetcher, got %v", err)
	}
}
