package observability

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(testLogger())
	m.PagesFetched.Add(3)
	m.NewListings.Add(7)
	m.ActiveWorkers.Add(2)
	m.ObserveCycle(time.Now(), true)

	srv := httptest.NewServer(m.Handler("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"autoharvest_pages_fetched_total 3",
		"autoharvest_new_listings_total 7",
		"autoharvest_cycles_total 1",
		"autoharvest_cycles_failed_total 1",
		"# TYPE autoharvest_active_workers gauge",
		"autoharvest_active_workers 2",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHealthEndpoint(t *testing.T) {
	m := NewMetrics(testLogger())
	srv := httptest.NewServer(m.Handler("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(testLogger())
	m.RecordsWritten.Add(13)
	m.DetailFetchFailures.Add(1)

	snap := m.Snapshot()
	if snap["records_written"] != 13 {
		t.Errorf("records_written = %d, want 13", snap["records_written"])
	}
	if snap["detail_fetch_failures"] != 1 {
		t.Errorf("detail_fetch_failures = %d, want 1", snap["detail_fetch_failures"])
	}
}
