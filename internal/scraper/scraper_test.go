package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/calcengine/calcengine/internal/cache"
	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/metrics"
	"github.com/calcengine/calcengine/internal/scheduler"
)

type staticSource engine.PerformanceStats

func (s staticSource) PerformanceStats() engine.PerformanceStats { return engine.PerformanceStats(s) }

func TestScrape_RoundTrip(t *testing.T) {
	last := time.Unix(1700000000, 0).UTC()
	src := staticSource{
		Engine: engine.Stats{
			ActiveRequests:   1,
			CalculationCount: 12,
			CacheHitCount:    30,
			CanceledCount:    2,
			DedupedCount:     4,
			LastCalculatedAt: last,
		},
		Cache:     cache.Stats{Size: 12, MaxSize: 100, Evictions: 3},
		Scheduler: scheduler.Metrics{AverageComputation: 40 * time.Millisecond, Workers: 4, Running: 1},
		HitRate:   71.42,

		Calculators: 8,
	}
	srv := httptest.NewServer(metrics.Handler(src))
	defer srv.Close()

	s, err := New(config.ClientConfig{MetricsURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}

	if got := st.Requests[metrics.OutcomeCompleted]; got != 12 {
		t.Errorf("completed = %v, want 12", got)
	}
	if got := st.Requests[metrics.OutcomeCacheHit]; got != 30 {
		t.Errorf("cache_hit = %v, want 30", got)
	}
	if got := st.TotalRequests(); got != 44 {
		t.Errorf("TotalRequests = %v, want 44", got)
	}
	if st.Deduped != 4 || st.Active != 1 || st.Workers != 4 || st.Calculators != 8 {
		t.Errorf("status = %+v", st)
	}
	if st.CacheEntries != 12 || st.CacheCapacity != 100 || st.CacheEvictions != 3 {
		t.Errorf("cache = %v/%v evictions %v", st.CacheEntries, st.CacheCapacity, st.CacheEvictions)
	}
	if st.AvgComputation != 40*time.Millisecond {
		t.Errorf("AvgComputation = %v, want 40ms", st.AvgComputation)
	}
	if !st.LastCalculated.Equal(last) {
		t.Errorf("LastCalculated = %v, want %v", st.LastCalculated, last)
	}
}

func TestScrape_SendsAPIKey(t *testing.T) {
	t.Setenv("CALCENGINE_SCRAPE_KEY", "k1")
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Api-Key")
		w.Write([]byte("calcengine_workers 2\n")) //nolint:errcheck
	}))
	defer srv.Close()

	s, _ := New(config.ClientConfig{
		MetricsURL: srv.URL,
		Auth:       config.AuthConfig{Mode: "apikey", KeyEnv: "CALCENGINE_SCRAPE_KEY"},
	})
	st, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "k1" {
		t.Errorf("api key header = %q, want k1", got)
	}
	if st.Workers != 2 {
		t.Errorf("Workers = %v, want 2", st.Workers)
	}
}

func TestScrape_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, _ := New(config.ClientConfig{MetricsURL: srv.URL})
	if _, err := s.Scrape(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Scrape error = %v, want status 401", err)
	}

	if _, err := New(config.ClientConfig{}); err == nil {
		t.Error("New without metrics url: expected error")
	}
}

func TestParseMetrics_Partial(t *testing.T) {
	text := "calcengine_queue_depth 3\nthis is not a metric line\n"
	mfs, err := parseMetrics(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parseMetrics: %v", err)
	}
	if got := sumFamily(mfs[metrics.QueueDepth]); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	if got := sumFamily(nil); got != 0 {
		t.Errorf("sumFamily(nil) = %v", got)
	}
}
