package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/internal/metrics"
)

const defaultScrapeTimeout = 10 * time.Second

// Status is the engine state recovered from one scrape.
type Status struct {
	URL       string
	ScrapedAt time.Time

	// Requests holds request totals by outcome label.
	Requests map[string]float64
	Deduped  float64
	Active   float64

	CacheEntries   float64
	CacheCapacity  float64
	CacheEvictions float64
	// HitRatio is between 0 and 1.
	HitRatio float64

	AvgComputation time.Duration
	QueueDepth     float64
	Running        float64
	Workers        float64

	PendingDebounces float64
	Calculators      float64
	// LastCalculated is zero when nothing was computed yet.
	LastCalculated time.Time
}

// TotalRequests sums Requests over all outcomes.
func (s *Status) TotalRequests() float64 {
	var n float64
	for _, v := range s.Requests {
		n += v
	}
	return n
}

// Scraper fetches and decodes a calcengine /metrics endpoint.
type Scraper struct {
	url    string
	client *http.Client
}

// New returns a Scraper for cfg.MetricsURL with cfg's auth settings.
func New(cfg config.ClientConfig) (*Scraper, error) {
	if cfg.MetricsURL == "" {
		return nil, fmt.Errorf("scraper: metrics url is not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}
	return &Scraper{
		url: cfg.MetricsURL,
		client: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: cfg.Auth},
			Timeout:   timeout,
		},
	}, nil
}

// Scrape fetches the endpoint once.
func (s *Scraper) Scrape(ctx context.Context) (*Status, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.url)
	if err != nil {
		slog.Debug("scraper: fetch failed", "url", s.url, "err", err)
		return nil, fmt.Errorf("scraper: %s: %w", s.url, err)
	}
	return decode(s.url, mfs), nil
}

// decode maps metric families onto a Status. Missing series read as zero.
func decode(url string, mfs map[string]*dto.MetricFamily) *Status {
	st := &Status{
		URL:              url,
		ScrapedAt:        time.Now().UTC(),
		Requests:         byLabel(mfs[metrics.RequestsTotal], "outcome"),
		Deduped:          sumFamily(mfs[metrics.DedupedTotal]),
		Active:           sumFamily(mfs[metrics.ActiveRequests]),
		CacheEntries:     sumFamily(mfs[metrics.CacheEntries]),
		CacheCapacity:    sumFamily(mfs[metrics.CacheCapacity]),
		CacheEvictions:   sumFamily(mfs[metrics.CacheEvictionsTotal]),
		HitRatio:         sumFamily(mfs[metrics.CacheHitRatio]),
		AvgComputation:   time.Duration(sumFamily(mfs[metrics.ComputationSecondsAvg]) * float64(time.Second)),
		QueueDepth:       sumFamily(mfs[metrics.QueueDepth]),
		Running:          sumFamily(mfs[metrics.RunningTasks]),
		Workers:          sumFamily(mfs[metrics.Workers]),
		PendingDebounces: sumFamily(mfs[metrics.PendingDebounces]),
		Calculators:      sumFamily(mfs[metrics.RegisteredCalculators]),
	}
	if ts := sumFamily(mfs[metrics.LastCalculatedTimestamp]); ts > 0 {
		st.LastCalculated = time.Unix(0, int64(ts*1e9)).UTC()
	}
	return st
}

// authRoundTripper injects the API key header into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.auth.Mode == "apikey" {
		if key := t.auth.Key(); key != "" {
			req = req.Clone(req.Context())
			req.Header.Set(t.auth.EffectiveHeader(), key)
		}
	}
	return t.base.RoundTrip(req)
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

// byLabel sums the series of mf grouped by the value of label.
func byLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		var key string
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				key = lp.GetValue()
			}
		}
		out[key] += value(m)
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}
