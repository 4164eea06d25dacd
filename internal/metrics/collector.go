package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calcengine/calcengine/internal/engine"
)

const namespace = "calcengine"

// Exported metric names. The scraper reads them back for the status command.
const (
	RequestsTotal           = namespace + "_requests_total"
	DedupedTotal            = namespace + "_deduped_requests_total"
	ActiveRequests          = namespace + "_active_requests"
	CacheEntries            = namespace + "_cache_entries"
	CacheCapacity           = namespace + "_cache_capacity"
	CacheEvictionsTotal     = namespace + "_cache_evictions_total"
	CacheHitRatio           = namespace + "_cache_hit_ratio"
	ComputationSecondsAvg   = namespace + "_computation_seconds_avg"
	QueueDepth              = namespace + "_queue_depth"
	RunningTasks            = namespace + "_running_tasks"
	Workers                 = namespace + "_workers"
	PendingDebounces        = namespace + "_pending_debounces"
	RegisteredCalculators   = namespace + "_calculators"
	LastCalculatedTimestamp = namespace + "_last_calculated_timestamp_seconds"
)

// Outcome label values of RequestsTotal. Requests that shared another
// request's computation are counted by DedupedTotal, not as completed.
const (
	OutcomeCompleted  = "completed"
	OutcomeCacheHit   = "cache_hit"
	OutcomeInvalid    = "validation_error"
	OutcomeFailed     = "calculation_error"
	OutcomeCanceled   = "canceled"
	outcomeLabel      = "outcome"
	outcomeLabelCount = 5
)

// Source provides the statistics snapshot to export.
type Source interface {
	PerformanceStats() engine.PerformanceStats
}

type engineCollector struct {
	src Source

	requests    *prometheus.Desc
	deduped     *prometheus.Desc
	active      *prometheus.Desc
	entries     *prometheus.Desc
	capacity    *prometheus.Desc
	evictions   *prometheus.Desc
	hitRatio    *prometheus.Desc
	avgSeconds  *prometheus.Desc
	queueDepth  *prometheus.Desc
	running     *prometheus.Desc
	workers     *prometheus.Desc
	debounces   *prometheus.Desc
	calculators *prometheus.Desc
	lastCalc    *prometheus.Desc
}

// NewCollector returns a prometheus.Collector over src.
func NewCollector(src Source) prometheus.Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, labels, nil)
	}
	return &engineCollector{
		src:         src,
		requests:    desc(RequestsTotal, "Calculation requests by outcome; completed counts computed results.", outcomeLabel),
		deduped:     desc(DedupedTotal, "Requests that attached to an identical in-flight computation."),
		active:      desc(ActiveRequests, "Requests currently waiting for a computation."),
		entries:     desc(CacheEntries, "Results held in the cache."),
		capacity:    desc(CacheCapacity, "Maximum number of cached results."),
		evictions:   desc(CacheEvictionsTotal, "Results evicted from the cache by capacity."),
		hitRatio:    desc(CacheHitRatio, "Share of cache lookups that hit, between 0 and 1."),
		avgSeconds:  desc(ComputationSecondsAvg, "Moving average of calculator run time."),
		queueDepth:  desc(QueueDepth, "Computations waiting for a worker."),
		running:     desc(RunningTasks, "Computations currently running."),
		workers:     desc(Workers, "Size of the worker pool."),
		debounces:   desc(PendingDebounces, "Debounced recalculations not yet fired."),
		calculators: desc(RegisteredCalculators, "Registered calculators."),
		lastCalc:    desc(LastCalculatedTimestamp, "Unix time of the last completed computation."),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.deduped
	ch <- c.active
	ch <- c.entries
	ch <- c.capacity
	ch <- c.evictions
	ch <- c.hitRatio
	ch <- c.avgSeconds
	ch <- c.queueDepth
	ch <- c.running
	ch <- c.workers
	ch <- c.debounces
	ch <- c.calculators
	ch <- c.lastCalc
}

// Collect implements prometheus.Collector.
func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	ps := c.src.PerformanceStats()
	st := ps.Engine

	outcomes := [outcomeLabelCount]struct {
		label string
		n     uint64
	}{
		{OutcomeCompleted, st.CalculationCount},
		{OutcomeCacheHit, st.CacheHitCount},
		{OutcomeInvalid, st.ValidationErrorCount},
		{OutcomeFailed, st.ErrorCount},
		{OutcomeCanceled, st.CanceledCount},
	}
	for _, o := range outcomes {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(o.n), o.label)
	}
	ch <- prometheus.MustNewConstMetric(c.deduped, prometheus.CounterValue, float64(st.DedupedCount))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(st.ActiveRequests))

	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(ps.Cache.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(ps.Cache.MaxSize))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(ps.Cache.Evictions))
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, ps.HitRate/100)

	ch <- prometheus.MustNewConstMetric(c.avgSeconds, prometheus.GaugeValue, ps.Scheduler.AverageComputation.Seconds())
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(ps.Scheduler.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, float64(ps.Scheduler.Running))
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(ps.Scheduler.Workers))

	ch <- prometheus.MustNewConstMetric(c.debounces, prometheus.GaugeValue, float64(ps.PendingDebounces))
	ch <- prometheus.MustNewConstMetric(c.calculators, prometheus.GaugeValue, float64(ps.Calculators))

	var last float64
	if !st.LastCalculatedAt.IsZero() {
		last = float64(st.LastCalculatedAt.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(c.lastCalc, prometheus.GaugeValue, last)
}

// Handler returns an http.Handler serving src's metrics together with the Go
// runtime and process collectors on a private registry.
func Handler(src Source) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
