package engine

import (
	"time"

	"github.com/calcengine/calcengine/internal/cache"
	"github.com/calcengine/calcengine/internal/scheduler"
)

// Stats are the engine counters. CalculationCount counts computations whose
// result was delivered; every other counter is per request. A request that
// attaches to another's in-flight computation adds to DedupedCount only.
type Stats struct {
	IsCalculating        bool      `json:"is_calculating"`
	ActiveRequests       int       `json:"active_requests"`
	CalculationCount     uint64    `json:"calculation_count"`
	ErrorCount           uint64    `json:"error_count"`
	CacheHitCount        uint64    `json:"cache_hit_count"`
	CacheMissCount       uint64    `json:"cache_miss_count"`
	ValidationErrorCount uint64    `json:"validation_error_count"`
	CanceledCount        uint64    `json:"canceled_count"`
	DedupedCount         uint64    `json:"deduped_count"`
	LastCalculatedAt     time.Time `json:"last_calculated_at,omitempty"`
}

// PerformanceStats is a read-only snapshot for monitoring.
type PerformanceStats struct {
	Engine    Stats             `json:"engine"`
	Cache     cache.Stats       `json:"cache"`
	Scheduler scheduler.Metrics `json:"scheduler"`
	// HitRate is the engine-level cache hit rate in percent.
	HitRate          float64 `json:"hit_rate"`
	PendingDebounces int     `json:"pending_debounces"`
	Streams          int     `json:"streams"`
	Calculators      int     `json:"calculators"`
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.IsCalculating = s.ActiveRequests > 0
	return s
}

// PerformanceStats returns engine, cache and scheduler figures in one
// snapshot. It has no side effects.
func (e *Engine) PerformanceStats() PerformanceStats {
	st := e.Stats()
	e.mu.Lock()
	streams := len(e.streams)
	e.mu.Unlock()

	ps := PerformanceStats{
		Engine:           st,
		Cache:            e.cache.Stats(),
		Scheduler:        e.sched.Metrics(),
		PendingDebounces: e.debouncer.Pending(),
		Streams:          streams,
		Calculators:      e.reg.Len(),
	}
	if lookups := st.CacheHitCount + st.CacheMissCount; lookups > 0 {
		ps.HitRate = float64(st.CacheHitCount) / float64(lookups) * 100
	}
	return ps
}

// Suggestions evaluates the configured optimization rules against the
// current scheduler metrics.
func (e *Engine) Suggestions() []scheduler.Suggestion {
	e.mu.Lock()
	rules := e.cfg.Suggestions
	e.mu.Unlock()
	return scheduler.Suggestions(e.sched.Metrics(), rules)
}
