package scheduler

import "time"

// Metrics is a point-in-time view of scheduler performance.
type Metrics struct {
	// AverageComputation is an exponentially weighted moving average of task
	// run time.
	AverageComputation time.Duration `json:"average_computation_ns"`
	// LastComputation is the run time of the most recent task.
	LastComputation time.Duration `json:"last_computation_ns"`

	TotalCalculations uint64 `json:"total_calculations"`
	Failures          uint64 `json:"failures"`
	// Skipped counts tasks dropped from the queue because their caller left.
	Skipped uint64 `json:"skipped"`

	CacheLookups uint64 `json:"cache_lookups"`
	CacheHits    uint64 `json:"cache_hits"`
	// CacheHitRate is CacheHits/CacheLookups in percent.
	CacheHitRate float64 `json:"cache_hit_rate"`
	// MemoryPressure is the result cache usage in percent.
	MemoryPressure float64 `json:"memory_pressure"`

	QueueDepth int `json:"queue_depth"`
	Running    int `json:"running"`
	Workers    int `json:"workers"`
}

// ewmaAlpha weights the newest sample in AverageComputation.
const ewmaAlpha = 0.2

// ewma folds sample into avg. The first sample initialises the average.
func ewma(avg, sample time.Duration, first bool) time.Duration {
	if first {
		return sample
	}
	return time.Duration(ewmaAlpha*float64(sample) + (1-ewmaAlpha)*float64(avg))
}

// value returns the metric named field, as used by suggestion conditions.
func (m Metrics) value(field string) (float64, bool) {
	switch field {
	case "cache_hit_rate":
		return m.CacheHitRate, true
	case "cache_lookups":
		return float64(m.CacheLookups), true
	case "memory_pressure":
		return m.MemoryPressure, true
	case "avg_computation_ms":
		return float64(m.AverageComputation) / float64(time.Millisecond), true
	case "last_computation_ms":
		return float64(m.LastComputation) / float64(time.Millisecond), true
	case "total_calculations":
		return float64(m.TotalCalculations), true
	case "failures":
		return float64(m.Failures), true
	case "failure_rate":
		if m.TotalCalculations == 0 {
			return 0, true
		}
		return float64(m.Failures) / float64(m.TotalCalculations) * 100, true
	case "skipped":
		return float64(m.Skipped), true
	case "queue_depth":
		return float64(m.QueueDepth), true
	case "running":
		return float64(m.Running), true
	case "workers":
		return float64(m.Workers), true
	default:
		return 0, false
	}
}
