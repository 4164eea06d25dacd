// Package scheduler dispatches calculations to a bounded worker pool in
// priority order and tracks performance metrics.
//
// queue.go is a max-heap ordered by priority, then by submission order.
// scheduler.go owns the pool: Schedule enqueues a task and blocks until it
// completes or the caller's context ends. Tasks whose caller has gone away
// while queued are skipped, never started.
//
// metrics.go keeps rolling figures (EWMA computation time, totals, cache hit
// rate). suggest.go evaluates config.SuggestionRule conditions such as
// "cache_hit_rate < 50" against a Metrics snapshot; it is a pure function.
package scheduler
