// Package engine is the real-time calculation orchestrator.
//
// A request moves through a small state machine (state.go):
//
//	Idle → Validating → CacheCheck → Computing → Completed
//	                 ↘ Error        ↘ Completed  ↘ Error | Canceled
//	                                ↘ Canceled
//
// Validation always runs first (gate.go); invalid input never reaches the
// cache or the calculator. Cache misses are deduplicated per cache key with
// singleflight, so identical requests attach to one computation, and are then
// dispatched through the priority scheduler on a context detached from the
// callers and bounded by calculation_timeout.
//
// Requests that share a Stream are ordered by a generation counter: only the
// most recently issued request of a stream may surface a result. Superseded or
// explicitly canceled requests end in Canceled, are never cached and return
// ErrCanceled, which callers are expected to ignore. This holds for cache hits
// too: a hit for a caller that already left or was superseded is dropped.
//
// session.go is the input-source boundary: a Session holds field values for
// one calculator, debounces edits by category and delivers outcomes to
// subscribers. stats.go exposes counters and the PerformanceStats snapshot.
package engine
