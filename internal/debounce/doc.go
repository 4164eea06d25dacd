// Package debounce coalesces bursts of calls per key into a single call after
// a quiet period.
//
// Each Trigger replaces the pending call for its key. Superseded timers are
// stopped, and a per-key generation token guards against a timer that had
// already fired when it was superseded.
package debounce
