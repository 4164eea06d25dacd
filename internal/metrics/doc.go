// Package metrics exports engine statistics in the Prometheus exposition
// format. The collector reads a fresh PerformanceStats snapshot on every
// scrape; it keeps no state of its own.
package metrics
