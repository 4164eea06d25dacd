// Package api implements the HTTP REST API for calcengine.
//
// New(engine, opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                      engine liveness and activity
//	GET    /api/v1/calculators                 registered calculators
//	POST   /api/v1/calculators/{id}/validate   validation result with warnings
//	POST   /api/v1/calculators/{id}/calculate  calculation result
//	GET    /api/v1/calculators/{id}/limits     accepted range of every input
//	POST   /api/v1/calculators/{id}/export     result as CSV or XLSX (?format=)
//	POST   /api/v1/calculators/{id}/export/preview  report contents as JSON
//	GET    /api/v1/export/formats              supported export formats
//	GET    /api/v1/stats                       performance snapshot
//	GET    /api/v1/suggestions                 optimization suggestions
//	DELETE /api/v1/cache                       drop all cached results
//	GET    /metrics                            Prometheus exposition (optional)
//	GET    /ws/stream                          WebSocket stream (optional)
//
// Calculate responses carry X-Cache: HIT or MISS. Failures map to
// 422 (validation), 404 (unknown calculator), 500 (calculation) and
// 204 (superseded or canceled). JSON types are defined in types.go.
package api
