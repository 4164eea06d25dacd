package api

import (
	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/export"
	"github.com/calcengine/calcengine/internal/scheduler"
	"github.com/calcengine/calcengine/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status         string  `json:"status"`
	Calculators    int     `json:"calculators"`
	IsCalculating  bool    `json:"is_calculating"`
	ActiveRequests int     `json:"active_requests"`
	CacheSize      int     `json:"cache_size"`
	HitRate        float64 `json:"hit_rate"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// CalculatorResponse is one entry in GET /api/v1/calculators.
type CalculatorResponse struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// CalculateRequest is the body of the validate and calculate endpoints.
type CalculateRequest struct {
	Inputs types.Inputs `json:"inputs"`
	// Stream groups requests from one input source; a newer request on the
	// same stream supersedes older ones.
	Stream   string `json:"stream,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// LimitsResponse is the payload for GET /api/v1/calculators/{id}/limits.
type LimitsResponse struct {
	CalculatorID string             `json:"calculator_id"`
	Category     string             `json:"category"`
	Precision    int                `json:"precision"`
	Fields       []types.FieldLimit `json:"fields"`
}

// FormatsResponse is the payload for GET /api/v1/export/formats.
type FormatsResponse struct {
	Formats []export.FormatInfo `json:"formats"`
}

// StatsResponse is the payload for GET /api/v1/stats.
type StatsResponse struct {
	engine.PerformanceStats
	GeneratedAt string `json:"generated_at"` // RFC3339
}

// SuggestionsResponse is the payload for GET /api/v1/suggestions.
type SuggestionsResponse struct {
	Suggestions []scheduler.Suggestion `json:"suggestions"`
	Metrics     scheduler.Metrics      `json:"metrics"`
}

// errorResponse is the JSON error body. Engine errors carry the typed
// payload; transport errors only the message.
type errorResponse struct {
	Error   string              `json:"error"`
	Details *types.ErrorPayload `json:"details,omitempty"`
}
