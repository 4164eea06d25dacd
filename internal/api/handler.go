package api

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/export"
	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/internal/scheduler"
	"github.com/calcengine/calcengine/pkg/types"
)

// maxBodyBytes bounds request bodies of the POST endpoints.
const maxBodyBytes = 1 << 20

// Options configures optional parts of the handler.
type Options struct {
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// Stream is mounted at /ws/stream when non-nil.
	Stream http.Handler
	// APIKey, when set, is required on every /api/v1 route except health, in
	// the header named by APIKeyHeader.
	APIKey       string
	APIKeyHeader string
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	eng     *engine.Engine
	router  chi.Router
	started time.Time
}

// New creates a Handler wired to eng and registers all routes.
func New(eng *engine.Engine, opts Options) http.Handler {
	h := &Handler{eng: eng, router: chi.NewRouter(), started: time.Now()}

	h.router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger,
	)

	h.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Group(func(r chi.Router) {
			if opts.APIKey != "" {
				r.Use(requireKey(opts.APIKeyHeader, opts.APIKey))
			}
			r.Get("/calculators", h.listCalculators)
			r.Post("/calculators/{id}/validate", h.validate)
			r.Post("/calculators/{id}/calculate", h.calculate)
			r.Get("/calculators/{id}/limits", h.limits)
			r.Post("/calculators/{id}/export", h.exportFile)
			r.Post("/calculators/{id}/export/preview", h.exportPreview)
			r.Get("/export/formats", h.exportFormats)
			r.Get("/stats", h.stats)
			r.Get("/suggestions", h.suggestions)
			r.Delete("/cache", h.clearCache)
		})
	})
	if opts.Metrics != nil {
		h.router.Handle("/metrics", opts.Metrics)
	}
	if opts.Stream != nil {
		h.router.Handle("/ws/stream", opts.Stream)
	}
	h.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ps := h.eng.PerformanceStats()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Calculators:    ps.Calculators,
		IsCalculating:  ps.Engine.IsCalculating,
		ActiveRequests: ps.Engine.ActiveRequests,
		CacheSize:      ps.Cache.Size,
		HitRate:        ps.HitRate,
		UptimeSeconds:  time.Since(h.started).Seconds(),
	})
}

// listCalculators returns GET /api/v1/calculators, sorted by id.
func (h *Handler) listCalculators(w http.ResponseWriter, r *http.Request) {
	calcs := h.eng.Registry().List()
	out := make([]CalculatorResponse, 0, len(calcs))
	for _, c := range calcs {
		out = append(out, CalculatorResponse{ID: c.ID(), Category: c.Category()})
	}
	jsonResp(w, http.StatusOK, out)
}

// validate returns POST /api/v1/calculators/{id}/validate. An invalid input
// is still a 200: the body reports is_valid=false with field errors.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := h.eng.Validate(chi.URLParam(r, "id"), req.Inputs)
	if err != nil {
		engineErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

// calculate returns POST /api/v1/calculators/{id}/calculate.
func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	res, _, ok := h.run(w, r)
	if !ok {
		return
	}
	if res.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	jsonResp(w, http.StatusOK, res)
}

// limits returns GET /api/v1/calculators/{id}/limits.
func (h *Handler) limits(w http.ResponseWriter, r *http.Request) {
	calc, err := h.eng.Registry().Get(chi.URLParam(r, "id"))
	if err != nil {
		engineErr(w, err)
		return
	}
	resp := LimitsResponse{
		CalculatorID: calc.ID(),
		Category:     calc.Category(),
		Precision:    h.eng.Precision(),
		Fields:       []types.FieldLimit{},
	}
	if l, ok := calc.(registry.Limiter); ok {
		resp.Fields = l.Limits()
	}
	jsonResp(w, http.StatusOK, resp)
}

// exportFile returns POST /api/v1/calculators/{id}/export?format=csv|xlsx as
// an attachment.
func (h *Handler) exportFile(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	res, req, ok := h.run(w, r)
	if !ok {
		return
	}
	rep := export.NewReport(chi.URLParam(r, "id"), req.Inputs, res, time.Now())

	// Encode fully first so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, rep); err != nil {
		slog.Error("api: export failed", "format", format, "err", err)
		jsonErr(w, http.StatusInternalServerError, "export failed")
		return
	}
	info, _ := format.Info()
	w.Header().Set("Content-Type", info.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename(format)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// exportPreview returns POST /api/v1/calculators/{id}/export/preview: the
// report an export would contain, as JSON.
func (h *Handler) exportPreview(w http.ResponseWriter, r *http.Request) {
	res, req, ok := h.run(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, export.NewReport(chi.URLParam(r, "id"), req.Inputs, res, time.Now()))
}

// exportFormats returns GET /api/v1/export/formats.
func (h *Handler) exportFormats(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, FormatsResponse{Formats: export.Formats()})
}

// stats returns GET /api/v1/stats.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, StatsResponse{
		PerformanceStats: h.eng.PerformanceStats(),
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

// suggestions returns GET /api/v1/suggestions.
func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	s := h.eng.Suggestions()
	if s == nil {
		s = []scheduler.Suggestion{}
	}
	jsonResp(w, http.StatusOK, SuggestionsResponse{
		Suggestions: s,
		Metrics:     h.eng.PerformanceStats().Scheduler,
	})
}

// clearCache handles DELETE /api/v1/cache.
func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	h.eng.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

// run decodes the body and calculates for the {id} route parameter. On
// failure the response has been written and ok is false.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) (res *types.CalculationResult, req CalculateRequest, ok bool) {
	req, ok = decodeRequest(w, r)
	if !ok {
		return nil, req, false
	}
	res, err := h.eng.Calculate(r.Context(), engine.Request{
		ID:           middleware.GetReqID(r.Context()),
		CalculatorID: chi.URLParam(r, "id"),
		Inputs:       req.Inputs,
		Stream:       req.Stream,
		Priority:     req.Priority,
	})
	if err != nil {
		engineErr(w, err)
		return nil, req, false
	}
	return res, req, true
}

// decodeRequest reads a CalculateRequest. Numbers are kept as json.Number so
// no precision is lost before key normalization.
func decodeRequest(w http.ResponseWriter, r *http.Request) (CalculateRequest, bool) {
	var req CalculateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	if req.Inputs == nil {
		req.Inputs = types.Inputs{}
	}
	return req, true
}

// engineErr maps an engine error to its HTTP status.
func engineErr(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrCanceled) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var (
		verr *engine.ValidationError
		cerr *engine.CalculationError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrNotFound):
		code = http.StatusNotFound
	case errors.As(err, &cerr):
		code = http.StatusInternalServerError
	default:
		slog.Error("api: unexpected engine error", "err", err)
	}
	p := engine.Describe(err)
	jsonResp(w, code, errorResponse{Error: p.Message, Details: &p})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// requireKey rejects requests whose header does not carry key.
func requireKey(header, key string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				jsonErr(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
