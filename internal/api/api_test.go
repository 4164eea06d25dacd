package api_test

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/calcengine/calcengine/internal/api"
	"github.com/calcengine/calcengine/internal/calculators"
	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/export"
	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/pkg/types"
)

// --- test helpers -----------------------------------------------------------

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg := registry.New()
	if err := calculators.RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	e, err := engine.New(reg, config.Default().Engine)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

const compoundBody = `{"inputs":{"principal":10000,"monthlyPayment":0,"annualRate":4,"years":10}}`

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodGet, "/api/v1/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status field: got %v", resp["status"])
	}
	if resp["calculators"].(float64) != 8 {
		t.Errorf("calculators: got %v, want 8", resp["calculators"])
	}
	if resp["is_calculating"] != false {
		t.Errorf("is_calculating: got %v", resp["is_calculating"])
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodPost, "/api/v1/health", "{}")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/calculators ----------------------------------------------------

func TestListCalculators_SortedByID(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodGet, "/api/v1/calculators", "")

	var resp []api.CalculatorResponse
	decode(t, rr, &resp)
	if len(resp) != 8 {
		t.Fatalf("len: got %d, want 8", len(resp))
	}
	for i := 1; i < len(resp); i++ {
		if resp[i-1].ID >= resp[i].ID {
			t.Errorf("not sorted: %q before %q", resp[i-1].ID, resp[i].ID)
		}
	}
	if resp[0].ID != "compound-interest" || resp[0].Category != "basic" {
		t.Errorf("first: got %+v", resp[0])
	}
}

// --- validate ---------------------------------------------------------------

func TestValidate(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})

	rr := do(t, h, http.MethodPost, "/api/v1/calculators/compound-interest/validate",
		`{"inputs":{"principal":-1000,"annualRate":4,"years":10}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp struct {
		Valid  bool `json:"is_valid"`
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	decode(t, rr, &resp)
	if resp.Valid || len(resp.Errors) == 0 || resp.Errors[0].Field != "principal" {
		t.Errorf("got %+v", resp)
	}

	rr = do(t, h, http.MethodPost, "/api/v1/calculators/nonexistent-calculator/validate", `{"inputs":{}}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown calculator: got %d, want 404", rr.Code)
	}
}

// --- calculate --------------------------------------------------------------

func TestCalculate_MissThenHit(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	path := "/api/v1/calculators/compound-interest/calculate"

	rr := do(t, h, http.MethodPost, path, compoundBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache: got %q, want MISS", got)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["final_amount"].(float64) != 14802.44 {
		t.Errorf("final_amount: got %v, want 14802.44", resp["final_amount"])
	}

	rr = do(t, h, http.MethodPost, path, compoundBody)
	if got := rr.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache: got %q, want HIT", got)
	}
}

func TestCalculate_StatusMapping(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantType string
	}{
		{
			name:     "validation",
			path:     "/api/v1/calculators/compound-interest/calculate",
			body:     `{"inputs":{"principal":-1000,"annualRate":4,"years":10}}`,
			wantCode: http.StatusUnprocessableEntity,
			wantType: "validation_error",
		},
		{
			name:     "not found",
			path:     "/api/v1/calculators/nonexistent-calculator/calculate",
			body:     `{"inputs":{}}`,
			wantCode: http.StatusNotFound,
			wantType: "calculator_not_found",
		},
		{
			name:     "bad json",
			path:     "/api/v1/calculators/compound-interest/calculate",
			body:     `{"inputs":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tc.path, tc.body)
			if rr.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d (body %s)", rr.Code, tc.wantCode, rr.Body.String())
			}
			var resp struct {
				Error   string `json:"error"`
				Details *struct {
					Type  string `json:"type"`
					Field string `json:"field"`
				} `json:"details"`
			}
			decode(t, rr, &resp)
			if resp.Error == "" {
				t.Error("error message is empty")
			}
			if tc.wantType == "" {
				return
			}
			if resp.Details == nil || resp.Details.Type != tc.wantType {
				t.Errorf("details: got %+v, want type %s", resp.Details, tc.wantType)
			}
		})
	}
}

func TestCalculate_ValidationFieldReported(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodPost, "/api/v1/calculators/compound-interest/calculate",
		`{"inputs":{"principal":-1000,"annualRate":4,"years":10}}`)

	var resp struct {
		Details struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	decode(t, rr, &resp)
	if resp.Details.Field != "principal" {
		t.Errorf("field: got %q, want principal", resp.Details.Field)
	}
}

// --- stats, suggestions, cache ----------------------------------------------

func TestStatsAndClearCache(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	do(t, h, http.MethodPost, "/api/v1/calculators/compound-interest/calculate", compoundBody)

	rr := do(t, h, http.MethodGet, "/api/v1/stats", "")
	var stats struct {
		Engine struct {
			CalculationCount int `json:"calculation_count"`
		} `json:"engine"`
		Cache struct {
			Size int `json:"size"`
		} `json:"cache"`
		GeneratedAt string `json:"generated_at"`
	}
	decode(t, rr, &stats)
	if stats.Engine.CalculationCount != 1 || stats.Cache.Size != 1 || stats.GeneratedAt == "" {
		t.Errorf("stats: got %+v", stats)
	}

	rr = do(t, h, http.MethodDelete, "/api/v1/cache", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE cache: got %d, want 204", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/api/v1/calculators/compound-interest/calculate", compoundBody)
	if got := rr.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("after clear: X-Cache got %q, want MISS", got)
	}
}

func TestSuggestions_EmptyList(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodGet, "/api/v1/suggestions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	list, ok := resp["suggestions"].([]interface{})
	if !ok || len(list) != 0 {
		t.Errorf("suggestions: got %v, want []", resp["suggestions"])
	}
}

// --- auth and optional mounts -----------------------------------------------

func TestAPIKey(t *testing.T) {
	h := api.New(newEngine(t), api.Options{APIKey: "s3cret", APIKeyHeader: "X-API-Key"})

	if rr := do(t, h, http.MethodGet, "/api/v1/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health must stay public: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/calculators", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("missing key: got %d, want 401", rr.Code)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/calculators", nil)
	req.Header.Set("X-API-Key", "wrong")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/calculators", nil)
	req.Header.Set("X-API-Key", "s3cret")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("valid key: got %d, want 200", rr.Code)
	}
}

func TestMetricsMount(t *testing.T) {
	eng := newEngine(t)
	if rr := do(t, api.New(eng, api.Options{}), http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Errorf("without metrics handler: got %d, want 404", rr.Code)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("calcengine_up 1\n")) //nolint:errcheck
	})
	rr := do(t, api.New(eng, api.Options{Metrics: metrics}), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "calcengine_up") {
		t.Errorf("metrics: got %d %q", rr.Code, rr.Body.String())
	}
}

// --- limits and export ------------------------------------------------------

func TestLimits(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodGet, "/api/v1/calculators/compound-interest/limits", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.LimitsResponse
	decode(t, rr, &resp)
	if resp.Category != types.CategoryBasic || resp.Precision != config.DefaultPrecision {
		t.Errorf("header fields: got %+v", resp)
	}

	byField := make(map[string]types.FieldLimit, len(resp.Fields))
	for _, f := range resp.Fields {
		byField[f.Field] = f
	}
	p := byField["principal"]
	if !p.Required || p.Min == nil || *p.Min != 0 || !p.MinExclusive || p.Max == nil || *p.Max != 10000000 {
		t.Errorf("principal: got %+v", p)
	}
	y := byField["years"]
	if !y.Integer || *y.Min != 1 || *y.Max != 50 {
		t.Errorf("years: got %+v", y)
	}
	freq := byField["compoundFrequency"]
	if freq.Required || strings.Join(freq.Options, ",") != "monthly,quarterly,yearly" {
		t.Errorf("compoundFrequency: got %+v", freq)
	}

	if rr := do(t, h, http.MethodGet, "/api/v1/calculators/nope/limits", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown calculator: got %d, want 404", rr.Code)
	}
}

func TestExport_CSV(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodPost, "/api/v1/calculators/compound-interest/export?format=csv", compoundBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type: got %q", ct)
	}
	cd := rr.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="compound-interest_`) || !strings.HasSuffix(cd, `.csv"`) {
		t.Errorf("Content-Disposition: got %q", cd)
	}

	cr := csv.NewReader(rr.Body)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	var final string
	periods := 0
	inBreakdown := false
	for _, rec := range records {
		switch {
		case len(rec) == 2 && rec[0] == "Final amount":
			final = rec[1]
		case len(rec) == 1 && rec[0] == "Breakdown":
			inBreakdown = true
		case inBreakdown && len(rec) == 6 && rec[0] != "Period":
			periods++
		}
	}
	if final != "14802.44" {
		t.Errorf("Final amount: got %q, want 14802.44", final)
	}
	if periods != 10 {
		t.Errorf("breakdown rows: got %d, want 10", periods)
	}
}

func TestExport_XLSX(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})
	rr := do(t, h, http.MethodPost, "/api/v1/calculators/compound-interest/export?format=xlsx", compoundBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Content-Type: got %q", ct)
	}

	f, err := excelize.OpenReader(rr.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(export.SheetBreakdown)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 11 {
		t.Errorf("breakdown rows incl. header: got %d, want 11", len(rows))
	}
}

func TestExport_Errors(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unsupported format", "/api/v1/calculators/compound-interest/export?format=pdf", compoundBody, http.StatusBadRequest},
		{"invalid inputs", "/api/v1/calculators/compound-interest/export", `{"inputs":{"principal":-1,"annualRate":4,"years":10}}`, http.StatusUnprocessableEntity},
		{"unknown calculator", "/api/v1/calculators/nope/export", compoundBody, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rr := do(t, h, http.MethodPost, tc.path, tc.body); rr.Code != tc.want {
				t.Errorf("status: got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestExportPreviewAndFormats(t *testing.T) {
	h := api.New(newEngine(t), api.Options{})

	rr := do(t, h, http.MethodPost, "/api/v1/calculators/compound-interest/export/preview", compoundBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("preview status: got %d", rr.Code)
	}
	var rep export.Report
	decode(t, rr, &rep)
	if rep.CalculatorID != "compound-interest" || len(rep.Summary) == 0 || rep.Summary[0].Value != 14802.44 || len(rep.Breakdown) != 10 {
		t.Errorf("preview: got %+v", rep)
	}

	rr = do(t, h, http.MethodGet, "/api/v1/export/formats", "")
	var formats api.FormatsResponse
	decode(t, rr, &formats)
	if len(formats.Formats) != 2 || formats.Formats[0].Format != export.FormatCSV || formats.Formats[1].Format != export.FormatXLSX {
		t.Errorf("formats: got %+v", formats)
	}
}
