package export

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/calcengine/calcengine/pkg/types"
)

// Format identifies an export file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatInfo describes one supported format.
type FormatInfo struct {
	Format    Format   `json:"format"`
	MIMEType  string   `json:"mime_type"`
	Extension string   `json:"extension"`
	Sections  []string `json:"sections"`
}

// ErrUnsupportedFormat is returned by ParseFormat and Write.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

var formats = []FormatInfo{
	{
		Format:    FormatCSV,
		MIMEType:  "text/csv; charset=utf-8",
		Extension: ".csv",
		Sections:  []string{"inputs", "summary", "details", "breakdown"},
	},
	{
		Format:    FormatXLSX,
		MIMEType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
		Sections:  []string{"inputs", "summary", "details", "breakdown"},
	},
}

// Formats returns the supported formats.
func Formats() []FormatInfo {
	out := make([]FormatInfo, len(formats))
	copy(out, formats)
	return out
}

// ParseFormat accepts a format name; "excel" is an alias for xlsx and an
// empty name selects csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Info returns the description of f.
func (f Format) Info() (FormatInfo, bool) {
	for _, fi := range formats {
		if fi.Format == f {
			return fi, true
		}
	}
	return FormatInfo{}, false
}

// Line is one label/value pair of a report section.
type Line struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	// Text is set instead of Value for non-numeric inputs.
	Text string `json:"text,omitempty"`
}

// String renders the value of l.
func (l Line) String() string {
	if l.Text != "" {
		return l.Text
	}
	return strconv.FormatFloat(l.Value, 'f', 2, 64)
}

// Report is the export-ready view of one calculation.
type Report struct {
	CalculatorID string            `json:"calculator_id"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Inputs       []Line            `json:"inputs"`
	Summary      []Line            `json:"summary"`
	Details      []Line            `json:"details,omitempty"`
	Breakdown    []types.PeriodRow `json:"breakdown,omitempty"`
}

// NewReport builds a Report for res, computed by calculatorID from in.
// Inputs and details are sorted by name.
func NewReport(calculatorID string, in types.Inputs, res *types.CalculationResult, now time.Time) *Report {
	r := &Report{
		CalculatorID: calculatorID,
		GeneratedAt:  now.UTC(),
		Breakdown:    res.Breakdown,
	}

	for _, name := range sortedKeys(map[string]any(in)) {
		r.Inputs = append(r.Inputs, inputLine(name, in[name]))
	}

	r.Summary = []Line{
		{Label: "Final amount", Value: res.FinalAmount},
		{Label: "Total contributions", Value: res.TotalContributions},
		{Label: "Total interest", Value: res.TotalInterest},
		{Label: "Effective rate %", Value: res.EffectiveRate},
	}
	if res.TotalContributions > 0 {
		total := (res.FinalAmount - res.TotalContributions) / res.TotalContributions * 100
		r.Summary = append(r.Summary, Line{Label: "Total return %", Value: round2(total)})
	}

	for _, name := range sortedKeys(res.Details) {
		r.Details = append(r.Details, Line{Label: name, Value: res.Details[name]})
	}
	return r
}

// Filename is the suggested download name, e.g.
// "compound-interest_2026-10-17.xlsx".
func (r *Report) Filename(f Format) string {
	ext := "." + string(f)
	if fi, ok := f.Info(); ok {
		ext = fi.Extension
	}
	return fmt.Sprintf("%s_%s%s", r.CalculatorID, r.GeneratedAt.Format("2006-01-02"), ext)
}

// Write encodes r to w in format f.
func Write(w io.Writer, f Format, r *Report) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, r)
	case FormatXLSX:
		return writeXLSX(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// breakdownHeader labels the columns of the breakdown section.
var breakdownHeader = []string{"Period", "Start amount", "Contributions", "Interest", "End amount", "Growth %"}

func inputLine(name string, v any) Line {
	if s, ok := v.(string); ok {
		return Line{Label: name, Text: s}
	}
	if f, ok := types.ToFloat(v); ok {
		return Line{Label: name, Value: f}
	}
	return Line{Label: name, Text: fmt.Sprint(v)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return f
}
