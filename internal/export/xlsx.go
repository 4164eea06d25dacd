package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the XLSX workbook.
const (
	SheetSummary   = "Summary"
	SheetBreakdown = "Breakdown"
)

// writeXLSX writes a Summary sheet (inputs, figures, details as
// Section/Parameter/Value rows) and, when the result has one, a Breakdown
// sheet with one row per period. Numbers are stored as numeric cells.
func writeXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	rows := [][]any{
		{"Section", "Parameter", "Value"},
		{"Calculator", "id", r.CalculatorID},
		{"Calculator", "generated_at", r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")},
	}
	rows = appendLines(rows, "Inputs", r.Inputs)
	rows = appendLines(rows, "Summary", r.Summary)
	rows = appendLines(rows, "Details", r.Details)
	if err := setRows(f, SheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "C", 24); err != nil {
		return fmt.Errorf("export: column width: %w", err)
	}

	if len(r.Breakdown) > 0 {
		if _, err := f.NewSheet(SheetBreakdown); err != nil {
			return fmt.Errorf("export: new sheet: %w", err)
		}
		header := make([]any, len(breakdownHeader))
		for i, h := range breakdownHeader {
			header[i] = h
		}
		rows := [][]any{header}
		for _, p := range r.Breakdown {
			rows = append(rows, []any{p.Period, p.StartAmount, p.Contributions, p.Interest, p.EndAmount, p.GrowthRate})
		}
		if err := setRows(f, SheetBreakdown, rows); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write xlsx: %w", err)
	}
	return nil
}

func appendLines(rows [][]any, section string, lines []Line) [][]any {
	for _, l := range lines {
		var v any = l.Value
		if l.Text != "" {
			v = l.Text
		}
		rows = append(rows, []any{section, l.Label, v})
	}
	return rows
}

// setRows writes rows starting at A1.
func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for col, v := range row {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return fmt.Errorf("export: column %d: %w", col+1, err)
			}
			if err := f.SetCellValue(sheet, fmt.Sprintf("%s%d", name, i+1), v); err != nil {
				return fmt.Errorf("export: %s!%s%d: %w", sheet, name, i+1, err)
			}
		}
	}
	return nil
}
