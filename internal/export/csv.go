package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// writeCSV writes the sections one after another, each introduced by a
// one-field title row and separated by an empty line.
func writeCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)

	rows := [][]string{{"Calculator", r.CalculatorID}, {"Generated at", r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")}}
	rows = append(rows, nil, []string{"Inputs"})
	rows = append(rows, lineRows(r.Inputs)...)
	rows = append(rows, nil, []string{"Summary"})
	rows = append(rows, lineRows(r.Summary)...)
	if len(r.Details) > 0 {
		rows = append(rows, nil, []string{"Details"})
		rows = append(rows, lineRows(r.Details)...)
	}
	if len(r.Breakdown) > 0 {
		rows = append(rows, nil, []string{"Breakdown"}, breakdownHeader)
		for _, p := range r.Breakdown {
			rows = append(rows, []string{
				strconv.Itoa(p.Period),
				money(p.StartAmount),
				money(p.Contributions),
				money(p.Interest),
				money(p.EndAmount),
				money(p.GrowthRate),
			})
		}
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("export: write csv: %w", err)
	}
	return nil
}

func lineRows(lines []Line) [][]string {
	out := make([][]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, []string{l.Label, l.String()})
	}
	return out
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
