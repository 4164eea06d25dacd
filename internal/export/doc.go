// Package export renders a calculation result as a downloadable file.
//
// NewReport flattens the inputs, the headline figures, calculator details and
// the period breakdown into a Report. Write encodes a Report as CSV (one file
// with Inputs, Summary, Details and Breakdown sections) or as an XLSX
// workbook with a Summary sheet and a Breakdown sheet. Formats lists what
// Write accepts.
package export
