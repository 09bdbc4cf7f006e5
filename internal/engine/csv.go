package engine

import (
	"strings"

	"github.com/rowforge/rowforge/internal/sheet"
)

// csv.go renders a transformed matrix as delimiter-separated text.
//
// encoding/csv is deliberately not used here: the output contract allows an
// arbitrary string delimiter (not just a single rune) and requires the exact
// quote-only-when-needed rule below, neither of which the stdlib writer
// expresses. Rows are joined with \n and ragged rows simply contribute fewer
// fields.

// OutputFormat describes how a matrix is serialized. Only CSV-style flat
// output is supported.
type OutputFormat struct {
	Type           string `json:"type"`
	Delimiter      string `json:"delimiter"`
	Encoding       string `json:"encoding,omitempty"`
	IncludeHeaders bool   `json:"includeHeaders"`
}

// OutputTypeCSV is the only supported output format type.
const OutputTypeCSV = "CSV"

// DefaultOutputFormat is a comma-separated UTF-8 format with headers.
func DefaultOutputFormat() OutputFormat {
	return OutputFormat{Type: OutputTypeCSV, Delimiter: ",", Encoding: "utf-8", IncludeHeaders: true}
}

// Serialize renders the matrix using the format's delimiter. Absent cells
// become empty fields. With IncludeHeaders false, row 0 is suppressed.
func Serialize(m sheet.Matrix, format OutputFormat) string {
	delim := format.Delimiter
	if delim == "" {
		delim = ","
	}

	rows := m
	if !format.IncludeHeaders && len(rows) > 0 {
		rows = rows[1:]
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteString(delim)
			}
			b.WriteString(escapeField(cell.String(), delim))
		}
	}
	return b.String()
}

// escapeField quotes a field if and only if it contains the delimiter, a
// double quote, or a newline. Internal quotes are doubled.
func escapeField(v, delim string) string {
	if !strings.Contains(v, delim) &&
		!strings.Contains(v, `"`) &&
		!strings.ContainsAny(v, "\n\r") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
