package sheet

import (
	"strconv"
	"strings"
)

// ColumnNotFound is returned by ResolveColumn when an identifier matches
// nothing. Callers treat it as a no-op for that identifier, never an error.
const ColumnNotFound = -1

// ResolveColumn resolves a column identifier against a header row.
//
// Resolution is attempted in order:
//  1. a non-negative integer -> zero-based column index
//  2. a spreadsheet letter code ("A", "B", ..., "AA") -> index via base-26
//  3. a case-insensitive match against the header cell text
//
// All three schemes resolving the same column is a load-bearing property:
// "A", "0" and the literal first header text are interchangeable. Failing
// all three yields ColumnNotFound.
func ResolveColumn(identifier string, header []Cell) int {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return ColumnNotFound
	}

	if n, err := strconv.Atoi(id); err == nil {
		if n >= 0 {
			return n
		}
		return ColumnNotFound
	}

	// Any all-letter identifier decodes as a letter code, including header
	// names like "Name" or "Status", so the decoding only wins when it lands
	// inside the header; otherwise the identifier is tried as header text.
	if idx, ok := letterToIndex(id); ok && idx < len(header) {
		return idx
	}

	for i, c := range header {
		if strings.EqualFold(strings.TrimSpace(c.String()), id) {
			return i
		}
	}

	return ColumnNotFound
}

// letterToIndex decodes a column letter code to a zero-based index.
// "A"->0, "Z"->25, "AA"->26.
func letterToIndex(name string) (int, bool) {
	name = strings.ToUpper(name)
	col := 0
	for _, ch := range name {
		if ch < 'A' || ch > 'Z' {
			return 0, false
		}
		col = col*26 + int(ch-'A') + 1
	}
	return col - 1, true
}

// IndexToLetter converts a zero-based column index to its letter code.
// 0->"A", 25->"Z", 26->"AA". Used for log messages only.
func IndexToLetter(col int) string {
	result := ""
	col++
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
