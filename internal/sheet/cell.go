// Package sheet provides the cell grid model shared by the workbook reader
// and the transformation engine. A grid is an ordered list of rows of
// nullable scalar cells; rows may be ragged and every consumer must tolerate
// that.
package sheet

import "strings"

// Cell is a single scalar value in a grid. Valid=false means the cell is
// absent (a null), which is how merged-cell members and missing values are
// represented after extraction.
type Cell struct {
	Value string
	Valid bool
}

// Str returns a populated cell holding s.
func Str(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// Null is the absent cell.
var Null = Cell{}

// String returns the cell's string form. Absent cells stringify to "".
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return c.Value
}

// IsEmpty reports whether the cell is absent or contains only whitespace.
func (c Cell) IsEmpty() bool {
	return !c.Valid || strings.TrimSpace(c.Value) == ""
}
