package sheet

// Matrix is an ordered sequence of rows, each an ordered sequence of cells.
// Row 0 is conventionally a header row but nothing here enforces that.
type Matrix [][]Cell

// RowCount returns the number of rows.
func (m Matrix) RowCount() int {
	return len(m)
}

// Width returns the widest row's length. A ragged matrix reports the maximum.
func (m Matrix) Width() int {
	w := 0
	for _, row := range m {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// At returns the cell at (row, col), or the absent cell when the position is
// outside the matrix. Safe on ragged rows.
func (m Matrix) At(row, col int) Cell {
	if row < 0 || row >= len(m) {
		return Null
	}
	if col < 0 || col >= len(m[row]) {
		return Null
	}
	return m[row][col]
}

// Header returns row 0, or nil for an empty matrix.
func (m Matrix) Header() []Cell {
	if len(m) == 0 {
		return nil
	}
	return m[0]
}

// Clone returns a deep copy. Rules never mutate their input in place; each
// handler produces a fresh matrix so reruns over the same input stay
// deterministic.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]Cell(nil), row...)
	}
	return out
}

// FromStrings builds a matrix from string rows for tests and fixtures.
// nil entries are not expressible here; use FromPtrs when nulls matter.
func FromStrings(rows [][]string) Matrix {
	out := make(Matrix, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			cells[j] = Str(v)
		}
		out[i] = cells
	}
	return out
}

// FromPtrs builds a matrix from rows of string pointers; nil becomes an
// absent cell.
func FromPtrs(rows [][]*string) Matrix {
	out := make(Matrix, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			if v == nil {
				cells[j] = Null
			} else {
				cells[j] = Str(*v)
			}
		}
		out[i] = cells
	}
	return out
}

// Strings renders the matrix as plain string rows, absent cells as "".
func (m Matrix) Strings() [][]string {
	out := make([][]string, len(m))
	for i, row := range m {
		vals := make([]string, len(row))
		for j, c := range row {
			vals[j] = c.String()
		}
		out[i] = vals
	}
	return out
}
