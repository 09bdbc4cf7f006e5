package sheet

// Workbook is a set of named worksheets in source order. Go maps do not keep
// insertion order, so the order the reader saw the sheets in is carried
// separately; the engine's implicit starting worksheet is Order[0].
type Workbook struct {
	Order  []string
	Sheets map[string]Matrix
}

// NewWorkbook builds a workbook from (name, matrix) pairs in the given order.
func NewWorkbook() *Workbook {
	return &Workbook{Sheets: make(map[string]Matrix)}
}

// Add appends a named worksheet. Adding a duplicate name replaces the matrix
// but keeps the original position.
func (w *Workbook) Add(name string, m Matrix) {
	if _, ok := w.Sheets[name]; !ok {
		w.Order = append(w.Order, name)
	}
	w.Sheets[name] = m
}

// Get returns the named worksheet's matrix.
func (w *Workbook) Get(name string) (Matrix, bool) {
	m, ok := w.Sheets[name]
	return m, ok
}

// First returns the first worksheet's name, or "" for an empty workbook.
func (w *Workbook) First() string {
	if len(w.Order) == 0 {
		return ""
	}
	return w.Order[0]
}

// Len returns the number of worksheets.
func (w *Workbook) Len() int {
	return len(w.Order)
}
