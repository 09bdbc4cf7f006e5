package engine

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rowforge/rowforge/internal/sheet"
)

// interpreter.go is the rule pipeline core: a left-to-right fold of rules
// over a (activeWorksheet, matrix) state. The matrix produced by rule k is
// the sole input to rule k+1, and column indices are always resolved against
// the current matrix, never cached from the original.
//
// Data-shape problems (unresolved identifiers, missing worksheets, ragged
// rows) become warnings on the result, never errors. The single abort case
// is ValidateColumns with OnFailure=stop.

// Result is the outcome of one pipeline run. It is produced fresh per
// invocation and never mutated after return.
type Result struct {
	Matrix   sheet.Matrix
	Applied  []string // human-readable descriptions of rules actually applied
	Warnings []string
	RowCount int
	ColCount int

	// Notify is set when a ValidateColumns rule with OnFailure=notify saw a
	// mismatch. Callers may hang an out-of-band notification off it; the
	// data-level behavior is identical to continue.
	Notify bool

	// Aborted is set when a ValidateColumns rule with OnFailure=stop emptied
	// the result and skipped the remaining rules.
	Aborted bool
}

// ErrNoWorksheets is returned by Run when the input workbook is empty.
// Malformed input is a caller-side validation concern, not a warning.
var ErrNoWorksheets = errors.New("at least one worksheet is required")

// runState threads the interpreter's working set through the fold. It is
// replaced, not shared: each handler operates on its own cloned matrix.
type runState struct {
	wb       *sheet.Workbook
	active   string
	matrix   sheet.Matrix
	selected []string // worksheets targeted by earlier SelectWorksheet rules
}

// Run applies rules in order to the workbook's first worksheet and returns
// the transformed matrix with its execution log. Repeated runs over the same
// input produce byte-identical results.
func Run(wb *sheet.Workbook, rules []Rule) (*Result, error) {
	if wb == nil || wb.Len() == 0 {
		return nil, ErrNoWorksheets
	}

	res := &Result{}
	st := &runState{wb: wb, active: wb.First()}
	st.matrix = wb.Sheets[st.active].Clone()

	for _, r := range rules {
		if abort := applyRule(r, st, res); abort {
			res.Matrix = sheet.Matrix{}
			res.RowCount = 0
			res.ColCount = 0
			res.Aborted = true
			return res, nil
		}
	}

	res.Matrix = st.matrix
	res.RowCount = st.matrix.RowCount()
	res.ColCount = st.matrix.Width()
	return res, nil
}

// applyRule dispatches one rule. The type switch is exhaustive over the
// closed rule set; returning true aborts the run.
func applyRule(r Rule, st *runState, res *Result) bool {
	switch rule := r.(type) {
	case *SelectWorksheet:
		applySelectWorksheet(rule, st, res)
	case *ValidateColumns:
		return applyValidateColumns(rule, st, res)
	case *UnmergeAndFill:
		applyUnmergeAndFill(rule, st, res)
	case *DeleteRows:
		applyDeleteRows(rule, st, res)
	case *DeleteColumns:
		applyDeleteColumns(rule, st, res)
	case *CombineWorksheets:
		applyCombineWorksheets(rule, st, res)
	case *EvaluateFormulas:
		applyEvaluateFormulas(rule, res)
	case *ReplaceCharacters:
		applyReplaceCharacters(rule, st, res)
	}
	return false
}

func applySelectWorksheet(rule *SelectWorksheet, st *runState, res *Result) {
	name, ok := resolveWorksheet(rule, st.wb, res)
	if !ok {
		res.warnf("worksheet %q (%s) not found; keeping %q", rule.Value, rule.IdentifierType, st.active)
		return
	}

	st.selectSheet(name)
	res.appliedf("Selected worksheet %q", name)
}

// selectSheet switches the active matrix and records the selection for
// later CombineWorksheets fallbacks.
func (st *runState) selectSheet(name string) {
	st.active = name
	st.matrix = st.wb.Sheets[name].Clone()
	for _, s := range st.selected {
		if s == name {
			return
		}
	}
	st.selected = append(st.selected, name)
}

// resolveWorksheet maps a SelectWorksheet identifier to a worksheet name.
func resolveWorksheet(rule *SelectWorksheet, wb *sheet.Workbook, res *Result) (string, bool) {
	switch rule.IdentifierType {
	case SheetByName:
		_, ok := wb.Get(rule.Value)
		return rule.Value, ok

	case SheetByIndex:
		idx, err := strconv.Atoi(strings.TrimSpace(rule.Value))
		if err != nil || idx < 0 || idx >= len(wb.Order) {
			return "", false
		}
		return wb.Order[idx], true

	case SheetByPattern:
		re, err := regexp.Compile("(?i)" + rule.Value)
		if err != nil {
			res.warnf("invalid worksheet pattern %q: %v", rule.Value, err)
			return "", false
		}
		for _, name := range wb.Order {
			if re.MatchString(name) {
				return name, true
			}
		}
		return "", false

	default:
		return "", false
	}
}

// applyValidateColumns checks the header width. Returns true to abort the
// whole run (OnFailure=stop on mismatch); every other outcome proceeds.
func applyValidateColumns(rule *ValidateColumns, st *runState, res *Result) bool {
	found := 0
	if len(st.matrix) > 0 {
		found = len(st.matrix[0])
	}

	res.appliedf("Validated column count (expected %d, found %d)", rule.ExpectedCount, found)

	if found == rule.ExpectedCount {
		return false
	}

	res.warnf("column count mismatch: expected %d, found %d", rule.ExpectedCount, found)

	switch rule.OnFailure {
	case FailureStop:
		res.warnf("transformation aborted: column validation failed on worksheet %q", st.active)
		return true
	case FailureNotify:
		res.Notify = true
	}
	return false
}

func applyUnmergeAndFill(rule *UnmergeAndFill, st *runState, res *Result) {
	cols := resolveColumns(rule.Columns, st.matrix, res)
	filled := 0
	for _, col := range cols {
		filled += fillColumn(st.matrix, col, rule.Direction)
	}
	res.appliedf("Filled %d empty cell(s) across %d column(s) (%s)", filled, len(cols), rule.Direction)
}

// fillColumn carries the last non-empty value into empty cells, scanning
// top-to-bottom for down and bottom-to-top for up. Rows too short to hold
// the column are left alone.
func fillColumn(m sheet.Matrix, col int, direction string) int {
	carry := sheet.Null
	filled := 0

	visit := func(r int) {
		if col >= len(m[r]) {
			return
		}
		if !m[r][col].IsEmpty() {
			carry = m[r][col]
			return
		}
		if carry.Valid {
			m[r][col] = carry
			filled++
		}
	}

	if direction == FillUp {
		for r := len(m) - 1; r >= 0; r-- {
			visit(r)
		}
	} else {
		for r := 0; r < len(m); r++ {
			visit(r)
		}
	}
	return filled
}

func applyDeleteRows(rule *DeleteRows, st *runState, res *Result) {
	switch rule.Method {
	case DeleteByNumbers:
		removed := deleteRowNumbers(st, rule.Rows)
		res.appliedf("Deleted %d row(s) by row number", removed)

	case DeleteByCondition:
		removed := deleteRowsByCondition(st, rule.Condition, res)
		res.appliedf("Deleted %d row(s) matching condition %s", removed, describeCondition(rule.Condition))
	}
}

// deleteRowNumbers removes the given 1-based rows; out-of-range numbers are
// ignored.
func deleteRowNumbers(st *runState, rows []int) int {
	drop := make(map[int]bool, len(rows))
	for _, n := range rows {
		if n >= 1 && n <= len(st.matrix) {
			drop[n-1] = true
		}
	}
	if len(drop) == 0 {
		return 0
	}

	kept := make(sheet.Matrix, 0, len(st.matrix)-len(drop))
	for i, row := range st.matrix {
		if !drop[i] {
			kept = append(kept, row)
		}
	}
	st.matrix = kept
	return len(drop)
}

// deleteRowsByCondition removes every matching row except row 0, which is
// always preserved.
func deleteRowsByCondition(st *runState, cond *RowCondition, res *Result) int {
	if cond == nil {
		return 0
	}

	col := sheet.ColumnNotFound
	if cond.Column != "" {
		col = sheet.ResolveColumn(cond.Column, st.matrix.Header())
		if col == sheet.ColumnNotFound {
			// Unresolvable column means nothing matches rather than an error.
			res.warnf("condition column %q not found; no rows deleted", cond.Column)
			return 0
		}
	}

	kept := make(sheet.Matrix, 0, len(st.matrix))
	removed := 0
	for i, row := range st.matrix {
		if i == 0 || !rowMatches(row, cond, col) {
			kept = append(kept, row)
		} else {
			removed++
		}
	}
	st.matrix = kept
	return removed
}

// rowMatches tests one data row against a delete condition. col is the
// resolved column index, or ColumnNotFound when the condition spans the
// whole row.
func rowMatches(row []sheet.Cell, cond *RowCondition, col int) bool {
	cellAt := func(c int) sheet.Cell {
		if c < len(row) {
			return row[c]
		}
		return sheet.Null
	}

	switch cond.Type {
	case CondEmpty:
		if col != sheet.ColumnNotFound {
			return cellAt(col).IsEmpty()
		}
		for _, c := range row {
			if !c.IsEmpty() {
				return false
			}
		}
		return true

	case CondContains:
		if col != sheet.ColumnNotFound {
			return strings.Contains(cellAt(col).String(), cond.Value)
		}
		for _, c := range row {
			if strings.Contains(c.String(), cond.Value) {
				return true
			}
		}
		return false

	case CondPattern:
		if cond.re == nil {
			return false
		}
		if col != sheet.ColumnNotFound {
			return cond.re.MatchString(cellAt(col).String())
		}
		for _, c := range row {
			if cond.re.MatchString(c.String()) {
				return true
			}
		}
		return false
	}
	return false
}

func describeCondition(cond *RowCondition) string {
	if cond == nil {
		return "(none)"
	}
	if cond.Column != "" {
		return fmt.Sprintf("%s on column %q", cond.Type, cond.Column)
	}
	return cond.Type
}

func applyDeleteColumns(rule *DeleteColumns, st *runState, res *Result) {
	indices := resolveColumns(rule.Columns, st.matrix, res)

	// Descending order so earlier removals never shift later indices within
	// this rule application.
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	for _, idx := range indices {
		for r, row := range st.matrix {
			if idx < len(row) {
				st.matrix[r] = append(row[:idx], row[idx+1:]...)
			}
		}
	}

	res.appliedf("Deleted %d column(s)", len(indices))
}

// resolveColumns resolves identifiers against the current header row,
// deduplicating and dropping anything outside the matrix. Each unresolved
// identifier contributes exactly one warning.
func resolveColumns(identifiers []string, m sheet.Matrix, res *Result) []int {
	header := m.Header()
	width := m.Width()
	seen := make(map[int]bool, len(identifiers))
	var out []int

	for _, id := range identifiers {
		idx := sheet.ResolveColumn(id, header)
		if idx == sheet.ColumnNotFound || idx >= width {
			res.warnf("column %q not found; skipping", id)
			continue
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

func applyCombineWorksheets(rule *CombineWorksheets, st *runState, res *Result) {
	sources := rule.SourceSheets
	if len(sources) == 0 {
		for _, name := range st.selected {
			if name != st.active {
				sources = append(sources, name)
			}
		}
	}
	if len(sources) == 0 {
		res.warnf("no source worksheets to combine")
		res.appliedf("Combined 0 worksheet(s) (%s)", rule.Operation)
		return
	}

	combined := 0
	added := 0
	for _, name := range sources {
		src, ok := st.wb.Get(name)
		if !ok {
			res.warnf("worksheet %q not found; skipping combine", name)
			continue
		}
		switch rule.Operation {
		case CombineMerge:
			added += mergeSheet(st, src)
		default:
			added += appendSheet(st, src)
		}
		combined++
	}

	res.appliedf("Combined %d worksheet(s) (%s): %d row(s) added", combined, rule.Operation, added)
}

// appendSheet concatenates every row of src onto the working matrix.
func appendSheet(st *runState, src sheet.Matrix) int {
	clone := src.Clone()
	st.matrix = append(st.matrix, clone...)
	return len(clone)
}

// mergeSheet header-aligns src's data rows into the working matrix. Source
// columns whose header matches an existing header land in that column;
// unmatched columns are appended. Every row is padded to the final width so
// no row from either side is lost or truncated.
func mergeSheet(st *runState, src sheet.Matrix) int {
	if len(src) == 0 {
		return 0
	}
	if len(st.matrix) == 0 {
		st.matrix = src.Clone()
		return len(src)
	}

	header := st.matrix.Header()
	byName := make(map[string]int, len(header))
	for i, c := range header {
		key := strings.ToLower(strings.TrimSpace(c.String()))
		if key != "" {
			byName[key] = i
		}
	}

	width := st.matrix.Width()

	// Map each source column to a destination column, growing the header for
	// columns the working matrix has never seen.
	srcHeader := src.Header()
	dest := make([]int, len(srcHeader))
	for j, c := range srcHeader {
		key := strings.ToLower(strings.TrimSpace(c.String()))
		if idx, ok := byName[key]; ok && key != "" {
			dest[j] = idx
			continue
		}
		dest[j] = width
		if key != "" {
			byName[key] = width
		}
		for len(st.matrix[0]) < width+1 {
			st.matrix[0] = append(st.matrix[0], sheet.Null)
		}
		st.matrix[0][width] = c
		width++
	}

	for _, row := range src[1:] {
		aligned := make([]sheet.Cell, width)
		for j, c := range row {
			if j < len(dest) {
				aligned[dest[j]] = c
			}
		}
		st.matrix = append(st.matrix, aligned)
	}

	// Pad earlier rows so missing columns are explicit empty cells.
	for r, row := range st.matrix {
		for len(row) < width {
			row = append(row, sheet.Null)
		}
		st.matrix[r] = row
	}

	return len(src) - 1
}

func applyEvaluateFormulas(rule *EvaluateFormulas, res *Result) {
	if rule.Enabled {
		res.appliedf("Formula evaluation enabled: formula cells resolved to computed values")
	} else {
		res.appliedf("Formula evaluation disabled: formula cells kept as-is")
	}
}

func applyReplaceCharacters(rule *ReplaceCharacters, st *runState, res *Result) {
	changed := 0
	for _, rep := range rule.Replacements {
		if rep.Find == "" {
			res.warnf("replacement with empty find string skipped")
			continue
		}
		changed += applyReplacement(rep, st, res)
	}
	res.appliedf("Applied %d replacement(s): %d cell(s) changed", len(rule.Replacements), changed)
}

// applyReplacement performs one literal substitution over the cells its
// scope targets.
func applyReplacement(rep Replacement, st *runState, res *Result) int {
	replaceCell := func(r, c int) int {
		cell := st.matrix[r][c]
		if !cell.Valid {
			return 0
		}
		next := strings.ReplaceAll(cell.Value, rep.Find, rep.Replace)
		if next == cell.Value {
			return 0
		}
		st.matrix[r][c] = sheet.Str(next)
		return 1
	}

	changed := 0
	switch rep.Scope {
	case ScopeSpecificColumns:
		cols := resolveColumns(rep.Columns, st.matrix, res)
		for r := range st.matrix {
			for _, c := range cols {
				if c < len(st.matrix[r]) {
					changed += replaceCell(r, c)
				}
			}
		}

	case ScopeSpecificRows:
		for _, n := range rep.Rows {
			r := n - 1
			if r < 0 || r >= len(st.matrix) {
				continue
			}
			for c := range st.matrix[r] {
				changed += replaceCell(r, c)
			}
		}

	default: // ScopeAll
		for r := range st.matrix {
			for c := range st.matrix[r] {
				changed += replaceCell(r, c)
			}
		}
	}
	return changed
}

func (r *Result) appliedf(format string, args ...any) {
	r.Applied = append(r.Applied, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
