// Package engine implements the transformation rule pipeline: a deterministic
// interpreter that folds an ordered rule list over a cell grid, plus the CSV
// serializer for the transformed result.
//
// The engine is pure: no I/O, no shared state. Every invocation gets its own
// workbook snapshot and configuration snapshot, so any number of runs may
// execute concurrently without coordination.
package engine

import "regexp"

// Rule is one declarative transformation step. The concrete types below form
// a closed set; the interpreter dispatches on them with an exhaustive type
// switch, so a new rule tag is a compile-time exercise rather than a silent
// default case.
type Rule interface {
	// RuleID returns the rule's opaque identifier, unique within a
	// configuration.
	RuleID() string

	// isRule keeps the set closed to this package.
	isRule()
}

// Rule type tags as they appear in configuration documents.
const (
	TypeSelectWorksheet   = "SELECT_WORKSHEET"
	TypeValidateColumns   = "VALIDATE_COLUMNS"
	TypeUnmergeAndFill    = "UNMERGE_AND_FILL"
	TypeDeleteRows        = "DELETE_ROWS"
	TypeDeleteColumns     = "DELETE_COLUMNS"
	TypeCombineWorksheets = "COMBINE_WORKSHEETS"
	TypeEvaluateFormulas  = "EVALUATE_FORMULAS"
	TypeReplaceCharacters = "REPLACE_CHARACTERS"
)

// Worksheet identifier schemes for SelectWorksheet.
const (
	SheetByName    = "name"
	SheetByPattern = "pattern"
	SheetByIndex   = "index"
)

// SelectWorksheet re-scopes subsequent rules to a different source worksheet.
// A worksheet that cannot be resolved is a warning, never a failure.
type SelectWorksheet struct {
	ID             string
	IdentifierType string // name | pattern | index
	Value          string
}

// OnFailure policies for ValidateColumns.
const (
	FailureStop     = "stop"
	FailureNotify   = "notify"
	FailureContinue = "continue"
)

// ValidateColumns compares the header row's width to an expected count.
// On mismatch with OnFailure=stop the whole run aborts with an empty result;
// notify and continue both proceed, notify additionally flags the result.
type ValidateColumns struct {
	ID            string
	ExpectedCount int
	OnFailure     string // stop | notify | continue
}

// Fill directions for UnmergeAndFill.
const (
	FillDown = "down"
	FillUp   = "up"
)

// UnmergeAndFill carries the last non-empty value in a column into empty
// cells, top-to-bottom (down) or bottom-to-top (up).
type UnmergeAndFill struct {
	ID        string
	Columns   []string
	Direction string // up | down
}

// DeleteRows methods and condition types.
const (
	DeleteByNumbers   = "rows"
	DeleteByCondition = "condition"

	CondEmpty    = "empty"
	CondContains = "contains"
	CondPattern  = "pattern"
)

// RowCondition describes which rows DeleteRows removes when Method is
// "condition". Column is optional; when empty the condition tests the whole
// row.
type RowCondition struct {
	Type   string // empty | contains | pattern
	Column string
	Value  string

	// re is compiled once at parse time for CondPattern.
	re *regexp.Regexp
}

// DeleteRows removes rows either by explicit 1-based numbers or by a
// per-row condition. Conditions never touch row 0.
type DeleteRows struct {
	ID        string
	Method    string // rows | condition
	Rows      []int  // 1-based, used when Method == rows
	Condition *RowCondition
}

// DeleteColumns removes the resolved columns from every row.
type DeleteColumns struct {
	ID      string
	Columns []string
}

// CombineWorksheets operations.
const (
	CombineAppend = "append"
	CombineMerge  = "merge"
)

// CombineWorksheets concatenates (append) or header-aligns (merge) rows from
// other worksheets into the working matrix. With no SourceSheets listed, the
// previously-selected worksheets are used.
type CombineWorksheets struct {
	ID           string
	SourceSheets []string
	Operation    string // append | merge
}

// EvaluateFormulas records whether formula cells were resolved to computed
// values. Evaluation itself happens at the workbook reader; the rule's sole
// effect here is its execution-log entry, which is a user-facing contract
// and must not be dropped.
type EvaluateFormulas struct {
	ID      string
	Enabled bool
}

// Replacement scopes for ReplaceCharacters.
const (
	ScopeAll             = "all"
	ScopeSpecificColumns = "specific_columns"
	ScopeSpecificRows    = "specific_rows"
)

// Replacement is one literal substring substitution. Entries compose
// sequentially: entry 2 sees the output of entry 1.
type Replacement struct {
	Find    string
	Replace string
	Scope   string // all | specific_columns | specific_rows
	Columns []string
	Rows    []int // 1-based
}

// ReplaceCharacters applies literal (non-regex) substring substitutions over
// targeted cells.
type ReplaceCharacters struct {
	ID           string
	Replacements []Replacement
}

func (r *SelectWorksheet) RuleID() string   { return r.ID }
func (r *ValidateColumns) RuleID() string   { return r.ID }
func (r *UnmergeAndFill) RuleID() string    { return r.ID }
func (r *DeleteRows) RuleID() string        { return r.ID }
func (r *DeleteColumns) RuleID() string     { return r.ID }
func (r *CombineWorksheets) RuleID() string { return r.ID }
func (r *EvaluateFormulas) RuleID() string  { return r.ID }
func (r *ReplaceCharacters) RuleID() string { return r.ID }

func (*SelectWorksheet) isRule()   {}
func (*ValidateColumns) isRule()   {}
func (*UnmergeAndFill) isRule()    {}
func (*DeleteRows) isRule()        {}
func (*DeleteColumns) isRule()     {}
func (*CombineWorksheets) isRule() {}
func (*EvaluateFormulas) isRule()  {}
func (*ReplaceCharacters) isRule() {}

// TypeTag returns the document tag for a rule. The switch is exhaustive over
// the closed set.
func TypeTag(r Rule) string {
	switch r.(type) {
	case *SelectWorksheet:
		return TypeSelectWorksheet
	case *ValidateColumns:
		return TypeValidateColumns
	case *UnmergeAndFill:
		return TypeUnmergeAndFill
	case *DeleteRows:
		return TypeDeleteRows
	case *DeleteColumns:
		return TypeDeleteColumns
	case *CombineWorksheets:
		return TypeCombineWorksheets
	case *EvaluateFormulas:
		return TypeEvaluateFormulas
	case *ReplaceCharacters:
		return TypeReplaceCharacters
	default:
		return ""
	}
}
