package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// parse.go converts portable configuration documents into typed rules.
//
// Rule parameters are validated and parsed into their concrete shapes once,
// here, at load time. Malformed configurations are rejected before they ever
// reach the interpreter; the fold itself never sees a duck-typed params bag.

// Document is the portable configuration snapshot accepted and produced by
// import/export: {name, description, rules, outputFormat}.
type Document struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Rules       []Rule       `json:"-"`
	Output      OutputFormat `json:"outputFormat"`
}

// wireDocument is the raw JSON shape of a Document.
type wireDocument struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Rules       []wireRule   `json:"rules"`
	Output      OutputFormat `json:"outputFormat"`
}

// wireRule is the raw JSON shape of one rule entry.
type wireRule struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// ValidationError reports why a configuration document was rejected.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// ParseDocument decodes and validates a portable configuration document.
// It enforces: non-empty name, every rule with non-empty id, known type and
// object params, and outputFormat.type == "CSV".
func ParseDocument(data []byte) (*Document, error) {
	var wire wireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("malformed JSON: %v", err)}}
	}

	var problems []string
	if strings.TrimSpace(wire.Name) == "" {
		problems = append(problems, "name must be a non-empty string")
	}
	if wire.Output.Type != OutputTypeCSV {
		problems = append(problems, fmt.Sprintf("outputFormat.type must be %q, got %q", OutputTypeCSV, wire.Output.Type))
	}
	if wire.Output.Delimiter == "" {
		wire.Output.Delimiter = ","
	}

	rules := make([]Rule, 0, len(wire.Rules))
	seen := make(map[string]bool, len(wire.Rules))
	for i, wr := range wire.Rules {
		r, errs := parseRule(i, wr)
		problems = append(problems, errs...)
		if r == nil {
			continue
		}
		if seen[wr.ID] {
			problems = append(problems, fmt.Sprintf("rules[%d]: duplicate rule id %q", i, wr.ID))
		}
		seen[wr.ID] = true
		rules = append(rules, r)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return &Document{
		Name:        strings.TrimSpace(wire.Name),
		Description: wire.Description,
		Rules:       rules,
		Output:      wire.Output,
	}, nil
}

// MarshalJSON renders the document back into its portable wire form, so an
// exported configuration re-imports to the same rules.
func (d *Document) MarshalJSON() ([]byte, error) {
	wire := wireDocument{
		Name:        d.Name,
		Description: d.Description,
		Rules:       make([]wireRule, 0, len(d.Rules)),
		Output:      d.Output,
	}
	for _, r := range d.Rules {
		params, err := encodeParams(r)
		if err != nil {
			return nil, err
		}
		wire.Rules = append(wire.Rules, wireRule{ID: r.RuleID(), Type: TypeTag(r), Params: params})
	}
	return json.Marshal(wire)
}

// Param wire shapes, shared by decode and encode.

type selectWorksheetParams struct {
	IdentifierType string `json:"identifierType"`
	Value          string `json:"value"`
}

type validateColumnsParams struct {
	ExpectedCount int    `json:"expectedCount"`
	OnFailure     string `json:"onFailure"`
}

type unmergeAndFillParams struct {
	Columns   []string `json:"columns"`
	Direction string   `json:"direction"`
}

type rowConditionParams struct {
	Type   string `json:"type"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

type deleteRowsParams struct {
	Method    string              `json:"method"`
	Rows      []int               `json:"rows,omitempty"`
	Condition *rowConditionParams `json:"condition,omitempty"`
}

type deleteColumnsParams struct {
	Columns []string `json:"columns"`
}

type combineWorksheetsParams struct {
	SourceSheets []string `json:"sourceSheets,omitempty"`
	Operation    string   `json:"operation"`
}

type evaluateFormulasParams struct {
	Enabled bool `json:"enabled"`
}

type replacementParams struct {
	Find    string   `json:"find"`
	Replace string   `json:"replace"`
	Scope   string   `json:"scope"`
	Columns []string `json:"columns,omitempty"`
	Rows    []int    `json:"rows,omitempty"`
}

type replaceCharactersParams struct {
	Replacements []replacementParams `json:"replacements"`
}

// parseRule validates one wire rule and builds its typed form. Returns nil
// plus problems when the rule is rejected.
func parseRule(i int, wr wireRule) (Rule, []string) {
	at := func(format string, args ...any) string {
		return fmt.Sprintf("rules[%d]: ", i) + fmt.Sprintf(format, args...)
	}

	var problems []string
	if strings.TrimSpace(wr.ID) == "" {
		problems = append(problems, at("id must be a non-empty string"))
	}
	if len(wr.Params) == 0 || string(wr.Params) == "null" {
		problems = append(problems, at("params must be an object"))
		return nil, problems
	}

	decode := func(v any) bool {
		if err := json.Unmarshal(wr.Params, v); err != nil {
			problems = append(problems, at("invalid params for %s: %v", wr.Type, err))
			return false
		}
		return true
	}

	oneOf := func(field, got string, allowed ...string) bool {
		for _, a := range allowed {
			if got == a {
				return true
			}
		}
		problems = append(problems, at("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), got))
		return false
	}

	var rule Rule
	switch wr.Type {
	case TypeSelectWorksheet:
		var p selectWorksheetParams
		if !decode(&p) {
			break
		}
		oneOf("identifierType", p.IdentifierType, SheetByName, SheetByPattern, SheetByIndex)
		if p.Value == "" {
			problems = append(problems, at("value must be a non-empty string"))
		}
		rule = &SelectWorksheet{ID: wr.ID, IdentifierType: p.IdentifierType, Value: p.Value}

	case TypeValidateColumns:
		var p validateColumnsParams
		if !decode(&p) {
			break
		}
		if p.ExpectedCount < 0 {
			problems = append(problems, at("expectedCount must be non-negative"))
		}
		oneOf("onFailure", p.OnFailure, FailureStop, FailureNotify, FailureContinue)
		rule = &ValidateColumns{ID: wr.ID, ExpectedCount: p.ExpectedCount, OnFailure: p.OnFailure}

	case TypeUnmergeAndFill:
		var p unmergeAndFillParams
		if !decode(&p) {
			break
		}
		if len(p.Columns) == 0 {
			problems = append(problems, at("columns must not be empty"))
		}
		oneOf("direction", p.Direction, FillUp, FillDown)
		rule = &UnmergeAndFill{ID: wr.ID, Columns: p.Columns, Direction: p.Direction}

	case TypeDeleteRows:
		var p deleteRowsParams
		if !decode(&p) {
			break
		}
		if !oneOf("method", p.Method, DeleteByNumbers, DeleteByCondition) {
			break
		}
		dr := &DeleteRows{ID: wr.ID, Method: p.Method, Rows: p.Rows}
		if p.Method == DeleteByCondition {
			if p.Condition == nil {
				problems = append(problems, at("condition is required when method is %q", DeleteByCondition))
				break
			}
			if !oneOf("condition.type", p.Condition.Type, CondEmpty, CondContains, CondPattern) {
				break
			}
			cond := &RowCondition{Type: p.Condition.Type, Column: p.Condition.Column, Value: p.Condition.Value}
			if cond.Type == CondPattern && cond.Value != "" {
				// Case-insensitive; an uncompilable pattern is not rejected
				// here, it just never matches at run time.
				if re, err := regexp.Compile("(?i)" + cond.Value); err == nil {
					cond.re = re
				}
			}
			dr.Condition = cond
		} else if len(p.Rows) == 0 {
			problems = append(problems, at("rows must not be empty when method is %q", DeleteByNumbers))
		}
		rule = dr

	case TypeDeleteColumns:
		var p deleteColumnsParams
		if !decode(&p) {
			break
		}
		if len(p.Columns) == 0 {
			problems = append(problems, at("columns must not be empty"))
		}
		rule = &DeleteColumns{ID: wr.ID, Columns: p.Columns}

	case TypeCombineWorksheets:
		var p combineWorksheetsParams
		if !decode(&p) {
			break
		}
		oneOf("operation", p.Operation, CombineAppend, CombineMerge)
		rule = &CombineWorksheets{ID: wr.ID, SourceSheets: p.SourceSheets, Operation: p.Operation}

	case TypeEvaluateFormulas:
		var p evaluateFormulasParams
		if !decode(&p) {
			break
		}
		rule = &EvaluateFormulas{ID: wr.ID, Enabled: p.Enabled}

	case TypeReplaceCharacters:
		var p replaceCharactersParams
		if !decode(&p) {
			break
		}
		if len(p.Replacements) == 0 {
			problems = append(problems, at("replacements must not be empty"))
		}
		rc := &ReplaceCharacters{ID: wr.ID}
		for j, rp := range p.Replacements {
			if rp.Find == "" {
				problems = append(problems, at("replacements[%d].find must be a non-empty string", j))
			}
			if rp.Scope != "" && !oneOf(fmt.Sprintf("replacements[%d].scope", j), rp.Scope, ScopeAll, ScopeSpecificColumns, ScopeSpecificRows) {
				continue
			}
			scope := rp.Scope
			if scope == "" {
				scope = ScopeAll
			}
			rc.Replacements = append(rc.Replacements, Replacement{
				Find:    rp.Find,
				Replace: rp.Replace,
				Scope:   scope,
				Columns: rp.Columns,
				Rows:    rp.Rows,
			})
		}
		rule = rc

	default:
		problems = append(problems, at("unknown rule type %q", wr.Type))
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return rule, nil
}

// encodeParams renders a typed rule back to its wire params object.
func encodeParams(r Rule) (json.RawMessage, error) {
	var v any
	switch rule := r.(type) {
	case *SelectWorksheet:
		v = selectWorksheetParams{IdentifierType: rule.IdentifierType, Value: rule.Value}
	case *ValidateColumns:
		v = validateColumnsParams{ExpectedCount: rule.ExpectedCount, OnFailure: rule.OnFailure}
	case *UnmergeAndFill:
		v = unmergeAndFillParams{Columns: rule.Columns, Direction: rule.Direction}
	case *DeleteRows:
		p := deleteRowsParams{Method: rule.Method, Rows: rule.Rows}
		if rule.Condition != nil {
			p.Condition = &rowConditionParams{
				Type:   rule.Condition.Type,
				Column: rule.Condition.Column,
				Value:  rule.Condition.Value,
			}
		}
		v = p
	case *DeleteColumns:
		v = deleteColumnsParams{Columns: rule.Columns}
	case *CombineWorksheets:
		v = combineWorksheetsParams{SourceSheets: rule.SourceSheets, Operation: rule.Operation}
	case *EvaluateFormulas:
		v = evaluateFormulasParams{Enabled: rule.Enabled}
	case *ReplaceCharacters:
		p := replaceCharactersParams{}
		for _, rep := range rule.Replacements {
			p.Replacements = append(p.Replacements, replacementParams(rep))
		}
		v = p
	default:
		return nil, fmt.Errorf("unknown rule type %T", r)
	}
	return json.Marshal(v)
}
