package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `{
	"name": "Vendor export cleanup",
	"description": "Strip junk and flatten the vendor report",
	"outputFormat": {"type": "CSV", "delimiter": ",", "includeHeaders": true},
	"rules": [
		{"id": "r1", "type": "SELECT_WORKSHEET", "params": {"identifierType": "name", "value": "Data"}},
		{"id": "r2", "type": "VALIDATE_COLUMNS", "params": {"expectedCount": 5, "onFailure": "stop"}},
		{"id": "r3", "type": "UNMERGE_AND_FILL", "params": {"columns": ["Region"], "direction": "down"}},
		{"id": "r4", "type": "DELETE_ROWS", "params": {"method": "condition", "condition": {"type": "empty"}}},
		{"id": "r5", "type": "DELETE_COLUMNS", "params": {"columns": ["Junk"]}},
		{"id": "r6", "type": "COMBINE_WORKSHEETS", "params": {"sourceSheets": ["Extra"], "operation": "append"}},
		{"id": "r7", "type": "EVALUATE_FORMULAS", "params": {"enabled": true}},
		{"id": "r8", "type": "REPLACE_CHARACTERS", "params": {"replacements": [{"find": "$", "replace": "", "scope": "all"}]}}
	]
}`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(validDocument))
	require.NoError(t, err)

	assert.Equal(t, "Vendor export cleanup", doc.Name)
	require.Len(t, doc.Rules, 8)

	sel, ok := doc.Rules[0].(*SelectWorksheet)
	require.True(t, ok)
	assert.Equal(t, "r1", sel.RuleID())
	assert.Equal(t, SheetByName, sel.IdentifierType)

	val, ok := doc.Rules[1].(*ValidateColumns)
	require.True(t, ok)
	assert.Equal(t, 5, val.ExpectedCount)
	assert.Equal(t, FailureStop, val.OnFailure)

	del, ok := doc.Rules[3].(*DeleteRows)
	require.True(t, ok)
	require.NotNil(t, del.Condition)
	assert.Equal(t, CondEmpty, del.Condition.Type)
}

func TestParseDocument_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		problem string
	}{
		{
			"malformed JSON",
			`{not json`,
			"malformed JSON",
		},
		{
			"missing name",
			`{"name": " ", "outputFormat": {"type": "CSV"}, "rules": []}`,
			"name must be a non-empty string",
		},
		{
			"wrong output type",
			`{"name": "x", "outputFormat": {"type": "XLSX"}, "rules": []}`,
			`outputFormat.type must be "CSV"`,
		},
		{
			"unknown rule type",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [{"id": "r", "type": "PIVOT", "params": {}}]}`,
			`unknown rule type "PIVOT"`,
		},
		{
			"missing rule id",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [{"type": "EVALUATE_FORMULAS", "params": {"enabled": true}}]}`,
			"id must be a non-empty string",
		},
		{
			"missing params",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [{"id": "r", "type": "EVALUATE_FORMULAS"}]}`,
			"params must be an object",
		},
		{
			"duplicate rule ids",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [
				{"id": "r", "type": "EVALUATE_FORMULAS", "params": {"enabled": true}},
				{"id": "r", "type": "EVALUATE_FORMULAS", "params": {"enabled": false}}
			]}`,
			`duplicate rule id "r"`,
		},
		{
			"bad identifierType",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [{"id": "r", "type": "SELECT_WORKSHEET", "params": {"identifierType": "uuid", "value": "v"}}]}`,
			"identifierType must be one of",
		},
		{
			"condition required for condition method",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [{"id": "r", "type": "DELETE_ROWS", "params": {"method": "condition"}}]}`,
			"condition is required",
		},
		{
			"rows required for rows method",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [{"id": "r", "type": "DELETE_ROWS", "params": {"method": "rows"}}]}`,
			"rows must not be empty",
		},
		{
			"empty find string",
			`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [{"id": "r", "type": "REPLACE_CHARACTERS", "params": {"replacements": [{"find": "", "replace": "x"}]}}]}`,
			"find must be a non-empty string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.doc))
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Problems)

			found := false
			for _, p := range verr.Problems {
				if strings.Contains(p, tt.problem) {
					found = true
				}
			}
			assert.True(t, found, "problems %v should mention %q", verr.Problems, tt.problem)
		})
	}
}

func TestParseDocument_AggregatesProblems(t *testing.T) {
	doc := `{"name": "", "outputFormat": {"type": "TSV"}, "rules": [{"id": "", "type": "NOPE", "params": {}}]}`
	_, err := ParseDocument([]byte(doc))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Problems), 3)
}

func TestParseDocument_DelimiterDefault(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": []}`))
	require.NoError(t, err)
	assert.Equal(t, ",", doc.Output.Delimiter)
}

func TestParseDocument_ScopeDefault(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"name": "x", "outputFormat": {"type": "CSV"}, "rules": [
		{"id": "r", "type": "REPLACE_CHARACTERS", "params": {"replacements": [{"find": "$", "replace": ""}]}}
	]}`))
	require.NoError(t, err)

	rc := doc.Rules[0].(*ReplaceCharacters)
	require.Len(t, rc.Replacements, 1)
	assert.Equal(t, ScopeAll, rc.Replacements[0].Scope)
}

// Unknown top-level or param keys are tolerated so documents exported by
// newer builds still import.
func TestParseDocument_IgnoresUnknownKeys(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"name": "x", "outputFormat": {"type": "CSV"}, "version": 3, "rules": [
		{"id": "r", "type": "EVALUATE_FORMULAS", "params": {"enabled": true, "engine": "native"}}
	]}`))
	require.NoError(t, err)
	assert.Len(t, doc.Rules, 1)
}

// An exported document re-imports to the same rules.
func TestDocument_ExportRoundTrip(t *testing.T) {
	doc, err := ParseDocument([]byte(validDocument))
	require.NoError(t, err)

	exported, err := json.Marshal(doc)
	require.NoError(t, err)

	again, err := ParseDocument(exported)
	require.NoError(t, err)

	assert.Equal(t, doc.Name, again.Name)
	assert.Equal(t, doc.Output, again.Output)
	require.Len(t, again.Rules, len(doc.Rules))
	for i := range doc.Rules {
		assert.Equal(t, doc.Rules[i].RuleID(), again.Rules[i].RuleID())
		assert.Equal(t, TypeTag(doc.Rules[i]), TypeTag(again.Rules[i]))
	}
}
