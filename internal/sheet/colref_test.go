package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveColumn(t *testing.T) {
	header := []Cell{Str("Name"), Str("Amount"), Str("Currency Code")}

	tests := []struct {
		name       string
		identifier string
		want       int
	}{
		{"integer index", "1", 1},
		{"integer zero", "0", 0},
		{"letter code", "B", 1},
		{"lowercase letter code", "b", 1},
		{"letter code beyond header", "AA", ColumnNotFound},
		{"header name", "Amount", 1},
		{"header name case-insensitive", "aMoUnT", 1},
		{"header name with spaces", "Currency Code", 2},
		{"whitespace around identifier", "  Amount  ", 1},
		{"negative integer", "-1", ColumnNotFound},
		{"unknown header", "Total", ColumnNotFound},
		{"empty identifier", "", ColumnNotFound},
		{"whitespace only", "   ", ColumnNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveColumn(tt.identifier, header))
		})
	}
}

// The three resolution schemes are interchangeable: "A", "0", and the first
// header's text all name the same column.
func TestResolveColumn_SchemesAgree(t *testing.T) {
	header := []Cell{Str("Name"), Str("Amount")}

	for _, id := range []string{"0", "A", "Name", "name"} {
		assert.Equal(t, 0, ResolveColumn(id, header), "identifier %q", id)
	}
	for _, id := range []string{"1", "B", "Amount"} {
		assert.Equal(t, 1, ResolveColumn(id, header), "identifier %q", id)
	}
}

// An integer beyond the header width still resolves; range checks belong to
// the caller, which knows the matrix width.
func TestResolveColumn_IntegerBeyondHeader(t *testing.T) {
	header := []Cell{Str("Name")}
	assert.Equal(t, 9, ResolveColumn("9", header))
}

// All-letter header names decode as letter codes too, so text matching must
// win whenever the decoded index falls outside the header.
func TestResolveColumn_HeaderNameOverLetterCode(t *testing.T) {
	header := []Cell{Str("Name"), Str("Age"), Str("Status")}

	assert.Equal(t, 0, ResolveColumn("Name", header))
	assert.Equal(t, 1, ResolveColumn("Age", header))
	assert.Equal(t, 2, ResolveColumn("Status", header))
}

// A letter code inside the header still resolves positionally even on a wide
// header.
func TestResolveColumn_LetterCodeWithinWideHeader(t *testing.T) {
	header := make([]Cell, 30)
	for i := range header {
		header[i] = Str(IndexToLetter(i) + " col")
	}
	assert.Equal(t, 26, ResolveColumn("AA", header))
	assert.Equal(t, 1, ResolveColumn("b", header))
}

func TestLetterRoundTrip(t *testing.T) {
	for _, idx := range []int{0, 1, 25, 26, 27, 51, 52, 701, 702} {
		letter := IndexToLetter(idx)
		got, ok := letterToIndex(letter)
		assert.True(t, ok, "letter %q", letter)
		assert.Equal(t, idx, got, "letter %q", letter)
	}
}

func TestIndexToLetter(t *testing.T) {
	assert.Equal(t, "A", IndexToLetter(0))
	assert.Equal(t, "Z", IndexToLetter(25))
	assert.Equal(t, "AA", IndexToLetter(26))
	assert.Equal(t, "AZ", IndexToLetter(51))
}
