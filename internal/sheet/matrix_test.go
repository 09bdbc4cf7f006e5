package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrixWidthRagged(t *testing.T) {
	m := FromStrings([][]string{
		{"a", "b", "c"},
		{"a"},
		{},
	})
	assert.Equal(t, 3, m.RowCount())
	assert.Equal(t, 3, m.Width())
}

func TestMatrixAtOutOfRange(t *testing.T) {
	m := FromStrings([][]string{{"a"}})
	assert.Equal(t, Null, m.At(0, 5))
	assert.Equal(t, Null, m.At(3, 0))
	assert.Equal(t, Null, m.At(-1, 0))
	assert.Equal(t, Str("a"), m.At(0, 0))
}

func TestMatrixCloneIsDeep(t *testing.T) {
	m := FromStrings([][]string{{"a", "b"}})
	c := m.Clone()
	c[0][0] = Str("x")
	assert.Equal(t, "a", m.At(0, 0).String())
}

func TestFromPtrs(t *testing.T) {
	v := "x"
	m := FromPtrs([][]*string{{&v, nil}})
	assert.True(t, m.At(0, 0).Valid)
	assert.False(t, m.At(0, 1).Valid)
}

func TestCellIsEmpty(t *testing.T) {
	assert.True(t, Null.IsEmpty())
	assert.True(t, Str("   ").IsEmpty())
	assert.False(t, Str("0").IsEmpty())
}
