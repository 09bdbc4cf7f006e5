package sheet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook serializes an excelize file built by fill into raw bytes.
func buildWorkbook(t *testing.T, fill func(f *excelize.File)) []byte {
	t.Helper()
	f := excelize.NewFile()
	fill(f)
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func TestReadWorkbook(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File) {
		f.SetCellValue("Sheet1", "A1", "Name")
		f.SetCellValue("Sheet1", "B1", "Amount")
		f.SetCellValue("Sheet1", "A2", "Alice")
		f.SetCellValue("Sheet1", "B2", "100")

		idx, err := f.NewSheet("Rates")
		require.NoError(t, err)
		_ = idx
		f.SetCellValue("Rates", "A1", "Code")
	})

	wb, err := ReadWorkbook(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"Sheet1", "Rates"}, wb.Order)
	assert.Equal(t, "Sheet1", wb.First())

	m, ok := wb.Get("Sheet1")
	require.True(t, ok)
	assert.Equal(t, [][]string{
		{"Name", "Amount"},
		{"Alice", "100"},
	}, m.Strings())
}

func TestReadWorkbook_MergedCells(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File) {
		f.SetCellValue("Sheet1", "A1", "Region")
		f.SetCellValue("Sheet1", "B1", "City")
		f.SetCellValue("Sheet1", "A2", "West")
		f.SetCellValue("Sheet1", "B2", "Denver")
		f.SetCellValue("Sheet1", "B3", "Phoenix")
		require.NoError(t, f.MergeCell("Sheet1", "A2", "A3"))
	})

	wb, err := ReadWorkbook(data)
	require.NoError(t, err)

	m, ok := wb.Get("Sheet1")
	require.True(t, ok)

	// Anchor keeps the value; the other merge member is absent, not "".
	assert.Equal(t, Str("West"), m.At(1, 0))
	assert.False(t, m.At(2, 0).Valid)
	assert.Equal(t, "Phoenix", m.At(2, 1).String())
}

func TestReadWorkbook_Invalid(t *testing.T) {
	_, err := ReadWorkbook([]byte("not a workbook"))
	assert.Error(t, err)
}
