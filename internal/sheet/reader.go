package sheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// reader.go extracts cell grids from workbook files via excelize.
//
// This boundary owns all merged-cell resolution: the anchor (top-left) cell
// of a merged range keeps its value, every other member becomes an absent
// cell. Downstream rules see only populated or absent cells, never merge
// structure. Formula cells are read as their cached computed values.

// ReadWorkbook parses raw xlsx/xlsm bytes into a Workbook of cell grids,
// one per worksheet, in workbook order.
func ReadWorkbook(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	wb := NewWorkbook()
	for _, name := range f.GetSheetList() {
		m, err := readSheet(f, name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		wb.Add(name, m)
	}

	if wb.Len() == 0 {
		return nil, fmt.Errorf("workbook contains no worksheets")
	}
	return wb, nil
}

// readSheet reads one worksheet into a Matrix, nulling out non-anchor merge
// members.
func readSheet(f *excelize.File, name string) (Matrix, error) {
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, err
	}

	m := make(Matrix, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, raw := range row {
			if raw == "" {
				cells[j] = Null
			} else {
				cells[j] = Str(raw)
			}
		}
		m[i] = cells
	}

	merges, err := f.GetMergeCells(name)
	if err != nil {
		return nil, err
	}
	for _, merge := range merges {
		if err := blankMergeMembers(m, merge.GetStartAxis(), merge.GetEndAxis()); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// blankMergeMembers marks every cell of the merged range absent except the
// top-left anchor.
func blankMergeMembers(m Matrix, startAxis, endAxis string) error {
	startCol, startRow, err := excelize.CellNameToCoordinates(strings.TrimSpace(startAxis))
	if err != nil {
		return err
	}
	endCol, endRow, err := excelize.CellNameToCoordinates(strings.TrimSpace(endAxis))
	if err != nil {
		return err
	}
	for r := startRow - 1; r <= endRow-1; r++ {
		if r < 0 || r >= len(m) {
			continue
		}
		for c := startCol - 1; c <= endCol-1; c++ {
			if r == startRow-1 && c == startCol-1 {
				continue // anchor keeps its value
			}
			if c >= 0 && c < len(m[r]) {
				m[r][c] = Null
			}
		}
	}
	return nil
}
