package ingest

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// parseXLSX reads the first sheet of a modern workbook.
func parseXLSX(file string, data []byte) (*Parsed, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, parseErr(file, fmt.Errorf("open workbook: %w", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, parseErr(file, fmt.Errorf("%w: workbook has no sheets", ErrNoColumns))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, parseErr(file, fmt.Errorf("read sheet %s: %w", sheets[0], err))
	}
	return sheetToParsed(file, rows)
}

// parseXLS reads the first sheet of a legacy binary workbook. XML
// Spreadsheet 2003 documents saved under the same extension are accepted too.
func parseXLS(file string, data []byte) (*Parsed, error) {
	if isSpreadsheetML(data) {
		return parseSpreadsheetML(file, data)
	}
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, parseErr(file, fmt.Errorf("open workbook: %w", err))
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, parseErr(file, fmt.Errorf("%w: workbook has no sheets", ErrNoColumns))
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return sheetToParsed(file, rows)
}

// sheetToParsed applies the shared column-resolution step to sheet rows.
// The first non-blank row is the header.
func sheetToParsed(file string, rows [][]string) (*Parsed, error) {
	start := 0
	for start < len(rows) && blankRow(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, parseErr(file, fmt.Errorf("%w: sheet is empty", ErrNoColumns))
	}

	t := table{header: trimHeader(rows[start])}
	for _, r := range rows[start+1:] {
		if len(r) > len(t.header) {
			r = r[:len(t.header)]
		}
		t.rows = append(t.rows, r)
	}
	records, cols := t.toRecords(file)
	return &Parsed{Records: records, Columns: cols}, nil
}
