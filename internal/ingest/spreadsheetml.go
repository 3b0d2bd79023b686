package ingest

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// smlWorkbook is the subset of the XML Spreadsheet 2003 schema needed to
// read cell text. Element names are matched without namespaces.
type smlWorkbook struct {
	Worksheets []struct {
		Name string `xml:"Name,attr"`
		Rows []struct {
			Index int `xml:"Index,attr"`
			Cells []struct {
				Index int    `xml:"Index,attr"`
				Data  string `xml:"Data"`
			} `xml:"Cell"`
		} `xml:"Table>Row"`
	} `xml:"Worksheet"`
}

func isSpreadsheetML(data []byte) bool {
	head := bytes.TrimSpace(data)
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("Workbook")) ||
		bytes.HasPrefix(head, []byte("<Workbook"))
}

// parseSpreadsheetML reads the first worksheet. ss:Index attributes (1-based)
// mark skipped rows and cells.
func parseSpreadsheetML(file string, data []byte) (*Parsed, error) {
	var wb smlWorkbook
	if err := xml.Unmarshal(data, &wb); err != nil {
		return nil, parseErr(file, fmt.Errorf("decode spreadsheet xml: %w", err))
	}
	if len(wb.Worksheets) == 0 {
		return nil, parseErr(file, fmt.Errorf("%w: workbook has no sheets", ErrNoColumns))
	}

	var rows [][]string
	for _, r := range wb.Worksheets[0].Rows {
		for r.Index > 0 && len(rows) < r.Index-1 {
			rows = append(rows, nil)
		}
		var cells []string
		for _, c := range r.Cells {
			for c.Index > 0 && len(cells) < c.Index-1 {
				cells = append(cells, "")
			}
			cells = append(cells, c.Data)
		}
		rows = append(rows, cells)
	}
	return sheetToParsed(file, rows)
}
