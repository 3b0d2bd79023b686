package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/fentz26/litscreen/internal/ingest"
	"github.com/fentz26/litscreen/internal/models"
	"github.com/xuri/excelize/v2"
)

// maxCellChars is the spreadsheet cell length limit.
const maxCellChars = 32767

type column struct {
	name  string
	value func(*models.Record) string
}

// tableColumns builds the header for a record set. Title, abstract and
// source are always present, under their original header names when those
// resolve back to the same field. Optional fields appear when any record
// carries them, followed by carried-through extra columns in first-seen order.
func tableColumns(records []models.Record, cols models.Columns, withReason bool) []column {
	named := func(original, field, fallback string) string {
		if original != "" && ingest.CanonicalField(original) == field {
			return original
		}
		return fallback
	}

	out := []column{
		{named(cols.Title, ingest.FieldTitle, "Title"), func(r *models.Record) string { return r.Title }},
		{named(cols.Abstract, ingest.FieldAbstract, "Abstract"), func(r *models.Record) string { return r.Abstract }},
		{named(cols.Source, ingest.FieldSource, "Source Title"), func(r *models.Record) string { return r.SourceTitle }},
	}

	optional := []column{
		{"Authors", (*models.Record).AuthorString},
		{"Year", func(r *models.Record) string { return r.Year }},
		{"DOI", func(r *models.Record) string { return r.DOI }},
		{"Keywords", (*models.Record).KeywordString},
		{"Document Type", func(r *models.Record) string { return r.Type }},
		{"Link", func(r *models.Record) string { return r.URL }},
		{"Publisher", func(r *models.Record) string { return r.Publisher }},
		{"Volume", func(r *models.Record) string { return r.Volume }},
		{"Pages", func(r *models.Record) string { return r.Pages }},
	}
	for _, c := range optional {
		for i := range records {
			if c.value(&records[i]) != "" {
				out = append(out, c)
				break
			}
		}
	}

	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[strings.ToLower(c.name)] = true
	}
	for i := range records {
		for _, f := range records[i].Extra {
			key := strings.ToLower(f.Name)
			if seen[key] || key == strings.ToLower(ReasonColumn) {
				continue
			}
			seen[key] = true
			name := f.Name
			out = append(out, column{name, func(r *models.Record) string { return extraValue(r, name) }})
		}
	}

	if withReason {
		out = append(out, column{ReasonColumn, (*models.Record).ExclusionReason})
	}
	return out
}

func extraValue(r *models.Record, name string) string {
	for _, f := range r.Extra {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// tableRows renders the header followed by one row per record.
func tableRows(records []models.Record, cols models.Columns, withReason bool) [][]string {
	columns := tableColumns(records, cols, withReason)
	rows := make([][]string, 0, len(records)+1)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.name
	}
	rows = append(rows, header)

	for i := range records {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = c.value(&records[i])
		}
		rows = append(rows, row)
	}
	return rows
}

// writeDelimited writes comma or tab separated text. CSV carries a UTF-8
// byte-order mark so spreadsheet applications pick the right encoding.
func writeDelimited(w io.Writer, records []models.Record, cols models.Columns, withReason bool, delim rune, bom bool) error {
	if bom {
		if _, err := io.WriteString(w, "\ufeff"); err != nil {
			return err
		}
	}
	cw := csv.NewWriter(w)
	cw.Comma = delim
	for _, row := range tableRows(records, cols, withReason) {
		if delim == '\t' {
			row = flattenTabs(row)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// flattenTabs keeps tab-separated cells on one line and free of delimiters.
// Tab-delimited exports are read line by line by most tools, so paragraph
// breaks are not kept.
func flattenTabs(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.Join(strings.FieldsFunc(v, func(r rune) bool {
			return r == '\t' || r == '\n' || r == '\r'
		}), " ")
	}
	return out
}

func writeXLSX(w io.Writer, records []models.Record, cols models.Columns, withReason bool) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range tableRows(records, cols, withReason) {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = truncateCell(v)
		}
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, addr, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func truncateCell(v string) string {
	if len(v) <= maxCellChars {
		return v
	}
	r := []rune(v)
	if len(r) <= maxCellChars {
		return v
	}
	return string(r[:maxCellChars])
}
