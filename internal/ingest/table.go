package ingest

import (
	"strings"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/google/uuid"
)

// table is the row/column shape shared by delimited text and spreadsheets
// before schema resolution.
type table struct {
	header []string
	rows   [][]string
}

// trimHeader drops trailing blank header cells, which tab exports commonly
// carry after the last column, and a byte-order mark left on the first cell.
func trimHeader(header []string) []string {
	n := len(header)
	for n > 0 && strings.TrimSpace(header[n-1]) == "" {
		n--
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	return out
}

// toRecords resolves the schema once and fills one Record per non-blank row.
func (t *table) toRecords(file string) ([]models.Record, models.Columns) {
	renameWoS(t.header)
	s := resolveSchema(t.header)

	cols := models.Columns{
		Title:    s.columns[FieldTitle],
		Abstract: s.columns[FieldAbstract],
		Source:   s.columns[FieldSource],
	}

	records := make([]models.Record, 0, len(t.rows))
	for _, row := range t.rows {
		if blankRow(row) {
			continue
		}
		get := func(field string) string {
			idx, ok := s.index[field]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		rec := models.Record{
			ID:          uuid.New().String(),
			Title:       get(FieldTitle),
			Abstract:    get(FieldAbstract),
			SourceTitle: get(FieldSource),
			Authors:     splitList(get(FieldAuthors)),
			Year:        get(FieldYear),
			DOI:         get(FieldDOI),
			Keywords:    splitList(get(FieldKeywords)),
			Type:        get(FieldType),
			URL:         get(FieldURL),
			Publisher:   get(FieldPublisher),
			Volume:      get(FieldVolume),
			Pages:       get(FieldPages),
			Source:      file,
		}
		for _, idx := range s.extra {
			v := ""
			if idx < len(row) {
				v = row[idx]
			}
			rec.Extra = append(rec.Extra, models.Field{Name: t.header[idx], Value: v})
		}
		records = append(records, rec)
	}
	return records, cols
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// splitList splits a semicolon-joined cell into trimmed, non-empty parts.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
