package ingest

import (
	"regexp"
	"strings"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/google/uuid"
)

var blankLinesRe = regexp.MustCompile(`\n\s*\n+`)

// endnoteCodes maps single-character %-field codes to canonical fields.
var endnoteCodes = map[byte]string{
	'T': FieldTitle,
	'A': FieldAuthors,
	'J': FieldSource,
	'B': "secondary_title",
	'D': FieldYear,
	'K': FieldKeywords,
	'X': FieldAbstract,
	'N': FieldAbstract,
	'U': FieldURL,
	'R': FieldDOI,
	'0': FieldType,
	'I': FieldPublisher,
	'V': FieldVolume,
	'P': FieldPages,
}

// parseEndNote reads %-tagged text: blocks separated by blank lines, each
// starting with a %-field line. Lines not starting with % continue the
// current field.
func parseEndNote(file, text string) (*Parsed, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var records []models.Record

	for _, block := range blankLinesRe.Split(text, -1) {
		block = strings.TrimSpace(block)
		if !strings.HasPrefix(block, "%") {
			continue
		}
		if rec, ok := endnoteRecord(block); ok {
			rec.Source = file
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, parseErr(file, ErrNoEntries)
	}
	return &Parsed{
		Records: records,
		Columns: models.Columns{Title: "%T", Abstract: "%X", Source: "%J"},
	}, nil
}

func endnoteRecord(block string) (models.Record, bool) {
	rec := models.Record{ID: uuid.New().String()}
	var secondary string
	var field string
	var value []string

	save := func() {
		if field == "" || len(value) == 0 {
			return
		}
		v := strings.TrimSpace(strings.Join(value, " "))
		switch field {
		case FieldTitle:
			rec.Title = v
		case FieldAbstract:
			if rec.Abstract == "" {
				rec.Abstract = v
			}
		case FieldSource:
			rec.SourceTitle = v
		case "secondary_title":
			secondary = v
		case FieldAuthors:
			rec.Authors = append(rec.Authors, v)
		case FieldYear:
			rec.Year = v
		case FieldDOI:
			rec.DOI = v
		case FieldKeywords:
			rec.Keywords = append(rec.Keywords, splitList(v)...)
		case FieldURL:
			rec.URL = v
		case FieldType:
			rec.Type = v
		case FieldPublisher:
			rec.Publisher = v
		case FieldVolume:
			rec.Volume = v
		case FieldPages:
			rec.Pages = v
		}
	}

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "%") && len(line) >= 2 {
			save()
			value = nil
			field = endnoteCodes[strings.ToUpper(line[1:2])[0]]
			if content := strings.TrimSpace(line[2:]); content != "" {
				value = append(value, content)
			}
			continue
		}
		if field != "" {
			value = append(value, line)
		}
	}
	save()

	if rec.SourceTitle == "" {
		rec.SourceTitle = secondary
	}
	return rec, rec.Title != ""
}
