package ingest

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/google/uuid"
)

var (
	risLineRe = regexp.MustCompile(`^([A-Z][A-Z0-9])  -\s?(.*)$`)
	yearRe    = regexp.MustCompile(`\d{4}`)
)

// risFields maps reference-tag codes to canonical fields. Unlisted tags are
// ignored.
var risFields = map[string]string{
	"TY": FieldType,
	"TI": FieldTitle,
	"T1": FieldTitle,
	"AB": FieldAbstract,
	"N2": FieldAbstract,
	"JF": FieldSource,
	"JO": FieldSource,
	"T2": FieldSource,
	"JA": FieldSource,
	"AU": FieldAuthors,
	"A1": FieldAuthors,
	"PY": FieldYear,
	"Y1": FieldYear,
	"DA": FieldYear,
	"DO": FieldDOI,
	"KW": FieldKeywords,
	"UR": FieldURL,
	"PB": FieldPublisher,
	"VL": FieldVolume,
	"SP": "start_page",
	"EP": "end_page",
}

// risEntry accumulates one reference while its lines are read.
type risEntry struct {
	rec       models.Record
	startPage string
	endPage   string
	last      string // field of the previous tag, for wrapped lines
	touched   bool
}

func (e *risEntry) set(field, value string) {
	e.touched = true
	e.last = field
	switch field {
	case FieldType:
		e.rec.Type = value
	case FieldTitle:
		if e.rec.Title == "" {
			e.rec.Title = value
		}
	case FieldAbstract:
		if e.rec.Abstract == "" {
			e.rec.Abstract = value
		}
	case FieldSource:
		if e.rec.SourceTitle == "" {
			e.rec.SourceTitle = value
		}
	case FieldAuthors:
		if value != "" {
			e.rec.Authors = append(e.rec.Authors, value)
		}
	case FieldYear:
		if e.rec.Year == "" {
			e.rec.Year = yearRe.FindString(value)
		}
	case FieldDOI:
		e.rec.DOI = value
	case FieldKeywords:
		if value != "" {
			e.rec.Keywords = append(e.rec.Keywords, value)
		}
	case FieldURL:
		if e.rec.URL == "" {
			e.rec.URL = value
		}
	case FieldPublisher:
		e.rec.Publisher = value
	case FieldVolume:
		e.rec.Volume = value
	case "start_page":
		e.startPage = value
	case "end_page":
		e.endPage = value
	default:
		e.last = ""
	}
}

// appendLine continues a wrapped title or abstract.
func (e *risEntry) appendLine(line string) {
	switch e.last {
	case FieldTitle:
		e.rec.Title = strings.TrimSpace(e.rec.Title + " " + line)
	case FieldAbstract:
		e.rec.Abstract = strings.TrimSpace(e.rec.Abstract + " " + line)
	case FieldSource:
		e.rec.SourceTitle = strings.TrimSpace(e.rec.SourceTitle + " " + line)
	}
}

func (e *risEntry) finish(file string) (models.Record, bool) {
	rec := e.rec
	switch {
	case e.startPage != "" && e.endPage != "":
		rec.Pages = e.startPage + "-" + e.endPage
	case e.startPage != "":
		rec.Pages = e.startPage
	}
	rec.ID = uuid.New().String()
	rec.Source = file
	return rec, strings.TrimSpace(rec.Title) != ""
}

// parseRIS reads reference-tag text. Entries end at an ER tag or a blank
// line; entries without a title are dropped and an empty result is an error.
func parseRIS(file, text string) (*Parsed, error) {
	var records []models.Record
	cur := &risEntry{}

	flush := func() {
		if cur.touched {
			if rec, ok := cur.finish(file); ok {
				records = append(records, rec)
			}
		}
		cur = &risEntry{}
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		line = strings.TrimPrefix(line, "\ufeff")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		m := risLineRe.FindStringSubmatch(line)
		if m == nil {
			if cur.touched {
				cur.appendLine(strings.TrimSpace(line))
			}
			continue
		}
		tag, value := m[1], strings.TrimSpace(m[2])
		if tag == "ER" {
			flush()
			continue
		}
		field, ok := risFields[tag]
		if !ok {
			cur.touched = true
			cur.last = ""
			continue
		}
		cur.set(field, value)
	}
	if err := sc.Err(); err != nil {
		return nil, parseErr(file, err)
	}
	flush()

	if len(records) == 0 {
		return nil, parseErr(file, ErrNoEntries)
	}
	return &Parsed{
		Records: records,
		Columns: models.Columns{Title: "TI", Abstract: "AB", Source: "JO"},
	}, nil
}
