package ingest

import "strings"

// Canonical field names.
const (
	FieldTitle     = "title"
	FieldAbstract  = "abstract"
	FieldSource    = "source"
	FieldAuthors   = "authors"
	FieldYear      = "year"
	FieldDOI       = "doi"
	FieldKeywords  = "keywords"
	FieldType      = "type"
	FieldURL       = "url"
	FieldPublisher = "publisher"
	FieldVolume    = "volume"
	FieldPages     = "pages"
)

// alias is one canonical field and the header names recognised for it, in
// priority order.
type alias struct {
	field   string
	headers []string
}

// FieldAliases is the static alias table. Lists are checked in declared
// order and the first present column is authoritative.
var FieldAliases = []alias{
	{FieldTitle, []string{"Title", "title", "TI", "Article Title", "Document Title"}},
	{FieldAbstract, []string{"Abstract", "abstract", "AB", "Description"}},
	{FieldSource, []string{"Source Title", "Source title", "source title", "SO", "Source", "Journal",
		"Publication Name", "Publication", "Journal Title"}},
	{FieldAuthors, []string{"Authors", "authors", "AU", "Author", "Author full names", "Author Full Names"}},
	{FieldYear, []string{"Year", "year", "PY", "Publication Year"}},
	{FieldDOI, []string{"DOI", "doi", "DI"}},
	{FieldKeywords, []string{"Keywords", "keywords", "Author Keywords", "DE", "Index Keywords"}},
	{FieldType, []string{"Document Type", "Type", "type", "DT", "Publication Type"}},
	{FieldURL, []string{"Link", "URL", "url", "UR"}},
	{FieldPublisher, []string{"Publisher", "publisher", "PU"}},
	{FieldVolume, []string{"Volume", "volume", "VL"}},
	{FieldPages, []string{"Pages", "pages"}},
}

// CanonicalField returns the canonical field a header name resolves to, or
// "" when no alias matches.
func CanonicalField(name string) string {
	name = strings.TrimSpace(name)
	for _, a := range FieldAliases {
		for _, h := range a.headers {
			if strings.EqualFold(name, h) {
				return a.field
			}
		}
	}
	return ""
}

// scoredFields are the alias classes that earn a header-recognition bonus
// when choosing between delimited-text candidates.
var scoredFields = map[string]bool{
	FieldTitle:    true,
	FieldAbstract: true,
	FieldSource:   true,
}

// wosTags maps Web of Science short-code headers to readable names. Applied
// only when a header set carries both TI and SO.
var wosTags = map[string]string{
	"TI": "Title",
	"AB": "Abstract",
	"AU": "Authors",
	"SO": "Source title",
	"PY": "Year",
	"DE": "Author Keywords",
	"ID": "Keywords Plus",
	"DI": "DOI",
	"DT": "Document Type",
	"CR": "References",
	"C1": "Affiliations",
	"TC": "Cited by",
	"SN": "ISSN",
	"EI": "EISSN",
}

// renameWoS rewrites short-code headers in place when the header set looks
// like a bibliometric tag export. It reports whether renaming happened.
func renameWoS(header []string) bool {
	var hasTI, hasSO bool
	for _, h := range header {
		switch h {
		case "TI":
			hasTI = true
		case "SO":
			hasSO = true
		}
	}
	if !hasTI || !hasSO {
		return false
	}
	for i, h := range header {
		if name, ok := wosTags[h]; ok {
			header[i] = name
		}
	}
	return true
}

// schema is the per-file resolution of canonical fields to column indexes.
// It is computed once per file; records are then filled by index.
type schema struct {
	index   map[string]int // canonical field -> column, absent when missing
	columns map[string]string
	extra   []int // columns with no canonical slot, in header order
	header  []string
}

// resolveSchema resolves every canonical field against header. Exact matches
// in alias order win; otherwise a case-insensitive match is accepted.
func resolveSchema(header []string) schema {
	s := schema{
		index:   make(map[string]int),
		columns: make(map[string]string),
		header:  header,
	}
	used := make(map[int]bool)

	for _, a := range FieldAliases {
		idx := exactMatch(header, a.headers, used)
		if idx < 0 {
			idx = foldMatch(header, a.headers, used)
		}
		if idx < 0 {
			continue
		}
		s.index[a.field] = idx
		s.columns[a.field] = header[idx]
		used[idx] = true
	}

	for i, h := range header {
		if used[i] || strings.TrimSpace(h) == "" {
			continue
		}
		s.extra = append(s.extra, i)
	}
	return s
}

func exactMatch(header, names []string, used map[int]bool) int {
	for _, name := range names {
		for i, h := range header {
			if !used[i] && h == name {
				return i
			}
		}
	}
	return -1
}

func foldMatch(header, names []string, used map[int]bool) int {
	for _, name := range names {
		for i, h := range header {
			if !used[i] && strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

// recognisedClasses counts how many scored alias classes appear in header.
func recognisedClasses(header []string) int {
	n := 0
	for _, a := range FieldAliases {
		if !scoredFields[a.field] {
			continue
		}
		if foldMatch(header, a.headers, nil) >= 0 {
			n++
		}
	}
	return n
}
