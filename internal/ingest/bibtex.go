package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/google/uuid"
)

var (
	bibAndRe     = regexp.MustCompile(`(?i)\s+and\s+`)
	latexCmdRe   = regexp.MustCompile(`\\(?:emph|textit|textbf|textsc|mathrm|mbox|text)\s*`)
	bibKeywordRe = regexp.MustCompile(`[;,]`)
)

var latexUnescape = strings.NewReplacer(
	`\&`, "&",
	`\%`, "%",
	`\$`, "$",
	`\#`, "#",
	`\_`, "_",
	`\{`, "{",
	`\}`, "}",
)

// bibEntry is one parsed @type{key, field = value, ...} block.
type bibEntry struct {
	kind   string
	key    string
	fields map[string]string
}

// parseBibTeX reads structured-citation text into records.
func parseBibTeX(file, text string) (*Parsed, error) {
	entries, err := scanBibTeX(text)
	if err != nil {
		return nil, parseErr(file, err)
	}

	var records []models.Record
	for _, e := range entries {
		rec := bibToRecord(e)
		if rec.Title == "" {
			continue
		}
		rec.Source = file
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, parseErr(file, ErrNoEntries)
	}
	return &Parsed{
		Records: records,
		Columns: models.Columns{Title: "title", Abstract: "abstract", Source: "journal"},
	}, nil
}

func bibToRecord(e bibEntry) models.Record {
	f := e.fields
	rec := models.Record{
		ID:        uuid.New().String(),
		Title:     cleanBibTitle(f["title"]),
		Abstract:  cleanBibText(f["abstract"]),
		Year:      strings.TrimSpace(f["year"]),
		DOI:       strings.TrimSpace(f["doi"]),
		Type:      e.kind,
		URL:       strings.TrimSpace(f["url"]),
		Publisher: cleanBibText(f["publisher"]),
		Volume:    strings.TrimSpace(f["volume"]),
		Pages:     strings.ReplaceAll(strings.TrimSpace(f["pages"]), "--", "-"),
	}
	if j := cleanBibText(f["journal"]); j != "" {
		rec.SourceTitle = j
	} else {
		rec.SourceTitle = cleanBibText(f["booktitle"])
	}
	if a := strings.TrimSpace(f["author"]); a != "" {
		for _, name := range bibAndRe.Split(a, -1) {
			if name = cleanBibText(name); name != "" {
				rec.Authors = append(rec.Authors, name)
			}
		}
	}
	if k := f["keywords"]; k != "" {
		for _, kw := range bibKeywordRe.Split(k, -1) {
			if kw = cleanBibText(kw); kw != "" {
				rec.Keywords = append(rec.Keywords, kw)
			}
		}
	}
	return rec
}

// cleanBibTitle strips emphasis commands and protective braces.
func cleanBibTitle(s string) string {
	s = latexCmdRe.ReplaceAllString(s, "")
	return cleanBibText(s)
}

func cleanBibText(s string) string {
	s = latexUnescape.Replace(s)
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// scanBibTeX walks the text entry by entry. @comment, @string and @preamble
// blocks are skipped.
func scanBibTeX(text string) ([]bibEntry, error) {
	var entries []bibEntry
	s := &bibScanner{src: []rune(text)}

	for {
		if !s.skipTo('@') {
			break
		}
		s.pos++ // '@'
		kind := strings.ToLower(s.ident())
		s.skipSpace()
		if s.eof() {
			break
		}
		open := s.src[s.pos]
		if open != '{' && open != '(' {
			continue
		}
		closer := '}'
		if open == '(' {
			closer = ')'
		}
		s.pos++

		switch kind {
		case "comment", "string", "preamble":
			if _, err := s.balanced(open, closer); err != nil {
				return nil, err
			}
			continue
		}

		s.skipSpace()
		key := strings.TrimSpace(s.until(',', closer))
		e := bibEntry{kind: kind, key: key, fields: make(map[string]string)}
		if !s.eof() && s.src[s.pos] == ',' {
			s.pos++
		}

		for {
			s.skipSpace()
			if s.eof() {
				return nil, fmt.Errorf("unterminated entry %q", key)
			}
			if s.src[s.pos] == closer {
				s.pos++
				break
			}
			if s.src[s.pos] == ',' {
				s.pos++
				continue
			}
			name := strings.ToLower(s.ident())
			s.skipSpace()
			if name == "" || s.eof() || s.src[s.pos] != '=' {
				// Malformed field; resync at the next comma or entry end.
				s.until(',', closer)
				continue
			}
			s.pos++
			value, err := s.value(closer)
			if err != nil {
				return nil, fmt.Errorf("entry %q field %s: %w", key, name, err)
			}
			e.fields[name] = value
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type bibScanner struct {
	src []rune
	pos int
}

func (s *bibScanner) eof() bool { return s.pos >= len(s.src) }

func (s *bibScanner) skipSpace() {
	for !s.eof() && unicode.IsSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *bibScanner) skipTo(r rune) bool {
	for !s.eof() {
		if s.src[s.pos] == r {
			return true
		}
		s.pos++
	}
	return false
}

func (s *bibScanner) ident() string {
	start := s.pos
	for !s.eof() {
		r := s.src[s.pos]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == ':' || r == '.' {
			s.pos++
			continue
		}
		break
	}
	return string(s.src[start:s.pos])
}

// until consumes up to (not including) either stop rune.
func (s *bibScanner) until(a, b rune) string {
	start := s.pos
	for !s.eof() && s.src[s.pos] != a && s.src[s.pos] != b {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

// balanced consumes a brace-balanced body whose opening delimiter has
// already been read, returning the body without the closing delimiter.
func (s *bibScanner) balanced(open, closer rune) (string, error) {
	depth := 1
	start := s.pos
	for !s.eof() {
		switch s.src[s.pos] {
		case '\\':
			s.pos++
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				body := string(s.src[start:s.pos])
				s.pos++
				return body, nil
			}
		}
		s.pos++
	}
	return "", fmt.Errorf("unbalanced %c", open)
}

// value reads a field value: braced, quoted or bare pieces joined by '#'.
func (s *bibScanner) value(closer rune) (string, error) {
	var parts []string
	for {
		s.skipSpace()
		if s.eof() {
			return "", fmt.Errorf("missing value")
		}
		switch r := s.src[s.pos]; {
		case r == '{':
			s.pos++
			body, err := s.balanced('{', '}')
			if err != nil {
				return "", err
			}
			parts = append(parts, body)
		case r == '"':
			s.pos++
			start := s.pos
			depth := 0
			for !s.eof() {
				c := s.src[s.pos]
				if c == '\\' {
					s.pos += 2
					continue
				}
				if c == '{' {
					depth++
				} else if c == '}' {
					depth--
				} else if c == '"' && depth == 0 {
					break
				}
				s.pos++
			}
			if s.eof() {
				return "", fmt.Errorf("unterminated quoted value")
			}
			parts = append(parts, string(s.src[start:s.pos]))
			s.pos++
		default:
			parts = append(parts, strings.TrimSpace(s.until(',', closer)))
		}
		s.skipSpace()
		if !s.eof() && s.src[s.pos] == '#' {
			s.pos++
			continue
		}
		return strings.Join(parts, ""), nil
	}
}
