package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// minColumns is the smallest header accepted as a real table.
	minColumns = 3
	// aliasBonus is added per recognised title/abstract/source class.
	aliasBonus = 5
	// sniffBytes bounds the preview inspected for tag-format markers.
	sniffBytes = 4096
)

var delimiters = []rune{'\t', ','}

var (
	tagLineRe = regexp.MustCompile(`(?m)^[A-Z][A-Z0-9]  - `)
	tagEndRe  = regexp.MustCompile(`(?m)^ER  -`)
)

// candidate is one encoding/delimiter interpretation of a delimited file.
type candidate struct {
	encoding  string
	delimiter rune
	table     table
	skipped   int
	score     int
}

// scoreHeader ranks a parsed header: column count plus a bonus for each
// canonical class it recognises.
func scoreHeader(header []string) int {
	return len(header) + aliasBonus*recognisedClasses(header)
}

// looksTagged reports whether decoded text is a reference-tag export.
func looksTagged(text string) bool {
	head := text
	if len(head) > sniffBytes {
		head = head[:sniffBytes]
	}
	return tagLineRe.MatchString(head) && tagEndRe.MatchString(text)
}

// parseDelimited turns a .txt/.csv upload into a table. Tag-format content
// is routed to the RIS parser before any delimiter guessing.
func parseDelimited(file string, data []byte) (*Parsed, error) {
	if text, _, ok := decodeFirst(data); ok && looksTagged(text) {
		return parseRIS(file, text)
	}

	best, err := bestCandidate(data)
	if err != nil {
		return nil, &ParseError{File: file, Err: err, Preview: preview(data)}
	}

	records, cols := best.table.toRecords(file)
	return &Parsed{
		Records:   records,
		Columns:   cols,
		Encoding:  best.encoding,
		Delimiter: string(best.delimiter),
		Skipped:   best.skipped,
	}, nil
}

// bestCandidate evaluates every encoding/delimiter pair. Pairs are visited in
// priority order (encodings first, tab before comma) and a later pair only
// replaces the current best on a strictly higher score.
func bestCandidate(data []byte) (*candidate, error) {
	var best *candidate
	decoded := false

	for _, enc := range candidateEncodings(data) {
		text, ok := enc.decode(data)
		if !ok {
			continue
		}
		decoded = true
		for _, delim := range delimiters {
			t, skipped := readTable(text, delim)
			if len(t.header) < minColumns {
				continue
			}
			c := &candidate{
				encoding:  enc.name,
				delimiter: delim,
				table:     t,
				skipped:   skipped,
				score:     scoreHeader(t.header),
			}
			if best == nil || c.score > best.score {
				best = c
			}
		}
	}

	if !decoded {
		return nil, ErrUndecodable
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no encoding/delimiter combination produced at least %d columns", ErrNoColumns, minColumns)
	}
	return best, nil
}

// readTable parses text with the given delimiter. Rows that fail to parse or
// carry more non-empty cells than the header are skipped.
func readTable(text string, delim rune) (table, int) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	var t table
	skipped := 0
	failures := 0

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			failures++
			if failures > 1000 {
				break
			}
			continue
		}
		if t.header == nil {
			t.header = trimHeader(row)
			continue
		}
		if len(row) > len(t.header) {
			if !blankRow(row[len(t.header):]) {
				skipped++
				continue
			}
			row = row[:len(t.header)]
		}
		t.rows = append(t.rows, row)
	}
	return t, skipped
}
