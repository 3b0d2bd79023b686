// Package ingest turns uploaded bibliographic exports into normalized
// records. Every route (delimited text, spreadsheets, reference tags,
// structured citations, EndNote tags) ends in the same fixed Record shape;
// no column lookup by name survives this package.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fentz26/litscreen/internal/models"
)

// Upload is one file as received from the submitter.
type Upload struct {
	Name string
	Data []byte
}

// Parsed is the outcome of reading one file.
type Parsed struct {
	Records   []models.Record
	Columns   models.Columns
	Encoding  string // delimited text only
	Delimiter string // delimited text only
	Skipped   int    // malformed rows dropped
}

// Batch is the merged outcome of several uploads, in upload order.
type Batch struct {
	Records []models.Record
	Columns models.Columns
	Files   []string
	Skipped int
}

// SupportedExtensions lists the file extensions ParseFile accepts.
var SupportedExtensions = []string{".txt", ".csv", ".tsv", ".xlsx", ".xls", ".ris", ".bib", ".rtf", ".enw"}

// IsSupported reports whether name has an accepted extension.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ParseFile detects the format of one upload and parses it.
func ParseFile(name string, data []byte) (*Parsed, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".csv", ".tsv":
		return parseDelimited(name, data)
	case ".xlsx":
		return parseXLSX(name, data)
	case ".xls":
		return parseXLS(name, data)
	case ".ris":
		text, _, ok := decodeFirst(data)
		if !ok {
			return nil, parseErr(name, ErrUndecodable)
		}
		return parseRIS(name, text)
	case ".bib":
		text, _, ok := decodeFirst(data)
		if !ok {
			return nil, parseErr(name, ErrUndecodable)
		}
		return parseBibTeX(name, text)
	case ".rtf", ".enw":
		return parseTaggedText(name, data)
	default:
		return nil, parseErr(name, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name)))
	}
}

// parseTaggedText handles EndNote exports, optionally wrapped in RTF. A
// document that turns out to be reference-tag text goes to the RIS parser.
func parseTaggedText(name string, data []byte) (*Parsed, error) {
	text, _, ok := decodeFirst(data)
	if !ok {
		return nil, parseErr(name, ErrUndecodable)
	}
	if isRTF(data) {
		text = rtfToText(text)
	}
	if looksTagged(text) {
		return parseRIS(name, text)
	}
	return parseEndNote(name, text)
}

// ParseFiles parses each upload independently and concatenates the records
// in upload order. The first failure aborts with a ParseError naming the
// file. Resolved columns come from the first file that resolved each one.
func ParseFiles(uploads []Upload) (*Batch, error) {
	b := &Batch{}
	for _, u := range uploads {
		p, err := ParseFile(u.Name, u.Data)
		if err != nil {
			return nil, err
		}
		b.Records = append(b.Records, p.Records...)
		b.Files = append(b.Files, u.Name)
		b.Skipped += p.Skipped
		if b.Columns.Title == "" {
			b.Columns.Title = p.Columns.Title
		}
		if b.Columns.Abstract == "" {
			b.Columns.Abstract = p.Columns.Abstract
		}
		if b.Columns.Source == "" {
			b.Columns.Source = p.Columns.Source
		}
	}
	return b, nil
}
