package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors for ingestion.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoColumns         = errors.New("could not detect columns")
	ErrNoEntries         = errors.New("no bibliographic entries found")
	ErrUndecodable       = errors.New("could not decode file with any supported encoding")
)

// ParseError reports a file that could not be turned into records. It always
// names the offending upload.
type ParseError struct {
	File    string
	Err     error
	Preview string
}

func (e *ParseError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("error reading file %s: %v (content starts: %q)", e.File, e.Err, e.Preview)
	}
	return fmt.Sprintf("error reading file %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(file string, err error) *ParseError {
	return &ParseError{File: file, Err: err}
}
