// Package export serializes screened record sets into the formats the
// ingest package reads back, plus CSL-YAML for reference managers.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fentz26/litscreen/internal/models"
)

var (
	ErrUnknownFormat  = errors.New("unknown output format")
	ErrUnknownDataset = errors.New("unknown dataset")
)

// ReasonColumn is the header, note or field carrying exclusion reasons in
// removed sets.
const ReasonColumn = "Exclusion_Reason"

// Format selects an output encoding. Line breaks inside a value survive
// CSV, XLSX, XLS and YAML. TSV, RIS and BibTeX keep each value on one line,
// so any whitespace run in it, line breaks included, becomes one space.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatTSV    Format = "tsv"
	FormatXLSX   Format = "xlsx"
	FormatXLS    Format = "xls"
	FormatRIS    Format = "ris"
	FormatBibTeX Format = "bib"
	FormatYAML   Format = "yaml"
)

// Formats lists every supported output format.
var Formats = []Format{FormatCSV, FormatTSV, FormatXLSX, FormatXLS, FormatRIS, FormatBibTeX, FormatYAML}

// ParseFormat accepts a format name or common synonym. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "tsv", "tab", "txt":
		return FormatTSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "xls":
		return FormatXLS, nil
	case "ris":
		return FormatRIS, nil
	case "bib", "bibtex":
		return FormatBibTeX, nil
	case "yaml", "yml", "csl", "csl-yaml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatTSV:
		return "text/tab-separated-values"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatXLS:
		return "application/vnd.ms-excel"
	case FormatRIS:
		return "application/x-research-info-systems"
	case FormatBibTeX:
		return "application/x-bibtex"
	case FormatYAML:
		return "application/yaml"
	}
	return "application/octet-stream"
}

// Write serializes records. withReason adds the exclusion reason of each
// record, as used for removed sets.
func Write(w io.Writer, f Format, records []models.Record, cols models.Columns, withReason bool) error {
	switch f {
	case FormatCSV:
		return writeDelimited(w, records, cols, withReason, ',', true)
	case FormatTSV:
		return writeDelimited(w, records, cols, withReason, '\t', false)
	case FormatXLSX:
		return writeXLSX(w, records, cols, withReason)
	case FormatXLS:
		return writeSpreadsheetML(w, records, cols, withReason)
	case FormatRIS:
		return writeRIS(w, records, withReason)
	case FormatBibTeX:
		return writeBibTeX(w, records, withReason)
	case FormatYAML:
		return writeCSL(w, records, withReason)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Marshal is Write into memory.
func Marshal(f Format, records []models.Record, cols models.Columns, withReason bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, f, records, cols, withReason); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Dataset selects which part of a result is exported.
type Dataset string

const (
	DatasetKept    Dataset = "kept"
	DatasetRemoved Dataset = "removed"
	DatasetBoth    Dataset = "both"
)

// ParseDataset accepts kept (or its alias cleaned), removed and both.
func ParseDataset(s string) (Dataset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kept", "cleaned":
		return DatasetKept, nil
	case "removed":
		return DatasetRemoved, nil
	case "both":
		return DatasetBoth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
}

// FileName returns cleaned_data_<ts>.<ext> or removed_data_<ts>.<ext>.
func FileName(ds Dataset, timestamp string, f Format) string {
	prefix := "cleaned_data"
	if ds == DatasetRemoved {
		prefix = "removed_data"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, f.Extension())
}

// BundleName returns the archive name for a "both" download.
func BundleName(timestamp string) string {
	return fmt.Sprintf("screening_results_%s.zip", timestamp)
}

// File is one serialized download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Export serializes the selected dataset of a completed result.
func Export(res *models.Result, ds Dataset, f Format) (*File, error) {
	switch ds {
	case DatasetKept, DatasetRemoved:
		records, withReason := res.Kept, false
		if ds == DatasetRemoved {
			records, withReason = res.Removed, true
		}
		data, err := Marshal(f, records, res.Columns, withReason)
		if err != nil {
			return nil, err
		}
		return &File{Name: FileName(ds, res.Timestamp, f), ContentType: f.ContentType(), Data: data}, nil
	case DatasetBoth:
		var buf bytes.Buffer
		if err := Bundle(&buf, res, f); err != nil {
			return nil, err
		}
		return &File{Name: BundleName(res.Timestamp), ContentType: "application/zip", Data: buf.Bytes()}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, ds)
}
