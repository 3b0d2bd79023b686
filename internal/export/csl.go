package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/fentz26/litscreen/internal/models"
	"gopkg.in/yaml.v3"
)

// cslName is a CSL person. Names without a comma are kept literal.
type cslName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

type cslDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// cslItem is one CSL-YAML reference.
type cslItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []cslName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	Issued         *cslDate  `yaml:"issued,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
	Publisher      string    `yaml:"publisher,omitempty"`
	Volume         string    `yaml:"volume,omitempty"`
	Page           string    `yaml:"page,omitempty"`
	Keyword        string    `yaml:"keyword,omitempty"`
	Note           string    `yaml:"note,omitempty"`
}

func cslType(t string) string {
	switch risType(t) {
	case "CONF":
		return "paper-conference"
	case "CHAP":
		return "chapter"
	case "BOOK":
		return "book"
	case "THES":
		return "thesis"
	case "RPRT":
		return "report"
	}
	return "article-journal"
}

func cslAuthor(name string) cslName {
	if i := strings.Index(name, ","); i > 0 {
		return cslName{Family: strings.TrimSpace(name[:i]), Given: strings.TrimSpace(name[i+1:])}
	}
	return cslName{Literal: name}
}

// writeCSL writes a YAML sequence of CSL items.
func writeCSL(w io.Writer, records []models.Record, withReason bool) error {
	used := make(map[string]int)
	items := make([]cslItem, 0, len(records))
	for i := range records {
		r := &records[i]
		item := cslItem{
			ID:             citeKey(r, used),
			Type:           cslType(r.Type),
			Title:          r.Title,
			ContainerTitle: r.SourceTitle,
			Abstract:       r.Abstract,
			DOI:            r.DOI,
			URL:            r.URL,
			Publisher:      r.Publisher,
			Volume:         r.Volume,
			Page:           r.Pages,
			Keyword:        strings.Join(r.Keywords, ", "),
		}
		for _, a := range r.Authors {
			item.Author = append(item.Author, cslAuthor(a))
		}
		if y, err := strconv.Atoi(r.Year); err == nil {
			item.Issued = &cslDate{DateParts: [][]int{{y}}}
		}
		if withReason {
			item.Note = ReasonColumn + ": " + r.ExclusionReason()
		}
		items = append(items, item)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(items); err != nil {
		return err
	}
	return enc.Close()
}
