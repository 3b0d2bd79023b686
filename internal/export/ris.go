package export

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fentz26/litscreen/internal/models"
)

var risTypeRe = regexp.MustCompile(`^[A-Z]{2,6}$`)

// risType maps a free-form document type to a reference-type code.
func risType(t string) string {
	if risTypeRe.MatchString(t) {
		return t
	}
	l := strings.ToLower(t)
	switch {
	case l == "":
		return "JOUR"
	case strings.Contains(l, "chapter"), l == "incollection", l == "inbook":
		return "CHAP"
	case strings.Contains(l, "book"):
		return "BOOK"
	case strings.Contains(l, "conference"), strings.Contains(l, "proceeding"), l == "inproceedings":
		return "CONF"
	case strings.Contains(l, "thesis"):
		return "THES"
	case strings.Contains(l, "report"), l == "techreport":
		return "RPRT"
	}
	return "JOUR"
}

// oneLine collapses whitespace so a value fits on a single tagged line. A
// tagged format has no way to mark a paragraph break inside one value.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitPages(p string) (start, end string) {
	p = strings.ReplaceAll(p, "--", "-")
	if i := strings.Index(p, "-"); i >= 0 {
		return strings.TrimSpace(p[:i]), strings.TrimSpace(p[i+1:])
	}
	return strings.TrimSpace(p), ""
}

// writeRIS writes reference-tag records. Exclusion reasons go into N1 notes.
func writeRIS(w io.Writer, records []models.Record, withReason bool) error {
	bw := bufio.NewWriter(w)
	tag := func(code, value string) {
		if value = oneLine(value); value != "" {
			fmt.Fprintf(bw, "%s  - %s\n", code, value)
		}
	}

	for i := range records {
		r := &records[i]
		fmt.Fprintf(bw, "TY  - %s\n", risType(r.Type))
		tag("TI", r.Title)
		for _, a := range r.Authors {
			tag("AU", a)
		}
		tag("PY", r.Year)
		tag("JO", r.SourceTitle)
		tag("AB", r.Abstract)
		for _, k := range r.Keywords {
			tag("KW", k)
		}
		tag("DO", r.DOI)
		tag("UR", r.URL)
		tag("PB", r.Publisher)
		tag("VL", r.Volume)
		sp, ep := splitPages(r.Pages)
		tag("SP", sp)
		tag("EP", ep)
		if withReason {
			tag("N1", ReasonColumn+": "+r.ExclusionReason())
		}
		bw.WriteString("ER  - \n\n")
	}
	return bw.Flush()
}
