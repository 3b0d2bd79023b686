package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/fentz26/litscreen/internal/models"
)

var bibEscaper = strings.NewReplacer(
	"{", "",
	"}", "",
	"&", `\&`,
	"%", `\%`,
	"$", `\$`,
	"#", `\#`,
	"_", `\_`,
)

// bibType maps a document type or reference-type code to an entry type.
func bibType(t string) string {
	switch l := strings.ToLower(t); l {
	case "article", "inproceedings", "incollection", "book", "inbook", "phdthesis",
		"mastersthesis", "techreport", "misc", "proceedings", "conference":
		return l
	}
	switch risType(t) {
	case "CONF":
		return "inproceedings"
	case "CHAP":
		return "incollection"
	case "BOOK":
		return "book"
	case "THES":
		return "phdthesis"
	case "RPRT":
		return "techreport"
	}
	return "article"
}

// citeKey builds surnameYEAR keys, suffixed on collision.
func citeKey(r *models.Record, used map[string]int) string {
	base := "ref"
	if len(r.Authors) > 0 {
		name := r.Authors[0]
		if i := strings.Index(name, ","); i >= 0 {
			name = name[:i]
		} else if f := strings.Fields(name); len(f) > 0 {
			name = f[len(f)-1]
		}
		var b strings.Builder
		for _, c := range name {
			if unicode.IsLetter(c) || unicode.IsDigit(c) {
				b.WriteRune(unicode.ToLower(c))
			}
		}
		if b.Len() > 0 {
			base = b.String()
		}
	}
	base += r.Year

	used[base]++
	if n := used[base]; n > 1 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}

// writeBibTeX writes structured-citation entries. Exclusion reasons go into
// the note field.
func writeBibTeX(w io.Writer, records []models.Record, withReason bool) error {
	bw := bufio.NewWriter(w)
	used := make(map[string]int)

	for i := range records {
		r := &records[i]
		fmt.Fprintf(bw, "@%s{%s,\n", bibType(r.Type), citeKey(r, used))

		field := func(name, value string) {
			if value = oneLine(value); value != "" {
				fmt.Fprintf(bw, "  %s = {%s},\n", name, bibEscaper.Replace(value))
			}
		}
		// Identifiers are read back verbatim, so only braces are dropped.
		raw := func(name, value string) {
			if value = strings.NewReplacer("{", "", "}", "").Replace(oneLine(value)); value != "" {
				fmt.Fprintf(bw, "  %s = {%s},\n", name, value)
			}
		}
		field("title", r.Title)
		field("author", strings.Join(r.Authors, " and "))
		if bibType(r.Type) == "inproceedings" {
			field("booktitle", r.SourceTitle)
		} else {
			field("journal", r.SourceTitle)
		}
		field("year", r.Year)
		field("abstract", r.Abstract)
		raw("doi", r.DOI)
		field("keywords", strings.Join(r.Keywords, "; "))
		raw("url", r.URL)
		field("publisher", r.Publisher)
		field("volume", r.Volume)
		if sp, ep := splitPages(r.Pages); ep != "" {
			field("pages", sp+"--"+ep)
		} else {
			field("pages", sp)
		}
		if withReason {
			field("note", ReasonColumn+": "+r.ExclusionReason())
		}
		bw.WriteString("}\n\n")
	}
	return bw.Flush()
}
