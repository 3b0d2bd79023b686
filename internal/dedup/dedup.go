// Package dedup removes duplicate records before screening.
//
// The doi_title method runs two keep-first passes. The DOI pass groups
// records by their exact, non-blank DOI; the title pass groups what is left
// by normalized title. Order is taken from the input sequence, so callers
// must hand in a stable merge order.
package dedup

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fentz26/litscreen/internal/models"
)

// Method selects a deduplication policy.
type Method string

const (
	MethodDOITitle Method = "doi_title"
	MethodNone     Method = "none"
)

// ParseMethod maps a configuration string to a Method. Empty means the
// default doi_title.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodDOITitle:
		return MethodDOITitle, nil
	case MethodNone:
		return MethodNone, nil
	default:
		return "", fmt.Errorf("unknown dedup method %q", s)
	}
}

// Deduplicate returns the surviving records and a summary. The input slice
// is not modified.
func Deduplicate(records []models.Record, method Method) ([]models.Record, models.DedupResult) {
	res := models.DedupResult{
		OriginalCount: len(records),
		Method:        string(method),
	}
	if method != MethodDOITitle {
		out := append([]models.Record(nil), records...)
		res.Method = string(MethodNone)
		res.FinalCount = len(out)
		return out, res
	}

	afterDOI := keepFirst(records, func(r *models.Record) string {
		return strings.TrimSpace(r.DOI)
	})
	res.DOIDuplicates = len(records) - len(afterDOI)
	if res.DOIDuplicates > 0 {
		res.Basis = append(res.Basis, fmt.Sprintf("DOI: %d duplicate(s) removed", res.DOIDuplicates))
	}

	afterTitle := keepFirst(afterDOI, func(r *models.Record) string {
		return NormalizeTitle(r.Title)
	})
	res.TitleDuplicates = len(afterDOI) - len(afterTitle)
	if res.TitleDuplicates > 0 {
		res.Basis = append(res.Basis, fmt.Sprintf("Title: %d duplicate(s) removed", res.TitleDuplicates))
	}

	res.FinalCount = len(afterTitle)
	res.DuplicatesRemoved = res.OriginalCount - res.FinalCount
	return afterTitle, res
}

// keepFirst drops every record whose key was already seen. Records with an
// empty key are never grouped.
func keepFirst(records []models.Record, key func(*models.Record) string) []models.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.Record, 0, len(records))
	for i := range records {
		k := key(&records[i])
		if k != "" {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, records[i])
	}
	return out
}

// NormalizeTitle lower-cases s, drops everything but word characters and
// whitespace, and collapses whitespace runs to one space.
func NormalizeTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
