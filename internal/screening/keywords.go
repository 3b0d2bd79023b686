// Package screening applies exclusion rules to deduplicated records.
//
// The keyword stage always runs; the AI stage runs only when a delegate and
// criteria are supplied. Both stages append reasons to a record's exclusion
// state and never remove reasons owned by another stage.
package screening

import (
	"strings"

	"github.com/fentz26/litscreen/internal/models"
)

// DefaultTitleAbstractBlacklist is offered when the operator supplies none.
var DefaultTitleAbstractBlacklist = []string{
	"surgical", "surgery", "patient", "patients", "clinical trial",
	"hospital", "physician", "nurse", "disease", "therapy",
	"diagnosis", "treatment", "medication", "drug", "pharmaceutical",
	"cancer", "tumor", "tumour", "athlete", "athletes", "sports",
	"game theory", "game-theoretic", "molecular", "molecule",
	"chemical", "chemistry", "physics", "quantum", "genome", "protein",
}

// DefaultJournalBlacklist is offered when the operator supplies none.
var DefaultJournalBlacklist = []string{
	"medicine", "medical", "clinical", "surgery", "surgical",
	"hospital", "health", "nursing", "pharmacy", "pharmacology",
	"chemistry", "chemical", "physics", "physical", "biology",
	"biological", "biochemistry", "sports", "sport", "athletic",
}

// Reason prefixes owned by the keyword stage.
const (
	PrefixTitle    = "Title: "
	PrefixAbstract = "Abstract: "
	PrefixJournal  = "Journal: "
)

// Blacklists holds the two term lists used by the keyword stage.
type Blacklists struct {
	TitleAbstract []string `json:"title_abstract" yaml:"title_abstract" mapstructure:"title_abstract"`
	Journal       []string `json:"journal" yaml:"journal" mapstructure:"journal"`
}

// DefaultBlacklists returns copies of the built-in lists.
func DefaultBlacklists() Blacklists {
	return Blacklists{
		TitleAbstract: append([]string(nil), DefaultTitleAbstractBlacklist...),
		Journal:       append([]string(nil), DefaultJournalBlacklist...),
	}
}

// ParseKeywords splits newline-separated text into trimmed, non-blank terms.
func ParseKeywords(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if term := strings.TrimSpace(line); term != "" {
			out = append(out, term)
		}
	}
	return out
}

// MatchTerm returns the first term, in list order, that occurs in text
// case-insensitively.
func MatchTerm(text string, terms []string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			return term, true
		}
	}
	return "", false
}

// KeywordCounts summarizes one keyword pass.
type KeywordCounts struct {
	TitleAbstractExcluded int
	JournalExcluded       int
	Excluded              int
}

// KeywordStage screens records in place. Title and abstract are tested
// against the title/abstract list, the source title against the journal
// list. Reasons previously written by this stage are dropped first, so
// running it again on the same records gives the same result.
func KeywordStage(records []models.Record, bl Blacklists) KeywordCounts {
	var c KeywordCounts
	for i := range records {
		r := &records[i]
		resetKeywordReasons(r)

		var reasons []string
		if term, ok := MatchTerm(r.Title, bl.TitleAbstract); ok {
			reasons = append(reasons, PrefixTitle+quote(term))
		}
		if term, ok := MatchTerm(r.Abstract, bl.TitleAbstract); ok {
			reasons = append(reasons, PrefixAbstract+quote(term))
		}
		if len(reasons) > 0 {
			c.TitleAbstractExcluded++
		}
		if term, ok := MatchTerm(r.SourceTitle, bl.Journal); ok {
			reasons = append(reasons, PrefixJournal+quote(term))
			if len(reasons) == 1 {
				c.JournalExcluded++
			}
		}

		for _, reason := range reasons {
			r.Exclude(reason)
		}
		if r.Exclusion.Excluded {
			c.Excluded++
		}
	}
	return c
}

func quote(term string) string {
	return "'" + term + "'"
}

// resetKeywordReasons removes reasons owned by the keyword stage and
// recomputes the excluded flag from what remains.
func resetKeywordReasons(r *models.Record) {
	var kept []string
	for _, reason := range r.Exclusion.Reasons {
		if isKeywordReason(reason) {
			continue
		}
		kept = append(kept, reason)
	}
	r.Exclusion.Reasons = kept
	r.Exclusion.Excluded = len(kept) > 0
}

func isKeywordReason(reason string) bool {
	return strings.HasPrefix(reason, PrefixTitle) ||
		strings.HasPrefix(reason, PrefixAbstract) ||
		strings.HasPrefix(reason, PrefixJournal)
}
