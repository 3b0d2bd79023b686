package screening

import "github.com/fentz26/litscreen/internal/models"

// Partition splits records into kept and removed, preserving order.
func Partition(records []models.Record) (kept, removed []models.Record) {
	kept = make([]models.Record, 0, len(records))
	for _, r := range records {
		if r.Exclusion.Excluded {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	return kept, removed
}

// Stats assembles the reported counters for one run.
func Stats(total int, dedup models.DedupResult, kw KeywordCounts, ai AICounts, kept, removed int, cols models.Columns) models.ScreeningStats {
	return models.ScreeningStats{
		Total:                  total,
		AfterDedup:             dedup.FinalCount,
		TitleAbstractExcluded:  kw.TitleAbstractExcluded,
		JournalExcluded:        kw.JournalExcluded,
		AIExcluded:             ai.Excluded,
		AIVerificationExcluded: ai.VerificationExcluded,
		AIErrors:               ai.Errors,
		Kept:                   kept,
		Excluded:               removed,
		TitleColumn:            cols.Title,
		AbstractColumn:         cols.Abstract,
		SourceColumn:           cols.Source,
	}
}
